// Package vector defines the tenant-namespaced nearest-neighbour index
// over chunk embeddings, with swappable backends: an in-process
// brute-force index and a remote Chroma client.
package vector

import (
	"context"

	"github.com/bochiedev/tulia-retrieval/internal/source"
)

// Embedder maps text to a fixed-length vector. Embedding production is a
// collaborator concern; implementations are injected.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Hit is a single similarity match with a score in [0,1].
type Hit struct {
	Chunk source.Chunk
	Score float64
}

// Index is the nearest-neighbour store contract. Every operation is
// namespaced by tenant; implementations must make cross-tenant reads
// structurally impossible.
type Index interface {
	Upsert(ctx context.Context, tenantID string, chunks []source.Chunk) error
	Search(ctx context.Context, tenantID, query string, limit int) ([]Hit, error)
	DeleteDocument(ctx context.Context, tenantID, documentID string) error
}
