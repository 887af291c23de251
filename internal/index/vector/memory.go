package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/bochiedev/tulia-retrieval/internal/source"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
)

// Memory is an in-process brute-force cosine-similarity index. Vectors are
// computed through the injected Embedder at upsert time and held per
// tenant. Search is exact; suitable for modest per-tenant corpus sizes.
type Memory struct {
	embedder Embedder
	mu       sync.RWMutex
	tenants  map[string]*memns
}

type memns struct {
	chunks map[string]source.Chunk
	vecs   map[string][]float32
	mags   map[string]float64
}

func NewMemory(embedder Embedder) *Memory {
	return &Memory{
		embedder: embedder,
		tenants:  make(map[string]*memns),
	}
}

func (m *Memory) Upsert(ctx context.Context, tenantID string, chunks []source.Chunk) error {
	if tenantID == "" {
		return pkgerrors.ErrMissingTenant
	}
	type embedded struct {
		chunk source.Chunk
		vec   []float32
		mag   float64
	}
	// Embed outside the lock.
	items := make([]embedded, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.TenantID != tenantID {
			return fmt.Errorf("%w: chunk %s belongs to tenant %q, not %q",
				pkgerrors.ErrTenantIsolation, chunk.ID(), chunk.TenantID, tenantID)
		}
		vec, err := m.embedder.Embed(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("embedding chunk %s: %w", chunk.ID(), err)
		}
		items = append(items, embedded{chunk: chunk, vec: vec, mag: magnitude(vec)})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.tenants[tenantID]
	if !ok {
		ns = &memns{
			chunks: make(map[string]source.Chunk),
			vecs:   make(map[string][]float32),
			mags:   make(map[string]float64),
		}
		m.tenants[tenantID] = ns
	}
	for _, it := range items {
		id := it.chunk.ID()
		ns.chunks[id] = it.chunk
		ns.vecs[id] = it.vec
		ns.mags[id] = it.mag
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, tenantID, query string, limit int) ([]Hit, error) {
	if tenantID == "" {
		return nil, pkgerrors.ErrMissingTenant
	}
	qvec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	qm := magnitude(qvec)
	if qm == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ns, ok := m.tenants[tenantID]
	if !ok {
		return nil, nil
	}

	hits := make([]Hit, 0, len(ns.vecs))
	for id, vec := range ns.vecs {
		if ns.mags[id] == 0 || len(vec) != len(qvec) {
			continue
		}
		cos := dot(qvec, vec) / (qm * ns.mags[id])
		if math.IsNaN(cos) {
			continue
		}
		// Cosine is in [-1,1]; map to [0,1].
		hits = append(hits, Hit{Chunk: ns.chunks[id], Score: (cos + 1) / 2})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Chunk.ID() < hits[b].Chunk.ID()
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *Memory) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	if tenantID == "" {
		return pkgerrors.ErrMissingTenant
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.tenants[tenantID]
	if !ok {
		return nil
	}
	for id, chunk := range ns.chunks {
		if chunk.DocumentID == documentID {
			delete(ns.chunks, id)
			delete(ns.vecs, id)
			delete(ns.mags, id)
		}
	}
	return nil
}

// ChunkCount returns the number of chunks indexed for a tenant.
func (m *Memory) ChunkCount(tenantID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ns, ok := m.tenants[tenantID]; ok {
		return len(ns.chunks)
	}
	return 0
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func magnitude(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
