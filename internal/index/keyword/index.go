// Package keyword implements the tenant-namespaced lexical index. Each
// tenant gets an isolated inverted index over chunk content; queries are
// scored with BM25 and mapped into [0,1].
package keyword

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/internal/text"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Hit is a single keyword-search match.
type Hit struct {
	Chunk source.Chunk
	Score float64
}

type posting struct {
	chunkID   string
	frequency int
}

type namespace struct {
	postings    map[string]map[string]*posting // term -> chunkID -> posting
	chunks      map[string]source.Chunk
	chunkTokens map[string]int
	docChunks   map[string]map[string]struct{}
	totalTokens int64
}

func newNamespace() *namespace {
	return &namespace{
		postings:    make(map[string]map[string]*posting),
		chunks:      make(map[string]source.Chunk),
		chunkTokens: make(map[string]int),
		docChunks:   make(map[string]map[string]struct{}),
	}
}

// Index is a shared, concurrency-safe inverted index partitioned by tenant.
type Index struct {
	mu      sync.RWMutex
	tenants map[string]*namespace
}

func New() *Index {
	return &Index{tenants: make(map[string]*namespace)}
}

// Add indexes a chunk under its tenant namespace. Re-adding a chunk with
// the same (document, ordinal) identity replaces the previous entry.
func (i *Index) Add(chunk source.Chunk) error {
	if chunk.TenantID == "" {
		return pkgerrors.ErrMissingTenant
	}
	tokens := text.Tokenize(chunk.Content)
	termFreq := make(map[string]int)
	for _, tok := range tokens {
		termFreq[tok.Term]++
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	ns, ok := i.tenants[chunk.TenantID]
	if !ok {
		ns = newNamespace()
		i.tenants[chunk.TenantID] = ns
	}

	chunkID := chunk.ID()
	ns.removeChunkLocked(chunkID)

	ns.chunks[chunkID] = chunk
	ns.chunkTokens[chunkID] = len(tokens)
	ns.totalTokens += int64(len(tokens))
	for term, freq := range termFreq {
		if _, exists := ns.postings[term]; !exists {
			ns.postings[term] = make(map[string]*posting)
		}
		ns.postings[term][chunkID] = &posting{chunkID: chunkID, frequency: freq}
	}
	if _, exists := ns.docChunks[chunk.DocumentID]; !exists {
		ns.docChunks[chunk.DocumentID] = make(map[string]struct{})
	}
	ns.docChunks[chunk.DocumentID][chunkID] = struct{}{}
	return nil
}

// Search returns up to limit chunks of the given tenant ranked by BM25,
// with scores normalised into [0,1]. Ties are broken by chunk ID so that
// ordering is stable.
func (i *Index) Search(ctx context.Context, tenantID, query string, limit int) ([]Hit, error) {
	if tenantID == "" {
		return nil, pkgerrors.ErrMissingTenant
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := text.Terms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	ns, ok := i.tenants[tenantID]
	if !ok || len(ns.chunks) == 0 {
		return nil, nil
	}

	totalDocs := float64(len(ns.chunks))
	avgLen := float64(ns.totalTokens) / totalDocs

	scores := make(map[string]float64)
	for _, term := range terms {
		docs, exists := ns.postings[term]
		if !exists {
			continue
		}
		idf := computeIDF(totalDocs, float64(len(docs)))
		for chunkID, p := range docs {
			tfNorm := computeTFNorm(
				float64(p.frequency),
				float64(ns.chunkTokens[chunkID]),
				avgLen,
			)
			scores[chunkID] += idf * tfNorm
		}
	}

	hits := make([]Hit, 0, len(scores))
	for chunkID, score := range scores {
		hits = append(hits, Hit{
			Chunk: ns.chunks[chunkID],
			// BM25 is unbounded above; squash into [0,1).
			Score: score / (score + 1),
		})
	}
	sort.Slice(hits, func(a, c int) bool {
		if hits[a].Score != hits[c].Score {
			return hits[a].Score > hits[c].Score
		}
		return hits[a].Chunk.ID() < hits[c].Chunk.ID()
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteDocument removes every chunk of a document from the tenant's
// namespace. Deleting an unknown document is a no-op.
func (i *Index) DeleteDocument(tenantID, documentID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	ns, ok := i.tenants[tenantID]
	if !ok {
		return
	}
	for chunkID := range ns.docChunks[documentID] {
		ns.removeChunkLocked(chunkID)
	}
	delete(ns.docChunks, documentID)
}

// TenantCount returns the number of tenant namespaces with indexed data.
func (i *Index) TenantCount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.tenants)
}

// ChunkCount returns the number of chunks indexed for a tenant.
func (i *Index) ChunkCount(tenantID string) int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if ns, ok := i.tenants[tenantID]; ok {
		return len(ns.chunks)
	}
	return 0
}

func (ns *namespace) removeChunkLocked(chunkID string) {
	chunk, exists := ns.chunks[chunkID]
	if !exists {
		return
	}
	ns.totalTokens -= int64(ns.chunkTokens[chunkID])
	delete(ns.chunks, chunkID)
	delete(ns.chunkTokens, chunkID)
	for term, docs := range ns.postings {
		if _, ok := docs[chunkID]; ok {
			delete(docs, chunkID)
			if len(docs) == 0 {
				delete(ns.postings, term)
			}
		}
	}
	if set, ok := ns.docChunks[chunk.DocumentID]; ok {
		delete(set, chunkID)
	}
}

func computeIDF(totalDocs, docFreq float64) float64 {
	return math.Log((totalDocs-docFreq+0.5)/(docFreq+0.5) + 1)
}

func computeTFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
