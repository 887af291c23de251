// Package hybrid combines vector (semantic) and keyword (lexical) search
// over a tenant's document chunks into one ranked list.
package hybrid

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/bochiedev/tulia-retrieval/internal/index/keyword"
	"github.com/bochiedev/tulia-retrieval/internal/index/vector"
	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/pkg/config"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
)

// Result is a ranked document list plus a degradation flag set when one of
// the underlying engines was unavailable.
type Result struct {
	Sources  []source.Ranked
	Degraded bool
}

// Engine fans a query out to both indexes and merges the candidates with
// configurable weights.
type Engine struct {
	vector  vector.Index
	keyword *keyword.Index
	cfg     config.RetrievalConfig
	logger  *slog.Logger
}

func New(vectorIndex vector.Index, keywordIndex *keyword.Index, cfg config.RetrievalConfig) *Engine {
	return &Engine{
		vector:  vectorIndex,
		keyword: keywordIndex,
		cfg:     cfg,
		logger:  slog.Default().With("component", "hybrid-search"),
	}
}

type candidate struct {
	chunk    source.Chunk
	vector   float64
	keyword  float64
	combined float64
}

// Search returns up to limit chunks for the tenant, ranked by the weighted
// combination of normalised vector and keyword scores. A vector index
// failure degrades to keyword-only results; source failures never surface
// as errors, only contract faults do.
func (e *Engine) Search(ctx context.Context, tenantID, query string, limit int) (Result, error) {
	if tenantID == "" {
		return Result{}, pkgerrors.ErrMissingTenant
	}
	if strings.TrimSpace(query) == "" {
		return Result{}, pkgerrors.ErrInvalidQuery
	}
	if limit <= 0 {
		limit = 5
	}

	// Each engine contributes up to 2x the final limit so normalisation
	// has enough candidates to work with.
	fetch := 2 * limit

	var (
		wg          sync.WaitGroup
		vectorHits  []vector.Hit
		keywordHits []keyword.Hit
		vectorErr   error
		keywordErr  error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectorHits, vectorErr = e.vector.Search(ctx, tenantID, query, fetch)
	}()
	go func() {
		defer wg.Done()
		keywordHits, keywordErr = e.keyword.Search(ctx, tenantID, query, fetch)
	}()
	wg.Wait()

	if vectorErr != nil {
		if pkgerrors.IsContractFault(vectorErr) {
			return Result{}, vectorErr
		}
		e.logger.Warn("vector search unavailable, degrading to keyword-only",
			"tenant_id", tenantID, "error", vectorErr)
	}
	if keywordErr != nil {
		if pkgerrors.IsContractFault(keywordErr) {
			return Result{}, keywordErr
		}
		e.logger.Warn("keyword search failed", "tenant_id", tenantID, "error", keywordErr)
	}

	degraded := vectorErr != nil || keywordErr != nil
	if vectorErr != nil && keywordErr != nil {
		return Result{Degraded: true}, nil
	}

	semantic, lexical := e.cfg.WeightsFor(tenantID)
	// A surviving engine carries full weight on its own. Scaling its
	// normalised scores by a partial weight would rank tenant documents
	// below capped external snippets downstream.
	if vectorErr != nil {
		semantic, lexical = 0, 1
	} else if keywordErr != nil {
		semantic, lexical = 1, 0
	}
	candidates := combine(vectorHits, keywordHits, semantic, lexical)

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.combined != b.combined {
			return a.combined > b.combined
		}
		// Prefer denser matches, then earlier chunks of a document.
		if len(a.chunk.Content) != len(b.chunk.Content) {
			return len(a.chunk.Content) < len(b.chunk.Content)
		}
		if a.chunk.Ordinal != b.chunk.Ordinal {
			return a.chunk.Ordinal < b.chunk.Ordinal
		}
		return a.chunk.ID() < b.chunk.ID()
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	sources := make([]source.Ranked, 0, len(candidates))
	for _, c := range candidates {
		sources = append(sources, source.FromChunk(c.chunk, c.combined))
	}
	return Result{Sources: sources, Degraded: degraded}, nil
}

// combine min-max normalises each engine's scores within its own list and
// merges by chunk identity; a chunk absent from one list contributes zero
// for that term.
func combine(vectorHits []vector.Hit, keywordHits []keyword.Hit, semanticWeight, keywordWeight float64) []candidate {
	vmin, vmax := scoreRange(len(vectorHits), func(i int) float64 { return vectorHits[i].Score })
	kmin, kmax := scoreRange(len(keywordHits), func(i int) float64 { return keywordHits[i].Score })

	byID := make(map[string]*candidate)
	for _, hit := range vectorHits {
		byID[hit.Chunk.ID()] = &candidate{
			chunk:  hit.Chunk,
			vector: minMax(hit.Score, vmin, vmax),
		}
	}
	for _, hit := range keywordHits {
		c, ok := byID[hit.Chunk.ID()]
		if !ok {
			c = &candidate{chunk: hit.Chunk}
			byID[hit.Chunk.ID()] = c
		}
		c.keyword = minMax(hit.Score, kmin, kmax)
	}

	out := make([]candidate, 0, len(byID))
	for _, c := range byID {
		c.combined = semanticWeight*c.vector + keywordWeight*c.keyword
		out = append(out, *c)
	}
	return out
}

func scoreRange(n int, score func(i int) float64) (lo, hi float64) {
	if n == 0 {
		return 0, 0
	}
	lo, hi = score(0), score(0)
	for i := 1; i < n; i++ {
		s := score(i)
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return lo, hi
}

// minMax scales s into [0,1] within [lo,hi]. A list with a single distinct
// score maps to 1 so it still carries full weight.
func minMax(s, lo, hi float64) float64 {
	if hi == lo {
		return 1
	}
	return (s - lo) / (hi - lo)
}
