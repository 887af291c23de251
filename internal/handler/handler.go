// Package handler exposes the retrieval pipeline over HTTP. It is a thin
// dev/ops harness; the pipeline itself is the contract.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bochiedev/tulia-retrieval/internal/orchestrator"
	"github.com/bochiedev/tulia-retrieval/internal/pipeline"
	"github.com/bochiedev/tulia-retrieval/internal/searchcache"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
	"github.com/bochiedev/tulia-retrieval/pkg/logger"
)

// Retriever is the pipeline contract the handler serves. *pipeline.Pipeline
// satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, req orchestrator.Request) (pipeline.Response, error)
}

// CacheStats exposes hit/miss counters; *external.Connector satisfies it.
type CacheStats interface {
	Stats() (hits, misses int64)
}

type Handler struct {
	retriever  Retriever
	cache      searchcache.Store
	cacheStats CacheStats
	maxResults int
	logger     *slog.Logger
}

func New(retriever Retriever, cache searchcache.Store, cacheStats CacheStats, maxResults int) *Handler {
	return &Handler{
		retriever:  retriever,
		cache:      cache,
		cacheStats: cacheStats,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "retrieval-handler"),
	}
}

// Retrieve handles GET /api/v1/retrieve. Tenant comes from the
// X-Tenant-ID header or the tenant query parameter.
func (h *Handler) Retrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID := r.Header.Get("X-Tenant-ID")
	if tenantID == "" {
		tenantID = r.URL.Query().Get("tenant")
	}
	if tenantID == "" {
		h.writeError(w, http.StatusBadRequest, "tenant is required")
		return
	}
	ctx = logger.WithTenant(ctx, tenantID)
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}

	start := time.Now()
	resp, err := h.retriever.Retrieve(ctx, orchestrator.Request{
		TenantID:         tenantID,
		Query:            query,
		ConversationHint: r.URL.Query().Get("hint"),
		MaxResults:       limit,
	})
	if err != nil {
		log.Error("retrieval failed", "query", query, "error", err)
		h.writeError(w, pkgerrors.HTTPStatusCode(err), err.Error())
		return
	}

	log.Info("retrieve completed",
		"query", query,
		"returned", len(resp.Sources),
		"degraded", resp.Degraded,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStatsHandler handles GET /api/v1/cache/stats for the external
// search cache.
func (h *Handler) CacheStatsHandler(w http.ResponseWriter, r *http.Request) {
	if h.cacheStats == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cacheStats.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate. The scope
// parameter selects a tenant scope; it defaults to the global external
// cache. Catalog changes should invalidate so stale prices never serve.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = searchcache.GlobalScope
	}
	deleted, err := h.cache.Invalidate(r.Context(), scope)
	if err != nil {
		h.logger.Error("cache invalidation failed", "scope", scope, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "invalidated",
		"scope":   scope,
		"deleted": deleted,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
