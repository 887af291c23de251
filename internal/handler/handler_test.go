package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bochiedev/tulia-retrieval/internal/orchestrator"
	"github.com/bochiedev/tulia-retrieval/internal/pipeline"
	"github.com/bochiedev/tulia-retrieval/internal/searchcache"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
)

type fakeRetriever struct {
	lastReq orchestrator.Request
	resp    pipeline.Response
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, req orchestrator.Request) (pipeline.Response, error) {
	f.lastReq = req
	return f.resp, f.err
}

func TestRetrieveRequiresTenant(t *testing.T) {
	h := New(&fakeRetriever{}, searchcache.NewMemory(), nil, 10)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/retrieve?q=widget", nil)
	rec := httptest.NewRecorder()

	h.Retrieve(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a tenant, got %d", rec.Code)
	}
}

func TestRetrieveRequiresQuery(t *testing.T) {
	h := New(&fakeRetriever{}, searchcache.NewMemory(), nil, 10)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/retrieve", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	rec := httptest.NewRecorder()

	h.Retrieve(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a query, got %d", rec.Code)
	}
}

func TestRetrievePassesRequestThrough(t *testing.T) {
	retriever := &fakeRetriever{}
	h := New(retriever, searchcache.NewMemory(), nil, 10)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/retrieve?q=blue+widget&hint=pricing&limit=3", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	rec := httptest.NewRecorder()

	h.Retrieve(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if retriever.lastReq.TenantID != "tenant-a" {
		t.Errorf("tenant not propagated: %q", retriever.lastReq.TenantID)
	}
	if retriever.lastReq.Query != "blue widget" || retriever.lastReq.ConversationHint != "pricing" {
		t.Errorf("query/hint not propagated: %+v", retriever.lastReq)
	}
	if retriever.lastReq.MaxResults != 3 {
		t.Errorf("limit not propagated: %d", retriever.lastReq.MaxResults)
	}
}

func TestRetrieveCapsLimit(t *testing.T) {
	retriever := &fakeRetriever{}
	h := New(retriever, searchcache.NewMemory(), nil, 5)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/retrieve?q=widget&limit=100", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	rec := httptest.NewRecorder()

	h.Retrieve(rec, req)
	if retriever.lastReq.MaxResults != 5 {
		t.Errorf("limit should cap at 5, got %d", retriever.lastReq.MaxResults)
	}
}

func TestRetrieveMapsContractFaults(t *testing.T) {
	retriever := &fakeRetriever{err: pkgerrors.ErrTenantIsolation}
	h := New(retriever, searchcache.NewMemory(), nil, 10)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/retrieve?q=widget", nil)
	req.Header.Set("X-Tenant-ID", "tenant-a")
	rec := httptest.NewRecorder()

	h.Retrieve(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("tenant isolation faults should map to 403, got %d", rec.Code)
	}
}

func TestCacheInvalidateScopes(t *testing.T) {
	cache := searchcache.NewMemory()
	ctx := context.Background()
	if err := cache.Set(ctx, searchcache.Key("tenant-a", "f1"), []byte(`x`), 0); err != nil {
		t.Fatalf("seeding cache: %v", err)
	}
	h := New(&fakeRetriever{}, cache, nil, 10)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate?scope=tenant-a", nil)
	rec := httptest.NewRecorder()
	h.CacheInvalidate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["deleted"].(float64) != 1 {
		t.Errorf("expected 1 deletion, got %v", body["deleted"])
	}
}

func TestCacheStatsDisabled(t *testing.T) {
	h := New(&fakeRetriever{}, searchcache.NewMemory(), nil, 10)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil)
	rec := httptest.NewRecorder()

	h.CacheStatsHandler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "disabled" {
		t.Errorf("expected disabled status, got %v", body)
	}
}
