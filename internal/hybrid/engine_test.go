package hybrid

import (
	"context"
	"errors"
	"testing"

	"github.com/bochiedev/tulia-retrieval/internal/index/keyword"
	"github.com/bochiedev/tulia-retrieval/internal/index/vector"
	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/pkg/config"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
)

func chunk(tenantID, docID string, ordinal int, content string) source.Chunk {
	return source.Chunk{
		DocumentID:   docID,
		DocumentName: docID + ".md",
		TenantID:     tenantID,
		Ordinal:      ordinal,
		Content:      content,
	}
}

func testConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		SemanticWeight: 0.7,
		KeywordWeight:  0.3,
	}
}

// failingVector simulates an unavailable vector backend.
type failingVector struct{}

func (failingVector) Upsert(context.Context, string, []source.Chunk) error { return nil }
func (failingVector) Search(context.Context, string, string, int) ([]vector.Hit, error) {
	return nil, errors.New("vector backend unreachable")
}
func (failingVector) DeleteDocument(context.Context, string, string) error { return nil }

func seedEngine(t *testing.T, chunks ...source.Chunk) *Engine {
	t.Helper()
	vec := vector.NewMemory(vector.NewHashingEmbedder(64))
	kw := keyword.New()
	ctx := context.Background()
	for _, c := range chunks {
		if err := vec.Upsert(ctx, c.TenantID, []source.Chunk{c}); err != nil {
			t.Fatalf("seeding vector index: %v", err)
		}
		if err := kw.Add(c); err != nil {
			t.Fatalf("seeding keyword index: %v", err)
		}
	}
	return New(vec, kw, testConfig())
}

func TestSearchValidatesInput(t *testing.T) {
	e := seedEngine(t)
	if _, err := e.Search(context.Background(), "", "widget", 5); !errors.Is(err, pkgerrors.ErrMissingTenant) {
		t.Errorf("expected ErrMissingTenant, got %v", err)
	}
	if _, err := e.Search(context.Background(), "tenant-a", "   ", 5); !errors.Is(err, pkgerrors.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestSearchCombinesBothEngines(t *testing.T) {
	e := seedEngine(t,
		chunk("tenant-a", "faq", 0, "blue widget pricing starts at 500 dollars"),
		chunk("tenant-a", "faq", 1, "shipment takes three to five days"),
		chunk("tenant-a", "manual", 0, "widget installation and setup guide"),
	)

	res, err := e.Search(context.Background(), "tenant-a", "blue widget pricing", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Degraded {
		t.Error("unexpected degradation with both engines healthy")
	}
	if len(res.Sources) == 0 {
		t.Fatal("expected results")
	}
	if res.Sources[0].Chunk == nil || res.Sources[0].Chunk.DocumentID != "faq" || res.Sources[0].Chunk.Ordinal != 0 {
		t.Errorf("expected the pricing chunk first, got %+v", res.Sources[0])
	}
	for _, s := range res.Sources {
		if s.Kind != source.KindDocument {
			t.Errorf("hybrid results must be documents, got %q", s.Kind)
		}
		if s.Chunk.TenantID != "tenant-a" {
			t.Errorf("result leaked from tenant %q", s.Chunk.TenantID)
		}
	}
}

func TestSearchDegradesToKeywordOnlyOnVectorFailure(t *testing.T) {
	kw := keyword.New()
	c := chunk("tenant-a", "faq", 0, "blue widget pricing details")
	if err := kw.Add(c); err != nil {
		t.Fatalf("seeding keyword index: %v", err)
	}
	e := New(failingVector{}, kw, testConfig())

	res, err := e.Search(context.Background(), "tenant-a", "widget pricing", 5)
	if err != nil {
		t.Fatalf("vector failure must not surface as an error, got %v", err)
	}
	if !res.Degraded {
		t.Error("expected Degraded with the vector backend down")
	}
	if len(res.Sources) != 1 || res.Sources[0].Chunk.DocumentID != "faq" {
		t.Errorf("expected keyword-only results, got %+v", res.Sources)
	}
	if res.Sources[0].Score != 1 {
		t.Errorf("keyword-only scores must not be scaled by the keyword weight, got %f", res.Sources[0].Score)
	}
}

func TestVectorFailureKeepsFullKeywordScale(t *testing.T) {
	kw := keyword.New()
	chunks := []source.Chunk{
		chunk("tenant-a", "faq", 0, "blue widget pricing details"),
		chunk("tenant-a", "manual", 0, "widget maintenance and pricing schedule notes for all models"),
	}
	for _, c := range chunks {
		if err := kw.Add(c); err != nil {
			t.Fatalf("seeding keyword index: %v", err)
		}
	}
	e := New(failingVector{}, kw, testConfig())

	res, err := e.Search(context.Background(), "tenant-a", "widget pricing", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.Sources) != 2 {
		t.Fatalf("expected both chunks, got %d", len(res.Sources))
	}
	if got := res.Sources[0].Score; got != 1 {
		t.Errorf("top keyword match must keep its full normalised score, got %f", got)
	}
	if res.Sources[1].Score >= res.Sources[0].Score {
		t.Errorf("ordering lost under degradation: %f >= %f", res.Sources[1].Score, res.Sources[0].Score)
	}
}

func TestSearchBothEnginesFailingReturnsEmptyDegraded(t *testing.T) {
	// An empty keyword index returns no error, so force one through a
	// cancelled context while the vector backend errors outright.
	kw := keyword.New()
	if err := kw.Add(chunk("tenant-a", "faq", 0, "widget")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	e := New(failingVector{}, kw, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.Search(ctx, "tenant-a", "widget", 5)
	if err != nil {
		t.Fatalf("source failures must not error, got %v", err)
	}
	if !res.Degraded {
		t.Error("expected Degraded")
	}
	if len(res.Sources) != 0 {
		t.Errorf("expected no results, got %d", len(res.Sources))
	}
}

func TestWeightsFavourSemanticByDefault(t *testing.T) {
	cfg := testConfig()
	semantic, lexical := cfg.WeightsFor("tenant-a")
	if semantic != 0.7 || lexical != 0.3 {
		t.Errorf("expected default 0.7/0.3 weights, got %f/%f", semantic, lexical)
	}
}

func TestPerTenantWeightOverride(t *testing.T) {
	cfg := testConfig()
	cfg.TenantOverrides = map[string]config.TenantWeights{
		"tenant-b": {SemanticWeight: 0.5, KeywordWeight: 0.5},
	}
	semantic, lexical := cfg.WeightsFor("tenant-b")
	if semantic != 0.5 || lexical != 0.5 {
		t.Errorf("expected 0.5/0.5 override, got %f/%f", semantic, lexical)
	}
	semantic, _ = cfg.WeightsFor("tenant-a")
	if semantic != 0.7 {
		t.Errorf("other tenants keep the defaults, got %f", semantic)
	}
}
