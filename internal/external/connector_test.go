package external

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bochiedev/tulia-retrieval/internal/searchcache"
	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/pkg/config"
)

type fakeProvider struct {
	calls    atomic.Int64
	snippets []source.Snippet
	err      error
}

func (p *fakeProvider) Search(context.Context, string) ([]source.Snippet, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return p.snippets, nil
}

func snippets(n int) []source.Snippet {
	out := make([]source.Snippet, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, source.Snippet{
			Title: "Blue Widget Review",
			URL:   "https://example.com/" + string(rune('a'+i)),
			Text:  "The Blue Widget weighs 2kg and ships worldwide.",
		})
	}
	return out
}

func testConfig() config.ExternalConfig {
	return config.ExternalConfig{
		CacheTTL:     time.Hour,
		MaxSnippets:  3,
		ScoreCeiling: 0.6,
	}
}

func TestSearchScoresBoundedByCeiling(t *testing.T) {
	provider := &fakeProvider{snippets: snippets(5)}
	c := NewConnector(provider, searchcache.NewMemory(), testConfig())

	results, degraded := c.Search(context.Background(), "Blue Widget", "widgets")
	if degraded {
		t.Fatal("unexpected degradation")
	}
	if len(results) != 3 {
		t.Fatalf("expected snippet cap of 3, got %d", len(results))
	}
	for i, r := range results {
		if r.Score > 0.6 {
			t.Errorf("result %d score %f exceeds ceiling", i, r.Score)
		}
		if i > 0 && results[i-1].Score < r.Score {
			t.Errorf("scores must decay positionally: %f then %f", results[i-1].Score, r.Score)
		}
		if r.Kind != source.KindExternal {
			t.Errorf("result %d has kind %q", i, r.Kind)
		}
	}
}

func TestSearchCachesWithinTTL(t *testing.T) {
	provider := &fakeProvider{snippets: snippets(2)}
	cache := searchcache.NewMemory()
	c := NewConnector(provider, cache, testConfig())
	ctx := context.Background()

	first, _ := c.Search(ctx, "Blue Widget", "widgets")
	second, _ := c.Search(ctx, "Blue Widget", "widgets")

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("expected a single provider call within the TTL window, got %d", got)
	}
	if len(first) != len(second) {
		t.Fatalf("cached result differs in length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Score != second[i].Score {
			t.Errorf("cached result %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", hits, misses)
	}
}

func TestSearchRefreshesAfterExpiry(t *testing.T) {
	provider := &fakeProvider{snippets: snippets(1)}
	cache := searchcache.NewMemory()
	now := time.Now()
	cache.SetClock(func() time.Time { return now })
	c := NewConnector(provider, cache, testConfig())
	ctx := context.Background()

	c.Search(ctx, "Blue Widget", "widgets")
	now = now.Add(2 * time.Hour)
	c.Search(ctx, "Blue Widget", "widgets")

	if got := provider.calls.Load(); got != 2 {
		t.Errorf("expected a fresh provider call after expiry, got %d", got)
	}
}

func TestSearchDegradesOnProviderFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider down")}
	c := NewConnector(provider, searchcache.NewMemory(), testConfig())

	results, degraded := c.Search(context.Background(), "Blue Widget", "widgets")
	if !degraded {
		t.Error("provider failure should mark the result degraded")
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearchEmptyEntityIsNoop(t *testing.T) {
	provider := &fakeProvider{snippets: snippets(1)}
	c := NewConnector(provider, searchcache.NewMemory(), testConfig())

	results, degraded := c.Search(context.Background(), "  ", "")
	if degraded || len(results) != 0 {
		t.Errorf("blank entity should return nothing, got %v degraded=%v", results, degraded)
	}
	if provider.calls.Load() != 0 {
		t.Error("provider must not be called for a blank entity")
	}
}
