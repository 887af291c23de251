package external

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bochiedev/tulia-retrieval/internal/searchcache"
	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/pkg/config"
	"github.com/bochiedev/tulia-retrieval/pkg/metrics"
	"github.com/bochiedev/tulia-retrieval/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

// queryContextTerms are appended to every provider query to steer results
// toward product information rather than storefronts.
const queryContextTerms = "specifications features"

// Connector is the cached, fault-isolated front to the web-search
// provider. Cache entries are global (not tenant-scoped): the query is
// built purely from public entity names, never tenant data.
type Connector struct {
	provider Provider
	cache    searchcache.Store
	breaker  *resilience.CircuitBreaker
	cfg      config.ExternalConfig
	group    singleflight.Group
	logger   *slog.Logger
	metrics  *metrics.Metrics
	hits     atomic.Int64
	misses   atomic.Int64
}

// Option configures a Connector.
type Option func(*Connector)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connector) {
		c.metrics = m
	}
}

func NewConnector(provider Provider, cache searchcache.Store, cfg config.ExternalConfig, opts ...Option) *Connector {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if cfg.MaxSnippets <= 0 {
		cfg.MaxSnippets = 3
	}
	if cfg.ScoreCeiling <= 0 || cfg.ScoreCeiling > 1 {
		cfg.ScoreCeiling = 0.6
	}
	c := &Connector{
		provider: provider,
		cache:    cache,
		breaker:  resilience.NewCircuitBreaker("external-search", resilience.CircuitBreakerConfig{}),
		cfg:      cfg,
		logger:   slog.Default().With("component", "external-search"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search looks up external product information for an entity. Provider
// errors and timeouts degrade to an empty result; they never propagate.
func (c *Connector) Search(ctx context.Context, entityName, category string) (results []source.Ranked, degraded bool) {
	query := buildQuery(entityName, category)
	if strings.TrimSpace(query) == "" {
		return nil, false
	}
	key := searchcache.Key(searchcache.GlobalScope, searchcache.Fingerprint(query))

	if entry, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.CacheHitsTotal.Inc()
		}
		if cached, err := decodeResults(entry.Payload); err == nil {
			return cached, false
		}
		c.logger.Error("discarding undecodable cache entry", "key", key)
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another flight may have filled the cache while we waited.
		if entry, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			if cached, err := decodeResults(entry.Payload); err == nil {
				return cached, nil
			}
		}
		var snippets []source.Snippet
		callErr := c.breaker.Execute(func() error {
			if c.metrics != nil {
				c.metrics.ProviderCallsTotal.Inc()
			}
			var err error
			snippets, err = c.provider.Search(ctx, query)
			return err
		})
		if c.metrics != nil {
			c.metrics.CircuitBreakerState.WithLabelValues("external-search").Set(float64(c.breaker.GetState()))
		}
		if callErr != nil {
			return nil, callErr
		}
		ranked := c.rankSnippets(snippets)
		if payload, err := encodeResults(ranked); err == nil {
			if err := c.cache.Set(ctx, key, payload, c.cfg.CacheTTL); err != nil {
				c.logger.Error("cache fill failed", "key", key, "error", err)
			}
		}
		return ranked, nil
	})
	if err != nil {
		c.logger.Warn("external search degraded", "query", query, "error", err)
		return nil, true
	}
	return val.([]source.Ranked), false
}

// Stats returns cache hit/miss counters.
func (c *Connector) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// rankSnippets caps the snippet count and assigns positionally decaying
// scores bounded by the configured ceiling.
func (c *Connector) rankSnippets(snippets []source.Snippet) []source.Ranked {
	if len(snippets) > c.cfg.MaxSnippets {
		snippets = snippets[:c.cfg.MaxSnippets]
	}
	ranked := make([]source.Ranked, 0, len(snippets))
	for i, snippet := range snippets {
		score := c.cfg.ScoreCeiling - 0.05*float64(i)
		if score < 0.1 {
			score = 0.1
		}
		ranked = append(ranked, source.FromSnippet(snippet, score))
	}
	return ranked
}

func buildQuery(entityName, category string) string {
	parts := make([]string, 0, 3)
	if entityName = strings.TrimSpace(entityName); entityName != "" {
		parts = append(parts, entityName)
	}
	if category = strings.TrimSpace(category); category != "" {
		parts = append(parts, category)
	}
	if len(parts) == 0 {
		return ""
	}
	parts = append(parts, queryContextTerms)
	return strings.Join(parts, " ")
}

func encodeResults(results []source.Ranked) ([]byte, error) {
	return json.Marshal(results)
}

func decodeResults(payload []byte) ([]source.Ranked, error) {
	var results []source.Ranked
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, err
	}
	return results, nil
}
