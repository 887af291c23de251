// Package metrics defines the Prometheus metric collectors used across the
// retrieval service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the retrieval service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RetrievalsTotal      *prometheus.CounterVec
	RetrievalLatency     prometheus.Histogram
	SourceLatency        *prometheus.HistogramVec
	SourceFailuresTotal  *prometheus.CounterVec
	SourceResultsCount   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	ProviderCallsTotal   prometheus.Counter
	ConflictsTotal       prometheus.Counter
	ContextSections      prometheus.Histogram
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RetrievalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrievals_total",
				Help: "Total retrieval calls by outcome (ok, degraded, empty, error).",
			},
			[]string{"outcome"},
		),
		RetrievalLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_latency_seconds",
				Help:    "End-to-end retrieval latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
			},
		),
		SourceLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_source_latency_seconds",
				Help:    "Per-source query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"source"},
		),
		SourceFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "retrieval_source_failures_total",
				Help: "Source failures by source and reason (error, timeout).",
			},
			[]string{"source", "reason"},
		),
		SourceResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_source_results_count",
				Help:    "Number of results returned per source per query.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
			[]string{"source"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total number of search cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total number of search cache misses.",
			},
		),
		ProviderCallsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "external_provider_calls_total",
				Help: "Total calls made to the external search provider.",
			},
		),
		ConflictsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "context_conflicts_total",
				Help: "Total cross-source conflicts detected during synthesis.",
			},
		),
		ContextSections: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "context_sections_count",
				Help:    "Number of sections in synthesized contexts.",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state by name (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RetrievalsTotal,
		m.RetrievalLatency,
		m.SourceLatency,
		m.SourceFailuresTotal,
		m.SourceResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ProviderCallsTotal,
		m.ConflictsTotal,
		m.ContextSections,
		m.CircuitBreakerState,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
