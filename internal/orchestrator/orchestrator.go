// Package orchestrator fans a customer query out to the hybrid document
// search, the structured-records accessor, and (when warranted) the
// external search connector, then merges everything into one
// deterministically ordered source list.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bochiedev/tulia-retrieval/internal/hybrid"
	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/pkg/config"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
	"github.com/bochiedev/tulia-retrieval/pkg/metrics"
	"github.com/bochiedev/tulia-retrieval/pkg/resilience"
	"github.com/bochiedev/tulia-retrieval/pkg/tracing"
	"github.com/google/uuid"
)

// Source names used in stats, logs, and metrics.
const (
	SourceHybrid   = "hybrid"
	SourceRecords  = "records"
	SourceExternal = "external"
)

// Request is a single retrieval call.
type Request struct {
	TenantID         string
	Query            string
	ConversationHint string
	MaxResults       int
}

// SourceStat reports what one source contributed.
type SourceStat struct {
	Results  int  `json:"results"`
	Failed   bool `json:"failed"`
	TimedOut bool `json:"timed_out"`
	Skipped  bool `json:"skipped"`
}

// Result is the merged, ranked source list. When every source fails the
// list is empty and Degraded is set; the call still succeeds.
type Result struct {
	Sources  []source.Ranked
	Degraded bool
	TimingMs int64
	Stats    map[string]SourceStat
}

// RecordSource is the structured-data contract the orchestrator consumes.
// *records.Accessor satisfies it.
type RecordSource interface {
	Query(ctx context.Context, tenantID, query string, kind source.RecordKind) ([]source.Ranked, error)
}

// DocumentSource is the hybrid-search contract. *hybrid.Engine satisfies
// it.
type DocumentSource interface {
	Search(ctx context.Context, tenantID, query string, limit int) (hybrid.Result, error)
}

// ExternalSource is the web-search contract. *external.Connector
// satisfies it.
type ExternalSource interface {
	Search(ctx context.Context, entityName, category string) (results []source.Ranked, degraded bool)
}

// Orchestrator coordinates the three sources under the configured latency
// budgets.
type Orchestrator struct {
	documents DocumentSource
	records   RecordSource
	external  ExternalSource
	cfg       config.RetrievalConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(documents DocumentSource, recordSource RecordSource, externalSource ExternalSource, cfg config.RetrievalConfig, opts ...Option) *Orchestrator {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 300 * time.Millisecond
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 250 * time.Millisecond
	}
	o := &Orchestrator{
		documents: documents,
		records:   recordSource,
		external:  externalSource,
		cfg:       cfg,
		logger:    slog.Default().With("component", "retrieval-orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type sourceOutcome struct {
	name     string
	sources  []source.Ranked
	degraded bool
	err      error
	timedOut bool
	skipped  bool
}

// Retrieve runs the fan-out and merge. Individual source failures degrade
// the result; only contract faults (missing tenant, malformed query,
// cross-tenant reads) return an error.
func (o *Orchestrator) Retrieve(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if req.TenantID == "" {
		return Result{}, fmt.Errorf("retrieve: %w", pkgerrors.ErrMissingTenant)
	}
	if strings.TrimSpace(req.Query) == "" {
		return Result{}, fmt.Errorf("retrieve: %w", pkgerrors.ErrInvalidQuery)
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = o.cfg.MaxResults
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.OverallTimeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "retrieve", uuid.NewString())
	defer span.End()
	span.SetAttr("tenant_id", req.TenantID)

	searchQuery := req.Query
	if hint := strings.TrimSpace(req.ConversationHint); hint != "" {
		searchQuery = req.Query + " " + hint
	}

	// Internal sources run concurrently, each under its own budget.
	outcomes := make([]sourceOutcome, 2)
	done := make(chan int, 2)

	go func() {
		outcomes[0] = o.runSource(ctx, SourceHybrid, func(ctx context.Context) (sourceOutcome, error) {
			res, err := o.documents.Search(ctx, req.TenantID, searchQuery, maxResults)
			return sourceOutcome{sources: res.Sources, degraded: res.Degraded}, err
		})
		done <- 0
	}()
	go func() {
		outcomes[1] = o.runSource(ctx, SourceRecords, func(ctx context.Context) (sourceOutcome, error) {
			ranked, err := o.records.Query(ctx, req.TenantID, req.Query, source.RecordAny)
			return sourceOutcome{sources: ranked}, err
		})
		done <- 1
	}()
	<-done
	<-done

	for _, oc := range outcomes[:2] {
		if oc.err != nil && pkgerrors.IsContractFault(oc.err) {
			return Result{}, oc.err
		}
	}
	hybridOut, recordsOut := outcomes[0], outcomes[1]

	// External search is consulted only when a matched record needs
	// enrichment or nothing internal matched at all, and only within
	// whatever remains of the overall budget.
	externalOut := o.consultExternal(ctx, req, hybridOut, recordsOut)

	merged := o.merge(maxResults, hybridOut.sources, recordsOut.sources, externalOut.sources)

	degraded := hybridOut.degraded || hybridOut.err != nil ||
		recordsOut.err != nil ||
		externalOut.degraded
	allFailed := hybridOut.err != nil && recordsOut.err != nil &&
		(externalOut.skipped || externalOut.degraded)
	if allFailed {
		o.logger.Error("all retrieval sources failed",
			"tenant_id", req.TenantID,
			"hybrid_error", hybridOut.err,
			"records_error", recordsOut.err,
		)
		merged = nil
		degraded = true
	}

	result := Result{
		Sources:  merged,
		Degraded: degraded,
		TimingMs: time.Since(start).Milliseconds(),
		Stats: map[string]SourceStat{
			SourceHybrid:   statOf(hybridOut),
			SourceRecords:  statOf(recordsOut),
			SourceExternal: statOf(externalOut),
		},
	}
	o.observe(req, result)
	return result, nil
}

// runSource executes one source query under the per-source budget,
// converting errors and timeouts into a degraded-empty outcome.
func (o *Orchestrator) runSource(ctx context.Context, name string, fn func(ctx context.Context) (sourceOutcome, error)) sourceOutcome {
	start := time.Now()
	_, span := tracing.StartChildSpan(ctx, name)
	defer span.End()

	var out sourceOutcome
	err := resilience.WithTimeout(ctx, o.cfg.SourceTimeout, name, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = fn(ctx)
		return innerErr
	})
	out.name = name
	if err != nil {
		out.err = err
		out.timedOut = isTimeout(err)
		out.sources = nil
		if !pkgerrors.IsContractFault(err) {
			o.logger.Warn("source degraded", "source", name, "error", err)
		}
	}
	if o.metrics != nil {
		o.metrics.SourceLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		o.metrics.SourceResultsCount.WithLabelValues(name).Observe(float64(len(out.sources)))
		if out.err != nil {
			reason := "error"
			if out.timedOut {
				reason = "timeout"
			}
			o.metrics.SourceFailuresTotal.WithLabelValues(name, reason).Inc()
		}
	}
	span.SetAttr("results", len(out.sources))
	return out
}

func (o *Orchestrator) consultExternal(ctx context.Context, req Request, hybridOut, recordsOut sourceOutcome) sourceOutcome {
	if o.external == nil {
		return sourceOutcome{name: SourceExternal, skipped: true}
	}
	entity, category, enrich := enrichmentTarget(recordsOut.sources)
	noInternal := len(hybridOut.sources) == 0 && len(recordsOut.sources) == 0
	if !enrich && !noInternal {
		return sourceOutcome{name: SourceExternal, skipped: true}
	}
	if ctx.Err() != nil {
		return sourceOutcome{name: SourceExternal, skipped: true, degraded: true}
	}
	if entity == "" {
		// Nothing internal matched; fall back to the customer's own words.
		entity = req.Query
	}
	return o.runSource(ctx, SourceExternal, func(ctx context.Context) (sourceOutcome, error) {
		results, degraded := o.external.Search(ctx, entity, category)
		return sourceOutcome{sources: results, degraded: degraded}, nil
	})
}

// enrichmentTarget picks the best-scored record flagged as needing
// enrichment.
func enrichmentTarget(recordSources []source.Ranked) (entity, category string, ok bool) {
	best := -1.0
	for _, rs := range recordSources {
		if rs.Record == nil || !rs.Record.NeedsEnrichment {
			continue
		}
		if rs.Score > best {
			best = rs.Score
			entity = rs.Record.Name
			category = rs.Record.Category
			ok = true
		}
	}
	return entity, category, ok
}

// merge applies the source-priority multipliers and produces the final
// deterministic ordering: adjusted score, then source kind priority, then
// stable ID. Completion order never affects the result.
func (o *Orchestrator) merge(limit int, lists ...[]source.Ranked) []source.Ranked {
	var all []source.Ranked
	for _, list := range lists {
		for _, rs := range list {
			rs.Score *= o.boostFor(rs.Kind)
			all = append(all, rs)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Kind.Priority() != b.Kind.Priority() {
			return a.Kind.Priority() > b.Kind.Priority()
		}
		return a.ID < b.ID
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

func (o *Orchestrator) boostFor(kind source.Kind) float64 {
	switch kind {
	case source.KindRecord:
		return o.cfg.RecordBoost
	case source.KindDocument:
		return o.cfg.DocumentBoost
	case source.KindExternal:
		return o.cfg.ExternalBoost
	default:
		return 1
	}
}

func (o *Orchestrator) observe(req Request, result Result) {
	outcome := "ok"
	switch {
	case len(result.Sources) == 0:
		outcome = "empty"
	case result.Degraded:
		outcome = "degraded"
	}
	if o.metrics != nil {
		o.metrics.RetrievalsTotal.WithLabelValues(outcome).Inc()
		o.metrics.RetrievalLatency.Observe(float64(result.TimingMs) / 1000)
	}
	o.logger.Info("retrieval completed",
		"tenant_id", req.TenantID,
		"returned", len(result.Sources),
		"degraded", result.Degraded,
		"latency_ms", result.TimingMs,
	)
}

func statOf(out sourceOutcome) SourceStat {
	return SourceStat{
		Results:  len(out.sources),
		Failed:   out.err != nil,
		TimedOut: out.timedOut,
		Skipped:  out.skipped,
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
