// Package pipeline is the service entry point for retrieval: it runs the
// source orchestrator, synthesizes the ranked sources into a budgeted
// context, renders attribution, and records the retrieval for analysis.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/bochiedev/tulia-retrieval/internal/attribution"
	"github.com/bochiedev/tulia-retrieval/internal/orchestrator"
	"github.com/bochiedev/tulia-retrieval/internal/retrievallog"
	"github.com/bochiedev/tulia-retrieval/internal/source"
	"github.com/bochiedev/tulia-retrieval/internal/synthesis"
	"github.com/bochiedev/tulia-retrieval/pkg/config"
	"github.com/bochiedev/tulia-retrieval/pkg/middleware"
	"github.com/google/uuid"
)

// Response is the complete retrieval output for one customer question.
type Response struct {
	Context   attribution.Annotated              `json:"context"`
	Sources   []source.Ranked                    `json:"sources"`
	Conflicts []synthesis.Conflict               `json:"conflicts,omitempty"`
	Degraded  bool                               `json:"degraded"`
	Stats     map[string]orchestrator.SourceStat `json:"stats,omitempty"`
	LatencyMs int64                              `json:"latency_ms"`
}

// Pipeline wires the retrieval stages together.
type Pipeline struct {
	orchestrator *orchestrator.Orchestrator
	synthesizer  *synthesis.Synthesizer
	cfg          config.RetrievalConfig
	collector    *retrievallog.Collector
	logger       *slog.Logger
}

type Option func(*Pipeline)

// WithCollector attaches the retrieval-log collector. Without one,
// retrievals are only logged, not shipped.
func WithCollector(c *retrievallog.Collector) Option {
	return func(p *Pipeline) { p.collector = c }
}

func New(orch *orchestrator.Orchestrator, synth *synthesis.Synthesizer, cfg config.RetrievalConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		orchestrator: orch,
		synthesizer:  synth,
		cfg:          cfg,
		logger:       slog.Default().With("component", "retrieval-pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Retrieve answers one retrieval request end to end. Source failures
// degrade the response; only contract faults error.
func (p *Pipeline) Retrieve(ctx context.Context, req orchestrator.Request) (Response, error) {
	start := time.Now()
	res, err := p.orchestrator.Retrieve(ctx, req)
	if err != nil {
		return Response{}, err
	}

	built := p.synthesizer.Build(res.Sources)
	tracker := attribution.New(p.cfg.AttributionEnabledFor(req.TenantID))
	annotated := tracker.Render(built)

	resp := Response{
		Context:   annotated,
		Sources:   res.Sources,
		Conflicts: built.Conflicts,
		Degraded:  res.Degraded,
		Stats:     res.Stats,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	p.track(ctx, req, res, built, resp.LatencyMs)
	return resp, nil
}

func (p *Pipeline) track(ctx context.Context, req orchestrator.Request, res orchestrator.Result, built synthesis.Context, latencyMs int64) {
	if p.collector == nil {
		return
	}
	sourceResults := make(map[string]int, len(res.Stats))
	var failures []string
	for name, stat := range res.Stats {
		sourceResults[name] = stat.Results
		if stat.Failed || stat.TimedOut {
			failures = append(failures, name)
		}
	}
	sort.Strings(failures)
	p.collector.Track(retrievallog.Record{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		Query:          req.Query,
		SourceResults:  sourceResults,
		SourceFailures: failures,
		Degraded:       res.Degraded,
		Returned:       len(res.Sources),
		Conflicts:      len(built.Conflicts),
		LatencyMs:      latencyMs,
		RequestID:      middleware.GetRequestID(ctx),
		Timestamp:      time.Now().UTC(),
	})
}
