// Package retrievallog records one write-only entry per retrieval call and
// ships them in batches to Kafka for the analytics pipeline.
package retrievallog

import "time"

// Record captures what a single retrieval did. Records are immutable after
// creation.
type Record struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	Query          string         `json:"query"`
	SourceResults  map[string]int `json:"source_results"`
	SourceFailures []string       `json:"source_failures,omitempty"`
	Degraded       bool           `json:"degraded"`
	Returned       int            `json:"returned"`
	Conflicts      int            `json:"conflicts"`
	LatencyMs      int64          `json:"latency_ms"`
	RequestID      string         `json:"request_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}
