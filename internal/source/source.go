// Package source defines the data types the retrieval pipeline operates
// on: document chunks, structured business records, external snippets, and
// the ranked wrapper that unifies them.
package source

import (
	"fmt"
	"time"
)

// Kind identifies where a ranked source came from.
type Kind string

const (
	KindDocument Kind = "document"
	KindRecord   Kind = "record"
	KindExternal Kind = "external"
)

// Priority orders kinds for conflict resolution and deterministic
// tie-breaking: tenant records beat documents, documents beat external
// snippets.
func (k Kind) Priority() int {
	switch k {
	case KindRecord:
		return 3
	case KindDocument:
		return 2
	case KindExternal:
		return 1
	default:
		return 0
	}
}

// Chunk is a segment of an ingested document. Chunks are produced by the
// ingestion collaborator and are read-only here. (DocumentID, Ordinal) is
// unique, and a chunk belongs to exactly one tenant.
type Chunk struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	TenantID     string `json:"tenant_id"`
	Ordinal      int    `json:"ordinal"`
	Content      string `json:"content"`
	TokenCount   int    `json:"token_count"`
	EmbeddingRef string `json:"embedding_ref,omitempty"`
	Page         int    `json:"page,omitempty"`
	Section      string `json:"section,omitempty"`
}

// ID returns the stable chunk identity used across both indexes.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s:%d", c.DocumentID, c.Ordinal)
}

// RecordKind distinguishes the structured business record types.
type RecordKind string

const (
	RecordCatalog      RecordKind = "catalog"
	RecordService      RecordKind = "service"
	RecordAvailability RecordKind = "availability"
	// RecordAny matches all record kinds in queries.
	RecordAny RecordKind = ""
)

// Record is a live structured business record: a catalog item, service
// offering, or availability slot.
type Record struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Kind        RecordKind `json:"kind"`
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Price       float64    `json:"price"`
	Currency    string     `json:"currency"`
	Available   bool       `json:"available"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// NeedsEnrichment is set when the descriptive text is too short to
	// answer customer questions on its own.
	NeedsEnrichment bool `json:"needs_enrichment"`
}

// Text renders the record as retrievable prose.
func (r Record) Text() string {
	s := r.Name
	if r.Category != "" {
		s += " (" + r.Category + ")"
	}
	if r.Description != "" {
		s += ": " + r.Description
	}
	if r.Price > 0 {
		s += fmt.Sprintf(" Price: %g %s.", r.Price, r.Currency)
	}
	if !r.Available {
		s += " Currently unavailable."
	}
	return s
}

// Snippet is a bounded excerpt returned by the external search provider.
type Snippet struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Ranked is the unit the pipeline merges, scores, and formats. Exactly one
// of Chunk, Record, or Snippet is set, matching Kind.
type Ranked struct {
	ID          string  `json:"id"`
	Kind        Kind    `json:"kind"`
	Score       float64 `json:"score"`
	Content     string  `json:"content"`
	Attribution string  `json:"attribution"`

	Chunk   *Chunk   `json:"chunk,omitempty"`
	Record  *Record  `json:"record,omitempty"`
	Snippet *Snippet `json:"snippet,omitempty"`
}

// Tokens estimates the token footprint of the ranked content. Chunks carry
// an exact count from ingestion; other payloads use the common
// four-characters-per-token approximation.
func (r Ranked) Tokens() int {
	if r.Chunk != nil && r.Chunk.TokenCount > 0 {
		return r.Chunk.TokenCount
	}
	return EstimateTokens(r.Content)
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && len(text) > 0 {
		n = 1
	}
	return n
}

// FromChunk wraps a chunk hit as a ranked document source.
func FromChunk(c Chunk, score float64) Ranked {
	return Ranked{
		ID:          c.ID(),
		Kind:        KindDocument,
		Score:       score,
		Content:     c.Content,
		Attribution: c.DocumentName,
		Chunk:       &c,
	}
}

// FromRecord wraps a business record as a ranked structured-data source.
func FromRecord(r Record, score float64) Ranked {
	return Ranked{
		ID:          "record:" + r.ID,
		Kind:        KindRecord,
		Score:       score,
		Content:     r.Text(),
		Attribution: string(r.Kind),
		Record:      &r,
	}
}

// FromSnippet wraps an external search snippet as a ranked external source.
func FromSnippet(s Snippet, score float64) Ranked {
	return Ranked{
		ID:          "external:" + s.URL + ":" + s.Title,
		Kind:        KindExternal,
		Score:       score,
		Content:     s.Text,
		Attribution: s.Title,
		Snippet:     &s,
	}
}
