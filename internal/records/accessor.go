package records

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bochiedev/tulia-retrieval/internal/source"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
)

// Scores assigned by match quality.
const (
	scoreExactName = 1.0
	scoreSubstring = 0.7
	scoreCategory  = 0.5
)

// Accessor wraps a Store with tenant enforcement, match scoring, and
// enrichment flagging.
type Accessor struct {
	store          Store
	minDescription int
	logger         *slog.Logger
}

func NewAccessor(store Store, minDescriptionLength int) *Accessor {
	if minDescriptionLength <= 0 {
		minDescriptionLength = 50
	}
	return &Accessor{
		store:          store,
		minDescription: minDescriptionLength,
		logger:         slog.Default().With("component", "records-accessor"),
	}
}

// Query returns tenant records matching the query, scored by match
// quality. Records with descriptions below the minimum length are flagged
// NeedsEnrichment so the caller can consult external sources.
func (a *Accessor) Query(ctx context.Context, tenantID, query string, kind source.RecordKind) ([]source.Ranked, error) {
	if tenantID == "" {
		return nil, pkgerrors.ErrMissingTenant
	}
	matches, err := a.store.Search(ctx, tenantID, kind, query)
	if err != nil {
		return nil, fmt.Errorf("searching records: %w", err)
	}

	ranked := make([]source.Ranked, 0, len(matches))
	for _, record := range matches {
		// A record escaping its tenant filter is a contract fault, not
		// something to filter silently.
		if record.TenantID != tenantID {
			return nil, fmt.Errorf("%w: record %s belongs to tenant %q, queried as %q",
				pkgerrors.ErrTenantIsolation, record.ID, record.TenantID, tenantID)
		}
		score, ok := a.scoreMatch(record, query)
		if !ok {
			continue
		}
		record.NeedsEnrichment = len(strings.TrimSpace(record.Description)) < a.minDescription
		ranked = append(ranked, source.FromRecord(record, score))
	}
	return ranked, nil
}

func (a *Accessor) scoreMatch(record source.Record, query string) (float64, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	name := strings.ToLower(record.Name)
	category := strings.ToLower(record.Category)
	switch {
	case q == name:
		return scoreExactName, true
	case name != "" && (strings.Contains(q, name) || strings.Contains(name, q)):
		return scoreSubstring, true
	case category != "" && (strings.Contains(q, category) || strings.Contains(category, q)):
		return scoreCategory, true
	default:
		return 0, false
	}
}
