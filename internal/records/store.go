// Package records wraps tenant-scoped read access to live business
// records: catalog items, service offerings, and availability slots. No
// cache sits in front of it; results always reflect the store at call
// time.
package records

import (
	"context"

	"github.com/bochiedev/tulia-retrieval/internal/source"
)

// Store fetches candidate records for a tenant. Implementations perform
// the fuzzy/substring match against name and category; scoring is the
// Accessor's concern.
type Store interface {
	Search(ctx context.Context, tenantID string, kind source.RecordKind, query string) ([]source.Record, error)
}
