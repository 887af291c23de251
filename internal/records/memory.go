package records

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bochiedev/tulia-retrieval/internal/source"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
)

// MemoryStore is an in-process Store for local development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]source.Record // tenant -> records
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]source.Record)}
}

// Put adds or replaces a record under its tenant.
func (s *MemoryStore) Put(record source.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.records[record.TenantID]
	for i, existing := range list {
		if existing.ID == record.ID {
			list[i] = record
			return
		}
	}
	s.records[record.TenantID] = append(list, record)
}

func (s *MemoryStore) Search(_ context.Context, tenantID string, kind source.RecordKind, query string) ([]source.Record, error) {
	if tenantID == "" {
		return nil, pkgerrors.ErrMissingTenant
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []source.Record
	for _, r := range s.records[tenantID] {
		if kind != source.RecordAny && r.Kind != kind {
			continue
		}
		name := strings.ToLower(r.Name)
		category := strings.ToLower(r.Category)
		if needle == "" || strings.Contains(name, needle) || strings.Contains(category, needle) ||
			strings.Contains(needle, name) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
