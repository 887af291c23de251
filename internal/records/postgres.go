package records

import (
	"context"
	"fmt"

	"github.com/bochiedev/tulia-retrieval/internal/source"
	pkgerrors "github.com/bochiedev/tulia-retrieval/pkg/errors"
	"github.com/bochiedev/tulia-retrieval/pkg/postgres"
)

// PostgresStore reads business records from the platform database. Every
// query is tenant-filtered in SQL; rows from other tenants cannot be
// selected.
type PostgresStore struct {
	client *postgres.Client
}

func NewPostgresStore(client *postgres.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

const searchQuery = `
SELECT id, tenant_id, kind, name, category, description, price, currency, available, updated_at
FROM business_records
WHERE tenant_id = $1
  AND ($2 = '' OR kind = $2)
  AND (name ILIKE '%' || $3 || '%' OR category ILIKE '%' || $3 || '%')
ORDER BY name, id
LIMIT $4`

const searchLimit = 50

func (s *PostgresStore) Search(ctx context.Context, tenantID string, kind source.RecordKind, query string) ([]source.Record, error) {
	if tenantID == "" {
		return nil, pkgerrors.ErrMissingTenant
	}
	rows, err := s.client.DB.QueryContext(ctx, searchQuery, tenantID, string(kind), query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("querying business records: %w", err)
	}
	defer rows.Close()

	var records []source.Record
	for rows.Next() {
		var r source.Record
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.Kind, &r.Name, &r.Category,
			&r.Description, &r.Price, &r.Currency, &r.Available, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning business record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating business records: %w", err)
	}
	return records, nil
}
