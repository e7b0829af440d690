package decision

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// PostgresOverrideStore reads organization threshold overrides from
// PostgreSQL. One row per (organization, metric).
type PostgresOverrideStore struct {
	db *sql.DB
}

func NewPostgresOverrideStore(db *sql.DB) *PostgresOverrideStore {
	return &PostgresOverrideStore{db: db}
}

func (s *PostgresOverrideStore) Get(ctx context.Context, orgID domain.OrganizationID) (map[string]float64, error) {
	query := `
		SELECT metric, threshold
		FROM organization_threshold_overrides
		WHERE organization_id = $1
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("get threshold overrides: %w", err)
	}
	defer rows.Close()

	values := make(map[string]float64)
	for rows.Next() {
		var metric string
		var threshold float64
		if err := rows.Scan(&metric, &threshold); err != nil {
			return nil, fmt.Errorf("scan threshold override: %w", err)
		}
		values[metric] = threshold
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threshold overrides: %w", err)
	}
	if len(values) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return values, nil
}

// Upsert writes one metric override.
func (s *PostgresOverrideStore) Upsert(ctx context.Context, orgID domain.OrganizationID, metric string, threshold float64) error {
	query := `
		INSERT INTO organization_threshold_overrides (organization_id, metric, threshold)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, metric) DO UPDATE SET
			threshold = EXCLUDED.threshold
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.UUID(orgID), metric, threshold); err != nil {
		return fmt.Errorf("upsert threshold override: %w", err)
	}
	return nil
}
