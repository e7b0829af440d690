package developer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// PostgresStore persists API keys in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, key *APIKey) error {
	query := `
		INSERT INTO api_keys (id, organization_id, name, prefix, hash, sandbox, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var orgID any
	if key.OrganizationID != nil {
		orgID = uuid.UUID(*key.OrganizationID)
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(key.ID),
		orgID,
		key.Name,
		key.Prefix,
		key.Hash,
		key.Sandbox,
		key.Active,
		key.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.APIKeyID) (*APIKey, error) {
	return s.getWhere(ctx, "id = $1", uuid.UUID(id))
}

func (s *PostgresStore) GetByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	return s.getWhere(ctx, "prefix = $1", prefix)
}

func (s *PostgresStore) getWhere(ctx context.Context, where string, arg any) (*APIKey, error) {
	query := `
		SELECT id, organization_id, name, prefix, hash, sandbox, active, created_at, last_used_at
		FROM api_keys
		WHERE ` + where
	key, err := scanKey(s.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*APIKey, error) {
	query := `
		SELECT id, organization_id, name, prefix, hash, sandbox, active, created_at, last_used_at
		FROM api_keys
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id domain.APIKeyID) error {
	result, err := s.db.ExecContext(ctx, `UPDATE api_keys SET active = false WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) TouchLastUsed(ctx context.Context, id domain.APIKeyID, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, uuid.UUID(id), at)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*APIKey, error) {
	var key APIKey
	var id uuid.UUID
	var orgID uuid.NullUUID
	var lastUsed sql.NullTime
	if err := row.Scan(&id, &orgID, &key.Name, &key.Prefix, &key.Hash, &key.Sandbox, &key.Active, &key.CreatedAt, &lastUsed); err != nil {
		return nil, err
	}
	key.ID = domain.APIKeyID(id)
	if orgID.Valid {
		org := domain.OrganizationID(orgID.UUID)
		key.OrganizationID = &org
	}
	if lastUsed.Valid {
		key.LastUsedAt = &lastUsed.Time
	}
	return &key, nil
}
