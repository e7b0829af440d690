package verification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// PostgresStore persists contexts as JSONB documents with the columns the
// queries filter on lifted out. Per-id writer serialization comes from
// SELECT ... FOR UPDATE, which also covers multi-process deployments.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, vc *VerificationContext) error {
	document, err := json.Marshal(vc)
	if err != nil {
		return fmt.Errorf("marshal verification context: %w", err)
	}
	query := `
		INSERT INTO verifications (id, user_id, status, sandbox, context, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(vc.ID),
		uuid.UUID(vc.UserID),
		string(vc.Status),
		vc.Sandbox,
		document,
		vc.CreatedAt,
		vc.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create verification context: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.VerificationID) (*VerificationContext, error) {
	var document []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT context FROM verifications WHERE id = $1`, uuid.UUID(id)).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification context: %w", err)
	}
	return unmarshalContext(document)
}

func (s *PostgresStore) Update(ctx context.Context, id domain.VerificationID, fn func(*VerificationContext) error) (*VerificationContext, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin verification update: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var document []byte
	err = tx.QueryRowContext(ctx,
		`SELECT context FROM verifications WHERE id = $1 FOR UPDATE`, uuid.UUID(id)).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock verification context: %w", err)
	}

	vc, err := unmarshalContext(document)
	if err != nil {
		return nil, err
	}
	if err := fn(vc); err != nil {
		return nil, err
	}
	vc.UpdatedAt = time.Now()

	updated, err := json.Marshal(vc)
	if err != nil {
		return nil, fmt.Errorf("marshal verification context: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE verifications
		SET status = $2, context = $3, updated_at = $4
		WHERE id = $1
	`, uuid.UUID(id), string(vc.Status), updated, vc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("write verification context: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit verification update: %w", err)
	}
	return vc, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID domain.UserID) ([]*VerificationContext, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT context FROM verifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, uuid.UUID(userID))
	if err != nil {
		return nil, fmt.Errorf("list user verifications: %w", err)
	}
	defer rows.Close()

	var contexts []*VerificationContext
	for rows.Next() {
		var document []byte
		if err := rows.Scan(&document); err != nil {
			return nil, fmt.Errorf("scan verification context: %w", err)
		}
		vc, err := unmarshalContext(document)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, vc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user verifications: %w", err)
	}
	return contexts, nil
}

func (s *PostgresStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.VerificationID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM verifications
		WHERE status NOT IN ($1, $2, $3) AND updated_at < $4
	`, string(StatusVerified), string(StatusFailed), string(StatusManualReview), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale verifications: %w", err)
	}
	defer rows.Close()

	var stale []domain.VerificationID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan stale verification id: %w", err)
		}
		stale = append(stale, domain.VerificationID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale verifications: %w", err)
	}
	return stale, nil
}

func unmarshalContext(document []byte) (*VerificationContext, error) {
	var vc VerificationContext
	if err := json.Unmarshal(document, &vc); err != nil {
		return nil, fmt.Errorf("unmarshal verification context: %w", err)
	}
	return &vc, nil
}
