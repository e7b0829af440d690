package notification

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

// PostgresTargetStore persists webhook targets in PostgreSQL.
type PostgresTargetStore struct {
	db *sql.DB
}

func NewPostgresTargetStore(db *sql.DB) *PostgresTargetStore {
	return &PostgresTargetStore{db: db}
}

func (s *PostgresTargetStore) Create(ctx context.Context, target *Target) error {
	query := `
		INSERT INTO webhook_targets (id, organization_id, url, secret, events, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var orgID any
	if target.OrganizationID != nil {
		orgID = uuid.UUID(*target.OrganizationID)
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(target.ID),
		orgID,
		target.URL,
		target.Secret,
		pq.Array(eventStrings(target.Events)),
		target.Active,
		target.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert webhook target: %w", err)
	}
	return nil
}

func (s *PostgresTargetStore) Get(ctx context.Context, id domain.WebhookID) (*Target, error) {
	query := `
		SELECT id, organization_id, url, secret, events, active, created_at
		FROM webhook_targets
		WHERE id = $1
	`
	target, err := scanTarget(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get webhook target: %w", err)
	}
	return target, nil
}

func (s *PostgresTargetStore) List(ctx context.Context) ([]*Target, error) {
	query := `
		SELECT id, organization_id, url, secret, events, active, created_at
		FROM webhook_targets
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list webhook targets: %w", err)
	}
	defer rows.Close()

	var targets []*Target
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook target: %w", err)
		}
		targets = append(targets, target)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook targets: %w", err)
	}
	return targets, nil
}

func (s *PostgresTargetStore) Delete(ctx context.Context, id domain.WebhookID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhook_targets WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete webhook target: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete webhook target: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(row rowScanner) (*Target, error) {
	var target Target
	var id uuid.UUID
	var orgID uuid.NullUUID
	var events []string
	if err := row.Scan(&id, &orgID, &target.URL, &target.Secret, pq.Array(&events), &target.Active, &target.CreatedAt); err != nil {
		return nil, err
	}
	target.ID = domain.WebhookID(id)
	if orgID.Valid {
		org := domain.OrganizationID(orgID.UUID)
		target.OrganizationID = &org
	}
	target.Events = make([]Event, 0, len(events))
	for _, event := range events {
		target.Events = append(target.Events, Event(event))
	}
	return &target, nil
}

func eventStrings(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, string(event))
	}
	return out
}

// PostgresDeliveryStore persists deliveries in PostgreSQL.
type PostgresDeliveryStore struct {
	db *sql.DB
}

func NewPostgresDeliveryStore(db *sql.DB) *PostgresDeliveryStore {
	return &PostgresDeliveryStore{db: db}
}

func (s *PostgresDeliveryStore) Create(ctx context.Context, delivery *Delivery) error {
	query := `
		INSERT INTO webhook_deliveries
			(id, target_id, verification_id, event, payload, status, attempts,
			 next_attempt_at, response_status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(delivery.ID),
		uuid.UUID(delivery.TargetID),
		uuid.UUID(delivery.VerificationID),
		string(delivery.Event),
		[]byte(delivery.Payload),
		string(delivery.Status),
		delivery.Attempts,
		delivery.NextAttemptAt,
		delivery.ResponseStatus,
		delivery.LastError,
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

func (s *PostgresDeliveryStore) Get(ctx context.Context, id domain.DeliveryID) (*Delivery, error) {
	query := `
		SELECT id, target_id, verification_id, event, payload, status, attempts,
		       next_attempt_at, response_status, last_error, created_at, updated_at
		FROM webhook_deliveries
		WHERE id = $1
	`
	delivery, err := scanDelivery(s.db.QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get webhook delivery: %w", err)
	}
	return delivery, nil
}

func (s *PostgresDeliveryStore) Update(ctx context.Context, delivery *Delivery) error {
	query := `
		UPDATE webhook_deliveries
		SET status = $2, attempts = $3, next_attempt_at = $4,
		    response_status = $5, last_error = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(delivery.ID),
		string(delivery.Status),
		delivery.Attempts,
		delivery.NextAttemptAt,
		delivery.ResponseStatus,
		delivery.LastError,
		delivery.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresDeliveryStore) ListByTarget(ctx context.Context, targetID domain.WebhookID, limit int) ([]*Delivery, error) {
	query := `
		SELECT id, target_id, verification_id, event, payload, status, attempts,
		       next_attempt_at, response_status, last_error, created_at, updated_at
		FROM webhook_deliveries
		WHERE target_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(targetID), limit)
	if err != nil {
		return nil, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*Delivery
	for rows.Next() {
		delivery, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook delivery: %w", err)
		}
		deliveries = append(deliveries, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook deliveries: %w", err)
	}
	return deliveries, nil
}

func (s *PostgresDeliveryStore) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryID, error) {
	query := `
		SELECT id
		FROM webhook_deliveries
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, string(DeliveryPending), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due webhook deliveries: %w", err)
	}
	defer rows.Close()

	var ids []domain.DeliveryID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due webhook delivery: %w", err)
		}
		ids = append(ids, domain.DeliveryID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due webhook deliveries: %w", err)
	}
	return ids, nil
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	var delivery Delivery
	var id, targetID, verificationID uuid.UUID
	var event, status string
	var payload []byte
	if err := row.Scan(&id, &targetID, &verificationID, &event, &payload, &status, &delivery.Attempts,
		&delivery.NextAttemptAt, &delivery.ResponseStatus, &delivery.LastError,
		&delivery.CreatedAt, &delivery.UpdatedAt); err != nil {
		return nil, err
	}
	delivery.ID = domain.DeliveryID(id)
	delivery.TargetID = domain.WebhookID(targetID)
	delivery.VerificationID = domain.VerificationID(verificationID)
	delivery.Event = Event(event)
	delivery.Status = DeliveryStatus(status)
	delivery.Payload = payload
	return &delivery, nil
}
