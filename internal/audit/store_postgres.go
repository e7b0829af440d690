package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// PostgresStore persists the audit trail in PostgreSQL, append-only.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (occurred_at, verification_id, user_id, action, reason, request_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.Timestamp,
		uuid.UUID(event.VerificationID),
		uuid.UUID(event.UserID),
		event.Action,
		event.Reason,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByVerification(ctx context.Context, id domain.VerificationID) ([]Event, error) {
	query := `
		SELECT occurred_at, verification_id, user_id, action, reason, request_id
		FROM audit_events
		WHERE verification_id = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(id))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var verificationID, userID uuid.UUID
		if err := rows.Scan(&event.Timestamp, &verificationID, &userID, &event.Action, &event.Reason, &event.RequestID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.VerificationID = domain.VerificationID(verificationID)
		event.UserID = domain.UserID(userID)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
