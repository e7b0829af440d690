package notification

import (
	"context"
	"time"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// TargetStore persists webhook registrations.
//
// Implementations return sentinel.ErrNotFound for unknown IDs and
// sentinel.ErrConflict for duplicate creates.
type TargetStore interface {
	Create(ctx context.Context, target *Target) error
	Get(ctx context.Context, id domain.WebhookID) (*Target, error)
	List(ctx context.Context) ([]*Target, error)
	Delete(ctx context.Context, id domain.WebhookID) error
}

// DeliveryStore persists delivery attempts and their retry schedule.
type DeliveryStore interface {
	Create(ctx context.Context, delivery *Delivery) error
	Get(ctx context.Context, id domain.DeliveryID) (*Delivery, error)
	Update(ctx context.Context, delivery *Delivery) error
	ListByTarget(ctx context.Context, targetID domain.WebhookID, limit int) ([]*Delivery, error)
	// ListDue returns pending deliveries whose NextAttemptAt is at or before
	// now, oldest first, capped at limit. The sweep uses it to recover
	// deliveries that fell out of the in-process queue.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryID, error)
}
