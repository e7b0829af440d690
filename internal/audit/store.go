package audit

import (
	"context"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByVerification(ctx context.Context, id domain.VerificationID) ([]Event, error)
}
