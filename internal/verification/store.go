package verification

import (
	"context"
	"time"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// Store persists verification contexts. Implementations return
// pkg/platform/sentinel errors; the manager translates them at the boundary.
//
// Update is the only mutation path: it reads the current context, applies fn
// to a private copy and writes the result back while holding a per-id lock,
// so two concurrent stage completions for the same id merge instead of one
// overwriting the other. fn returning an error aborts the write.
type Store interface {
	Create(ctx context.Context, vc *VerificationContext) error
	Get(ctx context.Context, id domain.VerificationID) (*VerificationContext, error)
	Update(ctx context.Context, id domain.VerificationID, fn func(*VerificationContext) error) (*VerificationContext, error)
	ListByUser(ctx context.Context, userID domain.UserID) ([]*VerificationContext, error)

	// ListStale returns ids of contexts the machine is still advancing whose
	// last update predates cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]domain.VerificationID, error)
}
