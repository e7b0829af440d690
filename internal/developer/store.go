package developer

import (
	"context"
	"time"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// Store persists API keys.
//
// Implementations return sentinel.ErrNotFound for unknown keys and
// sentinel.ErrConflict for duplicate creates.
type Store interface {
	Create(ctx context.Context, key *APIKey) error
	Get(ctx context.Context, id domain.APIKeyID) (*APIKey, error)
	GetByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	List(ctx context.Context) ([]*APIKey, error)
	Revoke(ctx context.Context, id domain.APIKeyID) error
	TouchLastUsed(ctx context.Context, id domain.APIKeyID, at time.Time) error
}
