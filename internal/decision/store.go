package decision

import (
	"context"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// OverrideStore retrieves per-organization threshold overrides. An override
// may cover any subset of metrics; missing metrics keep environment defaults.
// Implementations return sentinel.ErrNotFound when no override is configured.
type OverrideStore interface {
	Get(ctx context.Context, orgID domain.OrganizationID) (map[string]float64, error)
}
