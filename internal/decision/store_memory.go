package decision

import (
	"context"
	"sync"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// MemoryOverrideStore is an in-memory OverrideStore for local development and
// tests.
type MemoryOverrideStore struct {
	mu        sync.RWMutex
	overrides map[domain.OrganizationID]map[string]float64
}

func NewMemoryOverrideStore() *MemoryOverrideStore {
	return &MemoryOverrideStore{overrides: make(map[domain.OrganizationID]map[string]float64)}
}

func (s *MemoryOverrideStore) Get(ctx context.Context, orgID domain.OrganizationID) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, ok := s.overrides[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := make(map[string]float64, len(values))
	for metric, threshold := range values {
		copied[metric] = threshold
	}
	return copied, nil
}

// Set replaces the full override map for an organization.
func (s *MemoryOverrideStore) Set(orgID domain.OrganizationID, values map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]float64, len(values))
	for metric, threshold := range values {
		copied[metric] = threshold
	}
	s.overrides[orgID] = copied
}

func (s *MemoryOverrideStore) Delete(orgID domain.OrganizationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, orgID)
}
