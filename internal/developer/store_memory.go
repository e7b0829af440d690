package developer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// MemoryStore keeps API keys in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[domain.APIKeyID]*APIKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[domain.APIKeyID]*APIKey)}
}

func (s *MemoryStore) Create(_ context.Context, key *APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.keys {
		if existing.Prefix == key.Prefix {
			return sentinel.ErrConflict
		}
	}
	s.keys[key.ID] = key.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id domain.APIKeyID) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return key.clone(), nil
}

func (s *MemoryStore) GetByPrefix(_ context.Context, prefix string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.keys {
		if key.Prefix == prefix {
			return key.clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) List(_ context.Context) ([]*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]*APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		keys = append(keys, key.clone())
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.Before(keys[j].CreatedAt)
	})
	return keys, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id domain.APIKeyID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	key.Active = false
	return nil
}

func (s *MemoryStore) TouchLastUsed(_ context.Context, id domain.APIKeyID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	key.LastUsedAt = &at
	return nil
}
