package verification

import (
	"context"
	"sync"
	"time"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/keyedmutex"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// MemoryStore keeps contexts in process. Snapshots in and out are deep
// copies; callers never share memory with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	contexts map[domain.VerificationID]*VerificationContext
	locks    *keyedmutex.KeyedMutex
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts: make(map[domain.VerificationID]*VerificationContext),
		locks:    keyedmutex.New(),
		now:      time.Now,
	}
}

func (s *MemoryStore) Create(ctx context.Context, vc *VerificationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contexts[vc.ID]; exists {
		return sentinel.ErrConflict
	}
	s.contexts[vc.ID] = vc.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id domain.VerificationID) (*VerificationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vc, ok := s.contexts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return vc.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id domain.VerificationID, fn func(*VerificationContext) error) (*VerificationContext, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	s.mu.RLock()
	current, ok := s.contexts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = s.now()

	s.mu.Lock()
	s.contexts[id] = working
	s.mu.Unlock()
	return working.Clone(), nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID domain.UserID) ([]*VerificationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*VerificationContext
	for _, vc := range s.contexts {
		if vc.UserID == userID {
			matched = append(matched, vc.Clone())
		}
	}
	return matched, nil
}

func (s *MemoryStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.VerificationID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []domain.VerificationID
	for id, vc := range s.contexts {
		if !vc.Status.Resolved() && vc.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale, nil
}
