package audit

import (
	"context"
	"sync"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// MemoryStore keeps the audit trail in process for local development and
// tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) ListByVerification(ctx context.Context, id domain.VerificationID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Event
	for _, event := range s.events {
		if event.VerificationID == id {
			matched = append(matched, event)
		}
	}
	return matched, nil
}
