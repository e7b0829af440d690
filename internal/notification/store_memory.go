package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// MemoryTargetStore keeps webhook targets in process memory.
type MemoryTargetStore struct {
	mu      sync.RWMutex
	targets map[domain.WebhookID]*Target
}

func NewMemoryTargetStore() *MemoryTargetStore {
	return &MemoryTargetStore{targets: make(map[domain.WebhookID]*Target)}
}

func (s *MemoryTargetStore) Create(_ context.Context, target *Target) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.targets[target.ID]; exists {
		return sentinel.ErrConflict
	}
	s.targets[target.ID] = target.clone()
	return nil
}

func (s *MemoryTargetStore) Get(_ context.Context, id domain.WebhookID) (*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	target, ok := s.targets[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return target.clone(), nil
}

func (s *MemoryTargetStore) List(_ context.Context) ([]*Target, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	targets := make([]*Target, 0, len(s.targets))
	for _, target := range s.targets {
		targets = append(targets, target.clone())
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].CreatedAt.Before(targets[j].CreatedAt)
	})
	return targets, nil
}

func (s *MemoryTargetStore) Delete(_ context.Context, id domain.WebhookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.targets, id)
	return nil
}

// MemoryDeliveryStore keeps deliveries in process memory.
type MemoryDeliveryStore struct {
	mu         sync.RWMutex
	deliveries map[domain.DeliveryID]*Delivery
}

func NewMemoryDeliveryStore() *MemoryDeliveryStore {
	return &MemoryDeliveryStore{deliveries: make(map[domain.DeliveryID]*Delivery)}
}

func (s *MemoryDeliveryStore) Create(_ context.Context, delivery *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliveries[delivery.ID]; exists {
		return sentinel.ErrConflict
	}
	s.deliveries[delivery.ID] = delivery.clone()
	return nil
}

func (s *MemoryDeliveryStore) Get(_ context.Context, id domain.DeliveryID) (*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	delivery, ok := s.deliveries[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return delivery.clone(), nil
}

func (s *MemoryDeliveryStore) Update(_ context.Context, delivery *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[delivery.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.deliveries[delivery.ID] = delivery.clone()
	return nil
}

func (s *MemoryDeliveryStore) ListByTarget(_ context.Context, targetID domain.WebhookID, limit int) ([]*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var deliveries []*Delivery
	for _, delivery := range s.deliveries {
		if delivery.TargetID == targetID {
			deliveries = append(deliveries, delivery.clone())
		}
	}
	sort.Slice(deliveries, func(i, j int) bool {
		return deliveries[i].CreatedAt.After(deliveries[j].CreatedAt)
	})
	if limit > 0 && len(deliveries) > limit {
		deliveries = deliveries[:limit]
	}
	return deliveries, nil
}

func (s *MemoryDeliveryStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.DeliveryID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*Delivery
	for _, delivery := range s.deliveries {
		if delivery.Status == DeliveryPending && !delivery.NextAttemptAt.After(now) {
			due = append(due, delivery)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]domain.DeliveryID, 0, len(due))
	for _, delivery := range due {
		ids = append(ids, delivery.ID)
	}
	return ids, nil
}
