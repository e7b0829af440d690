package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/keyedmutex"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

const (
	contextKeyPrefix = "verify:ctx:"
	userSetKeyPrefix = "verify:user:"
	activeSetKey     = "verify:active"
)

// RedisStore persists contexts as JSON values. Writer serialization is
// per-process through the same keyed-lock discipline as the memory store;
// the deployment assumption is a single writer process per verification.
type RedisStore struct {
	client *redis.Client
	locks  *keyedmutex.KeyedMutex
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		locks:  keyedmutex.New(),
		now:    time.Now,
	}
}

func (s *RedisStore) Create(ctx context.Context, vc *VerificationContext) error {
	payload, err := json.Marshal(vc)
	if err != nil {
		return fmt.Errorf("marshal verification context: %w", err)
	}

	created, err := s.client.SetNX(ctx, contextKeyPrefix+vc.ID.String(), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create verification context: %w", err)
	}
	if !created {
		return sentinel.ErrConflict
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, userSetKeyPrefix+vc.UserID.String(), vc.ID.String())
	pipe.ZAdd(ctx, activeSetKey, redis.Z{Score: float64(vc.UpdatedAt.Unix()), Member: vc.ID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index verification context: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id domain.VerificationID) (*VerificationContext, error) {
	return s.get(ctx, id)
}

func (s *RedisStore) get(ctx context.Context, id domain.VerificationID) (*VerificationContext, error) {
	payload, err := s.client.Get(ctx, contextKeyPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification context: %w", err)
	}

	var vc VerificationContext
	if err := json.Unmarshal(payload, &vc); err != nil {
		return nil, fmt.Errorf("unmarshal verification context: %w", err)
	}
	return &vc, nil
}

func (s *RedisStore) Update(ctx context.Context, id domain.VerificationID, fn func(*VerificationContext) error) (*VerificationContext, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	// Re-read under the lock so the merge starts from the latest write.
	vc, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(vc); err != nil {
		return nil, err
	}
	vc.UpdatedAt = s.now()

	payload, err := json.Marshal(vc)
	if err != nil {
		return nil, fmt.Errorf("marshal verification context: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, contextKeyPrefix+id.String(), payload, 0)
	if vc.Status.Resolved() {
		pipe.ZRem(ctx, activeSetKey, id.String())
	} else {
		pipe.ZAdd(ctx, activeSetKey, redis.Z{Score: float64(vc.UpdatedAt.Unix()), Member: id.String()})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("update verification context: %w", err)
	}
	return vc, nil
}

func (s *RedisStore) ListByUser(ctx context.Context, userID domain.UserID) ([]*VerificationContext, error) {
	ids, err := s.client.SMembers(ctx, userSetKeyPrefix+userID.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("list user verifications: %w", err)
	}

	contexts := make([]*VerificationContext, 0, len(ids))
	for _, raw := range ids {
		id, err := domain.ParseVerificationID(raw)
		if err != nil {
			continue
		}
		vc, err := s.get(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, vc)
	}
	return contexts, nil
}

func (s *RedisStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.VerificationID, error) {
	raws, err := s.client.ZRangeByScore(ctx, activeSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("(%d", cutoff.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list stale verifications: %w", err)
	}

	stale := make([]domain.VerificationID, 0, len(raws))
	for _, raw := range raws {
		id, err := domain.ParseVerificationID(raw)
		if err != nil {
			continue
		}
		stale = append(stale, id)
	}
	return stale, nil
}
