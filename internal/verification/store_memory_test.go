package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doobee46/idswyft-sub005/internal/decision"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

func newPendingContext(t *testing.T) *VerificationContext {
	t.Helper()
	userID, err := domain.ParseUserID("a6736e40-93f0-4f27-a766-34d2b0a4bd1a")
	require.NoError(t, err)
	return NewContext(userID, nil, false, time.Now())
}

func TestMemoryStore_CreateGetRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	vc := newPendingContext(t)

	require.NoError(t, store.Create(context.Background(), vc))

	loaded, err := store.Get(context.Background(), vc.ID)
	require.NoError(t, err)
	assert.Equal(t, vc.ID, loaded.ID)
	assert.Equal(t, StatusPending, loaded.Status)
}

func TestMemoryStore_CreateDuplicateConflicts(t *testing.T) {
	store := NewMemoryStore()
	vc := newPendingContext(t)

	require.NoError(t, store.Create(context.Background(), vc))
	assert.ErrorIs(t, store.Create(context.Background(), vc), sentinel.ErrConflict)
}

func TestMemoryStore_GetUnknownNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), domain.NewVerificationID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStore_SnapshotsDoNotAliasStoreState(t *testing.T) {
	store := NewMemoryStore()
	vc := newPendingContext(t)
	require.NoError(t, store.Create(context.Background(), vc))

	loaded, err := store.Get(context.Background(), vc.ID)
	require.NoError(t, err)
	loaded.SetScore(decision.MetricLiveness, 0.99)
	loaded.Status = StatusFailed

	reloaded, err := store.Get(context.Background(), vc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, reloaded.Status)
	_, present := reloaded.Score(decision.MetricLiveness)
	assert.False(t, present)
}

func TestMemoryStore_ConcurrentStageCompletionsBothSurvive(t *testing.T) {
	store := NewMemoryStore()
	vc := newPendingContext(t)
	require.NoError(t, store.Create(context.Background(), vc))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := store.Update(context.Background(), vc.ID, func(vc *VerificationContext) error {
			vc.Stages.OCR = true
			vc.SetScore("ocrConfidence", 0.9)
			return nil
		})
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := store.Update(context.Background(), vc.ID, func(vc *VerificationContext) error {
			vc.Stages.BackOfID = true
			vc.SetScore(decision.MetricCrossValidation, 0.8)
			return nil
		})
		assert.NoError(t, err)
	}()
	wg.Wait()

	merged, err := store.Get(context.Background(), vc.ID)
	require.NoError(t, err)
	assert.True(t, merged.Stages.OCR, "first writer's stage flag must survive")
	assert.True(t, merged.Stages.BackOfID, "second writer's stage flag must survive")
	assert.Len(t, merged.Scores, 2)
}

func TestMemoryStore_UpdateErrorAbortsWrite(t *testing.T) {
	store := NewMemoryStore()
	vc := newPendingContext(t)
	require.NoError(t, store.Create(context.Background(), vc))

	_, err := store.Update(context.Background(), vc.ID, func(vc *VerificationContext) error {
		vc.Stages.OCR = true
		return sentinel.ErrInvalidState
	})
	require.Error(t, err)

	loaded, err := store.Get(context.Background(), vc.ID)
	require.NoError(t, err)
	assert.False(t, loaded.Stages.OCR, "aborted update must not persist")
}

func TestMemoryStore_ListStaleSkipsResolvedContexts(t *testing.T) {
	store := NewMemoryStore()
	past := time.Now().Add(-time.Hour)
	store.now = func() time.Time { return past }

	active := newPendingContext(t)
	reviewed := newPendingContext(t)
	require.NoError(t, store.Create(context.Background(), active))
	require.NoError(t, store.Create(context.Background(), reviewed))

	_, err := store.Update(context.Background(), active.ID, func(vc *VerificationContext) error {
		return vc.Transition(StatusDocumentUploaded)
	})
	require.NoError(t, err)
	_, err = store.Update(context.Background(), reviewed.ID, func(vc *VerificationContext) error {
		return vc.Transition(StatusManualReview)
	})
	require.NoError(t, err)

	stale, err := store.ListStale(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []domain.VerificationID{active.ID}, stale)
}
