//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/testutil/containers"
)

func TestPostgresStore_Integration(t *testing.T) {
	db := containers.NewPostgresDB(t)
	store := NewPostgresStore(db)
	ctx := context.Background()

	verificationID := domain.NewVerificationID()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i, action := range []string{ActionVerificationStarted, ActionDocumentAttached, ActionVerificationResolved} {
		require.NoError(t, store.Append(ctx, Event{
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			VerificationID: verificationID,
			Action:         action,
			RequestID:      "req-1",
		}))
	}
	require.NoError(t, store.Append(ctx, Event{
		Timestamp:      base,
		VerificationID: domain.NewVerificationID(),
		Action:         ActionVerificationStarted,
	}))

	events, err := store.ListByVerification(ctx, verificationID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, ActionVerificationStarted, events[0].Action)
	assert.Equal(t, ActionVerificationResolved, events[2].Action)
	assert.True(t, events[0].Timestamp.Before(events[1].Timestamp))
}
