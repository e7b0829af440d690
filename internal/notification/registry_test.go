package notification

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

func newRegistryFixture(t *testing.T) (*Registry, *MemoryDeliveryStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	targets := NewMemoryTargetStore()
	deliveries := NewMemoryDeliveryStore()
	dispatcher := NewDispatcher(targets, deliveries, logger, testWebhookConfig())
	return NewRegistry(targets, deliveries, dispatcher, logger), deliveries
}

func TestRegistry_RegisterGeneratesSecretWhenOmitted(t *testing.T) {
	registry, _ := newRegistryFixture(t)

	target, err := registry.Register(context.Background(), nil, "https://example.com/hook", "", []Event{EventVerificationVerified})
	require.NoError(t, err)

	assert.Len(t, target.Secret, 64, "generated secrets are 32 random bytes hex encoded")
	assert.True(t, target.Active)
	assert.False(t, target.ID.IsNil())
}

func TestRegistry_RegisterKeepsCallerSecret(t *testing.T) {
	registry, _ := newRegistryFixture(t)

	target, err := registry.Register(context.Background(), nil, "https://example.com/hook", "caller-secret", nil)
	require.NoError(t, err)

	assert.Equal(t, "caller-secret", target.Secret)
}

func TestRegistry_RegisterRejectsBadInput(t *testing.T) {
	registry, _ := newRegistryFixture(t)

	_, err := registry.Register(context.Background(), nil, "not a url", "", nil)
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput))

	_, err = registry.Register(context.Background(), nil, "ftp://example.com/hook", "", nil)
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput))

	_, err = registry.Register(context.Background(), nil, "https://example.com/hook", "", []Event{"verification.exploded"})
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput))
}

func TestRegistry_DeleteUnknownTargetNotFound(t *testing.T) {
	registry, _ := newRegistryFixture(t)

	err := registry.Delete(context.Background(), domain.NewWebhookID())
	assert.True(t, derrors.Is(err, derrors.CodeNotFound))
}

func TestRegistry_TestQueuesPingDelivery(t *testing.T) {
	registry, deliveries := newRegistryFixture(t)
	target, err := registry.Register(context.Background(), nil, "https://example.com/hook", "", nil)
	require.NoError(t, err)

	delivery, err := registry.Test(context.Background(), target.ID)
	require.NoError(t, err)

	assert.Equal(t, EventWebhookTest, delivery.Event)
	assert.Equal(t, DeliveryPending, delivery.Status)
	assert.Contains(t, string(delivery.Payload), target.ID.String())

	listed, err := deliveries.ListByTarget(context.Background(), target.ID, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestRegistry_DeliveriesRequireExistingTarget(t *testing.T) {
	registry, _ := newRegistryFixture(t)

	_, err := registry.Deliveries(context.Background(), domain.NewWebhookID(), 10)
	assert.True(t, derrors.Is(err, derrors.CodeNotFound))
}

func TestRegistry_DeliveriesListsNewestFirst(t *testing.T) {
	registry, deliveries := newRegistryFixture(t)
	target, err := registry.Register(context.Background(), nil, "https://example.com/hook", "", nil)
	require.NoError(t, err)

	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, deliveries.Create(context.Background(), &Delivery{
			ID:        domain.NewDeliveryID(),
			TargetID:  target.ID,
			Event:     EventVerificationVerified,
			Payload:   []byte(`{}`),
			Status:    DeliveryDelivered,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	listed, err := registry.Deliveries(context.Background(), target.ID, 2)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.True(t, listed[0].CreatedAt.After(listed[1].CreatedAt))
}
