package notification

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doobee46/idswyft-sub005/internal/notification/signature"
	"github.com/doobee46/idswyft-sub005/internal/platform/config"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

func testWebhookConfig() config.Webhook {
	return config.Webhook{
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		BackoffCap:     10 * time.Millisecond,
		RequestTimeout: time.Second,
		SweepInterval:  2 * time.Millisecond,
		SweepBatchSize: 100,
		QueueSize:      16,
		Workers:        2,
	}
}

type dispatcherFixture struct {
	targets    *MemoryTargetStore
	deliveries *MemoryDeliveryStore
	dispatcher *Dispatcher
}

func newDispatcherFixture(t *testing.T, cfg config.Webhook) *dispatcherFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &dispatcherFixture{
		targets:    NewMemoryTargetStore(),
		deliveries: NewMemoryDeliveryStore(),
	}
	f.dispatcher = NewDispatcher(f.targets, f.deliveries, logger, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.dispatcher.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f
}

func (f *dispatcherFixture) addTarget(t *testing.T, url string, events ...Event) *Target {
	t.Helper()
	target := &Target{
		ID:        domain.NewWebhookID(),
		URL:       url,
		Secret:    "target-secret",
		Events:    events,
		Active:    true,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.targets.Create(context.Background(), target))
	return target
}

func TestDispatcher_DeliversSignedPayload(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotSignature, gotAttempt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = body
		gotSignature = r.Header.Get(signature.Header)
		gotAttempt = r.Header.Get(signature.AttemptHeader)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newDispatcherFixture(t, testWebhookConfig())
	target := f.addTarget(t, server.URL)
	verificationID := domain.NewVerificationID()

	require.NoError(t, f.dispatcher.Enqueue(context.Background(), EventVerificationVerified, verificationID, map[string]string{"status": "verified"}))

	deliveries, err := f.deliveries.ListByTarget(context.Background(), target.ID, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)

	require.Eventually(t, func() bool {
		delivery, err := f.deliveries.Get(context.Background(), deliveries[0].ID)
		return err == nil && delivery.Status == DeliveryDelivered
	}, time.Second, 2*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.JSONEq(t, `{"status":"verified"}`, string(gotBody))
	assert.True(t, signature.Verify(target.Secret, gotBody, gotSignature))
	assert.Equal(t, "1", gotAttempt)

	delivery, err := f.deliveries.Get(context.Background(), deliveries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, delivery.Attempts)
	assert.Equal(t, http.StatusOK, delivery.ResponseStatus)
}

func TestDispatcher_AlwaysFailingTargetExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	f := newDispatcherFixture(t, testWebhookConfig())
	target := f.addTarget(t, server.URL)

	delivery, err := f.dispatcher.EnqueueTo(context.Background(), target, EventVerificationFailed, domain.NewVerificationID(), map[string]string{"status": "failed"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := f.deliveries.Get(context.Background(), delivery.ID)
		return err == nil && current.Status == DeliveryFailed
	}, 2*time.Second, 2*time.Millisecond)

	final, err := f.deliveries.Get(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, final.Attempts)
	assert.Equal(t, http.StatusInternalServerError, final.ResponseStatus)
	assert.Contains(t, final.LastError, "boom")

	// A failed delivery must never be retried again.
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 3, hits.Load())
}

func TestDispatcher_NonRetryable4xxFailsFast(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad signature", http.StatusUnauthorized)
	}))
	defer server.Close()

	f := newDispatcherFixture(t, testWebhookConfig())
	target := f.addTarget(t, server.URL)

	delivery, err := f.dispatcher.EnqueueTo(context.Background(), target, EventVerificationVerified, domain.NewVerificationID(), map[string]string{"status": "verified"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := f.deliveries.Get(context.Background(), delivery.ID)
		return err == nil && current.Status == DeliveryFailed
	}, time.Second, 2*time.Millisecond)

	final, err := f.deliveries.Get(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.Attempts, "rejections other than 408/429 must not retry")
	assert.Equal(t, http.StatusUnauthorized, final.ResponseStatus)
	assert.EqualValues(t, 1, hits.Load())
}

func TestDispatcher_EnqueueSkipsInactiveAndUnsubscribedTargets(t *testing.T) {
	f := newDispatcherFixture(t, testWebhookConfig())

	inactive := &Target{
		ID:        domain.NewWebhookID(),
		URL:       "http://127.0.0.1:1/hook",
		Secret:    "target-secret",
		Active:    false,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.targets.Create(context.Background(), inactive))

	failedOnly := f.addTarget(t, "http://127.0.0.1:1/hook", EventVerificationFailed)

	require.NoError(t, f.dispatcher.Enqueue(context.Background(), EventVerificationVerified, domain.NewVerificationID(), map[string]string{"status": "verified"}))

	for _, target := range []*Target{inactive, failedOnly} {
		deliveries, err := f.deliveries.ListByTarget(context.Background(), target.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, deliveries)
	}
}

func TestDispatcher_SweepRecoversDueRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	f := newDispatcherFixture(t, testWebhookConfig())
	target := f.addTarget(t, server.URL)

	delivery, err := f.dispatcher.EnqueueTo(context.Background(), target, EventVerificationVerified, domain.NewVerificationID(), map[string]string{"status": "verified"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := f.deliveries.Get(context.Background(), delivery.ID)
		return err == nil && current.Status == DeliveryDelivered
	}, 2*time.Second, 2*time.Millisecond)

	final, err := f.deliveries.Get(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.Attempts)
	assert.Equal(t, http.StatusNoContent, final.ResponseStatus)
	assert.Empty(t, final.LastError)
}

func TestDispatcher_DeletedTargetFailsDelivery(t *testing.T) {
	f := newDispatcherFixture(t, testWebhookConfig())
	target := f.addTarget(t, "http://127.0.0.1:1/hook")

	delivery := &Delivery{
		ID:             domain.NewDeliveryID(),
		TargetID:       target.ID,
		VerificationID: domain.NewVerificationID(),
		Event:          EventVerificationVerified,
		Payload:        []byte(`{}`),
		Status:         DeliveryPending,
		NextAttemptAt:  time.Now(),
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, f.deliveries.Create(context.Background(), delivery))
	require.NoError(t, f.targets.Delete(context.Background(), target.ID))

	require.Eventually(t, func() bool {
		current, err := f.deliveries.Get(context.Background(), delivery.ID)
		return err == nil && current.Status == DeliveryFailed
	}, time.Second, 2*time.Millisecond)

	final, err := f.deliveries.Get(context.Background(), delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, "target deleted", final.LastError)
	assert.Zero(t, final.Attempts, "no POST is made for a deleted target")
}

func TestBackoff_DoublesUpToCap(t *testing.T) {
	d := NewDispatcher(NewMemoryTargetStore(), NewMemoryDeliveryStore(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		config.Webhook{BackoffBase: 5 * time.Second, BackoffCap: 15 * time.Second})

	assert.Equal(t, 5*time.Second, d.backoff(1))
	assert.Equal(t, 10*time.Second, d.backoff(2))
	assert.Equal(t, 15*time.Second, d.backoff(3))
	assert.Equal(t, 15*time.Second, d.backoff(10))
}
