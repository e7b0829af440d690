package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doobee46/idswyft-sub005/internal/notification/signature"
	"github.com/doobee46/idswyft-sub005/internal/platform/config"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/keyedmutex"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// lastErrorLimit caps how much of an error or response body is persisted per
// delivery attempt.
const lastErrorLimit = 512

// Dispatcher fans verification outcomes out to subscribed targets. Deliveries
// are persisted first and then pushed onto an in-process queue; a periodic
// sweep re-queues anything due that the queue dropped, so a full queue or a
// restart delays delivery rather than losing it.
type Dispatcher struct {
	targets    TargetStore
	deliveries DeliveryStore
	client     *http.Client
	logger     *slog.Logger
	metrics    *Metrics
	cfg        config.Webhook
	queue      chan domain.DeliveryID
	locks      *keyedmutex.KeyedMutex
	now        func() time.Time
}

type DispatcherOption func(*Dispatcher)

// WithHTTPClient overrides the delivery client.
func WithHTTPClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// WithDispatcherMetrics attaches delivery metrics.
func WithDispatcherMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDispatcherClock overrides the clock, for tests.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(targets TargetStore, deliveries DeliveryStore, logger *slog.Logger, cfg config.Webhook, opts ...DispatcherOption) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	d := &Dispatcher{
		targets:    targets,
		deliveries: deliveries,
		client:     &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
		cfg:        cfg,
		queue:      make(chan domain.DeliveryID, cfg.QueueSize),
		locks:      keyedmutex.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue creates one pending delivery per subscribed active target and queues
// them for dispatch. The payload is marshalled once and shared.
func (d *Dispatcher) Enqueue(ctx context.Context, event Event, verificationID domain.VerificationID, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	targets, err := d.targets.List(ctx)
	if err != nil {
		return fmt.Errorf("list webhook targets: %w", err)
	}
	for _, target := range targets {
		if !target.Active || !target.Subscribed(event) {
			continue
		}
		if _, err := d.enqueueTo(ctx, target, event, verificationID, body); err != nil {
			return err
		}
	}
	return nil
}

// EnqueueTo creates and queues a delivery for a single target regardless of
// its subscriptions. Used for on-demand test deliveries.
func (d *Dispatcher) EnqueueTo(ctx context.Context, target *Target, event Event, verificationID domain.VerificationID, payload any) (*Delivery, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}
	return d.enqueueTo(ctx, target, event, verificationID, body)
}

func (d *Dispatcher) enqueueTo(ctx context.Context, target *Target, event Event, verificationID domain.VerificationID, body []byte) (*Delivery, error) {
	now := d.now()
	delivery := &Delivery{
		ID:             domain.NewDeliveryID(),
		TargetID:       target.ID,
		VerificationID: verificationID,
		Event:          event,
		Payload:        body,
		Status:         DeliveryPending,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.deliveries.Create(ctx, delivery); err != nil {
		return nil, fmt.Errorf("create webhook delivery: %w", err)
	}
	d.metrics.IncEnqueued()
	d.push(ctx, delivery.ID)
	return delivery, nil
}

func (d *Dispatcher) push(ctx context.Context, id domain.DeliveryID) {
	select {
	case d.queue <- id:
	default:
		d.metrics.IncQueueFull()
		d.logger.WarnContext(ctx, "webhook queue full, delivery deferred to sweep",
			"delivery_id", id.String())
	}
}

// Run starts the delivery workers and the due-delivery sweep, blocking until
// ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			return d.worker(ctx)
		})
	}
	g.Go(func() error {
		return d.sweepLoop(ctx)
	})
	return g.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-d.queue:
			d.process(ctx, id)
		}
	}
}

func (d *Dispatcher) sweepLoop(ctx context.Context) error {
	interval := d.cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ids, err := d.deliveries.ListDue(ctx, d.now(), d.cfg.SweepBatchSize)
			if err != nil {
				d.logger.ErrorContext(ctx, "webhook sweep failed", "error", err.Error())
				continue
			}
			for _, id := range ids {
				d.push(ctx, id)
			}
		}
	}
}

// process makes at most one POST attempt for the delivery and persists the
// outcome. The per-delivery lock plus the pending/due re-check make it safe
// for the queue and the sweep to hand over the same ID concurrently.
func (d *Dispatcher) process(ctx context.Context, id domain.DeliveryID) {
	unlock := d.locks.Lock(id.String())
	defer unlock()

	delivery, err := d.deliveries.Get(ctx, id)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to load webhook delivery",
			"delivery_id", id.String(), "error", err.Error())
		return
	}
	if delivery.Status != DeliveryPending || delivery.NextAttemptAt.After(d.now()) {
		return
	}

	target, err := d.targets.Get(ctx, delivery.TargetID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		d.finish(ctx, delivery, DeliveryFailed, 0, "target deleted")
		return
	case err != nil:
		d.logger.ErrorContext(ctx, "failed to load webhook target",
			"delivery_id", id.String(), "error", err.Error())
		return
	case !target.Active:
		d.finish(ctx, delivery, DeliveryFailed, 0, "target inactive")
		return
	}

	delivery.Attempts++
	start := d.now()
	status, detail, retryable := d.post(ctx, target, delivery)

	switch {
	case status >= 200 && status < 300:
		d.metrics.IncAttempt("delivered", start)
		d.finish(ctx, delivery, DeliveryDelivered, status, "")
	case retryable && delivery.Attempts < d.cfg.MaxAttempts:
		d.metrics.IncAttempt("retry", start)
		delivery.ResponseStatus = status
		delivery.LastError = detail
		delivery.NextAttemptAt = d.now().Add(d.backoff(delivery.Attempts))
		delivery.UpdatedAt = d.now()
		if err := d.deliveries.Update(ctx, delivery); err != nil {
			d.logger.ErrorContext(ctx, "failed to reschedule webhook delivery",
				"delivery_id", id.String(), "error", err.Error())
		}
	default:
		d.metrics.IncAttempt("failed", start)
		d.finish(ctx, delivery, DeliveryFailed, status, detail)
	}
}

// post makes one POST attempt. It returns the HTTP status (0 on transport
// error), a persistable error detail, and whether the failure is retryable.
func (d *Dispatcher) post(ctx context.Context, target *Target, delivery *Delivery) (status int, detail string, retryable bool) {
	reqCtx := ctx
	if d.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, d.cfg.RequestTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return 0, truncate(err.Error()), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.Header, signature.Compute(target.Secret, delivery.Payload))
	req.Header.Set(signature.AttemptHeader, strconv.Itoa(delivery.Attempts))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, truncate(err.Error()), true
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, lastErrorLimit))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, "", false
	}
	// 408 and 429 are the only 4xx worth retrying; the rest mean the
	// receiver rejected the payload and will keep rejecting it.
	retryable = resp.StatusCode >= 500 ||
		resp.StatusCode == http.StatusRequestTimeout ||
		resp.StatusCode == http.StatusTooManyRequests
	return resp.StatusCode, truncate(string(body)), retryable
}

func (d *Dispatcher) finish(ctx context.Context, delivery *Delivery, status DeliveryStatus, responseStatus int, detail string) {
	delivery.Status = status
	delivery.ResponseStatus = responseStatus
	delivery.LastError = detail
	delivery.UpdatedAt = d.now()
	if err := d.deliveries.Update(ctx, delivery); err != nil {
		d.logger.ErrorContext(ctx, "failed to finalize webhook delivery",
			"delivery_id", delivery.ID.String(), "error", err.Error())
		return
	}
	d.metrics.IncResolved(status)
	if status == DeliveryFailed {
		d.logger.WarnContext(ctx, "webhook delivery failed",
			"delivery_id", delivery.ID.String(),
			"target_id", delivery.TargetID.String(),
			"attempts", delivery.Attempts,
			"response_status", responseStatus)
	}
}

// backoff doubles per attempt already made, capped.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	wait := d.cfg.BackoffBase
	if wait <= 0 {
		wait = 5 * time.Second
	}
	for i := 1; i < attempts; i++ {
		wait *= 2
		if d.cfg.BackoffCap > 0 && wait >= d.cfg.BackoffCap {
			return d.cfg.BackoffCap
		}
	}
	return wait
}

func truncate(s string) string {
	if len(s) > lastErrorLimit {
		return s[:lastErrorLimit]
	}
	return s
}
