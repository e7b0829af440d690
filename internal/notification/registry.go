package notification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/doobee46/idswyft-sub005/internal/audit"
	"github.com/doobee46/idswyft-sub005/internal/platform/middleware"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

const defaultDeliveryPageSize = 50

// Registry manages webhook registrations and exposes delivery history. It
// shares stores with the Dispatcher, which does the actual sending.
type Registry struct {
	targets    TargetStore
	deliveries DeliveryStore
	dispatcher *Dispatcher
	auditor    *audit.Publisher
	logger     *slog.Logger
	now        func() time.Time
}

type RegistryOption func(*Registry)

// WithAuditor attaches an audit publisher for registration changes.
func WithAuditor(publisher *audit.Publisher) RegistryOption {
	return func(r *Registry) { r.auditor = publisher }
}

func NewRegistry(targets TargetStore, deliveries DeliveryStore, dispatcher *Dispatcher, logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		targets:    targets,
		deliveries: deliveries,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates a webhook target. An empty secret gets a generated one;
// the caller sees it once, in the response.
func (r *Registry) Register(ctx context.Context, orgID *domain.OrganizationID, rawURL, secret string, events []Event) (*Target, error) {
	if err := validateTargetURL(rawURL); err != nil {
		return nil, err
	}
	for _, event := range events {
		if !ValidEvent(event) {
			return nil, derrors.Newf(derrors.CodeInvalidInput, "unknown webhook event %q", event)
		}
	}
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to generate webhook secret")
		}
		secret = generated
	}

	target := &Target{
		ID:             domain.NewWebhookID(),
		OrganizationID: orgID,
		URL:            rawURL,
		Secret:         secret,
		Events:         events,
		Active:         true,
		CreatedAt:      r.now(),
	}
	if err := r.targets.Create(ctx, target); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to store webhook target")
	}
	r.emit(ctx, audit.ActionWebhookRegistered, target)
	return target, nil
}

func (r *Registry) List(ctx context.Context) ([]*Target, error) {
	targets, err := r.targets.List(ctx)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list webhook targets")
	}
	return targets, nil
}

func (r *Registry) Delete(ctx context.Context, id domain.WebhookID) error {
	target, err := r.targets.Get(ctx, id)
	if err != nil {
		return translateTargetErr(err)
	}
	if err := r.targets.Delete(ctx, id); err != nil {
		return translateTargetErr(err)
	}
	r.emit(ctx, audit.ActionWebhookDeleted, target)
	return nil
}

// testPayload is the body of an on-demand test delivery.
type testPayload struct {
	Event     Event     `json:"event"`
	WebhookID string    `json:"webhook_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Test queues a signed ping at the target so integrators can verify their
// endpoint. The delivery goes through the normal retry pipeline.
func (r *Registry) Test(ctx context.Context, id domain.WebhookID) (*Delivery, error) {
	target, err := r.targets.Get(ctx, id)
	if err != nil {
		return nil, translateTargetErr(err)
	}
	delivery, err := r.dispatcher.EnqueueTo(ctx, target, EventWebhookTest, domain.VerificationID{}, testPayload{
		Event:     EventWebhookTest,
		WebhookID: id.String(),
		Timestamp: r.now(),
	})
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to queue test delivery")
	}
	return delivery, nil
}

// Deliveries lists recent deliveries for a target, newest first.
func (r *Registry) Deliveries(ctx context.Context, id domain.WebhookID, limit int) ([]*Delivery, error) {
	if _, err := r.targets.Get(ctx, id); err != nil {
		return nil, translateTargetErr(err)
	}
	if limit <= 0 {
		limit = defaultDeliveryPageSize
	}
	deliveries, err := r.deliveries.ListByTarget(ctx, id, limit)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list deliveries")
	}
	return deliveries, nil
}

func (r *Registry) emit(ctx context.Context, action string, target *Target) {
	if r.auditor == nil {
		return
	}
	r.auditor.Emit(audit.Event{
		Action:    action,
		Reason:    fmt.Sprintf("%s %s", target.ID.String(), target.URL),
		RequestID: middleware.GetRequestID(ctx),
	})
}

func validateTargetURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return derrors.New(derrors.CodeInvalidInput, "webhook url must be absolute")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return derrors.New(derrors.CodeInvalidInput, "webhook url must use http or https")
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func translateTargetErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return derrors.New(derrors.CodeNotFound, "webhook not found")
	}
	return derrors.Wrap(err, derrors.CodeInternal, "webhook store failure")
}
