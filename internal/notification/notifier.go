package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/doobee46/idswyft-sub005/internal/verification"
)

// Notifier adapts resolved verifications into webhook deliveries. Failures are
// logged and absorbed; webhook trouble never disturbs the verification path.
type Notifier struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewNotifier(dispatcher *Dispatcher, logger *slog.Logger) *Notifier {
	return &Notifier{dispatcher: dispatcher, logger: logger}
}

// outcomePayload is the webhook body for resolved verifications.
type outcomePayload struct {
	Event          Event              `json:"event"`
	VerificationID string             `json:"verification_id"`
	UserID         string             `json:"user_id"`
	Status         string             `json:"status"`
	Sandbox        bool               `json:"sandbox"`
	Scores         map[string]float64 `json:"scores"`
	Reason         string             `json:"reason,omitempty"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

func (n *Notifier) VerificationResolved(ctx context.Context, vc *verification.VerificationContext) {
	event, ok := eventFor(vc.Status)
	if !ok {
		return
	}
	payload := outcomePayload{
		Event:          event,
		VerificationID: vc.ID.String(),
		UserID:         vc.UserID.String(),
		Status:         string(vc.Status),
		Sandbox:        vc.Sandbox,
		Scores:         vc.Scores,
		Reason:         vc.Reason,
		CompletedAt:    vc.CompletedAt,
	}
	if err := n.dispatcher.Enqueue(ctx, event, vc.ID, payload); err != nil {
		n.logger.ErrorContext(ctx, "failed to enqueue webhook deliveries",
			"verification_id", vc.ID.String(),
			"event", string(event),
			"error", err.Error())
	}
}

func eventFor(status verification.Status) (Event, bool) {
	switch status {
	case verification.StatusVerified:
		return EventVerificationVerified, true
	case verification.StatusFailed:
		return EventVerificationFailed, true
	case verification.StatusManualReview:
		return EventVerificationManualReview, true
	default:
		return "", false
	}
}
