// Package notification delivers verification outcomes to registered webhook
// targets with signed payloads and bounded retries.
package notification

import (
	"encoding/json"
	"time"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// Event identifies what a webhook payload describes.
type Event string

const (
	EventVerificationVerified     Event = "verification.verified"
	EventVerificationFailed       Event = "verification.failed"
	EventVerificationManualReview Event = "verification.manual_review"
	// EventWebhookTest is fired on demand so integrators can confirm their
	// endpoint and signature handling before going live.
	EventWebhookTest Event = "webhook.test"
)

// AllEvents lists the events a target may subscribe to. EventWebhookTest is
// always deliverable and not part of subscriptions.
var AllEvents = []Event{
	EventVerificationVerified,
	EventVerificationFailed,
	EventVerificationManualReview,
}

func ValidEvent(e Event) bool {
	for _, known := range AllEvents {
		if e == known {
			return true
		}
	}
	return false
}

// Target is a registered webhook endpoint.
type Target struct {
	ID             domain.WebhookID
	OrganizationID *domain.OrganizationID
	URL            string
	Secret         string
	Events         []Event
	Active         bool
	CreatedAt      time.Time
}

// Subscribed reports whether the target wants the event. A target with no
// explicit subscriptions receives everything.
func (t *Target) Subscribed(e Event) bool {
	if e == EventWebhookTest {
		return true
	}
	if len(t.Events) == 0 {
		return true
	}
	for _, sub := range t.Events {
		if sub == e {
			return true
		}
	}
	return false
}

func (t *Target) clone() *Target {
	dup := *t
	dup.Events = append([]Event(nil), t.Events...)
	if t.OrganizationID != nil {
		org := *t.OrganizationID
		dup.OrganizationID = &org
	}
	return &dup
}

// DeliveryStatus tracks one delivery through the retry loop.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Delivery is one payload bound for one target. Attempts counts POSTs already
// made; NextAttemptAt gates when the next one may happen.
type Delivery struct {
	ID             domain.DeliveryID
	TargetID       domain.WebhookID
	VerificationID domain.VerificationID
	Event          Event
	Payload        json.RawMessage
	Status         DeliveryStatus
	Attempts       int
	NextAttemptAt  time.Time
	ResponseStatus int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (d *Delivery) clone() *Delivery {
	dup := *d
	dup.Payload = append(json.RawMessage(nil), d.Payload...)
	return &dup
}
