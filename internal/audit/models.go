package audit

import (
	"time"

	"github.com/doobee46/idswyft-sub005/pkg/domain"
)

// Actions recorded on the verification trail.
const (
	ActionVerificationStarted  = "verification.started"
	ActionDocumentAttached     = "verification.document_attached"
	ActionBackOfIDAttached     = "verification.back_of_id_attached"
	ActionLiveCaptureAttached  = "verification.live_capture_attached"
	ActionVerificationResolved = "verification.resolved"
	ActionStuckSwept           = "verification.stuck_swept"
	ActionWebhookRegistered    = "webhook.registered"
	ActionWebhookDeleted       = "webhook.deleted"
)

// Event is emitted from domain logic to capture key lifecycle actions. Keep
// it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp      time.Time
	VerificationID domain.VerificationID
	UserID         domain.UserID
	Action         string
	Reason         string
	RequestID      string
}
