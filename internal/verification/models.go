// Package verification holds the per-attempt state machine: one mutable
// context per verification id, advanced through document, back-of-id and
// live-capture stages until a terminal verdict.
package verification

import (
	"time"

	"github.com/doobee46/idswyft-sub005/internal/extraction"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// Status is the verification lifecycle state.
type Status string

const (
	StatusPending               Status = "pending"
	StatusDocumentUploaded      Status = "document_uploaded"
	StatusOCRProcessing         Status = "ocr_processing"
	StatusBackOfIDProcessing    Status = "back_of_id_processing"
	StatusCrossValidation       Status = "cross_validation"
	StatusLiveCaptureProcessing Status = "live_capture_processing"
	StatusManualReview          Status = "manual_review"
	StatusVerified              Status = "verified"
	StatusFailed                Status = "failed"
)

// statusRank orders statuses for the monotonic-advance invariant. The three
// resolution states share the top rank; reaching any of them ends machine
// progression.
var statusRank = map[Status]int{
	StatusPending:               0,
	StatusDocumentUploaded:      1,
	StatusOCRProcessing:         2,
	StatusBackOfIDProcessing:    3,
	StatusCrossValidation:       4,
	StatusLiveCaptureProcessing: 5,
	StatusManualReview:          6,
	StatusVerified:              6,
	StatusFailed:                6,
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether the context is immutable. Manual review is
// resolved, not terminal: a human decision may still move it.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusFailed
}

// Resolved reports whether the machine is done advancing this context.
func (s Status) Resolved() bool {
	return s.Terminal() || s == StatusManualReview
}

// FailureKind classifies an error record per the routing taxonomy.
type FailureKind string

const (
	// FailureExtraction is recoverable; it degrades confidence but the
	// machine keeps moving.
	FailureExtraction FailureKind = "extraction_failure"
	// FailureValidation routes per the state machine rules.
	FailureValidation FailureKind = "validation_failure"
	// FailureTechnical always lands the verification in manual review.
	FailureTechnical FailureKind = "technical_failure"
	// FailureFraudSignal is terminal.
	FailureFraudSignal FailureKind = "fraud_signal"
)

// ErrorRecord is one classified failure on the append-only error list.
type ErrorRecord struct {
	Kind       FailureKind `json:"kind"`
	Stage      string      `json:"stage"`
	Message    string      `json:"message"`
	Detail     string      `json:"detail,omitempty"`
	UserFacing bool        `json:"user_facing"`
	At         time.Time   `json:"at"`
}

// Stages are set-once completion flags; a true flag is never reset.
type Stages struct {
	DocumentUploaded bool `json:"document_uploaded"`
	OCR              bool `json:"ocr"`
	BackOfID         bool `json:"back_of_id"`
	CrossValidation  bool `json:"cross_validation"`
	LiveCapture      bool `json:"live_capture"`
	FaceMatching     bool `json:"face_matching"`
}

// VerificationContext is the single mutable record per verification attempt.
// All mutation goes through Store.Update, which serializes writers per id.
type VerificationContext struct {
	ID             domain.VerificationID   `json:"id"`
	UserID         domain.UserID           `json:"user_id"`
	OrganizationID *domain.OrganizationID  `json:"organization_id,omitempty"`
	Sandbox        bool                    `json:"sandbox"`
	Status         Status                  `json:"status"`
	Stages         Stages                  `json:"stages"`
	Scores         map[string]float64      `json:"scores"`
	Errors         []ErrorRecord           `json:"errors,omitempty"`
	DocumentType   extraction.DocumentType `json:"document_type,omitempty"`

	FrontImagePath string `json:"front_image_path,omitempty"`
	BackImagePath  string `json:"back_image_path,omitempty"`

	FrontFields map[extraction.Field]string `json:"front_fields,omitempty"`
	BackFields  map[extraction.Field]string `json:"back_fields,omitempty"`

	// RequiresManualReview latches cross-validation's review demand until
	// finalization.
	RequiresManualReview bool   `json:"requires_manual_review,omitempty"`
	Reason               string `json:"reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewContext builds a pending context.
func NewContext(userID domain.UserID, orgID *domain.OrganizationID, sandbox bool, now time.Time) *VerificationContext {
	return &VerificationContext{
		ID:             domain.NewVerificationID(),
		UserID:         userID,
		OrganizationID: orgID,
		Sandbox:        sandbox,
		Status:         StatusPending,
		Scores:         make(map[string]float64),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Transition advances the status. Moving a terminal context or moving rank
// backwards violates the monotonic-advance invariant.
func (vc *VerificationContext) Transition(to Status) error {
	if !to.Valid() {
		return sentinel.ErrInvalidState
	}
	if vc.Status == to {
		return nil
	}
	if vc.Status.Terminal() {
		return sentinel.ErrInvalidState
	}
	if statusRank[to] < statusRank[vc.Status] {
		return sentinel.ErrInvalidState
	}
	vc.Status = to
	return nil
}

// SetScore records a named score, clamped into [0,1].
func (vc *VerificationContext) SetScore(metric string, score float64) {
	if vc.Scores == nil {
		vc.Scores = make(map[string]float64)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	vc.Scores[metric] = score
}

// Score returns a named score and whether it is present.
func (vc *VerificationContext) Score(metric string) (float64, bool) {
	score, ok := vc.Scores[metric]
	return score, ok
}

// RecordError appends a classified error. The list is append-only.
func (vc *VerificationContext) RecordError(record ErrorRecord) {
	vc.Errors = append(vc.Errors, record)
}

// Clone deep-copies the context so stores can hand out snapshots without
// aliasing internal maps.
func (vc *VerificationContext) Clone() *VerificationContext {
	copied := *vc
	copied.Scores = copyFloatMap(vc.Scores)
	copied.FrontFields = copyFieldMap(vc.FrontFields)
	copied.BackFields = copyFieldMap(vc.BackFields)
	if vc.Errors != nil {
		copied.Errors = append([]ErrorRecord(nil), vc.Errors...)
	}
	if vc.OrganizationID != nil {
		orgID := *vc.OrganizationID
		copied.OrganizationID = &orgID
	}
	if vc.CompletedAt != nil {
		completed := *vc.CompletedAt
		copied.CompletedAt = &completed
	}
	return &copied
}

func copyFloatMap(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyFieldMap(in map[extraction.Field]string) map[extraction.Field]string {
	if in == nil {
		return nil
	}
	out := make(map[extraction.Field]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
