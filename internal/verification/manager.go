package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doobee46/idswyft-sub005/internal/audit"
	"github.com/doobee46/idswyft-sub005/internal/crossval"
	"github.com/doobee46/idswyft-sub005/internal/decision"
	"github.com/doobee46/idswyft-sub005/internal/extraction"
	"github.com/doobee46/idswyft-sub005/internal/platform/middleware"
	"github.com/doobee46/idswyft-sub005/internal/providers/docstore"
	"github.com/doobee46/idswyft-sub005/internal/providers/facematch"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
	"github.com/doobee46/idswyft-sub005/pkg/platform/sentinel"
)

// Resolution reasons recorded on the context.
const (
	ReasonThresholdsNotMet = "thresholds_not_met"
	ReasonHardFailure      = "hard_failure"
	ReasonTechnicalFailure = "technical_failure"
	ReasonStuckTimeout     = "stuck_timeout"
)

// Notifier receives resolved verifications. Delivery outcome never feeds back
// into verification state.
type Notifier interface {
	VerificationResolved(ctx context.Context, vc *VerificationContext)
}

// HardFailPolicy defines the catastrophic floors that turn a near-miss into a
// hard fail instead of manual review.
type HardFailPolicy struct {
	// FaceMatchingFloor and LivenessFloor fail the verification outright when
	// the respective score lands below them.
	FaceMatchingFloor float64
	LivenessFloor     float64
	// WideMissMargin fails the verification when face matching and liveness
	// both miss their thresholds by more than this margin.
	WideMissMargin float64
}

func DefaultHardFailPolicy() HardFailPolicy {
	return HardFailPolicy{
		FaceMatchingFloor: 0.40,
		LivenessFloor:     0.40,
		WideMissMargin:    0.25,
	}
}

// Manager drives verification contexts through their stages. Provider calls
// run outside the per-id lock; only the merge of their outputs happens inside
// Store.Update.
type Manager struct {
	store      Store
	chain      *extraction.Chain
	backDecode extraction.Strategy
	scorer     *crossval.Scorer
	engine     *decision.Engine
	faces      facematch.Provider
	documents  docstore.Store
	logger     *slog.Logger

	notifier        Notifier
	auditor         *audit.Publisher
	metrics         *Metrics
	policy          HardFailPolicy
	providerTimeout time.Duration
	now             func() time.Time
}

// ManagerOption configures optional collaborators.
type ManagerOption func(*Manager)

func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

func WithAuditor(p *audit.Publisher) ManagerOption {
	return func(m *Manager) { m.auditor = p }
}

func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

func WithHardFailPolicy(policy HardFailPolicy) ManagerOption {
	return func(m *Manager) { m.policy = policy }
}

func WithProviderTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) { m.providerTimeout = timeout }
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

func NewManager(
	store Store,
	chain *extraction.Chain,
	backDecode extraction.Strategy,
	scorer *crossval.Scorer,
	engine *decision.Engine,
	faces facematch.Provider,
	documents docstore.Store,
	logger *slog.Logger,
	opts ...ManagerOption,
) *Manager {
	m := &Manager{
		store:           store,
		chain:           chain,
		backDecode:      backDecode,
		scorer:          scorer,
		engine:          engine,
		faces:           faces,
		documents:       documents,
		logger:          logger,
		policy:          DefaultHardFailPolicy(),
		providerTimeout: 30 * time.Second,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates a pending verification.
func (m *Manager) Start(ctx context.Context, userID domain.UserID, orgID *domain.OrganizationID, sandbox bool) (*VerificationContext, error) {
	vc := NewContext(userID, orgID, sandbox, m.now())
	if err := m.store.Create(ctx, vc); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, derrors.New(derrors.CodeConflict, "verification already exists")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "create verification")
	}

	m.metrics.IncStarted()
	m.emit(ctx, vc, audit.ActionVerificationStarted, "")
	m.logger.InfoContext(ctx, "verification started",
		"verification_id", vc.ID.String(),
		"sandbox", vc.Sandbox)
	return vc, nil
}

// AttachDocument ingests the front document image: stores it, runs the
// extraction chain and folds OCR confidence and document quality into the
// score map. The chain is degrade-only; extraction problems lower scores but
// never stop the machine.
func (m *Manager) AttachDocument(ctx context.Context, id domain.VerificationID, docType extraction.DocumentType, image []byte) (*VerificationContext, error) {
	start := m.now()
	if !docType.Valid() {
		return nil, derrors.Newf(derrors.CodeInvalidInput, "unknown document type %q", docType)
	}
	if len(image) == 0 {
		return nil, derrors.New(derrors.CodeInvalidInput, "document image is required")
	}

	path, err := m.documents.Store(ctx, image)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "store document image")
	}

	_, err = m.update(ctx, id, func(vc *VerificationContext) error {
		if err := vc.Transition(StatusDocumentUploaded); err != nil {
			return err
		}
		vc.Stages.DocumentUploaded = true
		vc.DocumentType = docType
		vc.FrontImagePath = path
		return vc.Transition(StatusOCRProcessing)
	})
	if err != nil {
		return nil, err
	}

	pctx, cancel := m.providerCtx(ctx)
	result := m.chain.Extract(pctx, image, docType)
	cancel()

	updated, err := m.update(ctx, id, func(vc *VerificationContext) error {
		vc.Stages.OCR = true
		vc.FrontFields = result.ParsedFields
		vc.SetScore(decision.MetricDocumentQuality, qualityScore(result))
		vc.SetScore("ocrConfidence", result.Confidence)
		if result.Status == extraction.ValidationInvalid {
			vc.RecordError(ErrorRecord{
				Kind:       FailureExtraction,
				Stage:      "ocr",
				Message:    "document text extraction produced no usable fields",
				Detail:     fmt.Sprintf("method=%s confidence=%.2f", result.Method, result.Confidence),
				UserFacing: true,
				At:         m.now(),
			})
			m.metrics.IncStageError(FailureExtraction)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.ObserveStage("document", start)
	m.emit(ctx, updated, audit.ActionDocumentAttached, result.Method)
	return updated, nil
}

// AttachBackOfID ingests the back side: decodes its structured data, scores
// photo consistency between the faces and runs cross-validation. The back
// branch is optional; callers that never invoke it go straight to live
// capture.
func (m *Manager) AttachBackOfID(ctx context.Context, id domain.VerificationID, image []byte) (*VerificationContext, error) {
	start := m.now()
	if len(image) == 0 {
		return nil, derrors.New(derrors.CodeInvalidInput, "back of id image is required")
	}

	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Stages.OCR {
		return nil, derrors.New(derrors.CodeConflict, "front document has not been processed yet")
	}
	if current.Status.Resolved() {
		return nil, derrors.New(derrors.CodeConflict, "verification is already resolved")
	}

	path, err := m.documents.Store(ctx, image)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "store back of id image")
	}

	if _, err := m.update(ctx, id, func(vc *VerificationContext) error {
		if err := vc.Transition(StatusBackOfIDProcessing); err != nil {
			return err
		}
		vc.BackImagePath = path
		return nil
	}); err != nil {
		return nil, err
	}

	backResult, photoConsistency, stageErrors := m.analyzeBackOfID(ctx, current.FrontImagePath, image, current.DocumentType)

	front := &extraction.Result{
		Confidence:   scoreOrZero(current, "ocrConfidence"),
		ParsedFields: current.FrontFields,
		Status:       extraction.ValidationPartial,
	}
	validation := m.scorer.Score(front, backResult, photoConsistency)

	updated, err := m.update(ctx, id, func(vc *VerificationContext) error {
		vc.Stages.BackOfID = true
		if backResult != nil {
			vc.BackFields = backResult.ParsedFields
		}
		if err := vc.Transition(StatusCrossValidation); err != nil {
			return err
		}
		if photoConsistency != nil {
			vc.SetScore("photoConsistency", *photoConsistency)
		}
		vc.SetScore(decision.MetricCrossValidation, validation.MatchScore)
		vc.Stages.CrossValidation = true

		for _, record := range stageErrors {
			vc.RecordError(record)
			m.metrics.IncStageError(record.Kind)
		}
		for _, discrepancy := range validation.Discrepancies {
			vc.RecordError(ErrorRecord{
				Kind:       FailureValidation,
				Stage:      "cross_validation",
				Message:    discrepancy,
				UserFacing: true,
				At:         m.now(),
			})
			m.metrics.IncStageError(FailureValidation)
		}
		if validation.RequiresManualReview {
			vc.RequiresManualReview = true
			vc.Reason = validation.ReviewReason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.ObserveStage("back_of_id", start)
	m.emit(ctx, updated, audit.ActionBackOfIDAttached, string(validation.ExtractionQuality))
	return updated, nil
}

// AttachLiveCapture ingests the selfie, gathers face-matching and liveness
// scores in parallel and resolves the verification.
func (m *Manager) AttachLiveCapture(ctx context.Context, id domain.VerificationID, selfie []byte, challenge string) (*VerificationContext, error) {
	start := m.now()
	if len(selfie) == 0 {
		return nil, derrors.New(derrors.CodeInvalidInput, "live capture image is required")
	}

	current, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Stages.OCR {
		return nil, derrors.New(derrors.CodeConflict, "front document has not been processed yet")
	}
	if current.Status.Resolved() {
		return nil, derrors.New(derrors.CodeConflict, "verification is already resolved")
	}

	if _, err := m.update(ctx, id, func(vc *VerificationContext) error {
		return vc.Transition(StatusLiveCaptureProcessing)
	}); err != nil {
		return nil, err
	}

	faceScore, livenessScore, stageErrors := m.analyzeLiveCapture(ctx, current.FrontImagePath, selfie, challenge)

	updated, err := m.update(ctx, id, func(vc *VerificationContext) error {
		vc.Stages.LiveCapture = true
		if faceScore != nil {
			vc.Stages.FaceMatching = true
			vc.SetScore(decision.MetricFaceMatching, *faceScore)
		}
		if livenessScore != nil {
			vc.SetScore(decision.MetricLiveness, *livenessScore)
		}
		for _, record := range stageErrors {
			vc.RecordError(record)
			m.metrics.IncStageError(record.Kind)
		}
		m.resolve(ctx, vc, len(stageErrors) > 0)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.ObserveStage("live_capture", start)
	m.metrics.IncResolved(updated.Status)
	m.emit(ctx, updated, audit.ActionVerificationResolved, updated.Reason)
	if m.notifier != nil {
		m.notifier.VerificationResolved(ctx, updated)
	}
	return updated, nil
}

// Get returns a snapshot of one verification.
func (m *Manager) Get(ctx context.Context, id domain.VerificationID) (*VerificationContext, error) {
	vc, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.New(derrors.CodeNotFound, "verification not found")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "get verification")
	}
	return vc, nil
}

// History lists a user's verifications.
func (m *Manager) History(ctx context.Context, userID domain.UserID) ([]*VerificationContext, error) {
	contexts, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "list verifications")
	}
	return contexts, nil
}

// errSweepSkip aborts an Update without treating it as a failure.
var errSweepSkip = errors.New("sweep: context no longer eligible")

// ResolveStuck force-routes contexts idle longer than olderThan to manual
// review. It re-checks eligibility inside the per-id lock, so repeated runs
// are no-ops for already-resolved contexts.
func (m *Manager) ResolveStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.now().Add(-olderThan)
	ids, err := m.store.ListStale(ctx, cutoff)
	if err != nil {
		return 0, derrors.Wrap(err, derrors.CodeInternal, "list stale verifications")
	}

	resolved := 0
	for _, id := range ids {
		updated, err := m.store.Update(ctx, id, func(vc *VerificationContext) error {
			if vc.Status.Resolved() || !vc.UpdatedAt.Before(cutoff) {
				return errSweepSkip
			}
			vc.RecordError(ErrorRecord{
				Kind:       FailureTechnical,
				Stage:      "sweep",
				Message:    "verification timed out waiting for the next stage",
				UserFacing: true,
				At:         m.now(),
			})
			vc.Reason = ReasonStuckTimeout
			return vc.Transition(StatusManualReview)
		})
		if errors.Is(err, errSweepSkip) {
			continue
		}
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to resolve stuck verification",
				"verification_id", id.String(),
				"error", err)
			continue
		}
		resolved++
		m.metrics.IncStuckResolved()
		m.metrics.IncResolved(StatusManualReview)
		m.emit(ctx, updated, audit.ActionStuckSwept, ReasonStuckTimeout)
	}
	return resolved, nil
}

// resolve classifies the finished verification. Hard failures dominate, then
// technical problems, then the threshold verdict.
func (m *Manager) resolve(ctx context.Context, vc *VerificationContext, hadTechnicalFailure bool) {
	outcome := m.engine.Evaluate(ctx, vc.Scores, vc.Sandbox, vc.OrganizationID)

	faceScore, faceOK := vc.Score(decision.MetricFaceMatching)
	livenessScore, livenessOK := vc.Score(decision.MetricLiveness)

	switch {
	case m.isHardFailure(vc, outcome.Thresholds):
		vc.Reason = ReasonHardFailure
		vc.RecordError(ErrorRecord{
			Kind:       FailureFraudSignal,
			Stage:      "resolution",
			Message:    "biometric scores indicate a probable fraud attempt",
			Detail:     fmt.Sprintf("faceMatching=%.2f liveness=%.2f", faceScore, livenessScore),
			UserFacing: false,
			At:         m.now(),
		})
		m.metrics.IncStageError(FailureFraudSignal)
		_ = vc.Transition(StatusFailed)
	case hadTechnicalFailure || !faceOK || !livenessOK:
		vc.Reason = ReasonTechnicalFailure
		_ = vc.Transition(StatusManualReview)
	case outcome.OverallPass && !vc.RequiresManualReview:
		vc.Reason = ""
		_ = vc.Transition(StatusVerified)
	default:
		if vc.Reason == "" {
			vc.Reason = ReasonThresholdsNotMet
		}
		_ = vc.Transition(StatusManualReview)
	}

	if vc.Status.Terminal() {
		completed := m.now()
		vc.CompletedAt = &completed
	}
}

// isHardFailure applies the catastrophic floors. The check is monotonic in
// both scores: lowering either can only move the verdict toward failed.
func (m *Manager) isHardFailure(vc *VerificationContext, thresholds decision.ThresholdSet) bool {
	faceScore, faceOK := vc.Score(decision.MetricFaceMatching)
	livenessScore, livenessOK := vc.Score(decision.MetricLiveness)

	if faceOK && faceScore < m.policy.FaceMatchingFloor {
		return true
	}
	if livenessOK && livenessScore < m.policy.LivenessFloor {
		return true
	}
	if faceOK && livenessOK {
		faceBar := thresholds.Values[decision.MetricFaceMatching] - m.policy.WideMissMargin
		livenessBar := thresholds.Values[decision.MetricLiveness] - m.policy.WideMissMargin
		if faceScore < faceBar && livenessScore < livenessBar {
			return true
		}
	}
	return false
}

// analyzeBackOfID runs barcode decoding and photo-consistency comparison in
// parallel. Both are best effort; failures come back as classified records.
func (m *Manager) analyzeBackOfID(ctx context.Context, frontPath string, backImage []byte, docType extraction.DocumentType) (*extraction.Result, *float64, []ErrorRecord) {
	pctx, cancel := m.providerCtx(ctx)
	defer cancel()

	var (
		backResult       *extraction.Result
		photoConsistency *float64
		records          []ErrorRecord
	)

	g, gctx := errgroup.WithContext(pctx)
	var decodeErr, photoErr error

	g.Go(func() error {
		defer recoverToError("back of id decode", &decodeErr)
		if m.backDecode == nil || !m.backDecode.Available() {
			decodeErr = errors.New("no back of id decoder configured")
			return nil
		}
		result, err := m.backDecode.Extract(gctx, backImage, docType)
		if err != nil {
			decodeErr = err
			return nil
		}
		backResult = result
		return nil
	})
	g.Go(func() error {
		defer recoverToError("photo consistency", &photoErr)
		front, err := m.documents.Fetch(gctx, frontPath)
		if err != nil {
			photoErr = fmt.Errorf("fetch front image: %w", err)
			return nil
		}
		score, err := m.faces.Compare(gctx, front, backImage)
		if err != nil {
			photoErr = err
			return nil
		}
		photoConsistency = &score
		return nil
	})
	_ = g.Wait()

	if decodeErr != nil {
		records = append(records, ErrorRecord{
			Kind:       classifyProviderError(decodeErr, FailureExtraction),
			Stage:      "back_of_id",
			Message:    "back of id decoding failed",
			Detail:     decodeErr.Error(),
			UserFacing: false,
			At:         m.now(),
		})
	}
	if photoErr != nil {
		records = append(records, ErrorRecord{
			Kind:       classifyProviderError(photoErr, FailureExtraction),
			Stage:      "photo_consistency",
			Message:    "photo consistency comparison failed",
			Detail:     photoErr.Error(),
			UserFacing: false,
			At:         m.now(),
		})
	}
	return backResult, photoConsistency, records
}

// analyzeLiveCapture gathers the biometric scores in parallel. A panicking or
// failing provider yields a technical record instead of taking the request
// down.
func (m *Manager) analyzeLiveCapture(ctx context.Context, frontPath string, selfie []byte, challenge string) (face, liveness *float64, records []ErrorRecord) {
	pctx, cancel := m.providerCtx(ctx)
	defer cancel()

	var faceErr, livenessErr error
	g, gctx := errgroup.WithContext(pctx)

	g.Go(func() error {
		defer recoverToError("face comparison", &faceErr)
		front, err := m.documents.Fetch(gctx, frontPath)
		if err != nil {
			faceErr = fmt.Errorf("fetch front image: %w", err)
			return nil
		}
		score, err := m.faces.Compare(gctx, front, selfie)
		if err != nil {
			faceErr = err
			return nil
		}
		face = &score
		return nil
	})
	g.Go(func() error {
		defer recoverToError("liveness check", &livenessErr)
		score, err := m.faces.Liveness(gctx, selfie, challenge)
		if err != nil {
			livenessErr = err
			return nil
		}
		liveness = &score
		return nil
	})
	_ = g.Wait()

	if faceErr != nil {
		records = append(records, ErrorRecord{
			Kind:       classifyProviderError(faceErr, FailureTechnical),
			Stage:      "face_matching",
			Message:    "face comparison failed",
			Detail:     faceErr.Error(),
			UserFacing: false,
			At:         m.now(),
		})
	}
	if livenessErr != nil {
		records = append(records, ErrorRecord{
			Kind:       classifyProviderError(livenessErr, FailureTechnical),
			Stage:      "liveness",
			Message:    "liveness check failed",
			Detail:     livenessErr.Error(),
			UserFacing: false,
			At:         m.now(),
		})
	}
	return face, liveness, records
}

// update wraps Store.Update and translates sentinels at the boundary.
func (m *Manager) update(ctx context.Context, id domain.VerificationID, fn func(*VerificationContext) error) (*VerificationContext, error) {
	vc, err := m.store.Update(ctx, id, fn)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, derrors.New(derrors.CodeNotFound, "verification not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, derrors.New(derrors.CodeConflict, "verification cannot accept this stage in its current state")
		case derrors.Is(err, derrors.CodeConflict) || derrors.Is(err, derrors.CodeInvalidInput):
			return nil, err
		default:
			return nil, derrors.Wrap(err, derrors.CodeInternal, "update verification")
		}
	}
	return vc, nil
}

func (m *Manager) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.providerTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.providerTimeout)
}

func (m *Manager) emit(ctx context.Context, vc *VerificationContext, action, reason string) {
	if m.auditor == nil {
		return
	}
	m.auditor.Emit(audit.Event{
		VerificationID: vc.ID,
		UserID:         vc.UserID,
		Action:         action,
		Reason:         reason,
		RequestID:      middleware.GetRequestID(ctx),
	})
}

// qualityScore folds the extraction outcome into the document quality metric:
// recognizer confidence scaled by how complete the parse was.
func qualityScore(result *extraction.Result) float64 {
	multiplier := 0.25
	switch result.Status {
	case extraction.ValidationValid:
		multiplier = 1.0
	case extraction.ValidationPartial:
		multiplier = 0.75
	}
	return result.Confidence * multiplier
}

func classifyProviderError(err error, fallback FailureKind) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sentinel.ErrUnavailable) {
		return FailureTechnical
	}
	return fallback
}

func recoverToError(operation string, dst *error) {
	if r := recover(); r != nil {
		*dst = fmt.Errorf("%s panicked: %v", operation, r)
	}
}

func scoreOrZero(vc *VerificationContext, metric string) float64 {
	score, _ := vc.Score(metric)
	return score
}
