package verification

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/doobee46/idswyft-sub005/internal/crossval"
	"github.com/doobee46/idswyft-sub005/internal/decision"
	"github.com/doobee46/idswyft-sub005/internal/extraction"
	"github.com/doobee46/idswyft-sub005/internal/platform/config"
	"github.com/doobee46/idswyft-sub005/internal/providers/docstore"
	"github.com/doobee46/idswyft-sub005/internal/providers/facematch/mocks"
	"github.com/doobee46/idswyft-sub005/pkg/domain"
	derrors "github.com/doobee46/idswyft-sub005/pkg/domain-errors"
)

// scriptedStrategy returns a canned extraction result.
type scriptedStrategy struct {
	name   string
	result *extraction.Result
	err    error
}

func (s *scriptedStrategy) Name() string    { return s.name }
func (s *scriptedStrategy) Available() bool { return true }

func (s *scriptedStrategy) Extract(ctx context.Context, image []byte, docType extraction.DocumentType) (*extraction.Result, error) {
	return s.result, s.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	resolved []*VerificationContext
}

func (n *recordingNotifier) VerificationResolved(ctx context.Context, vc *VerificationContext) {
	n.mu.Lock()
	n.resolved = append(n.resolved, vc)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.resolved)
}

func frontResult() *extraction.Result {
	return &extraction.Result{
		Method:     "pdf417_barcode",
		Confidence: 0.9,
		Status:     extraction.ValidationValid,
		ParsedFields: map[extraction.Field]string{
			extraction.FieldName:           "JANE DOE",
			extraction.FieldDocumentNumber: "D12345678",
			extraction.FieldDateOfBirth:    "1990-03-15",
			extraction.FieldExpirationDate: "2030-01-15",
		},
	}
}

func matchingBackResult() *extraction.Result {
	return &extraction.Result{
		Method:     "pdf417_barcode",
		Confidence: 0.95,
		Status:     extraction.ValidationValid,
		ParsedFields: map[extraction.Field]string{
			extraction.FieldName:           "Jane Doe",
			extraction.FieldDocumentNumber: "D12345678",
			extraction.FieldExpirationDate: "2030-01-15",
		},
	}
}

type managerFixture struct {
	manager  *Manager
	store    *MemoryStore
	faces    *mocks.MockProvider
	notifier *recordingNotifier
}

type fixtureOptions struct {
	front      *scriptedStrategy
	backDecode extraction.Strategy
}

func newFixture(t *testing.T, opts fixtureOptions) *managerFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	front := opts.front
	if front == nil {
		front = &scriptedStrategy{name: "front", result: frontResult()}
	}
	chain := extraction.NewChain([]extraction.Strategy{front}, logger)

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	faces := mocks.NewMockProvider(ctrl)

	engine := decision.NewEngine(config.Decision{
		Production: config.Thresholds{
			FaceMatching:    0.85,
			Liveness:        0.75,
			CrossValidation: 0.70,
			DocumentQuality: 0.60,
		},
		Sandbox: config.Thresholds{
			FaceMatching:    0.60,
			Liveness:        0.50,
			CrossValidation: 0.50,
			DocumentQuality: 0.40,
		},
		OverrideCacheTTL: time.Minute,
	}, nil, logger)

	store := NewMemoryStore()
	notifier := &recordingNotifier{}
	manager := NewManager(
		store,
		chain,
		opts.backDecode,
		crossval.NewScorer(crossval.DefaultPolicy(), logger),
		engine,
		faces,
		docstore.NewMemory(),
		logger,
		WithNotifier(notifier),
	)
	return &managerFixture{manager: manager, store: store, faces: faces, notifier: notifier}
}

func (f *managerFixture) start(t *testing.T, sandbox bool) *VerificationContext {
	t.Helper()
	userID, err := domain.ParseUserID("a6736e40-93f0-4f27-a766-34d2b0a4bd1a")
	require.NoError(t, err)
	vc, err := f.manager.Start(context.Background(), userID, nil, sandbox)
	require.NoError(t, err)
	return vc
}

func (f *managerFixture) attachDocument(t *testing.T, id domain.VerificationID) *VerificationContext {
	t.Helper()
	vc, err := f.manager.AttachDocument(context.Background(), id, extraction.DocumentDriversLicense, []byte("front-image"))
	require.NoError(t, err)
	return vc
}

func TestStart_CreatesPendingContext(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	vc := f.start(t, false)

	assert.Equal(t, StatusPending, vc.Status)
	assert.False(t, vc.Sandbox)
	assert.Empty(t, vc.Scores)
}

func TestAttachDocument_IngestsExtractionScores(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)

	updated := f.attachDocument(t, vc.ID)

	assert.Equal(t, StatusOCRProcessing, updated.Status)
	assert.True(t, updated.Stages.DocumentUploaded)
	assert.True(t, updated.Stages.OCR)
	assert.Equal(t, "JANE DOE", updated.FrontFields[extraction.FieldName])

	ocr, _ := updated.Score("ocrConfidence")
	quality, _ := updated.Score(decision.MetricDocumentQuality)
	assert.InDelta(t, 0.9, ocr, 1e-9)
	assert.InDelta(t, 0.9, quality, 1e-9, "valid extraction keeps full confidence as quality")
	assert.Empty(t, updated.Errors)
}

func TestAttachDocument_UnknownTypeRejected(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)

	_, err := f.manager.AttachDocument(context.Background(), vc.ID, extraction.DocumentType("tattoo"), []byte("img"))
	require.Error(t, err)
	assert.True(t, derrors.Is(err, derrors.CodeInvalidInput))
}

func TestAttachDocument_TwiceConflicts(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)
	f.attachDocument(t, vc.ID)

	_, err := f.manager.AttachDocument(context.Background(), vc.ID, extraction.DocumentDriversLicense, []byte("img"))
	require.Error(t, err)
	assert.True(t, derrors.Is(err, derrors.CodeConflict))
}

func TestAttachDocument_DegradedExtractionRecordsErrorAndContinues(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		front: &scriptedStrategy{name: "front", err: errors.New("lens cap on")},
	})
	vc := f.start(t, false)

	updated := f.attachDocument(t, vc.ID)

	assert.Equal(t, StatusOCRProcessing, updated.Status, "extraction failure must not stop the machine")
	ocr, _ := updated.Score("ocrConfidence")
	assert.LessOrEqual(t, ocr, 0.1)
	require.Len(t, updated.Errors, 1)
	assert.Equal(t, FailureExtraction, updated.Errors[0].Kind)
}

func TestAttachLiveCapture_BeforeDocumentConflicts(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)

	_, err := f.manager.AttachLiveCapture(context.Background(), vc.ID, []byte("selfie"), "")
	require.Error(t, err)
	assert.True(t, derrors.Is(err, derrors.CodeConflict))
}

func TestFullFlow_Verified(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)
	f.attachDocument(t, vc.ID)

	f.faces.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.92, nil)
	f.faces.EXPECT().Liveness(gomock.Any(), gomock.Any(), "blink").Return(0.85, nil)

	resolved, err := f.manager.AttachLiveCapture(context.Background(), vc.ID, []byte("selfie"), "blink")
	require.NoError(t, err)

	assert.Equal(t, StatusVerified, resolved.Status)
	assert.Empty(t, resolved.Reason)
	assert.True(t, resolved.Stages.LiveCapture)
	assert.True(t, resolved.Stages.FaceMatching)
	require.NotNil(t, resolved.CompletedAt)
	assert.Equal(t, 1, f.notifier.count())
}

func TestFullFlow_WithBackOfIDCrossValidation(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		backDecode: &scriptedStrategy{name: "back", result: matchingBackResult()},
	})
	vc := f.start(t, false)
	f.attachDocument(t, vc.ID)

	f.faces.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.9, nil).Times(2)
	f.faces.EXPECT().Liveness(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.85, nil)

	afterBack, err := f.manager.AttachBackOfID(context.Background(), vc.ID, []byte("back-image"))
	require.NoError(t, err)
	assert.Equal(t, StatusCrossValidation, afterBack.Status)
	assert.True(t, afterBack.Stages.BackOfID)
	assert.True(t, afterBack.Stages.CrossValidation)

	crossScore, _ := afterBack.Score(decision.MetricCrossValidation)
	assert.InDelta(t, 1.0, crossScore, 1e-9, "all three comparable fields match")
	photo, present := afterBack.Score("photoConsistency")
	assert.True(t, present)
	assert.InDelta(t, 0.9, photo, 1e-9)

	resolved, err := f.manager.AttachLiveCapture(context.Background(), vc.ID, []byte("selfie"), "")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, resolved.Status)
}

func TestAttachBackOfID_AllAnalysisFailingStillAdvances(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)
	f.attachDocument(t, vc.ID)

	f.faces.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.0, errors.New("provider down"))

	afterBack, err := f.manager.AttachBackOfID(context.Background(), vc.ID, []byte("back-image"))
	require.NoError(t, err)

	crossScore, _ := afterBack.Score(decision.MetricCrossValidation)
	assert.InDelta(t, crossval.DefaultPolicy().PartialDataScore, crossScore, 1e-9,
		"front fields alone land on the partial-data rung")
	assert.False(t, afterBack.RequiresManualReview)
	assert.NotEmpty(t, afterBack.Errors)
}

func TestLiveCapture_CatastrophicFaceScoreFails(t *testing.T) {
	for _, faceScore := range []float64{0.39, 0.2, 0.05} {
		f := newFixture(t, fixtureOptions{})
		vc := f.start(t, false)
		f.attachDocument(t, vc.ID)

		f.faces.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(faceScore, nil)
		f.faces.EXPECT().Liveness(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.9, nil)

		resolved, err := f.manager.AttachLiveCapture(context.Background(), vc.ID, []byte("selfie"), "")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, resolved.Status, "face score %.2f must hard-fail", faceScore)
		assert.Equal(t, ReasonHardFailure, resolved.Reason)

		var sawFraudSignal bool
		for _, record := range resolved.Errors {
			if record.Kind == FailureFraudSignal {
				sawFraudSignal = true
			}
		}
		assert.True(t, sawFraudSignal)
	}
}

func TestLiveCapture_WideMissOnBothMetricsFails(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)
	f.attachDocument(t, vc.ID)

	f.faces.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.55, nil)
	f.faces.EXPECT().Liveness(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.45, nil)

	resolved, err := f.manager.AttachLiveCapture(context.Background(), vc.ID, []byte("selfie"), "")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, resolved.Status)
}

func TestLiveCapture_NearMissGoesToManualReview(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)
	f.attachDocument(t, vc.ID)

	f.faces.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.70, nil)
	f.faces.EXPECT().Liveness(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.80, nil)

	resolved, err := f.manager.AttachLiveCapture(context.Background(), vc.ID, []byte("selfie"), "")
	require.NoError(t, err)
	assert.Equal(t, StatusManualReview, resolved.Status)
	assert.Equal(t, ReasonThresholdsNotMet, resolved.Reason)
	assert.Nil(t, resolved.CompletedAt, "manual review is not terminal")
}

func TestLiveCapture_ProviderErrorRoutesToManualReview(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)
	f.attachDocument(t, vc.ID)

	f.faces.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.0, errors.New("vision service 503"))
	f.faces.EXPECT().Liveness(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.9, nil)

	resolved, err := f.manager.AttachLiveCapture(context.Background(), vc.ID, []byte("selfie"), "")
	require.NoError(t, err)
	assert.Equal(t, StatusManualReview, resolved.Status)
	assert.Equal(t, ReasonTechnicalFailure, resolved.Reason)

	require.NotEmpty(t, resolved.Errors)
	assert.Equal(t, FailureTechnical, resolved.Errors[len(resolved.Errors)-1].Kind)
}

func TestSandbox_LenientThresholdsVerify(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, true)
	f.attachDocument(t, vc.ID)

	f.faces.EXPECT().Compare(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.65, nil)
	f.faces.EXPECT().Liveness(gomock.Any(), gomock.Any(), gomock.Any()).Return(0.55, nil)

	resolved, err := f.manager.AttachLiveCapture(context.Background(), vc.ID, []byte("selfie"), "")
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, resolved.Status)
}

func TestResolveStuck_RoutesToManualReviewIdempotently(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	vc := f.start(t, false)
	f.attachDocument(t, vc.ID)

	f.store.mu.Lock()
	f.store.contexts[vc.ID].UpdatedAt = time.Now().Add(-time.Hour)
	f.store.mu.Unlock()

	resolved, err := f.manager.ResolveStuck(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)

	swept, err := f.manager.Get(context.Background(), vc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusManualReview, swept.Status)
	assert.Equal(t, ReasonStuckTimeout, swept.Reason)
	errorsAfterFirst := len(swept.Errors)

	resolved, err = f.manager.ResolveStuck(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, resolved, "second sweep must be a no-op")

	again, err := f.manager.Get(context.Background(), vc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusManualReview, again.Status)
	assert.Len(t, again.Errors, errorsAfterFirst, "no duplicate sweep error entries")
}

func TestGet_UnknownVerificationNotFound(t *testing.T) {
	f := newFixture(t, fixtureOptions{})

	_, err := f.manager.Get(context.Background(), domain.NewVerificationID())
	require.Error(t, err)
	assert.True(t, derrors.Is(err, derrors.CodeNotFound))
}

func TestHistory_ListsUserVerifications(t *testing.T) {
	f := newFixture(t, fixtureOptions{})
	first := f.start(t, false)
	second := f.start(t, false)

	history, err := f.manager.History(context.Background(), first.UserID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	_ = second
}
