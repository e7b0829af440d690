package crossval

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/doobee46/idswyft-sub005/internal/extraction"
)

func testScorer() *Scorer {
	return NewScorer(DefaultPolicy(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func extractionResult(confidence float64, status extraction.ValidationStatus, fields map[extraction.Field]string) *extraction.Result {
	return &extraction.Result{
		Method:       "test",
		Confidence:   confidence,
		Status:       status,
		ParsedFields: fields,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestScore_MatchingFacesAreConsistent(t *testing.T) {
	front := extractionResult(0.9, extraction.ValidationValid, map[extraction.Field]string{
		extraction.FieldName:           "jane  doe",
		extraction.FieldDocumentNumber: "D-123 456",
		extraction.FieldExpirationDate: "01/15/2030",
	})
	back := extractionResult(0.95, extraction.ValidationValid, map[extraction.Field]string{
		extraction.FieldName:           "JANE DOE",
		extraction.FieldDocumentNumber: "123456",
		extraction.FieldExpirationDate: "2030-01-15",
	})

	result := testScorer().Score(front, back, nil)

	assert.Equal(t, 3, result.FieldsCompared)
	assert.Equal(t, 3, result.FieldsMatched)
	assert.InDelta(t, 1.0, result.MatchScore, 1e-9)
	assert.True(t, result.Consistent)
	assert.False(t, result.RequiresManualReview)
	assert.Empty(t, result.Discrepancies)
	assert.Equal(t, QualityHigh, result.ExtractionQuality)
}

func TestScore_MismatchProducesDiscrepancy(t *testing.T) {
	front := extractionResult(0.9, extraction.ValidationValid, map[extraction.Field]string{
		extraction.FieldName:           "Jane Doe",
		extraction.FieldDocumentNumber: "111111",
	})
	back := extractionResult(0.9, extraction.ValidationValid, map[extraction.Field]string{
		extraction.FieldName:           "Jane Doe",
		extraction.FieldDocumentNumber: "999999",
	})

	result := testScorer().Score(front, back, nil)

	assert.Equal(t, 2, result.FieldsCompared)
	assert.Equal(t, 1, result.FieldsMatched)
	assert.InDelta(t, 0.5, result.MatchScore, 1e-9)
	assert.Len(t, result.Discrepancies, 1)
	assert.Contains(t, result.Discrepancies[0], "document_number")
	assert.False(t, result.Consistent)
}

func TestScore_FieldsMissingOnOneSideAreSkipped(t *testing.T) {
	front := extractionResult(0.9, extraction.ValidationValid, map[extraction.Field]string{
		extraction.FieldName:           "Jane Doe",
		extraction.FieldExpirationDate: "2030-01-15",
	})
	back := extractionResult(0.9, extraction.ValidationPartial, map[extraction.Field]string{
		extraction.FieldName: "Jane Doe",
	})

	result := testScorer().Score(front, back, nil)

	assert.Equal(t, 1, result.FieldsCompared)
	assert.True(t, result.Consistent, "a single matching field with nothing else comparable is consistent")
}

func TestScore_PhotoConsistencySkipsReviewWithoutBackData(t *testing.T) {
	front := extractionResult(0.9, extraction.ValidationValid, map[extraction.Field]string{
		extraction.FieldName: "Jane Doe",
	})

	result := testScorer().Score(front, nil, floatPtr(0.9))

	assert.False(t, result.RequiresManualReview)
	assert.Greater(t, result.MatchScore, DefaultPolicy().MatchThreshold)
	assert.InDelta(t, DefaultPolicy().PhotoConsistentScore, result.MatchScore, 1e-9)
	assert.True(t, result.Consistent)
	assert.Equal(t, QualityFailed, result.ExtractionQuality)
}

func TestScore_FrontFieldsAloneLandJustAboveThreshold(t *testing.T) {
	front := extractionResult(0.7, extraction.ValidationPartial, map[extraction.Field]string{
		extraction.FieldDocumentNumber: "X99",
	})

	result := testScorer().Score(front, nil, floatPtr(0.4))

	assert.InDelta(t, DefaultPolicy().PartialDataScore, result.MatchScore, 1e-9)
	assert.False(t, result.RequiresManualReview)
	assert.True(t, result.Consistent)
}

func TestScore_NothingUsableForcesManualReview(t *testing.T) {
	result := testScorer().Score(nil, nil, nil)

	assert.InDelta(t, DefaultPolicy().NoDataScore, result.MatchScore, 1e-9)
	assert.True(t, result.RequiresManualReview)
	assert.Equal(t, ReasonNoComparableData, result.ReviewReason)
	assert.False(t, result.Consistent)
}

func TestScore_EmptyFrontFieldsAreNotUsable(t *testing.T) {
	front := extractionResult(0.2, extraction.ValidationInvalid, map[extraction.Field]string{
		extraction.FieldName: "   ",
	})

	result := testScorer().Score(front, nil, nil)

	assert.True(t, result.RequiresManualReview)
	assert.InDelta(t, DefaultPolicy().NoDataScore, result.MatchScore, 1e-9)
}

func TestScore_DateLayoutsNormalizeToSameDay(t *testing.T) {
	front := extractionResult(0.9, extraction.ValidationValid, map[extraction.Field]string{
		extraction.FieldExpirationDate: "15 Jan 2030",
	})
	back := extractionResult(0.9, extraction.ValidationValid, map[extraction.Field]string{
		extraction.FieldExpirationDate: "20300115",
	})

	result := testScorer().Score(front, back, nil)

	assert.Equal(t, 1, result.FieldsMatched)
}

func TestQualityOf_GradesBackSide(t *testing.T) {
	fields := map[extraction.Field]string{extraction.FieldName: "x"}

	assert.Equal(t, QualityFailed, qualityOf(nil))
	assert.Equal(t, QualityFailed, qualityOf(extractionResult(0.9, extraction.ValidationInvalid, fields)))
	assert.Equal(t, QualityFailed, qualityOf(extractionResult(0.9, extraction.ValidationValid, nil)))
	assert.Equal(t, QualityHigh, qualityOf(extractionResult(0.95, extraction.ValidationValid, fields)))
	assert.Equal(t, QualityMedium, qualityOf(extractionResult(0.6, extraction.ValidationPartial, fields)))
	assert.Equal(t, QualityLow, qualityOf(extractionResult(0.3, extraction.ValidationPartial, fields)))
}
