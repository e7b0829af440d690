package crossval

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/doobee46/idswyft-sub005/internal/extraction"
)

// comparableFields are the identity fields checked across document faces, in
// report order.
var comparableFields = []extraction.Field{
	extraction.FieldName,
	extraction.FieldDocumentNumber,
	extraction.FieldExpirationDate,
}

// Scorer compares front-side extraction output against back-side structured
// data. When the back side is absent or unusable it applies the Policy
// fallback ladder instead of failing the verification outright.
type Scorer struct {
	policy Policy
	logger *slog.Logger
}

func NewScorer(policy Policy, logger *slog.Logger) *Scorer {
	return &Scorer{policy: policy, logger: logger}
}

// Score compares the two faces. front and back may each be nil; a nil
// photoConsistency means no photo comparison was performed.
func (s *Scorer) Score(front, back *extraction.Result, photoConsistency *float64) Result {
	result := Result{ExtractionQuality: qualityOf(back)}

	for _, field := range comparableFields {
		frontValue := normalize(field, fieldOf(front, field))
		backValue := normalize(field, fieldOf(back, field))
		if frontValue == "" || backValue == "" {
			continue
		}
		result.FieldsCompared++
		if frontValue == backValue {
			result.FieldsMatched++
			continue
		}
		result.Discrepancies = append(result.Discrepancies,
			fmt.Sprintf("%s does not match between document faces", field))
	}

	if result.FieldsCompared > 0 {
		result.MatchScore = float64(result.FieldsMatched) / float64(result.FieldsCompared)
	} else {
		s.applyFallback(front, photoConsistency, &result)
	}

	result.Consistent = result.MatchScore >= s.policy.MatchThreshold &&
		len(result.Discrepancies) == 0 &&
		!result.RequiresManualReview
	return result
}

// applyFallback handles the zero-comparable-fields case, the common one in
// practice since many documents carry no machine-readable back side.
func (s *Scorer) applyFallback(front *extraction.Result, photoConsistency *float64, result *Result) {
	switch {
	case photoConsistency != nil && *photoConsistency > s.policy.PhotoConsistencyBar:
		result.MatchScore = s.policy.PhotoConsistentScore
	case hasUsableField(front):
		result.MatchScore = s.policy.PartialDataScore
	default:
		result.MatchScore = s.policy.NoDataScore
		result.RequiresManualReview = true
		result.ReviewReason = ReasonNoComparableData
		s.logger.Warn("cross-validation has no usable data on either face",
			"review_reason", ReasonNoComparableData)
	}
}

func fieldOf(r *extraction.Result, field extraction.Field) string {
	if r == nil {
		return ""
	}
	return r.Field(field)
}

// hasUsableField reports whether the front side recovered any non-empty
// identity field at all.
func hasUsableField(front *extraction.Result) bool {
	if front == nil {
		return false
	}
	for _, value := range front.ParsedFields {
		if strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}

func qualityOf(back *extraction.Result) ExtractionQuality {
	switch {
	case back == nil, back.Status == extraction.ValidationInvalid, back.FieldCount() == 0:
		return QualityFailed
	case back.Confidence > 0.8 && back.Status == extraction.ValidationValid:
		return QualityHigh
	case back.Confidence > 0.5:
		return QualityMedium
	default:
		return QualityLow
	}
}

// normalize maps a raw field value into comparison form: names compare
// case- and whitespace-insensitively, numbers compare digits-only, dates
// compare by calendar day across the layouts seen in the wild.
func normalize(field extraction.Field, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	switch field {
	case extraction.FieldName, extraction.FieldFirstName, extraction.FieldLastName:
		return normalizeName(value)
	case extraction.FieldDocumentNumber:
		return digitsOnly(value)
	case extraction.FieldDateOfBirth, extraction.FieldExpirationDate:
		return normalizeDate(value)
	default:
		return strings.ToUpper(value)
	}
}

func normalizeName(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), " "))
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dateLayouts are the accepted inbound date shapes, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"01-02-2006",
	"20060102",
	"02 Jan 2006",
	"Jan 2, 2006",
}

func normalizeDate(value string) string {
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Format("2006-01-02")
		}
	}
	// Unparseable dates compare verbatim so two identically formatted
	// oddballs still match.
	return strings.ToUpper(value)
}
