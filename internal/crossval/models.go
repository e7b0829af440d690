package crossval

// ExtractionQuality grades how usable the back-side structured data was.
type ExtractionQuality string

const (
	QualityHigh   ExtractionQuality = "high"
	QualityMedium ExtractionQuality = "medium"
	QualityLow    ExtractionQuality = "low"
	QualityFailed ExtractionQuality = "failed"
)

// Machine-readable manual-review reasons carried on Result.ReviewReason.
const (
	ReasonNoComparableData = "no_comparable_data"
)

// Result is the outcome of comparing the two document faces. It is derived
// per call and never persisted standalone; the caller folds MatchScore into
// the verification score map.
type Result struct {
	MatchScore           float64
	Consistent           bool
	RequiresManualReview bool
	ReviewReason         string
	Discrepancies        []string
	ExtractionQuality    ExtractionQuality
	FieldsCompared       int
	FieldsMatched        int
}

// Policy holds the scoring constants. The fallback ladder values are policy,
// not law: deployments tune them through config rather than code changes.
type Policy struct {
	// MatchThreshold is the minimum MatchScore for the faces to count as
	// consistent when comparable fields exist.
	MatchThreshold float64

	// PhotoConsistencyBar gates the first rung of the fallback ladder.
	PhotoConsistencyBar float64

	// PhotoConsistentScore is assigned when back-side data is absent but the
	// photos on both faces agree.
	PhotoConsistentScore float64

	// PartialDataScore is assigned when back-side data is absent but the
	// front side produced at least one usable identity field. It sits just
	// above MatchThreshold so these verifications are not forced into review.
	PartialDataScore float64

	// NoDataScore is assigned when neither side produced anything usable.
	// It sits below MatchThreshold and forces manual review.
	NoDataScore float64
}

// DefaultPolicy returns the production constants.
func DefaultPolicy() Policy {
	return Policy{
		MatchThreshold:       0.70,
		PhotoConsistencyBar:  0.85,
		PhotoConsistentScore: 0.95,
		PartialDataScore:     0.72,
		NoDataScore:          0.30,
	}
}
