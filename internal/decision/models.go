// Package decision resolves score thresholds (environment defaults plus
// per-organization overrides) and evaluates verification score bags into
// pass/fail verdicts.
package decision

import (
	"github.com/doobee46/idswyft-sub005/internal/platform/config"
)

// Metric names keyed into verification score maps and threshold sets.
const (
	MetricFaceMatching    = "faceMatching"
	MetricLiveness        = "liveness"
	MetricCrossValidation = "crossValidation"
	MetricDocumentQuality = "quality"
)

// Threshold sources, reported on ThresholdSet for observability.
const (
	SourceProduction = "environment_production"
	SourceSandbox    = "environment_sandbox"
	SourceOverride   = "organization_override"
)

// ThresholdSet is a resolved bag of minimum passing scores.
type ThresholdSet struct {
	Source string
	Values map[string]float64
}

// Outcome is the verdict over one score bag. PerMetric holds only checks for
// metrics that were actually present; an absent metric never fails a check.
type Outcome struct {
	PerMetric   map[string]bool
	OverallPass bool
	Thresholds  ThresholdSet
}

func valuesFrom(t config.Thresholds) map[string]float64 {
	return map[string]float64{
		MetricFaceMatching:    t.FaceMatching,
		MetricLiveness:        t.Liveness,
		MetricCrossValidation: t.CrossValidation,
		MetricDocumentQuality: t.DocumentQuality,
	}
}
