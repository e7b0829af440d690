package verification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification state machine.
type Metrics struct {
	Started       prometheus.Counter
	Resolved      *prometheus.CounterVec
	StageErrors   *prometheus.CounterVec
	StuckResolved prometheus.Counter
	StageDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance with all verification metrics
// registered on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Started: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idswyft_verifications_started_total",
			Help: "Total verifications started",
		}),
		Resolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idswyft_verifications_resolved_total",
			Help: "Verifications reaching a resolution, by final status",
		}, []string{"status"}),
		StageErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idswyft_verification_stage_errors_total",
			Help: "Classified stage failures, by kind",
		}, []string{"kind"}),
		StuckResolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idswyft_verifications_stuck_resolved_total",
			Help: "Stuck verifications force-routed to manual review by the sweep",
		}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idswyft_verification_stage_duration_seconds",
			Help:    "Duration of stage processing",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
	}
}

// ObserveStage records the duration of one stage. Call with time.Now() at the
// start of the stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncStarted() {
	if m == nil {
		return
	}
	m.Started.Inc()
}

func (m *Metrics) IncResolved(status Status) {
	if m == nil {
		return
	}
	m.Resolved.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) IncStageError(kind FailureKind) {
	if m == nil {
		return
	}
	m.StageErrors.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) IncStuckResolved() {
	if m == nil {
		return
	}
	m.StuckResolved.Inc()
}
