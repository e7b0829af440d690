package extraction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks extraction chain behavior per strategy.
type Metrics struct {
	StrategyAttempts *prometheus.CounterVec
	DegradedResults  prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		StrategyAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idswyft_extraction_strategy_attempts_total",
			Help: "Extraction strategy attempts by strategy name and outcome",
		}, []string{"strategy", "outcome"}),
		DegradedResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idswyft_extraction_degraded_results_total",
			Help: "Extractions where every strategy failed and a degraded result was returned",
		}),
	}
}

func (m *Metrics) ObserveStrategy(strategy string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) ObserveDegraded() {
	m.DegradedResults.Inc()
}
