package notification

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for webhook delivery.
type Metrics struct {
	Enqueued  prometheus.Counter
	Attempts  *prometheus.CounterVec
	Resolved  *prometheus.CounterVec
	Duration  prometheus.Histogram
	QueueFull prometheus.Counter
}

// NewMetrics creates a Metrics instance with all webhook metrics registered on
// the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Enqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idswyft_webhook_deliveries_enqueued_total",
			Help: "Deliveries created for dispatch",
		}),
		Attempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idswyft_webhook_attempts_total",
			Help: "Delivery POST attempts, by outcome",
		}, []string{"outcome"}),
		Resolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idswyft_webhook_deliveries_resolved_total",
			Help: "Deliveries reaching a final status",
		}, []string{"status"}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idswyft_webhook_attempt_duration_seconds",
			Help:    "Duration of delivery POST attempts",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		QueueFull: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idswyft_webhook_queue_full_total",
			Help: "Deliveries left to the sweep because the queue was full",
		}),
	}
}

func (m *Metrics) IncEnqueued() {
	if m == nil {
		return
	}
	m.Enqueued.Inc()
}

func (m *Metrics) IncAttempt(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(outcome).Inc()
	m.Duration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncResolved(status DeliveryStatus) {
	if m == nil {
		return
	}
	m.Resolved.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) IncQueueFull() {
	if m == nil {
		return
	}
	m.QueueFull.Inc()
}
