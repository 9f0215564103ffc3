package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks check-in attempts, audit durability and token issuance.
type Metrics struct {
	CheckInAttempts    *prometheus.CounterVec
	AuditWriteFailures prometheus.Counter
	TokensIssued       prometheus.Counter
	CheckInDuration    prometheus.Histogram
}

// New registers all metrics with reg. Pass prometheus.DefaultRegisterer in main
// and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CheckInAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_attempts_total",
			Help: "Check-in attempts by audit status and method (scan, manual)",
		}, []string{"status", "method"}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_audit_write_failures_total",
			Help: "Audit rows that could not be written",
		}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "checkin_tokens_issued_total",
			Help: "QR tokens issued to guests",
		}),
		CheckInDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkin_attempt_duration_seconds",
			Help:    "Duration of check-in attempts including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncrementAttempt(status, method string) {
	m.CheckInAttempts.WithLabelValues(status, method).Inc()
}

func (m *Metrics) IncrementAuditFailure() {
	m.AuditWriteFailures.Inc()
}

func (m *Metrics) AddTokensIssued(n int) {
	m.TokensIssued.Add(float64(n))
}

// ObserveCheckIn records the duration of an attempt started at start.
func (m *Metrics) ObserveCheckIn(start time.Time) {
	m.CheckInDuration.Observe(time.Since(start).Seconds())
}
