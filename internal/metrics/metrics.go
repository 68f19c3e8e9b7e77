// Package metrics exposes Prometheus instrumentation for the TEF II bridge,
// grounded on the escrow package's promauto-based Metrics type.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the bridge registers.
type Metrics struct {
	TransactionTotal    *prometheus.CounterVec
	TransactionDuration *prometheus.HistogramVec
	DecodeFailures      prometheus.Counter
	FramesACKed         prometheus.Counter
	CoordinatorState    *prometheus.GaugeVec
}

// NewMetrics constructs and registers the bridge's collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		TransactionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tef_bridge_transactions_total",
				Help: "Total number of purchase/reversal transactions processed",
			},
			[]string{"operation", "outcome"}, // operation: purchase, reversal; outcome: approved, declined, error, timeout, canceled
		),

		TransactionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tef_bridge_transaction_duration_seconds",
				Help:    "Duration of a purchase/reversal exchange with the terminal",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		DecodeFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tef_bridge_decode_failures_total",
				Help: "Total number of inbound frames discarded for failing to decode",
			},
		),

		FramesACKed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tef_bridge_frames_acked_total",
				Help: "Total number of inbound frames successfully decoded and ACKed",
			},
		),

		CoordinatorState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tef_bridge_coordinator_state",
				Help: "Coordinator state indicator (1 for the active state, 0 otherwise)",
			},
			[]string{"state"}, // state: idle, awaiting, closed
		),
	}
}

// RecordTransaction records the outcome and duration of a completed
// exchange.
func (m *Metrics) RecordTransaction(operation string, outcome string, durationSeconds float64) {
	m.TransactionTotal.WithLabelValues(operation, outcome).Inc()
	m.TransactionDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordDecodeFailure increments the discarded-frame counter.
func (m *Metrics) RecordDecodeFailure() {
	m.DecodeFailures.Inc()
}

// RecordFrameACKed increments the ACKed-frame counter.
func (m *Metrics) RecordFrameACKed() {
	m.FramesACKed.Inc()
}

// SetCoordinatorState sets the coordinator state gauge, zeroing the others.
func (m *Metrics) SetCoordinatorState(current string) {
	for _, s := range []string{"idle", "awaiting", "closed"} {
		value := 0.0
		if s == current {
			value = 1.0
		}
		m.CoordinatorState.WithLabelValues(s).Set(value)
	}
}
