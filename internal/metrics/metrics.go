// Package metrics exposes Prometheus collectors for ingestion and QC.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest outcomes.
const (
	OutcomeAcked       = "acked"
	OutcomeQuarantined = "quarantined"
	OutcomeHalted      = "halted"
)

// QC outcomes.
const (
	OutcomePass       = "pass"
	OutcomeErrors     = "errors"
	OutcomeWarnings   = "warnings"
	OutcomeNoTemplate = "notemp"
	OutcomeFailed     = "failed"
)

// Metrics provides observability for the pipeline and the QC engine.
type Metrics struct {
	// Messages by final outcome
	Messages *prometheus.CounterVec
	// Per-step latency
	StepDuration *prometheus.HistogramVec
	// Step failures by step name
	StepFailures *prometheus.CounterVec

	ImagesChecked *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	Pending       prometheus.Gauge
}

// New registers every collector with reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sqan_ingest_messages_total",
			Help: "Broker messages settled by outcome",
		}, []string{"outcome"}),

		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqan_ingest_step_duration_seconds",
			Help:    "Duration of each ingestion step",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"step"}),

		StepFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sqan_ingest_step_failures_total",
			Help: "Ingestion step failures by step",
		}, []string{"step"}),

		ImagesChecked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sqan_qc_images_total",
			Help: "Images evaluated by the QC engine by outcome",
		}, []string{"outcome"}),

		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqan_qc_cycle_duration_seconds",
			Help:    "Duration of one QC query and evaluate cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		Pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sqan_qc_pending_images",
			Help: "Images waiting for a QC verdict at the start of the last cycle",
		}),
	}
}

// IncMessage records how a message was settled.
func (m *Metrics) IncMessage(outcome string) {
	if m != nil {
		m.Messages.WithLabelValues(outcome).Inc()
	}
}

// ObserveStep records a step duration and, when failed, a step failure.
func (m *Metrics) ObserveStep(step string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(d.Seconds())
	if failed {
		m.StepFailures.WithLabelValues(step).Inc()
	}
}

// IncImage records one QC evaluation outcome.
func (m *Metrics) IncImage(outcome string) {
	if m != nil {
		m.ImagesChecked.WithLabelValues(outcome).Inc()
	}
}

// ObserveCycle records a QC cycle duration.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m != nil {
		m.CycleDuration.Observe(d.Seconds())
	}
}

// SetPending records the pending image count.
func (m *Metrics) SetPending(n int64) {
	if m != nil {
		m.Pending.Set(float64(n))
	}
}
