// ABOUTME: Prometheus exporter for metric records and orchestrator call outcomes.
// ABOUTME: Records become samples of one gauge vector keyed by type, unit, scope, and model.

package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter publishes telemetry to a Prometheus registry.
type Exporter struct {
	records          *prometheus.GaugeVec
	attempts         *prometheus.CounterVec
	attemptDuration  prometheus.Histogram
	dispatchOutcomes *prometheus.CounterVec
}

// NewExporter creates an exporter and registers its collectors with reg.
func NewExporter(reg prometheus.Registerer) *Exporter {
	e := &Exporter{
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "realtime_gateway_metric",
			Help: "Latest value of each gateway telemetry record",
		}, []string{"metric_type", "unit", "scope", "model"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_gateway_orchestrator_attempts_total",
			Help: "Orchestrator HTTP attempts by outcome",
		}, []string{"outcome"}),
		attemptDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "realtime_gateway_orchestrator_attempt_seconds",
			Help:    "Duration of individual orchestrator HTTP attempts",
			Buckets: prometheus.DefBuckets,
		}),
		dispatchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_gateway_requests_total",
			Help: "Gateway requests by replay decision or error code",
		}, []string{"outcome"}),
	}

	reg.MustRegister(e.records, e.attempts, e.attemptDuration, e.dispatchOutcomes)
	return e
}

// Export sets one gauge sample per record.
func (e *Exporter) Export(records []Record) {
	for _, r := range records {
		e.records.WithLabelValues(r.MetricType, r.Unit, r.Labels["scope"], r.Labels["model"]).Set(r.Value)
	}
}

// Attempt records one orchestrator attempt.
func (e *Exporter) Attempt(outcome string, d time.Duration) {
	e.attempts.WithLabelValues(outcome).Inc()
	e.attemptDuration.Observe(d.Seconds())
}

// Request counts one gateway request by outcome.
func (e *Exporter) Request(outcome string) {
	e.dispatchOutcomes.WithLabelValues(outcome).Inc()
}
