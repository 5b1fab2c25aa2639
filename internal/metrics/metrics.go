// Package metrics defines the Prometheus collectors of the registry and the
// ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upsert outcomes.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

// Trace rejection reasons.
const (
	ReasonModelNotFound = "model_not_found"
	ReasonStorage       = "storage"
)

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	modelUpserts    *prometheus.CounterVec
	tracesRecorded  prometheus.Counter
	traceRejections *prometheus.CounterVec
	batchSize       prometheus.Histogram
	unknownRanges   prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		modelUpserts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wbtrace_model_upserts_total",
			Help: "Workbook model upserts by outcome",
		}, []string{"outcome"}),
		tracesRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "wbtrace_traces_recorded_total",
			Help: "Trace entries appended to the ledger",
		}),
		traceRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wbtrace_trace_rejections_total",
			Help: "Trace append calls rejected, by reason",
		}, []string{"reason"}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "wbtrace_trace_batch_size",
			Help:    "Number of changes per batch append",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),
		unknownRanges: f.NewCounter(prometheus.CounterOpts{
			Name: "wbtrace_trace_unknown_range_total",
			Help: "Traces naming a range the model does not declare",
		}),
	}
}

func (m *Metrics) ModelUpserted(outcome string) {
	if m == nil {
		return
	}
	m.modelUpserts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TracesRecorded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tracesRecorded.Add(float64(n))
}

func (m *Metrics) TraceRejected(reason string) {
	if m == nil {
		return
	}
	m.traceRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) BatchReceived(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

func (m *Metrics) UnknownRange() {
	if m == nil {
		return
	}
	m.unknownRanges.Inc()
}
