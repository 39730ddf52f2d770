package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	EntriesAppended *prometheus.CounterVec
	PersistDuration prometheus.Histogram
	PersistFailures prometheus.Counter
	SinkFailures    prometheus.Counter
}

// New registers the audit metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "medshare_audit_queue_depth",
			Help: "Current number of entries waiting in the async audit queue",
		}),
		EntriesAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medshare_audit_entries_appended_total",
			Help: "Total number of audit entries appended, by resource and outcome",
		}, []string{"resource", "outcome"}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medshare_audit_persist_duration_seconds",
			Help:    "Time taken to persist an audit entry to the ledger store",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_audit_persist_failures_total",
			Help: "Total number of audit entry persistence failures",
		}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_audit_sink_failures_total",
			Help: "Total number of failed deliveries to secondary audit sinks",
		}),
	}
}

func (m *Metrics) IncQueueDepth() {
	if m != nil {
		m.QueueDepth.Inc()
	}
}

func (m *Metrics) DecQueueDepth() {
	if m != nil {
		m.QueueDepth.Dec()
	}
}

// IncAppended counts a persisted entry. outcome is "success" or "failure".
func (m *Metrics) IncAppended(resource, outcome string) {
	if m != nil {
		m.EntriesAppended.WithLabelValues(resource, outcome).Inc()
	}
}

func (m *Metrics) ObservePersistDuration(durationSeconds float64) {
	if m != nil {
		m.PersistDuration.Observe(durationSeconds)
	}
}

func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) IncSinkFailures() {
	if m != nil {
		m.SinkFailures.Inc()
	}
}
