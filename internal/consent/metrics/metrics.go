package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent operations.
type Metrics struct {
	ConsentsGranted prometheus.Counter
	ConsentsRevoked prometheus.Counter
	Authorizations  *prometheus.CounterVec
	CheckLatency    prometheus.Histogram
	PurposeRejected prometheus.Counter
}

// New registers consent metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ConsentsGranted: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_consents_granted_total",
			Help: "Total number of consent records granted",
		}),
		ConsentsRevoked: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_consents_revoked_total",
			Help: "Total number of consent records revoked",
		}),
		Authorizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medshare_consent_authorizations_total",
			Help: "Consent authorization decisions, labeled by result",
		}, []string{"result"}),
		CheckLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medshare_consent_authorization_latency_seconds",
			Help:    "Latency of consent authorization checks in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		PurposeRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_consent_purpose_rejected_total",
			Help: "Total number of disclosure purposes rejected as insufficient",
		}),
	}
}

func (m *Metrics) IncrementConsentsGranted() {
	m.ConsentsGranted.Inc()
}

func (m *Metrics) IncrementConsentsRevoked() {
	m.ConsentsRevoked.Inc()
}

// RecordAuthorization counts a decision: result is "allowed", "denied" or "error".
func (m *Metrics) RecordAuthorization(result string, durationSeconds float64) {
	m.Authorizations.WithLabelValues(result).Inc()
	m.CheckLatency.Observe(durationSeconds)
}

func (m *Metrics) IncrementPurposeRejected() {
	m.PurposeRejected.Inc()
}
