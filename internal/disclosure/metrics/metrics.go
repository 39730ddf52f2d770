package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for disclosure sessions.
type Metrics struct {
	SessionsCreated  *prometheus.CounterVec
	SessionsConsumed *prometheus.CounterVec
	SessionsCanceled prometheus.Counter
	TokenCollisions  prometheus.Counter
	CreateLatency    prometheus.Histogram

	CleanupRunsTotal       *prometheus.CounterVec
	CleanupExpiredTotal    prometheus.Counter
	CleanupPurgedTotal     prometheus.Counter
	CleanupDurationSeconds prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medshare_disclosure_sessions_created_total",
			Help: "Disclosure session create attempts, labeled by result",
		}, []string{"result"}),
		SessionsConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medshare_disclosure_sessions_consumed_total",
			Help: "Disclosure session consume attempts, labeled by result",
		}, []string{"result"}),
		SessionsCanceled: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_disclosure_sessions_cancelled_total",
			Help: "Total number of disclosure sessions cancelled by their subject",
		}),
		TokenCollisions: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_disclosure_token_collisions_total",
			Help: "Total number of generated tokens rejected because they were already in use",
		}),
		CreateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medshare_disclosure_create_latency_seconds",
			Help:    "Latency of disclosure session creation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CleanupRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medshare_disclosure_cleanup_runs_total",
			Help: "Session cleanup runs, labeled by result",
		}, []string{"result"}),
		CleanupExpiredTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_disclosure_cleanup_expired_total",
			Help: "Total number of elapsed sessions marked expired by cleanup",
		}),
		CleanupPurgedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_disclosure_cleanup_purged_total",
			Help: "Total number of sealed payloads dropped from terminal sessions",
		}),
		CleanupDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medshare_disclosure_cleanup_duration_seconds",
			Help:    "Duration of session cleanup runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordCreate counts a create attempt: result is "success" or a domain code.
func (m *Metrics) RecordCreate(result string, durationSeconds float64) {
	m.SessionsCreated.WithLabelValues(result).Inc()
	m.CreateLatency.Observe(durationSeconds)
}

// RecordConsume counts a consume attempt: result is "success" or a domain code.
func (m *Metrics) RecordConsume(result string) {
	m.SessionsConsumed.WithLabelValues(result).Inc()
}
