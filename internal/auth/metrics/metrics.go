package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for login.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	LoginDurationMs prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medshare_login_attempts_total",
			Help: "Login attempts, labeled by result",
		}, []string{"result"}),
		LoginDurationMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medshare_login_duration_ms",
			Help:    "Latency of login requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}

func (m *Metrics) RecordLogin(result string, durationMs float64) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(result).Inc()
	m.LoginDurationMs.Observe(durationMs)
}
