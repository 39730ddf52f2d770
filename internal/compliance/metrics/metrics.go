package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FailedAttempts  prometheus.Counter
	Lockouts        prometheus.Counter
	BlockedAttempts prometheus.Counter
	DataAccess      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FailedAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_compliance_failed_attempts_total",
			Help: "Total number of failed login attempts recorded",
		}),
		Lockouts: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_compliance_lockouts_total",
			Help: "Total number of identities locked after repeated failures",
		}),
		BlockedAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "medshare_compliance_blocked_attempts_total",
			Help: "Total number of attempts rejected because the identity was locked",
		}),
		DataAccess: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medshare_compliance_data_access_total",
			Help: "PHI access validations, labeled by result",
		}, []string{"result"}),
	}
}
