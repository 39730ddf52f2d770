// Package metrics builds the process-wide Prometheus registry that every
// domain collector registers on.
package metrics

import (
	"database/sql"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// NewRegistry returns a registry preloaded with Go runtime and process
// collectors plus a constant medshare_build_info series.
func NewRegistry(version string) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Name:        "medshare_build_info",
		Help:        "Build information for the running binary",
		ConstLabels: prometheus.Labels{"version": version, "go_version": runtime.Version()},
	}).Set(1)
	return reg
}

// RegisterDBStats exports database/sql pool statistics for db.
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB) error {
	return reg.Register(collectors.NewDBStatsCollector(db, "medshare"))
}
