package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reconciliation metrics
	ReconciliationPassesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "herdctl_reconciliation_passes_total",
			Help: "Total number of reconciliation passes",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "herdctl_reconciliation_duration_seconds",
			Help:    "Reconciliation pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	UnitsChangedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herdctl_units_changed_total",
			Help: "Total number of unit changes applied by change type",
		},
		[]string{"change"},
	)

	// Rolling restart metrics
	RollingRestartDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herdctl_rolling_restart_duration_seconds",
			Help:    "Rolling restart duration in seconds by service",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"service"},
	)

	RestartFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herdctl_restart_failures_total",
			Help: "Total number of instances that failed to become healthy during a rolling restart",
		},
		[]string{"service"},
	)

	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herdctl_health_probes_total",
			Help: "Total number of health probes by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(ReconciliationPassesTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(UnitsChangedTotal)
	prometheus.MustRegister(RollingRestartDuration)
	prometheus.MustRegister(RestartFailuresTotal)
	prometheus.MustRegister(ProbesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
