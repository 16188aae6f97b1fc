package poller

import "github.com/prometheus/client_golang/prometheus"

// Prometheus poll-cycle metrics, exposed by the HTTP server on /metrics.
var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivewatch_poll_cycles_total",
			Help: "Total number of completed poll cycles by status.",
		},
		[]string{"status"},
	)
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drivewatch_poll_cycle_duration_seconds",
			Help:    "Poll cycle duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	resourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivewatch_resource_failures_total",
			Help: "Per-resource fetch failures by resource ID.",
		},
		[]string{"resource"},
	)
	reloginsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "drivewatch_relogins_total",
			Help: "Mid-cycle re-login attempts triggered by auth failures.",
		},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(cycleDuration)
	prometheus.MustRegister(resourceFailures)
	prometheus.MustRegister(reloginsTotal)
}
