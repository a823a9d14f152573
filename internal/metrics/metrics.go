// Package metrics exposes Prometheus counters for the service. Everything
// registers on the default registry; scrape it via Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution metrics
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_executions_total",
			Help: "Total number of command executions by outcome",
		},
		[]string{"outcome"},
	)

	ExecDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandbox_exec_duration_seconds",
			Help:    "Command execution duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sandbox_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// Container lifecycle metrics
	ContainersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sandbox_containers_created_total",
			Help: "Total number of sandbox containers created",
		},
	)

	ContainersReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sandbox_containers_reaped_total",
			Help: "Total number of sandbox containers removed by the reaper",
		},
	)

	AuditPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sandbox_audit_pruned_total",
			Help: "Total number of audit log entries pruned",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(ExecDuration)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(ContainersCreated)
	prometheus.MustRegister(ContainersReaped)
	prometheus.MustRegister(AuditPruned)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
