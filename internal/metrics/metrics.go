package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Resolver metrics
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_resolutions_total",
			Help: "Resolved quotes by the tier that served them",
		},
		[]string{"source"},
	)

	// Fetcher metrics
	FetchSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stock_fetch_steps_total",
			Help: "Fetcher step outcomes",
		},
		[]string{"step", "status"},
	)

	// Upstream metrics
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Market-data request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Session metrics
	AuthOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Login and session checks",
		},
		[]string{"operation", "status"},
	)
)

func init() {
	// MustRegister panics if registration fails (e.g. duplicate)
	prometheus.MustRegister(
		Resolutions,
		FetchSteps,
		UpstreamLatency,
		APIRequestDuration, APIRequestTotal,
		AuthOperations,
	)
}

// Status returns "success" or "error" for metric labels.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
