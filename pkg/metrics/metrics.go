// Package metrics exposes Prometheus collectors for the middleware and the
// standalone proxy.
package metrics

import (
	"time"

	"github.com/bodylog/bodylog/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildInfo exposes version, build date, and git commit.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information including version, build date, and git commit",
		},
		[]string{"version", "build_date", "git_commit"},
	)

	// ProcessUptimeSeconds tracks the uptime of the process in seconds.
	ProcessUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)

	// HTTPRequestsTotal counts observed HTTP requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests observed",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration measures request duration in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestSizeBytes measures request size in bytes.
	HTTPRequestSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method"},
	)

	// HTTPResponseSizeBytes measures response size in bytes.
	HTTPResponseSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestsInFlight tracks active in-flight requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being observed",
		},
	)

	// RecordsEmittedTotal counts request and response records handed to
	// handlers.
	RecordsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_emitted_total",
			Help: "Total number of records handed to handlers",
		},
		[]string{"kind"},
	)

	// HandlerErrorsTotal counts handler failures. Failures never fail the
	// request being served.
	HandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handler_errors_total",
			Help: "Total number of record handler failures",
		},
		[]string{"kind"},
	)

	startTime time.Time
)

// Record kinds used as the "kind" label value.
const (
	KindRequest  = "request"
	KindResponse = "response"
)

// Init initializes the metrics with build information and starts the uptime
// tracker.
func Init() {
	startTime = time.Now()

	BuildInfo.WithLabelValues(
		version.Version,
		version.BuildDate,
		version.GitCommit,
	).Set(1)

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			ProcessUptimeSeconds.Set(time.Since(startTime).Seconds())
		}
	}()
}
