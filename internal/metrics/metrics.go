// Package metrics exposes Prometheus collectors for the export orchestrator and
// the reference export backend.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	exportsStartedTotal        *prometheus.CounterVec
	exportsFinishedTotal       *prometheus.CounterVec
	exportsSupersededTotal     *prometheus.CounterVec
	exportPollsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	backendJobsTotal           *prometheus.CounterVec
	backendActiveWorkers       prometheus.Gauge
	backendRowsExportedTotal   *prometheus.CounterVec
	exportsThrottledTotal      prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		exportsStartedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apilog_exports_started_total",
				Help: "Export jobs requested by a session, labeled by kind.",
			},
			[]string{"kind"},
		)

		exportsFinishedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apilog_exports_finished_total",
				Help: "Export jobs that reached a terminal outcome, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		exportsSupersededTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apilog_exports_superseded_total",
				Help: "Live export jobs retired by a newer request or an explicit cancel.",
			},
			[]string{"kind"},
		)

		exportPollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apilog_export_polls_total",
				Help: "Status polls issued by poll loops, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		backendJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apilog_backend_jobs_total",
				Help: "Export jobs processed by the backend, labeled by kind and final status.",
			},
			[]string{"kind", "status"},
		)

		backendActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "apilog_backend_active_workers",
				Help: "Number of export workers currently processing a job.",
			},
		)

		backendRowsExportedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apilog_backend_rows_exported_total",
				Help: "Log rows written into export artifacts, labeled by kind.",
			},
			[]string{"kind"},
		)

		exportsThrottledTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "apilog_exports_throttled_total",
				Help: "Export submissions rejected by the per-user rate limit.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveExportStarted counts a session-level export request.
func ObserveExportStarted(kind string) {
	Init()
	exportsStartedTotal.WithLabelValues(kind).Inc()
}

// ObserveExportFinished counts a terminal outcome.
func ObserveExportFinished(kind, outcome string) {
	Init()
	exportsFinishedTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveExportSuperseded counts a live job retired before reaching a terminal state.
func ObserveExportSuperseded(kind string) {
	Init()
	exportsSupersededTotal.WithLabelValues(kind).Inc()
}

// ObservePoll counts one status poll.
func ObservePoll(kind, result string) {
	Init()
	exportPollsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveBackendJob increments the backend job counter for the given status.
func ObserveBackendJob(kind, status string) {
	Init()
	backendJobsTotal.WithLabelValues(kind, status).Inc()
}

// ObserveRowsExported adds rows written into an artifact.
func ObserveRowsExported(kind string, rows int) {
	Init()
	if rows > 0 {
		backendRowsExportedTotal.WithLabelValues(kind).Add(float64(rows))
	}
}

// ObserveThrottled counts a rejected export submission.
func ObserveThrottled() {
	Init()
	exportsThrottledTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	backendActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	backendActiveWorkers.Dec()
}
