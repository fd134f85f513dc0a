// Package metrics exposes the Prometheus registry of the progress service.
// Component metrics are defined in their own packages (client, ratelimit,
// pagination, limiter, report, cache) and registered through promauto; the
// HTTP server metrics live here.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progress_http_requests_total",
		Help: "Total HTTP requests served by route, method and status",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "progress_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by route",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
	}, []string{"route"})
)

// ObserveHTTPRequest records one served request. route is the registered
// pattern, not the raw path.
func ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - canvas_requests_total{endpoint, status} (Counter): Canvas requests by endpoint and HTTP status
//   - canvas_request_duration_seconds{endpoint} (Histogram): Canvas request duration by endpoint
//   - canvas_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - canvas_retries_total{error_class} (Counter): Retry attempts by error class
//   - canvas_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - canvas_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - canvas_rate_limit_remaining (Gauge): Last X-Rate-Limit-Remaining value
//   - canvas_rate_limit_pauses_total{level} (Counter): Requests delayed by a low bucket
//
// Pagination Metrics (pkg/pagination):
//   - canvas_pagination_pages_total (Counter): Pages fetched
//   - canvas_pagination_walks_total{outcome} (Counter): Completed and failed walks
//
// Limiter Metrics (pkg/limiter):
//   - progress_limiter_in_flight{limiter} (Gauge): Tasks running
//   - progress_limiter_tasks_total{limiter, outcome} (Counter): Tasks by outcome
//   - progress_limiter_queue_wait_seconds{limiter} (Histogram): Time waiting for a slot
//
// Report Metrics (pkg/report):
//   - progress_students_processed_total{outcome} (Counter): Students aggregated
//   - progress_aggregation_duration_seconds (Histogram): Course aggregation duration
//   - progress_reports_generated_total{kind} (Counter): Reports generated (rows, csv)
//
// Cache Metrics (pkg/cache):
//   - progress_cache_hits_total{layer} (Counter): Cache hits by layer
//   - progress_cache_misses_total{layer} (Counter): Cache misses by layer
//   - progress_cache_bytes_written_total{layer} (Counter): Report bytes written to the cache
//   - progress_cache_errors_total{operation} (Counter): Cache operation errors
//
// HTTP Metrics (pkg/metrics):
//   - progress_http_requests_total{route, method, status} (Counter)
//   - progress_http_request_duration_seconds{route} (Histogram)
//
// Example Prometheus Queries:
//
//	# Share of students left out of reports
//	sum(rate(progress_students_processed_total{outcome="failed"}[1h])) /
//	sum(rate(progress_students_processed_total[1h]))
//
//	# CSV cache hit rate
//	sum(rate(progress_cache_hits_total[5m])) /
//	(sum(rate(progress_cache_hits_total[5m])) + sum(rate(progress_cache_misses_total[5m])))
//
//	# Canvas bucket running low
//	canvas_rate_limit_remaining < 150
//
//	# P95 Canvas latency
//	histogram_quantile(0.95, rate(canvas_request_duration_seconds_bucket[5m]))
