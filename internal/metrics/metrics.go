package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watzon/markguard/internal/sanitize"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markguard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "markguard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "markguard_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "markguard_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "path"},
	)

	sanitizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markguard_sanitize_total",
			Help: "Total number of sanitize calls by the strategy that produced the output",
		},
		[]string{"strategy"},
	)

	sanitizeRemovals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markguard_sanitize_removals_total",
			Help: "Markup removed or rewritten by the sanitizer",
		},
		[]string{"kind"},
	)

	sanitizeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "markguard_sanitize_duration_seconds",
			Help:    "Time spent sanitizing a single document",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"strategy"},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "markguard_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	publicationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "markguard_publications_total",
			Help: "Publication store operations",
		},
		[]string{"operation"},
	)

	previewConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "markguard_preview_connections",
			Help: "Number of active live preview WebSocket connections",
		},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "markguard_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

func IncrementInFlight() {
	httpRequestsInFlight.Inc()
}

func DecrementInFlight() {
	httpRequestsInFlight.Dec()
}

// ObserveSanitize records one sanitizer call. It is meant to be passed to
// sanitize.WithObserver.
func ObserveSanitize(res sanitize.Result) {
	strategy := string(res.Strategy)
	sanitizeTotal.WithLabelValues(strategy).Inc()
	sanitizeDuration.WithLabelValues(strategy).Observe(res.Duration.Seconds())

	r := res.Report
	addRemovals("comment", r.Comments)
	addRemovals("discarded_element", r.Discarded)
	addRemovals("unwrapped_element", r.Unwrapped)
	addRemovals("attribute", r.Attributes)
	addRemovals("escaped", r.Escaped)
}

func addRemovals(kind string, n int) {
	if n > 0 {
		sanitizeRemovals.WithLabelValues(kind).Add(float64(n))
	}
}

func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

func RecordPublication(operation string) {
	publicationsTotal.WithLabelValues(operation).Inc()
}

func IncrementPreviewConnections() {
	previewConnections.Inc()
}

func DecrementPreviewConnections() {
	previewConnections.Dec()
}

func UpdateDBStats(open int) {
	dbConnectionsOpen.Set(float64(open))
}
