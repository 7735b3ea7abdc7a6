package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrelay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidrelay_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrelay_auth_failures_total",
			Help: "Total number of rejected API key checks",
		},
		[]string{"reason"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidrelay_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	// Extractor Metrics
	ExtractorInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrelay_extractor_invocations_total",
			Help: "Total number of yt-dlp invocations",
		},
		[]string{"operation", "status"},
	)

	ExtractorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidrelay_extractor_duration_seconds",
			Help:    "yt-dlp invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2 minutes
		},
		[]string{"operation"},
	)

	ExtractorInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidrelay_extractor_in_flight",
			Help: "Number of yt-dlp processes currently running",
		},
	)

	// Relay Metrics
	RelayOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrelay_relay_outcomes_total",
			Help: "Total number of media relays by terminal state",
		},
		[]string{"state"},
	)

	RelayBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidrelay_relay_bytes_total",
			Help: "Total bytes relayed to callers",
		},
	)

	RelayActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidrelay_relay_active",
			Help: "Number of media relays currently streaming",
		},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidrelay_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordAuthFailure records a rejected API key check
func RecordAuthFailure(reason string) {
	AuthFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRateLimited records a request rejected by the limiter
func RecordRateLimited() {
	RateLimitedTotal.Inc()
}

// RecordExtractorRun records a finished yt-dlp invocation
func RecordExtractorRun(operation string, success bool, duration float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	ExtractorInvocationsTotal.WithLabelValues(operation, status).Inc()
	ExtractorDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRelay records the terminal state of a relay and the bytes it sent
func RecordRelay(state string, bytes int64) {
	RelayOutcomesTotal.WithLabelValues(state).Inc()
	RelayBytesTotal.Add(float64(bytes))
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
