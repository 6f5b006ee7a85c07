package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration is a histogram of request latencies by route and
	// status code.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latency (seconds) by route and status code.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"route", "code"},
	)

	// InferenceLatency tracks forward-pass latency only.
	InferenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Histogram of model inference latency (seconds) excluding HTTP overhead.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// GradCAMLatency tracks heatmap computation latency, rendering excluded.
	GradCAMLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gradcam_latency_seconds",
			Help:    "Histogram of Grad-CAM heatmap computation latency (seconds).",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// DegenerateHeatmaps counts all-zero heatmaps returned to callers.
	DegenerateHeatmaps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gradcam_degenerate_heatmaps_total",
			Help: "Number of all-zero Grad-CAM heatmaps produced.",
		},
	)

	// CacheHits and CacheMisses count analysis cache lookups by tier.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_hits_total",
			Help: "Number of analysis cache hits by tier (lru, redis).",
		},
		[]string{"tier"},
	)
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_cache_misses_total",
			Help: "Number of analysis cache misses.",
		},
	)

	// HealthStatus is a gauge indicating the health status of the service.
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordHTTPLatency records the latency of an HTTP request.
func RecordHTTPLatency(route, code string, seconds float64) {
	HTTPRequestDuration.WithLabelValues(route, code).Observe(seconds)
}

// RecordInferenceLatency records the latency of a forward pass.
func RecordInferenceLatency(seconds float64) {
	InferenceLatency.Observe(seconds)
}

// RecordGradCAMLatency records the latency of a heatmap computation.
func RecordGradCAMLatency(seconds float64) {
	GradCAMLatency.Observe(seconds)
}

// RecordDegenerateHeatmap counts an all-zero heatmap.
func RecordDegenerateHeatmap() {
	DegenerateHeatmaps.Inc()
}

// RecordCacheHit counts a cache hit for the given tier.
func RecordCacheHit(tier string) {
	CacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss counts a cache miss.
func RecordCacheMiss() {
	CacheMisses.Inc()
}

// SetHealthy sets the health status to healthy.
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy.
func SetUnhealthy() {
	HealthStatus.Set(0)
}
