// Package metrics holds the Prometheus collectors for the service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "rx"
	subsystem = "image_to_text"
)

var (
	uploadOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upload_ops_total",
			Help:      "The total number of processed uploads.",
		},
		[]string{"outcome"},
	)

	ocrDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ocr_duration_seconds",
			Help:      "Time taken to extract text from an image.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"engine"},
	)

	inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "inference_duration_seconds",
			Help:      "Time taken to turn extracted text into an analysis.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	analyzerFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "analyzer_fallbacks_total",
			Help:      "Total number of analyses answered by the fallback analyzer.",
		},
		[]string{"reason"},
	)

	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_hits_total",
			Help:      "Total number of result cache hits.",
		},
	)

	cacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_misses_total",
			Help:      "Total number of result cache misses.",
		},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Time taken to serve an HTTP request.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(uploadOps)
	prometheus.MustRegister(ocrDuration)
	prometheus.MustRegister(inferenceDuration)
	prometheus.MustRegister(analyzerFallbacks)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(requestDuration)
}

// RecordUpload counts a finished upload by outcome (ok, no_text, error).
func RecordUpload(outcome string) {
	uploadOps.WithLabelValues(outcome).Inc()
}

func RecordOCRDuration(engine string, seconds float64) {
	ocrDuration.WithLabelValues(engine).Observe(seconds)
}

func RecordInferenceDuration(backend string, seconds float64) {
	inferenceDuration.WithLabelValues(backend).Observe(seconds)
}

// RecordFallback increments the fallback counter
func RecordFallback(reason string) {
	analyzerFallbacks.WithLabelValues(reason).Inc()
}

func RecordCacheHit() {
	cacheHits.Inc()
}

func RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRequestDuration records how long a request took
func RecordRequestDuration(method, route, status string, seconds float64) {
	requestDuration.WithLabelValues(method, route, status).Observe(seconds)
}
