package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dc_engine"

// HTTP metrics (incremented by middleware).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

// Inference-engine counters.
var (
	TTSRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tts_requests_total",
		Help:      "Total TTS synthesis requests.",
	})

	TTSErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tts_errors_total",
		Help:      "TTS primary-vendor attempts that failed.",
	})

	TTSFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tts_fallbacks_total",
		Help:      "Syntheses degraded to carrier-side TTS.",
	})

	TTSCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tts_cache_hits_total",
		Help:      "Phrase-cache hits.",
	})

	TTSCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tts_cache_misses_total",
		Help:      "Phrase-cache misses.",
	})

	STTRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stt_requests_total",
		Help:      "Total transcription requests.",
	})

	STTErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stt_errors_total",
		Help:      "Failed transcription requests.",
	})
)

// Queue and call gauges.
var (
	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Jobs waiting per queue.",
	}, []string{"queue"})

	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Jobs finished per queue by outcome.",
	}, []string{"queue", "status"})

	ActiveCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_calls",
		Help:      "Live dialog sessions.",
	})

	UtterancesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "utterances_total",
		Help:      "Callee utterances by guard verdict.",
	}, []string{"verdict"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TTSRequestsTotal,
		TTSErrorsTotal,
		TTSFallbacksTotal,
		TTSCacheHitsTotal,
		TTSCacheMissesTotal,
		STTRequestsTotal,
		STTErrorsTotal,
		QueueDepth,
		JobsTotal,
		ActiveCalls,
		UtterancesTotal,
	)
}

// InstrumentHandler records HTTP request metrics using chi's route
// pattern as the path label to avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers (e.g. http.Hijacker for the media-stream upgrade).
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
