// Package metrics exposes Prometheus collectors for the annotation pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsTotal                 *prometheus.CounterVec
	fetchTotal                 *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	classificationsTotal       *prometheus.CounterVec
	classifierRetriesTotal     prometheus.Counter
	classifierCallDuration     *prometheus.HistogramVec
	uploadsTotal               *prometheus.CounterVec
	hookErrorsTotal            *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	pacingDelaySeconds         prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		itemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_items_total",
				Help: "Total number of work items finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_fetch_total",
				Help: "Total number of document fetches, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_fetch_bytes_total",
				Help: "Total number of bytes downloaded, labeled by site.",
			},
			[]string{"site"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_extractions_total",
				Help: "Total number of metadata extractions, labeled by result.",
			},
			[]string{"result"},
		)

		classificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_classifications_total",
				Help: "Total number of classifications, labeled by label source.",
			},
			[]string{"source"},
		)

		classifierRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "annotator_classifier_rate_limit_retries_total",
				Help: "Total number of classification retries caused by rate limiting.",
			},
		)

		classifierCallDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "annotator_classifier_call_duration_seconds",
				Help:    "Histogram of classification service call latencies, labeled by outcome.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"outcome"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_uploads_total",
				Help: "Total number of document uploads, labeled by result.",
			},
			[]string{"result"},
		)

		hookErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "annotator_record_hook_errors_total",
				Help: "Total number of post-persist hook failures, labeled by hook.",
			},
			[]string{"hook"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "annotator_active_workers",
				Help: "Number of workers currently processing an item.",
			},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "annotator_pacing_delay_seconds",
				Help:    "Histogram of pacing wait durations between items.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
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
	})
}

// SanitizeSite reduces a document source to a lowercase hostname label.
// Any source that is not an http(s) URL is a filesystem path and reports
// "local"; an empty or unparsable URL reports "unknown".
func SanitizeSite(rawURL string) string {
	if rawURL == "" {
		return "unknown"
	}
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return "local"
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveItem increments the terminal item counter.
func ObserveItem(status string) {
	Init()
	itemsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records one fetch outcome for the source's site.
func ObserveFetch(source, result string, bytesFetched int64) {
	Init()
	site := SanitizeSite(source)
	fetchTotal.WithLabelValues(site, result).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveExtraction records whether both heuristics succeeded.
func ObserveExtraction(ok bool) {
	Init()
	result := "ok"
	if !ok {
		result = "degraded"
	}
	extractionsTotal.WithLabelValues(result).Inc()
}

// ObserveClassification increments the classification counter for a label source.
func ObserveClassification(source string) {
	Init()
	classificationsTotal.WithLabelValues(source).Inc()
}

// ObserveClassifierRetry counts one rate-limit retry.
func ObserveClassifierRetry() {
	Init()
	classifierRetriesTotal.Inc()
}

// ObserveClassifierCall records the latency of a single service call.
func ObserveClassifierCall(outcome string, duration time.Duration) {
	Init()
	classifierCallDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveUpload increments the upload counter.
func ObserveUpload(result string) {
	Init()
	uploadsTotal.WithLabelValues(result).Inc()
}

// ObserveHookError counts a failed post-persist hook.
func ObserveHookError(hook string) {
	Init()
	hookErrorsTotal.WithLabelValues(hook).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObservePacingDelay records the duration of a pacing wait.
func ObservePacingDelay(duration time.Duration) {
	Init()
	pacingDelaySeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
