// Package metrics exposes Prometheus collectors for the ingestion and
// question-answering service.
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
	pagesFetchedTotal          *prometheus.CounterVec
	chunksIndexedTotal         prometheus.Counter
	jobsTotal                  *prometheus.CounterVec
	jobsReapedTotal            prometheus.Counter
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	embedBatchDurationSeconds  prometheus.Histogram
	searchDurationSeconds      prometheus.Histogram
	lockSkipsTotal             prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_pages_fetched_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		chunksIndexedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_chunks_indexed_total",
				Help: "Total number of chunks added to vector indexes.",
			},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_jobs_total",
				Help: "Total number of ingestion jobs finished, labeled by status.",
			},
			[]string{"status"},
		)

		jobsReapedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_jobs_reaped_total",
				Help: "Total number of stuck jobs failed by the watchdog.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quarry_active_workers",
				Help: "Number of workers currently running an ingestion job.",
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

		embedBatchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quarry_embed_batch_duration_seconds",
				Help:    "Histogram of embedding batch latencies.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		searchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quarry_search_duration_seconds",
				Help:    "Histogram of vector search latencies.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		)

		lockSkipsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_lock_skips_total",
				Help: "Total number of seed URLs skipped because another job held the lock.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch increments the page fetch counter.
func ObserveFetch(site string, status string) {
	pagesFetchedTotal.WithLabelValues(SanitizeSite(site), status).Inc()
}

// ObserveChunksIndexed adds to the indexed chunk counter.
func ObserveChunksIndexed(n int) {
	if n > 0 {
		chunksIndexedTotal.Add(float64(n))
	}
}

// ObserveJob increments the job counter for the given final status.
func ObserveJob(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveJobReaped increments the watchdog reap counter.
func ObserveJobReaped() {
	jobsReapedTotal.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveEmbedBatch records the duration of one embedding batch call.
func ObserveEmbedBatch(duration time.Duration) {
	embedBatchDurationSeconds.Observe(duration.Seconds())
}

// ObserveSearch records the duration of one vector search.
func ObserveSearch(duration time.Duration) {
	searchDurationSeconds.Observe(duration.Seconds())
}

// ObserveLockSkip increments the skipped-seed counter.
func ObserveLockSkip() {
	lockSkipsTotal.Inc()
}
