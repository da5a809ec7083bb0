// Package metrics exposes Prometheus collectors for the ingest service.
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
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchBytesTotal            *prometheus.CounterVec
	rateLimitedTotal           *prometheus.CounterVec
	headlessPromotionsTotal    *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	persistedArticlesTotal     *prometheus.CounterVec
	unmappedValuesTotal        *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetch_attempts_total",
				Help: "Outbound request attempts, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_fetch_duration_seconds",
				Help:    "Wall time of a full fetch including delays and retries.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"source"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_fetch_bytes_total",
				Help: "Bytes fetched, labeled by source.",
			},
			[]string{"source"},
		)

		rateLimitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_rate_limited_total",
				Help: "HTTP 429 responses received, labeled by source.",
			},
			[]string{"source"},
		)

		headlessPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_headless_promotions_total",
				Help: "Fetches re-rendered through the headless browser, labeled by source and result.",
			},
			[]string{"source", "result"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_delays_seconds",
				Help:    "Histogram of token bucket wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		persistedArticlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_persisted_articles_total",
				Help: "Articles handled by the dedup gateway, labeled by result (inserted, skipped).",
			},
			[]string{"result"},
		)

		unmappedValuesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_unmapped_values_total",
				Help: "Source or category values that fell through the canonical vocabulary.",
			},
			[]string{"kind"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// ObserveFetchAttempt counts one request attempt.
func ObserveFetchAttempt(source, outcome string, bytesFetched int) {
	Init()
	fetchAttemptsTotal.WithLabelValues(source, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(source).Add(float64(bytesFetched))
	}
}

// ObserveFetch records the duration of a complete fetch.
func ObserveFetch(source string, duration time.Duration) {
	Init()
	fetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveRateLimited counts a 429 response.
func ObserveRateLimited(source string) {
	Init()
	rateLimitedTotal.WithLabelValues(source).Inc()
}

// ObserveHeadlessPromotion counts a headless re-render.
func ObserveHeadlessPromotion(source, result string) {
	Init()
	headlessPromotionsTotal.WithLabelValues(source, result).Inc()
}

// ObserveRateLimitDelay records the duration of a token bucket wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObservePersist adds gateway outcomes.
func ObservePersist(inserted, skipped int) {
	Init()
	if inserted > 0 {
		persistedArticlesTotal.WithLabelValues("inserted").Add(float64(inserted))
	}
	if skipped > 0 {
		persistedArticlesTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
}

// ObserveUnmapped counts a vocabulary miss of the given kind (source, category).
func ObserveUnmapped(kind string) {
	Init()
	unmappedValuesTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
