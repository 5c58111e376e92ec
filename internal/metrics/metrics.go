// Package metrics exposes Prometheus collectors for the crawler.
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
	parcelsTotal               *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	downloadsTotal             *prometheus.CounterVec
	downloadBytesTotal         *prometheus.CounterVec
	browserRestartsTotal       prometheus.Counter
	activeSessions             prometheus.Gauge
	throttleSeconds            *prometheus.HistogramVec
	queueRows                  *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		parcelsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxcrawl_parcels_total",
				Help: "Parcels processed, labeled by table and outcome.",
			},
			[]string{"table", "outcome"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxcrawl_cache_lookups_total",
				Help: "Cache lookups, labeled by key prefix and result.",
			},
			[]string{"prefix", "result"},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxcrawl_downloads_total",
				Help: "Document downloads, labeled by host and status code.",
			},
			[]string{"host", "code"},
		)

		downloadBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taxcrawl_download_bytes_total",
				Help: "Bytes downloaded, labeled by host.",
			},
			[]string{"host"},
		)

		browserRestartsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "taxcrawl_browser_restarts_total",
				Help: "Browser sessions torn down after reaching the page threshold.",
			},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "taxcrawl_active_sessions",
				Help: "Browser sessions currently processing a parcel.",
			},
		)

		throttleSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "taxcrawl_throttle_seconds",
				Help:    "Time spent waiting for the per-host rate limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)

		queueRows = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taxcrawl_queue_rows",
				Help: "Rows in a crawl queue, labeled by table and state.",
			},
			[]string{"table", "state"},
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

// SanitizeHost extracts a lowercase hostname from a URL, or "unknown".
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// KeyPrefix returns the first path segment of a cache key.
func KeyPrefix(key string) string {
	prefix, _, found := strings.Cut(key, "/")
	if !found {
		return "root"
	}
	return prefix
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveParcel counts a finished parcel.
func ObserveParcel(table, outcome string) {
	Init()
	parcelsTotal.WithLabelValues(table, outcome).Inc()
}

// ObserveCacheLookup counts a lazy cache lookup.
func ObserveCacheLookup(key string, hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(KeyPrefix(key), result).Inc()
}

// ObserveDownload counts a document download.
func ObserveDownload(rawURL string, code int, size int) {
	Init()
	host := SanitizeHost(rawURL)
	downloadsTotal.WithLabelValues(host, strconv.Itoa(code)).Inc()
	if size > 0 {
		downloadBytesTotal.WithLabelValues(host).Add(float64(size))
	}
}

// ObserveBrowserRestart counts a threshold-triggered session reset.
func ObserveBrowserRestart() {
	Init()
	browserRestartsTotal.Inc()
}

// IncActiveSessions increments the active sessions gauge.
func IncActiveSessions() {
	Init()
	activeSessions.Inc()
}

// DecActiveSessions decrements the active sessions gauge.
func DecActiveSessions() {
	Init()
	activeSessions.Dec()
}

// ObserveThrottle records how long a request to host waited for the limiter.
func ObserveThrottle(host string, d time.Duration) {
	Init()
	throttleSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// SetQueueRows publishes queue counts for table.
func SetQueueRows(table string, successful, unsuccessful, remaining int64) {
	Init()
	queueRows.WithLabelValues(table, "successful").Set(float64(successful))
	queueRows.WithLabelValues(table, "unsuccessful").Set(float64(unsuccessful))
	queueRows.WithLabelValues(table, "remaining").Set(float64(remaining))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
