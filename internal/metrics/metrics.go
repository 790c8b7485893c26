// Package metrics exposes Prometheus collectors for the scraper.
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
	scrapeItemsTotal           *prometheus.CounterVec
	scrapeFetchAttemptsTotal   *prometheus.CounterVec
	scrapeFetchDuration        *prometheus.HistogramVec
	scrapeRetriesTotal         *prometheus.CounterVec
	scrapeBytesTotal           *prometheus.CounterVec
	scrapeActiveWorkers        prometheus.Gauge
	scrapeRunSuccessRate       prometheus.Gauge
	scrapeRunDurationSeconds   prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_items_total",
				Help: "Total number of work items processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scrapeFetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_fetch_attempts_total",
				Help: "Total number of HTTP attempts, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		scrapeFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scrape_fetch_duration_seconds",
				Help:    "Histogram of single HTTP attempt latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		scrapeRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_retries_total",
				Help: "Total number of retries scheduled, labeled by site.",
			},
			[]string{"site"},
		)

		scrapeBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scrape_bytes_total",
				Help: "Total number of body bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		scrapeActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_active_workers",
				Help: "Number of workers currently processing an item.",
			},
		)

		scrapeRunSuccessRate = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scrape_run_success_rate",
				Help: "Success rate of the most recent run.",
			},
		)

		scrapeRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scrape_run_duration_seconds",
				Help:    "Wall time of completed runs.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
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

// ObserveItem counts a finished work item. outcome is "clean" or the
// error label written to the error sink.
func ObserveItem(site, outcome string) {
	Init()
	scrapeItemsTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveFetchAttempt records one HTTP attempt.
func ObserveFetchAttempt(site, result string, duration time.Duration) {
	Init()
	sanitized := SanitizeSite(site)
	scrapeFetchAttemptsTotal.WithLabelValues(sanitized, result).Inc()
	scrapeFetchDuration.WithLabelValues(sanitized).Observe(duration.Seconds())
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry(site string) {
	Init()
	scrapeRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveBytes adds fetched body bytes.
func ObserveBytes(site string, n int) {
	if n <= 0 {
		return
	}
	Init()
	scrapeBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(n))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	scrapeActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	scrapeActiveWorkers.Dec()
}

// ObserveRun records the result of a completed run.
func ObserveRun(successRate float64, elapsed time.Duration) {
	Init()
	scrapeRunSuccessRate.Set(successRate)
	scrapeRunDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
