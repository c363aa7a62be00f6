// Package metrics exposes Prometheus collectors for the paging crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagecrawl_pages_submitted_total",
			Help: "Total number of pages admitted into a paging session, labeled by session name.",
		},
		[]string{"session"},
	)

	pagesCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagecrawl_pages_completed_total",
			Help: "Total number of completed pages, labeled by session name and outcome (more|stop).",
		},
		[]string{"session", "outcome"},
	)

	pagesInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagecrawl_pages_in_flight",
			Help: "Pages currently admitted and not yet released, labeled by session name.",
		},
		[]string{"session"},
	)

	tasksOutstanding = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagecrawl_tasks_outstanding",
			Help: "Background tasks holding a slot, labeled by tag.",
		},
		[]string{"tag"},
	)

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagecrawl_tasks_total",
			Help: "Completed background tasks, labeled by tag and result.",
		},
		[]string{"tag", "result"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagecrawl_rate_limit_delay_seconds",
			Help:    "Histogram of per-host rate limit sleeps.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	retryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagecrawl_retry_attempts_total",
			Help: "Failed attempts that were followed by another attempt, labeled by operation.",
		},
		[]string{"operation"},
	)

	retryExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagecrawl_retry_exhausted_total",
			Help: "Operations that failed on every attempt, labeled by operation.",
		},
		[]string{"operation"},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagecrawl_fetches_total",
			Help: "Network fetches, labeled by site and status code.",
		},
		[]string{"site", "code"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagecrawl_fetch_bytes_total",
			Help: "Bytes fetched or downloaded, labeled by site.",
		},
		[]string{"site"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagecrawl_cache_lookups_total",
			Help: "Cache lookups, labeled by result (hit|miss).",
		},
		[]string{"result"},
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
)

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

// ObservePageSubmitted records a page admitted by a paging session.
func ObservePageSubmitted(session string) {
	pagesSubmittedTotal.WithLabelValues(session).Inc()
	pagesInFlight.WithLabelValues(session).Inc()
}

// ObservePageCompleted records a finished page and whether it asked for more.
func ObservePageCompleted(session string, more bool) {
	outcome := "stop"
	if more {
		outcome = "more"
	}
	pagesCompletedTotal.WithLabelValues(session, outcome).Inc()
	pagesInFlight.WithLabelValues(session).Dec()
}

// IncTaskOutstanding marks a tag slot as taken.
func IncTaskOutstanding(tag string) {
	tasksOutstanding.WithLabelValues(tag).Inc()
}

// ObserveTaskDone releases a tag slot and counts the task result.
func ObserveTaskDone(tag string, err error) {
	tasksOutstanding.WithLabelValues(tag).Dec()
	result := "ok"
	if err != nil {
		result = "error"
	}
	tasksTotal.WithLabelValues(tag, result).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveRetry counts a failed attempt that will be retried.
func ObserveRetry(operation string) {
	retryAttemptsTotal.WithLabelValues(operation).Inc()
}

// ObserveRetryExhausted counts an operation that ran out of attempts.
func ObserveRetryExhausted(operation string) {
	retryExhaustedTotal.WithLabelValues(operation).Inc()
}

// ObserveFetch records a network fetch for the URL's host.
func ObserveFetch(rawURL string, code int, bytesFetched int64) {
	site := SanitizeSite(rawURL)
	fetchesTotal.WithLabelValues(site, strconv.Itoa(code)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
