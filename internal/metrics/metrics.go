// Package metrics exposes Prometheus collectors for the notes service.
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

// Enrichment results recorded per link.
const (
	ResultSucceeded     = "succeeded"
	ResultFetchFailed   = "fetch_failed"
	ResultArchiveFailed = "archive_failed"
	ResultPersistFailed = "persist_failed"
)

var (
	enrichSubmissionsTotal     *prometheus.CounterVec
	enrichLinksTotal           *prometheus.CounterVec
	enrichFetchDuration        *prometheus.HistogramVec
	enrichQueueDepth           prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		enrichSubmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "links_enrich_submissions_total",
				Help: "Enrichment requests offered to the queue, labeled by outcome (accepted or dropped).",
			},
			[]string{"outcome"},
		)

		enrichLinksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "links_enrich_links_total",
				Help: "Links processed by the enrichment worker, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		enrichFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "links_enrich_fetch_duration_seconds",
				Help:    "Histogram of browser fetch durations, labeled by result.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"result"},
		)

		enrichQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "links_enrich_queue_depth",
				Help: "Number of messages buffered in the enrichment queue.",
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

// ObserveSubmission records whether a best-effort submission was accepted.
func ObserveSubmission(accepted bool) {
	outcome := "dropped"
	if accepted {
		outcome = "accepted"
	}
	enrichSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveEnrichment records the outcome of one link enrichment.
func ObserveEnrichment(rawURL, result string, duration time.Duration) {
	enrichLinksTotal.WithLabelValues(SanitizeSite(rawURL), result).Inc()
	enrichFetchDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// SetQueueDepth records the current number of buffered queue messages.
func SetQueueDepth(n int) {
	enrichQueueDepth.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
