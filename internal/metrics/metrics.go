// Package metrics exposes Prometheus collectors for the archive resolver.
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
	lookupsTotal               *prometheus.CounterVec
	submissionsTotal           *prometheus.CounterVec
	submissionAttemptsTotal    *prometheus.CounterVec
	challengesTotal            *prometheus.CounterVec
	solveDurationSeconds       *prometheus.HistogramVec
	pollDurationSeconds        *prometheus.HistogramVec
	resolutionsTotal           *prometheus.CounterVec
	cacheLookupsTotal          *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		lookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_lookups_total",
				Help: "Snapshot lookups, labeled by provider and outcome.",
			},
			[]string{"provider", "status"},
		)

		submissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_submissions_total",
				Help: "Snapshot submissions, labeled by provider and final outcome.",
			},
			[]string{"provider", "status"},
		)

		submissionAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_submission_attempts_total",
				Help: "Individual submission requests including retries.",
			},
			[]string{"provider"},
		)

		challengesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_challenges_total",
				Help: "Challenges encountered, labeled by kind and result.",
			},
			[]string{"kind", "result"},
		)

		solveDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_challenge_solve_duration_seconds",
				Help:    "Time spent waiting on the solving service.",
				Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120},
			},
			[]string{"kind"},
		)

		pollDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_poll_duration_seconds",
				Help:    "Time spent polling a work-in-progress page.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"result"},
		)

		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_resolutions_total",
				Help: "Completed resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_cache_lookups_total",
				Help: "Result cache reads, labeled by hit or miss.",
			},
			[]string{"result"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_rate_limit_delays_seconds",
				Help:    "Histogram of client-side throttle wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname for use as a label.
// It returns "unknown" if the URL is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLookup counts one lookup outcome.
func ObserveLookup(provider, status string) {
	Init()
	lookupsTotal.WithLabelValues(provider, status).Inc()
}

// ObserveSubmission counts one final submission outcome.
func ObserveSubmission(provider, status string) {
	Init()
	submissionsTotal.WithLabelValues(provider, status).Inc()
}

// ObserveSubmissionAttempt counts a single request to a save endpoint.
func ObserveSubmissionAttempt(provider string) {
	Init()
	submissionAttemptsTotal.WithLabelValues(provider).Inc()
}

// ObserveChallenge counts a detected challenge and how it ended.
func ObserveChallenge(kind, result string) {
	Init()
	challengesTotal.WithLabelValues(kind, result).Inc()
}

// ObserveSolveDuration records how long a solve took.
func ObserveSolveDuration(kind string, d time.Duration) {
	Init()
	solveDurationSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// ObservePoll records the duration of a completion poll loop.
func ObservePoll(result string, d time.Duration) {
	Init()
	pollDurationSeconds.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveResolution counts a finished resolution.
func ObserveResolution(outcome string) {
	Init()
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCache counts a cache hit or miss.
func ObserveCache(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimitDelay records the duration of a throttle wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
