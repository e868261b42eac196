package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poll outcomes recorded by the poller
const (
	PollUpdate   = "update"   // Snapshot delivered to the watcher
	PollError    = "error"    // Status query failed, retried on the next tick
	PollStale    = "stale"    // Snapshot dropped because its status went backwards
	PollDiscard  = "discard"  // Response arrived after the watch was cancelled
	PollGaveUp   = "gave_up"  // Failure cap reached or job unknown to the backend
	PollTerminal = "terminal" // Job reached completed/failed
)

var (
	// API metrics
	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckforge_api_request_duration_seconds",
			Help:    "Backend request duration in seconds by operation",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~160s
		},
		[]string{"operation", "status"},
	)

	rateLimiterWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckforge_rate_limiter_wait_duration_seconds",
			Help:    "Rate limiter wait duration in seconds by backend",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"backend"},
	)

	// Poller metrics
	pollTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckforge_poll_total",
			Help: "Job status polls by outcome",
		},
		[]string{"outcome"},
	)

	activeWatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deckforge_active_watches",
			Help: "Number of jobs currently being polled",
		},
	)

	// Job metrics
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deckforge_jobs_total",
			Help: "Jobs that reached a terminal state",
		},
		[]string{"kind", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deckforge_job_duration_seconds",
			Help:    "Time from first poll to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17min
		},
		[]string{"kind"},
	)
)

// Collector provides convenience methods for recording metrics.
// A nil *Collector is valid and records nothing.
type Collector struct{}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{}
}

// RecordAPIRequest records a backend request duration
func (c *Collector) RecordAPIRequest(operation string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	apiRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordRateLimiterWait records rate limiter wait time
func (c *Collector) RecordRateLimiterWait(backend string, duration time.Duration) {
	if c == nil {
		return
	}
	rateLimiterWaitDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordPoll counts one poll tick by outcome
func (c *Collector) RecordPoll(outcome string) {
	if c == nil {
		return
	}
	pollTotal.WithLabelValues(outcome).Inc()
}

// WatchStarted increments the active watch gauge
func (c *Collector) WatchStarted() {
	if c == nil {
		return
	}
	activeWatches.Inc()
}

// WatchStopped decrements the active watch gauge
func (c *Collector) WatchStopped() {
	if c == nil {
		return
	}
	activeWatches.Dec()
}

// RecordJobTerminal records a job reaching completed/failed
func (c *Collector) RecordJobTerminal(kind, status string, duration time.Duration) {
	if c == nil {
		return
	}
	jobsTotal.WithLabelValues(kind, status).Inc()
	jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// Handler returns the HTTP handler serving the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
