// Package metrics exports Prometheus collectors for the judge: HTTP
// traffic, the submission pipeline, queue depth and sandbox runs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds every collector the judge registers.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SubmissionsCreated  prometheus.Counter
	SubmissionsFinished *prometheus.CounterVec
	QueueDepth          prometheus.Gauge
	FailedJobs          prometheus.Gauge

	SandboxRunDuration *prometheus.HistogramVec
	WaitTimeouts       prometheus.Counter
}

// Get returns the process-wide collector set.
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kodejudge_http_requests_total",
				Help: "HTTP requests by method, route and status code.",
			}, []string{"method", "route", "status"}),
			HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kodejudge_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"}),
			SubmissionsCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "kodejudge_submissions_created_total",
				Help: "Submissions accepted and enqueued.",
			}),
			SubmissionsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kodejudge_submissions_finished_total",
				Help: "Submissions committed to a terminal state, by status.",
			}, []string{"status"}),
			QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "kodejudge_queue_depth",
				Help: "Submission ids waiting on the queue.",
			}),
			FailedJobs: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "kodejudge_failed_jobs",
				Help: "Entries on the failed-job list.",
			}),
			SandboxRunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "kodejudge_sandbox_run_duration_seconds",
				Help:    "Wall time of sandbox invocations by language.",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
			}, []string{"language"}),
			WaitTimeouts: promauto.NewCounter(prometheus.CounterOpts{
				Name: "kodejudge_wait_timeouts_total",
				Help: "Wait-mode calls that returned 408.",
			}),
		}
	})
	return instance
}

// SubmissionCreated bumps the created counter.
func SubmissionCreated() {
	Get().SubmissionsCreated.Inc()
}

// SubmissionFinished records a terminal commit.
func SubmissionFinished(status string) {
	Get().SubmissionsFinished.WithLabelValues(status).Inc()
}

// ObserveSandboxRun records one sandbox invocation.
func ObserveSandboxRun(language string, d time.Duration) {
	Get().SandboxRunDuration.WithLabelValues(language).Observe(d.Seconds())
}

// WaitTimeout records a wait-mode deadline expiry.
func WaitTimeout() {
	Get().WaitTimeouts.Inc()
}
