package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ApplicationsScheduled = prometheus.NewCounter(prometheus.CounterOpts{Name: "applications_scheduled_total", Help: "Applications accepted and queued"})
	SubmissionsCompleted  = prometheus.NewCounter(prometheus.CounterOpts{Name: "submissions_completed_total", Help: "Submissions confirmed by the platform"})
	SubmissionsRetried    = prometheus.NewCounter(prometheus.CounterOpts{Name: "submissions_retried_total", Help: "Submissions that failed and were rescheduled with backoff"})
	SubmissionsTerminal   = prometheus.NewCounter(prometheus.CounterOpts{Name: "submissions_terminal_total", Help: "Submissions that failed permanently"})
	RateLimitThrottles    = prometheus.NewCounter(prometheus.CounterOpts{Name: "rate_limit_throttles_total", Help: "Submissions deferred by platform rate limiting"})
	CaptchaBlocks         = prometheus.NewCounter(prometheus.CounterOpts{Name: "captcha_blocks_total", Help: "Form fills aborted on an unsolved captcha"})
	QueueDepthGauge       = prometheus.NewGauge(prometheus.GaugeOpts{Name: "apply_queue_depth", Help: "Pending applications awaiting dispatch"})
	InFlightGauge         = prometheus.NewGauge(prometheus.GaugeOpts{Name: "apply_inflight", Help: "Applications currently leased by workers"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ApplicationsScheduled,
			SubmissionsCompleted,
			SubmissionsRetried,
			SubmissionsTerminal,
			RateLimitThrottles,
			CaptchaBlocks,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
