// Package dispatch drives the worker loop: it claims due applications from
// the scheduler, paces them per ATS platform, and pushes submissions through
// platform adapters behind circuit breakers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"ats-autopilot/internal/breaker"
	"ats-autopilot/internal/config"
	"ats-autopilot/internal/models"
	"ats-autopilot/internal/ratelimit"
	"ats-autopilot/internal/schedule"
	"ats-autopilot/internal/telemetry"
)

// Adapter submits one prepared application to a specific ATS platform.
type Adapter interface {
	Apply(ctx context.Context, app models.ApplicationData) (models.SubmissionResult, error)
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, app models.ApplicationData) (models.SubmissionResult, error)

func (f AdapterFunc) Apply(ctx context.Context, app models.ApplicationData) (models.SubmissionResult, error) {
	return f(ctx, app)
}

// Preparer assembles the application bundle (profile, resume, posting) for a
// claimed job.
type Preparer interface {
	Prepare(ctx context.Context, job models.ScheduledJob) (models.ApplicationData, error)
}

// Archiver stores proof-of-submission artifacts. Archiving is best effort;
// a failed archive never fails the submission.
type Archiver interface {
	Archive(ctx context.Context, applicationID, screenshotPath string) (string, error)
}

// Recorder persists the ATS confirmation reference an adapter reports on
// success.
type Recorder interface {
	RecordArtifact(ctx context.Context, applicationID, kind, location string) error
}

// Dispatcher owns the submission loop.
type Dispatcher struct {
	cfg      config.Config
	sched    *schedule.Scheduler
	limiter  *ratelimit.PlatformLimiter
	breakers *breaker.Registry
	preparer Preparer
	archiver Archiver
	recorder Recorder
	policies map[string]config.PlatformPolicy

	mu             sync.RWMutex
	adapters       map[string]Adapter
	defaultAdapter Adapter

	rand  *rand.Rand
	sleep func(time.Duration)
}

func New(cfg config.Config, sched *schedule.Scheduler, limiter *ratelimit.PlatformLimiter, breakers *breaker.Registry, preparer Preparer, policies map[string]config.PlatformPolicy) *Dispatcher {
	if policies == nil {
		policies = config.DefaultPlatformPolicies()
	}
	return &Dispatcher{
		cfg:      cfg,
		sched:    sched,
		limiter:  limiter,
		breakers: breakers,
		preparer: preparer,
		policies: policies,
		adapters: make(map[string]Adapter),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:    time.Sleep,
	}
}

// RegisterAdapter binds an adapter to a platform name. The adapter registered
// under "default" handles platforms with no dedicated integration.
func (d *Dispatcher) RegisterAdapter(platform string, a Adapter) {
	if platform == "" || a == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if platform == "default" {
		d.defaultAdapter = a
		return
	}
	d.adapters[platform] = a
}

// SetArchiver installs the artifact store used for submission screenshots.
func (d *Dispatcher) SetArchiver(a Archiver) { d.archiver = a }

// SetRecorder installs the store that keeps ATS confirmation references.
func (d *Dispatcher) SetRecorder(r Recorder) { d.recorder = r }

func (d *Dispatcher) adapterFor(platform string) (Adapter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if a, ok := d.adapters[platform]; ok {
		return a, nil
	}
	if d.defaultAdapter != nil {
		return d.defaultAdapter, nil
	}
	return nil, models.NewSubmissionError(models.ErrKindUnsupportedPlatform,
		fmt.Sprintf("no adapter registered for platform %q", platform), nil)
}

func (d *Dispatcher) policyFor(platform string) config.PlatformPolicy {
	if p, ok := d.policies[platform]; ok {
		return p
	}
	return d.policies["default"]
}

// Run starts the dispatch loop until context cancellation. Submissions run on
// a bounded pool so one slow ATS cannot stall the queue.
func (d *Dispatcher) Run(ctx context.Context) error {
	concurrency := d.cfg.SubmitConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	poll := d.cfg.WorkerPollInterval
	if poll <= 0 {
		poll = time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if paused, _ := d.sched.Paused(ctx); paused {
			d.sleep(poll)
			continue
		}
		if _, err := d.sched.ReclaimExpired(ctx, 100); err == nil {
			if stats, err := d.sched.GetStats(ctx, ""); err == nil {
				telemetry.QueueDepthGauge.Set(float64(stats.Queue.Pending))
				telemetry.InFlightGauge.Set(float64(stats.Queue.Inflight))
			}
		}

		job, err := d.sched.GetNextDueJob(ctx)
		if err != nil || job == nil {
			d.sleep(poll)
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Claimed but shutting down; put it back untouched.
			_ = d.sched.Defer(ctx, job.ID, job.ScheduledAt)
			return ctx.Err()
		}
		wg.Add(1)
		go func(job models.ScheduledJob) {
			defer wg.Done()
			defer func() { <-sem }()
			d.Process(ctx, job)
		}(*job)
	}
}

// Process handles one claimed application end to end.
func (d *Dispatcher) Process(ctx context.Context, job models.ScheduledJob) {
	platform := job.Platform
	if platform == "" {
		platform = DetectPlatform(job.JobURL)
	}
	policy := d.policyFor(platform)

	allowed, _, err := d.limiter.Allow(ctx, platform)
	if err != nil {
		// Fail open: a limiter outage should not strand due jobs, but it
		// must not disable pacing silently either.
		log.Printf("rate limiter check for %s failed, proceeding unpaced: %v", platform, err)
	} else if !allowed {
		telemetry.RateLimitThrottles.Inc()
		_ = d.sched.Defer(ctx, job.ID, time.Now().Add(CalculateDelay(policy, d.rand)))
		return
	}

	app, err := d.preparer.Prepare(ctx, job)
	if err != nil {
		d.recordFailure(ctx, job, err)
		return
	}

	adapter, err := d.adapterFor(platform)
	if err != nil {
		d.recordFailure(ctx, job, err)
		return
	}

	br := d.breakers.Get(platform)
	result, err := breaker.Do(ctx, br, func(ctx context.Context) (models.SubmissionResult, error) {
		return d.submitWithRetry(ctx, adapter, app)
	})
	if errors.Is(err, breaker.ErrOpen) {
		// Platform is shedding load; come back after the pacing delay without
		// charging the job a retry.
		_ = d.sched.Defer(ctx, job.ID, time.Now().Add(CalculateDelay(policy, d.rand)))
		return
	}
	if err != nil {
		d.recordFailure(ctx, job, err)
		return
	}

	if d.recorder != nil && result.ApplicationID != "" {
		if err := d.recorder.RecordArtifact(ctx, job.ID, "confirmation", result.ApplicationID); err != nil {
			log.Printf("record confirmation %s for %s: %v", result.ApplicationID, job.ID, err)
		}
	}
	if d.archiver != nil && result.ScreenshotPath != "" {
		_, _ = d.archiver.Archive(ctx, job.ID, result.ScreenshotPath)
	}
	_ = d.sched.MarkCompleted(ctx, job.ID)
	telemetry.SubmissionsCompleted.Inc()
}

// submitWithRetry attempts a submission up to SubmitAttempts times with a
// doubling backoff between tries. Only transient failures are retried here;
// hard failures surface immediately so the job can be routed by kind.
func (d *Dispatcher) submitWithRetry(ctx context.Context, adapter Adapter, app models.ApplicationData) (models.SubmissionResult, error) {
	attempts := d.cfg.SubmitAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := d.cfg.SubmitBackoff
	if backoff <= 0 {
		backoff = 10 * time.Second
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return models.SubmissionResult{}, ctx.Err()
			default:
			}
			d.sleep(backoff)
			backoff *= 2
		}
		result, err := adapter.Apply(ctx, app)
		if err == nil {
			// Adapters may flag failure in the result instead of returning
			// an error; treat that the same as a tagged error.
			if !result.Success {
				return result, resultError(result)
			}
			return result, nil
		}
		if !models.KindOf(err).Retryable() {
			return models.SubmissionResult{}, err
		}
		lastErr = err
	}
	return models.SubmissionResult{}, lastErr
}

// resultError classifies a submission the adapter reported as unsuccessful
// without raising an error of its own.
func resultError(result models.SubmissionResult) error {
	switch {
	case result.CaptchaDetected:
		return models.NewSubmissionError(models.ErrKindCaptcha, "captcha challenge blocked submission", nil)
	case result.RequiresManualIntervention:
		return models.NewSubmissionError(models.ErrKindInvalidForm, "submission requires manual intervention", nil)
	default:
		return models.NewSubmissionError(models.ErrKindUnknown, "adapter reported unsuccessful submission", nil)
	}
}

// recordFailure routes an error to the retry path or terminal state based on
// its kind. Captcha walls additionally flag the job for manual follow-up.
func (d *Dispatcher) recordFailure(ctx context.Context, job models.ScheduledJob, err error) {
	kind := models.KindOf(err)
	if kind == models.ErrKindCaptcha {
		telemetry.CaptchaBlocks.Inc()
	}
	if kind.Retryable() {
		_ = d.sched.MarkFailed(ctx, job.ID, err)
		return
	}
	_ = d.sched.MarkTerminal(ctx, job.ID, err)
}

// BulkItem is one entry in a batch scheduling request.
type BulkItem struct {
	JobID    string         `json:"job_id"`
	JobURL   string         `json:"job_url"`
	Platform string         `json:"platform,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// BulkOutcome reports the scheduling result for one batch entry.
type BulkOutcome struct {
	JobID string               `json:"job_id"`
	Job   *models.ScheduledJob `json:"job,omitempty"`
	Error string               `json:"error,omitempty"`
}

// AddBulkApplications schedules a batch in list order. Slots are reserved
// sequentially, so earlier entries receive earlier send times; a bad entry is
// reported and skipped without aborting the rest.
func (d *Dispatcher) AddBulkApplications(ctx context.Context, userID string, priority models.Priority, window schedule.WindowConfig, items []BulkItem) []BulkOutcome {
	outcomes := make([]BulkOutcome, 0, len(items))
	for _, item := range items {
		platform := item.Platform
		if platform == "" {
			platform = DetectPlatform(item.JobURL)
		}
		job, err := d.sched.ScheduleApplication(ctx, schedule.Request{
			UserID:   userID,
			JobID:    item.JobID,
			JobURL:   item.JobURL,
			Platform: platform,
			Priority: priority,
			Window:   window,
			Metadata: item.Metadata,
		})
		if err != nil {
			outcomes = append(outcomes, BulkOutcome{JobID: item.JobID, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, BulkOutcome{JobID: item.JobID, Job: &job})
	}
	return outcomes
}
