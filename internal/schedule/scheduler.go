// Package schedule decides when each application should be attempted. A
// per-user daily window with slot allocation and jitter spreads submissions
// out; the durable priority queue orders them by (scheduledAt, priority).
package schedule

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"ats-autopilot/internal/models"
	"ats-autopilot/internal/queue"
	"ats-autopilot/internal/store"
	"ats-autopilot/internal/telemetry"
)

// maxDayAdvance bounds the day-advance loop. Validate already guarantees at
// least one eligible weekday, so this is only hit by pathological slot
// exhaustion a year out.
const maxDayAdvance = 366

// ErrNotCancellable is returned when a job is past the point of cancellation.
var ErrNotCancellable = errors.New("job is not pending; cancellation is best effort before dispatch")

// JobStore is the slice of persistence the scheduler needs.
type JobStore interface {
	CreateJob(ctx context.Context, p store.CreateJobParams) (models.ScheduledJob, error)
	GetJob(ctx context.Context, id string) (models.ScheduledJob, error)
	GetUserJobs(ctx context.Context, userID string, limit int) ([]models.ScheduledJob, error)
	MarkProcessing(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id string) error
	MarkCancelled(ctx context.Context, id string) (bool, error)
	MarkRetry(ctx context.Context, id string, retryCount int, nextRun time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id string, lastErr string) error
	Reschedule(ctx context.Context, id string, runAt time.Time) error
	ResetForRetry(ctx context.Context, id string, runAt time.Time) (bool, error)
	StatusCounts(ctx context.Context, userID string) (map[string]int64, error)
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	UpsertDailySchedule(ctx context.Context, userID, date string, usedSlots, maxSlots int) error
	AppendAudit(ctx context.Context, jobID, event, detail string) error
}

// Scheduler owns the timing decisions and the durable work queue.
type Scheduler struct {
	store JobStore
	queue *queue.RedisQueue
	slots *SlotAllocator

	now  func() time.Time
	rand *rand.Rand
}

// New constructs a Scheduler.
func New(st JobStore, q *queue.RedisQueue, slots *SlotAllocator) *Scheduler {
	return &Scheduler{
		store: st,
		queue: q,
		slots: slots,
		now:   time.Now,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Request carries one scheduling call's inputs.
type Request struct {
	UserID   string
	JobID    string
	JobURL   string
	Platform string
	Priority models.Priority
	Window   WindowConfig
	Metadata map[string]any
}

// ScheduleApplication assigns the application a send slot inside the user's
// daily window and inserts it into the durable queue.
func (s *Scheduler) ScheduleApplication(ctx context.Context, req Request) (models.ScheduledJob, error) {
	if req.UserID == "" || req.JobID == "" {
		return models.ScheduledJob{}, errors.New("user_id and job_id are required")
	}
	if !req.Priority.Valid() {
		req.Priority = models.PriorityNormal
	}
	if err := req.Window.Validate(); err != nil {
		return models.ScheduledJob{}, fmt.Errorf("window config: %w", err)
	}

	scheduledAt, date, used, err := s.calculateOptimalTime(ctx, req.UserID, req.Window)
	if err != nil {
		return models.ScheduledJob{}, err
	}

	job, err := s.store.CreateJob(ctx, store.CreateJobParams{
		UserID:      req.UserID,
		JobID:       req.JobID,
		JobURL:      req.JobURL,
		Platform:    req.Platform,
		Priority:    req.Priority,
		ScheduledAt: scheduledAt,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return models.ScheduledJob{}, err
	}

	if err := s.queue.Enqueue(ctx, job.ID, job.Priority, scheduledAt); err != nil {
		msg := err.Error()
		_ = s.store.MarkFailed(ctx, job.ID, msg)
		return models.ScheduledJob{}, fmt.Errorf("enqueue: %w", err)
	}

	// Mirror the Redis slot counter for reporting; the counter itself is the
	// source of truth for over-booking protection.
	_ = s.store.UpsertDailySchedule(ctx, req.UserID, date, used, req.Window.MaxDailyApplications)
	_ = s.store.AppendAudit(ctx, job.ID, "scheduled",
		fmt.Sprintf("slot=%d date=%s priority=%s", used, date, job.Priority))
	telemetry.ApplicationsScheduled.Inc()
	return job, nil
}

// calculateOptimalTime finds the next eligible day with a free slot and picks
// that slot's sub-interval plus a bounded random jitter. Each loop iteration
// advances at least one day, so a permanently excluded day cannot stall it.
func (s *Scheduler) calculateOptimalTime(ctx context.Context, userID string, w WindowConfig) (time.Time, string, int, error) {
	loc, err := w.Location()
	if err != nil {
		return time.Time{}, "", 0, err
	}
	now := s.now().In(loc)

	day := now
	if !w.dayAllowed(day.Weekday()) || !now.Before(w.windowEnd(day)) {
		day = s.nextEligibleDay(day, w)
	}

	for i := 0; i < maxDayAdvance; i++ {
		date := day.Format("2006-01-02")
		granted, used, err := s.slots.Reserve(ctx, userID, date, w.MaxDailyApplications)
		if err != nil {
			return time.Time{}, "", 0, fmt.Errorf("reserve slot: %w", err)
		}
		if !granted {
			day = s.nextEligibleDay(day, w)
			continue
		}

		slotTime := w.windowStart(day).Add(w.slotInterval() * time.Duration(used-1))
		// A slot earlier in today's window than the current moment would
		// schedule into the past; shift it to now before applying jitter.
		if slotTime.Before(now) {
			slotTime = now
		}
		jitter := w.MinDelayBetween
		if span := w.MaxDelayBetween - w.MinDelayBetween; span > 0 {
			jitter += time.Duration(s.rand.Int63n(int64(span)))
		}
		// Jitter wider than one slot could swap adjacent send times.
		if lim := w.slotInterval(); lim > 0 && jitter > lim {
			jitter = lim
		}
		return slotTime.Add(jitter), date, used, nil
	}
	return time.Time{}, "", 0, errors.New("no schedulable day within a year")
}

func (s *Scheduler) nextEligibleDay(day time.Time, w WindowConfig) time.Time {
	for {
		day = day.AddDate(0, 0, 1)
		if w.dayAllowed(day.Weekday()) {
			return w.windowStart(day)
		}
	}
}

// GetNextDueJob claims the earliest due pending job, transitioning it to
// processing. Claim-on-read is atomic in Redis, so concurrent workers get
// at most one active worker per job. Returns nil when nothing is due.
func (s *Scheduler) GetNextDueJob(ctx context.Context) (*models.ScheduledJob, error) {
	for {
		id, err := s.queue.Claim(ctx, s.now())
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, nil
		}
		job, err := s.store.GetJob(ctx, id)
		if err != nil {
			// Row vanished under us; drop the claim and keep going.
			_ = s.queue.Ack(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if job.Status != models.StatusPending {
			_ = s.queue.Ack(ctx, id)
			continue
		}
		now := s.now()
		if err := s.store.MarkProcessing(ctx, id, now); err != nil {
			return nil, err
		}
		job.Status = models.StatusProcessing
		job.ExecutedAt = &now
		return &job, nil
	}
}

// MarkCompleted finishes a job. Calling it twice is a no-op the second time.
func (s *Scheduler) MarkCompleted(ctx context.Context, jobID string) error {
	if err := s.store.MarkCompleted(ctx, jobID); err != nil {
		return err
	}
	_ = s.store.AppendAudit(ctx, jobID, "completed", "submission confirmed")
	return s.queue.Ack(ctx, jobID)
}

// MarkFailed handles a retryable failure: while retries remain the job goes
// back to pending with exponential backoff (the Nth retry waits 2^(N-1)
// minutes); once exhausted it lands in the terminal failed state and the DLQ.
func (s *Scheduler) MarkFailed(ctx context.Context, jobID string, cause error) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	if job.RetryCount < job.MaxRetries {
		backoff := time.Duration(1<<job.RetryCount) * time.Minute
		nextRun := s.now().Add(backoff)
		if err := s.store.MarkRetry(ctx, jobID, job.RetryCount+1, nextRun, msg); err != nil {
			return err
		}
		if err := s.queue.Release(ctx, jobID, nextRun); err != nil {
			return err
		}
		_ = s.store.AppendAudit(ctx, jobID, "retry_scheduled",
			fmt.Sprintf("next_run=%s attempt=%d", nextRun.UTC().Format(time.RFC3339), job.RetryCount+1))
		telemetry.SubmissionsRetried.Inc()
		return nil
	}

	return s.failTerminal(ctx, jobID, msg, "retries exhausted")
}

// MarkTerminal records a non-retryable failure immediately, bypassing backoff.
func (s *Scheduler) MarkTerminal(ctx context.Context, jobID string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return s.failTerminal(ctx, jobID, msg, "non-retryable")
}

func (s *Scheduler) failTerminal(ctx context.Context, jobID, msg, reason string) error {
	if err := s.store.MarkFailed(ctx, jobID, msg); err != nil {
		return err
	}
	_ = s.queue.Ack(ctx, jobID)
	_ = s.queue.DLQPush(ctx, jobID)
	_ = s.store.AppendAudit(ctx, jobID, "failed", reason+": "+msg)
	telemetry.SubmissionsTerminal.Inc()
	return nil
}

// Defer pushes a claimed job back to pending at runAt without consuming a
// retry. Used when platform throttling refuses a submission slot.
func (s *Scheduler) Defer(ctx context.Context, jobID string, runAt time.Time) error {
	if err := s.store.Reschedule(ctx, jobID, runAt); err != nil {
		return err
	}
	if err := s.queue.Release(ctx, jobID, runAt); err != nil {
		return err
	}
	_ = s.store.AppendAudit(ctx, jobID, "throttled",
		fmt.Sprintf("deferred to %s", runAt.UTC().Format(time.RFC3339)))
	return nil
}

// CancelJob cancels a job that has not been claimed yet.
func (s *Scheduler) CancelJob(ctx context.Context, jobID string) error {
	removed, err := s.queue.Cancel(ctx, jobID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotCancellable
	}
	ok, err := s.store.MarkCancelled(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotCancellable
	}
	_ = s.store.AppendAudit(ctx, jobID, "cancelled", "cancel requested before dispatch")
	return nil
}

// RetryJob requeues a terminally failed job for another attempt.
func (s *Scheduler) RetryJob(ctx context.Context, jobID string) error {
	now := s.now()
	ok, err := s.store.ResetForRetry(ctx, jobID, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %s is not in a failed state", jobID)
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, jobID, job.Priority, now); err != nil {
		return err
	}
	_ = s.store.AppendAudit(ctx, jobID, "requeued", "operator retry")
	return nil
}

// RemoveJob drops a job from the queue entirely and cancels the record when
// still possible.
func (s *Scheduler) RemoveJob(ctx context.Context, jobID string) error {
	if err := s.queue.Remove(ctx, jobID); err != nil {
		return err
	}
	_, err := s.store.MarkCancelled(ctx, jobID)
	return err
}

// GetJob looks up one application.
func (s *Scheduler) GetJob(ctx context.Context, jobID string) (models.ScheduledJob, error) {
	return s.store.GetJob(ctx, jobID)
}

// GetUserJobs lists a user's applications.
func (s *Scheduler) GetUserJobs(ctx context.Context, userID string, limit int) ([]models.ScheduledJob, error) {
	return s.store.GetUserJobs(ctx, userID, limit)
}

// UserStats summarizes scheduling state for reporting.
type UserStats struct {
	ByStatus map[string]int64 `json:"by_status"`
	Queue    queue.Stats      `json:"queue"`
}

// GetStats aggregates status counts (optionally per user) and queue depths.
func (s *Scheduler) GetStats(ctx context.Context, userID string) (UserStats, error) {
	counts, err := s.store.StatusCounts(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	qstats, err := s.queue.QueueStats(ctx)
	if err != nil {
		return UserStats{}, err
	}
	return UserStats{ByStatus: counts, Queue: qstats}, nil
}

// Pause stops workers from claiming new jobs until Resume.
func (s *Scheduler) Pause(ctx context.Context) error { return s.queue.Pause(ctx) }

// Resume re-enables claiming.
func (s *Scheduler) Resume(ctx context.Context) error { return s.queue.Resume(ctx) }

// Paused reports the control-plane pause flag.
func (s *Scheduler) Paused(ctx context.Context) (bool, error) { return s.queue.Paused(ctx) }

// DeadLetters lists the most recent permanently failed job IDs.
func (s *Scheduler) DeadLetters(ctx context.Context, count int64) ([]string, error) {
	return s.queue.DLQPeek(ctx, count)
}

// ReclaimExpired returns timed-out leases to the pending set. Run
// periodically by the worker so a crashed submission cannot strand a job.
func (s *Scheduler) ReclaimExpired(ctx context.Context, limit int64) (int, error) {
	ids, err := s.queue.RequeueExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.store.Reschedule(ctx, id, s.now()); err != nil {
			return 0, err
		}
		_ = s.store.AppendAudit(ctx, id, "lease_reclaimed", "visibility timeout expired")
	}
	return len(ids), nil
}

// CleanupTerminal evicts completed, failed, and cancelled jobs older than
// maxAge from the active index.
func (s *Scheduler) CleanupTerminal(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.store.DeleteTerminalOlderThan(ctx, s.now().Add(-maxAge))
}
