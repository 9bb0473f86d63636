package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"ats-autopilot/internal/models"
)

// ErrNotFound is returned when a job id has no row.
var ErrNotFound = errors.New("application not found")

// Store wraps pgxpool for Postgres persistence of application records.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateJobParams collects inputs required to insert a scheduled application.
type CreateJobParams struct {
	UserID      string
	JobID       string
	JobURL      string
	Platform    string
	Priority    models.Priority
	ScheduledAt time.Time
	MaxRetries  int
	Metadata    map[string]any
}

// CreateJob inserts one scheduled application row.
func (s *Store) CreateJob(ctx context.Context, p CreateJobParams) (models.ScheduledJob, error) {
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if !p.Priority.Valid() {
		p.Priority = models.PriorityNormal
	}
	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return models.ScheduledJob{}, fmt.Errorf("marshal metadata: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO applications (id, user_id, job_id, job_url, platform, priority, status, retry_count, max_retries, scheduled_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, $11)
	`, id, p.UserID, p.JobID, p.JobURL, p.Platform, string(p.Priority), models.StatusPending, p.MaxRetries, p.ScheduledAt, metadataJSON, now)
	if err != nil {
		return models.ScheduledJob{}, fmt.Errorf("insert application: %w", err)
	}

	return models.ScheduledJob{
		ID:          id,
		UserID:      p.UserID,
		JobID:       p.JobID,
		JobURL:      p.JobURL,
		Platform:    p.Platform,
		Priority:    p.Priority,
		Status:      models.StatusPending,
		MaxRetries:  p.MaxRetries,
		ScheduledAt: p.ScheduledAt,
		Metadata:    p.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

const jobColumns = `id, user_id, job_id, job_url, platform, priority, status, retry_count, max_retries, scheduled_at, executed_at, last_error, first_error, metadata, created_at, updated_at`

// GetJob fetches an application by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.ScheduledJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM applications WHERE id = $1`, id)
	return scanJob(row)
}

// GetUserJobs lists a user's applications, newest first.
func (s *Store) GetUserJobs(ctx context.Context, userID string, limit int) ([]models.ScheduledJob, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM applications
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query user applications: %w", err)
	}
	defer rows.Close()

	var jobs []models.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (models.ScheduledJob, error) {
	var job models.ScheduledJob
	var priority string
	var executedAt pgtype.Timestamptz
	var lastErr, firstErr pgtype.Text
	var metadataJSON []byte

	err := row.Scan(&job.ID, &job.UserID, &job.JobID, &job.JobURL, &job.Platform, &priority,
		&job.Status, &job.RetryCount, &job.MaxRetries, &job.ScheduledAt, &executedAt,
		&lastErr, &firstErr, &metadataJSON, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ScheduledJob{}, ErrNotFound
	}
	if err != nil {
		return models.ScheduledJob{}, fmt.Errorf("scan application: %w", err)
	}

	job.Priority = models.Priority(priority)
	if executedAt.Valid {
		t := executedAt.Time
		job.ExecutedAt = &t
	}
	job.LastError = textPtr(lastErr)
	job.FirstError = textPtr(firstErr)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return models.ScheduledJob{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return job, nil
}

// MarkProcessing transitions a claimed job and stamps executed_at.
func (s *Store) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE applications SET status = $2, executed_at = $3, updated_at = NOW() WHERE id = $1
	`, id, models.StatusProcessing, at)
	return err
}

// MarkCompleted transitions a job to completed and clears any last error.
func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE applications SET status = $2, updated_at = NOW(), last_error = NULL WHERE id = $1
	`, id, models.StatusCompleted)
	return err
}

// MarkCancelled sets status cancelled, only from pending.
func (s *Store) MarkCancelled(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE applications SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3
	`, id, models.StatusCancelled, models.StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRetry returns a failed attempt to pending with a bumped retry count and
// a backdated-or-future schedule. The first error ever recorded is retained
// alongside the latest one.
func (s *Store) MarkRetry(ctx context.Context, id string, retryCount int, nextRun time.Time, lastErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE applications
		SET status = $2, retry_count = $3, scheduled_at = $4, last_error = $5,
		    first_error = COALESCE(first_error, $5), updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusPending, retryCount, nextRun, lastErr)
	return err
}

// MarkFailed records a terminal failure. The error detail is always retained
// for human follow-up; failed applications are never silently dropped.
func (s *Store) MarkFailed(ctx context.Context, id string, lastErr string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE applications
		SET status = $2, last_error = $3, first_error = COALESCE(first_error, $3), updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusFailed, lastErr)
	return err
}

// Reschedule moves a job back to pending at a new run time without touching
// its retry budget. Used for throttling deferrals and lease reclamation.
func (s *Store) Reschedule(ctx context.Context, id string, runAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE applications
		SET status = $2, scheduled_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, models.StatusPending, runAt)
	return err
}

// ResetForRetry requeues a terminal job as pending (operator-initiated retry).
func (s *Store) ResetForRetry(ctx context.Context, id string, runAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE applications
		SET status = $2, retry_count = 0, scheduled_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.StatusPending, runAt, models.StatusFailed)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// StatusCounts aggregates application counts by status, optionally per user.
func (s *Store) StatusCounts(ctx context.Context, userID string) (map[string]int64, error) {
	query := `SELECT status, COUNT(*) FROM applications GROUP BY status`
	args := []any{}
	if userID != "" {
		query = `SELECT status, COUNT(*) FROM applications WHERE user_id = $1 GROUP BY status`
		args = append(args, userID)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// DeleteTerminalOlderThan evicts completed/failed/cancelled applications whose
// last update is older than cutoff. Returns how many rows were removed.
func (s *Store) DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM applications
		WHERE status IN ($1, $2, $3) AND updated_at < $4
	`, models.StatusCompleted, models.StatusFailed, models.StatusCancelled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal applications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertDailySchedule mirrors the Redis slot counter for reporting.
func (s *Store) UpsertDailySchedule(ctx context.Context, userID, date string, usedSlots, maxSlots int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_schedules (user_id, date, used_slots, max_slots, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, date) DO UPDATE
		SET used_slots = GREATEST(daily_schedules.used_slots, EXCLUDED.used_slots),
		    max_slots = EXCLUDED.max_slots, updated_at = NOW()
	`, userID, date, usedSlots, maxSlots)
	return err
}

// SavedAnswers loads a user's previously saved application answers.
func (s *Store) SavedAnswers(ctx context.Context, userID string) ([]models.SavedAnswer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, question, answer, saved_at FROM saved_answers WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query saved answers: %w", err)
	}
	defer rows.Close()

	var answers []models.SavedAnswer
	for rows.Next() {
		var a models.SavedAnswer
		if err := rows.Scan(&a.ID, &a.UserID, &a.Question, &a.Answer, &a.SavedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// SaveAnswer stores or refreshes one question/answer pair.
func (s *Store) SaveAnswer(ctx context.Context, userID, question, answer string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO saved_answers (id, user_id, question, answer, saved_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, question) DO UPDATE SET answer = EXCLUDED.answer, saved_at = NOW()
	`, uuid.New().String(), userID, question, answer)
	return err
}

// RecordArtifact persists the location of a submission artifact (screenshot,
// confirmation reference).
func (s *Store) RecordArtifact(ctx context.Context, applicationID, kind, location string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (id, application_id, kind, location, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, uuid.New().String(), applicationID, kind, location)
	return err
}

// AppendAudit adds an audit row.
func (s *Store) AppendAudit(ctx context.Context, jobID, event, detail string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (job_id, event, detail, ts)
		VALUES ($1, $2, $3, NOW())
	`, jobID, event, detail)
	return err
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
