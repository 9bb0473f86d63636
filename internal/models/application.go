package models

import (
	"time"
)

// Status enumerates application lifecycle states persisted in Postgres.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Priority of a scheduled application. Lower weight sorts first.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Weight maps a priority to its queue ordering weight (urgent=0 .. low=3).
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// ScheduledJob is one job application awaiting submission.
type ScheduledJob struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	JobID       string         `json:"job_id"`
	JobURL      string         `json:"job_url"`
	Platform    string         `json:"platform"`
	Priority    Priority       `json:"priority"`
	Status      string         `json:"status"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	ExecutedAt  *time.Time     `json:"executed_at,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
	FirstError  *string        `json:"first_error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Terminal reports whether the job has reached an end state.
func (j ScheduledJob) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// DailySchedule tracks per-user slot usage for one calendar day.
type DailySchedule struct {
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"` // YYYY-MM-DD in the user's timezone
	UsedSlots int       `json:"used_slots"`
	MaxSlots  int       `json:"max_slots"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmissionResult is what an ATS adapter reports back after an apply attempt.
type SubmissionResult struct {
	Success                    bool   `json:"success"`
	ApplicationID              string `json:"application_id,omitempty"`
	ScreenshotPath             string `json:"screenshot_path,omitempty"`
	CaptchaDetected            bool   `json:"captcha_detected,omitempty"`
	RequiresManualIntervention bool   `json:"requires_manual_intervention,omitempty"`
}

// AuditLog is a simple audit event row.
type AuditLog struct {
	JobID    string    `json:"job_id"`
	Event    string    `json:"event"`
	Detail   string    `json:"detail"`
	Recorded time.Time `json:"recorded_at"`
}
