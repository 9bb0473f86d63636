package schedule

import (
	"errors"
	"fmt"
	"time"

	"ats-autopilot/internal/config"
)

// WindowConfig describes one user's daily send window and pacing rules.
type WindowConfig struct {
	Timezone             string         `json:"timezone"`
	WindowStartHour      int            `json:"window_start_hour"`
	WindowEndHour        int            `json:"window_end_hour"`
	PreferredDays        []time.Weekday `json:"preferred_days,omitempty"`
	AvoidWeekends        bool           `json:"avoid_weekends"`
	MaxDailyApplications int            `json:"max_daily_applications"`
	MinDelayBetween      time.Duration  `json:"min_delay_between"`
	MaxDelayBetween      time.Duration  `json:"max_delay_between"`
}

// DefaultWindow builds a WindowConfig from service configuration.
func DefaultWindow(cfg config.Config) WindowConfig {
	return WindowConfig{
		Timezone:             cfg.DefaultTimezone,
		WindowStartHour:      cfg.WindowStartHour,
		WindowEndHour:        cfg.WindowEndHour,
		AvoidWeekends:        cfg.AvoidWeekends,
		MaxDailyApplications: cfg.MaxDailyApplications,
		MinDelayBetween:      cfg.MinDelayBetween,
		MaxDelayBetween:      cfg.MaxDelayBetween,
	}
}

// Validate rejects configurations that could never schedule anything. In
// particular a day-filter excluding every weekday would make the day-advance
// loop spin forever, so it fails here instead.
func (w WindowConfig) Validate() error {
	if w.WindowStartHour < 0 || w.WindowEndHour > 24 || w.WindowStartHour >= w.WindowEndHour {
		return fmt.Errorf("invalid send window [%d, %d)", w.WindowStartHour, w.WindowEndHour)
	}
	if w.MaxDailyApplications <= 0 {
		return errors.New("max_daily_applications must be positive")
	}
	if w.MinDelayBetween < 0 || w.MaxDelayBetween < w.MinDelayBetween {
		return fmt.Errorf("invalid jitter bounds [%s, %s]", w.MinDelayBetween, w.MaxDelayBetween)
	}
	if _, err := w.Location(); err != nil {
		return err
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.dayAllowed(d) {
			return nil
		}
	}
	return errors.New("day filters exclude every weekday")
}

// Location resolves the configured timezone, defaulting to UTC.
func (w WindowConfig) Location() (*time.Location, error) {
	if w.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", w.Timezone, err)
	}
	return loc, nil
}

func (w WindowConfig) dayAllowed(d time.Weekday) bool {
	if w.AvoidWeekends && (d == time.Saturday || d == time.Sunday) {
		return false
	}
	if len(w.PreferredDays) == 0 {
		return true
	}
	for _, p := range w.PreferredDays {
		if p == d {
			return true
		}
	}
	return false
}

// windowStart returns the opening instant of the send window on day's date.
func (w WindowConfig) windowStart(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, w.WindowStartHour, 0, 0, 0, day.Location())
}

// windowEnd returns the closing instant of the send window on day's date.
func (w WindowConfig) windowEnd(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, w.WindowEndHour, 0, 0, 0, day.Location())
}

// slotInterval is the width of one scheduling sub-interval within the window.
func (w WindowConfig) slotInterval() time.Duration {
	return time.Duration(w.WindowEndHour-w.WindowStartHour) * time.Hour / time.Duration(w.MaxDailyApplications)
}
