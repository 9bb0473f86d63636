package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing(context.Context) (string, error) { return "", errBoom }
func succeeding(context.Context) (string, error) { return "ok", nil }

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	b := New("profile", Config{FailureThreshold: 10, SuccessThreshold: 2, ResetTimeout: 60 * time.Second})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(t)

	for i := 0; i < 10; i++ {
		if _, err := Do(ctx, b, failing); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("expected open after 10 failures, got %s", b.State())
	}

	// While open, calls fail fast without invoking fn.
	invoked := false
	_, err := Do(ctx, b, func(context.Context) (string, error) {
		invoked = true
		return "", nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if invoked {
		t.Fatal("fn must not be invoked while breaker is open")
	}
}

func TestBreaker_FallbackWhileOpen(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(t)
	for i := 0; i < 10; i++ {
		_, _ = Do(ctx, b, failing)
	}

	v, err := DoWithFallback(ctx, b, succeeding, "cached")
	if err != nil {
		t.Fatalf("fallback path errored: %v", err)
	}
	if v != "cached" {
		t.Fatalf("expected fallback value, got %q", v)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	ctx := context.Background()
	b, now := newTestBreaker(t)
	for i := 0; i < 10; i++ {
		_, _ = Do(ctx, b, failing)
	}

	*now = now.Add(61 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("expected half_open after reset timeout, got %s", b.State())
	}

	if _, err := Do(ctx, b, succeeding); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("one success should not close the breaker, got %s", b.State())
	}
	if _, err := Do(ctx, b, succeeding); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("expected closed after two successes, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b, now := newTestBreaker(t)
	for i := 0; i < 10; i++ {
		_, _ = Do(ctx, b, failing)
	}
	*now = now.Add(61 * time.Second)

	if _, err := Do(ctx, b, failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != Open {
		t.Fatalf("expected reopen after half-open failure, got %s", b.State())
	}
	if _, err := Do(ctx, b, succeeding); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen before next attempt window, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBreaker(t)

	for i := 0; i < 9; i++ {
		_, _ = Do(ctx, b, failing)
	}
	if _, err := Do(ctx, b, succeeding); err != nil {
		t.Fatalf("success call: %v", err)
	}
	// Streak was reset, so nine more failures still leave the breaker closed.
	for i := 0; i < 9; i++ {
		_, _ = Do(ctx, b, failing)
	}
	if b.State() != Closed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestRegistry_ReturnsSameInstance(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	if r.Get("jobs") != r.Get("jobs") {
		t.Fatal("registry must return one breaker per name")
	}
	if r.Get("jobs") == r.Get("profile") {
		t.Fatal("distinct names must get distinct breakers")
	}
	snap := r.Snapshot()
	if snap["jobs"] != "closed" || snap["profile"] != "closed" {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
}
