// Package breaker implements a per-dependency circuit breaker guarding calls
// to unreliable upstream services. State is process-local and resets on restart.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of the breaker state machine.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// ErrOpen is returned when the breaker is open and no fallback was supplied.
var ErrOpen = errors.New("service unavailable: circuit breaker open")

// Config tunes breaker thresholds.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

// DefaultConfig mirrors production thresholds: fail after 10 consecutive
// errors, recover after 2 half-open successes, probe every 60s.
func DefaultConfig() Config {
	return Config{FailureThreshold: 10, SuccessThreshold: 2, ResetTimeout: 60 * time.Second}
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 10
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	return c
}

// Breaker is one circuit breaker instance. State is mutated only by the calls
// it wraps; safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	nextAttempt  time.Time

	now func() time.Time
}

// New constructs a closed breaker.
func New(name string, cfg Config) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), state: Closed, now: time.Now}
}

// Name returns the dependency this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, transitioning Open to HalfOpen if the reset
// timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == Open && !b.now().Before(b.nextAttempt) {
		b.state = HalfOpen
		b.successCount = 0
	}
	return b.state
}

// allow reports whether a call may proceed right now.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked() != Open
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	// One observed success zeroes the failure streak regardless of state.
	// Recovery speed is worth more than caution here: the unattended failure
	// mode is silently dropping a user's application.
	b.failureCount = 0
	if b.state == HalfOpen {
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.successCount = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.state = Open
		b.nextAttempt = b.now().Add(b.cfg.ResetTimeout)
		b.failureCount = 0
		b.successCount = 0
		return
	}
	b.failureCount++
	if b.failureCount >= b.cfg.FailureThreshold {
		b.state = Open
		b.nextAttempt = b.now().Add(b.cfg.ResetTimeout)
	}
}

// Do runs fn through the breaker, failing fast with ErrOpen while open.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !b.allow() {
		return zero, fmt.Errorf("%s: %w", b.name, ErrOpen)
	}
	v, err := fn(ctx)
	if err != nil {
		b.onFailure()
		return zero, err
	}
	b.onSuccess()
	return v, nil
}

// DoWithFallback runs fn through the breaker, returning fallback while open
// (fail-open) instead of raising ErrOpen.
func DoWithFallback[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error), fallback T) (T, error) {
	v, err := Do(ctx, b, fn)
	if errors.Is(err, ErrOpen) {
		return fallback, nil
	}
	return v, err
}

// Registry holds named breakers built once at process start and injected into
// the clients that need them. No ambient singletons.
type Registry struct {
	mu       sync.Mutex
	defaults Config
	breakers map[string]*Breaker
}

// NewRegistry constructs a registry applying cfg to breakers it creates.
func NewRegistry(cfg Config) *Registry {
	return &Registry{defaults: cfg.withDefaults(), breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for name, creating it with registry defaults on
// first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.defaults)
	r.breakers[name] = b
	return b
}

// Snapshot reports each registered breaker's current state.
func (r *Registry) Snapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}
