// Package upstream talks to the profile, resume, and job-posting services.
// Every call goes through a circuit breaker; the last good response per key
// is kept so an upstream outage degrades to slightly stale data instead of
// failing the whole submission pipeline.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"ats-autopilot/internal/breaker"
	"ats-autopilot/internal/config"
	"ats-autopilot/internal/models"
)

// resource is a breaker-guarded JSON GET client with a last-good cache.
type resource[T any] struct {
	name    string
	baseURL string
	client  *http.Client
	breaker *breaker.Breaker

	mu    sync.RWMutex
	cache map[string]T
}

func newResource[T any](name, baseURL string, timeout time.Duration, br *breaker.Breaker) *resource[T] {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &resource[T]{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: br,
		cache:   make(map[string]T),
	}
}

// get fetches /path, caching the decoded value under key. When the fetch or
// the breaker fails and a cached value exists, the cached value is returned.
func (r *resource[T]) get(ctx context.Context, path, key string) (T, error) {
	v, err := breaker.Do(ctx, r.breaker, func(ctx context.Context) (T, error) {
		return r.fetch(ctx, path)
	})
	if err == nil {
		r.mu.Lock()
		r.cache[key] = v
		r.mu.Unlock()
		return v, nil
	}

	r.mu.RLock()
	cached, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}
	var zero T
	return zero, err
}

func (r *resource[T]) fetch(ctx context.Context, path string) (T, error) {
	var out T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return out, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return out, classifyTransport(r.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return out, classifyStatus(r.name, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, models.NewSubmissionError(models.ErrKindTemporary,
			fmt.Sprintf("%s: malformed response", r.name), err)
	}
	return out, nil
}

// classifyTransport tags connection-level failures at their origin so the
// retry policy downstream never has to guess from message text.
func classifyTransport(name string, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return models.NewSubmissionError(models.ErrKindTimeout, name+": request timed out", err)
	}
	return models.NewSubmissionError(models.ErrKindNetwork, name+": request failed", err)
}

func classifyStatus(name string, code int) error {
	msg := fmt.Sprintf("%s: unexpected status %d", name, code)
	switch {
	case code == http.StatusTooManyRequests:
		return models.NewSubmissionError(models.ErrKindRateLimited, msg, nil)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.NewSubmissionError(models.ErrKindAuthentication, msg, nil)
	case code >= 500:
		return models.NewSubmissionError(models.ErrKindTemporary, msg, nil)
	default:
		return models.NewSubmissionError(models.ErrKindInvalidForm, msg, nil)
	}
}

// Clients bundles the three upstream services.
type Clients struct {
	profiles *resource[models.Profile]
	resumes  *resource[models.Resume]
	jobs     *resource[models.JobPosting]
	answers  *resource[[]models.SavedAnswer]
}

// NewClients wires one breaker per upstream service from the registry.
func NewClients(cfg config.Config, breakers *breaker.Registry) *Clients {
	return &Clients{
		profiles: newResource[models.Profile]("profile-service", cfg.ProfileServiceURL, cfg.UpstreamTimeout, breakers.Get("profile-service")),
		resumes:  newResource[models.Resume]("resume-service", cfg.ResumeServiceURL, cfg.UpstreamTimeout, breakers.Get("resume-service")),
		jobs:     newResource[models.JobPosting]("job-service", cfg.JobServiceURL, cfg.UpstreamTimeout, breakers.Get("job-service")),
		answers:  newResource[[]models.SavedAnswer]("profile-service", cfg.ProfileServiceURL, cfg.UpstreamTimeout, breakers.Get("profile-service")),
	}
}

// FetchProfile loads a user's profile, falling back to the last good copy.
func (c *Clients) FetchProfile(ctx context.Context, userID string) (models.Profile, error) {
	return c.profiles.get(ctx, "/profiles/"+userID, userID)
}

// FetchResume loads the user's default resume.
func (c *Clients) FetchResume(ctx context.Context, userID string) (models.Resume, error) {
	return c.resumes.get(ctx, "/users/"+userID+"/resume", userID)
}

// FetchJob loads a job posting.
func (c *Clients) FetchJob(ctx context.Context, jobID string) (models.JobPosting, error) {
	return c.jobs.get(ctx, "/jobs/"+jobID, jobID)
}

// FetchSavedAnswers loads the user's reusable question answers.
func (c *Clients) FetchSavedAnswers(ctx context.Context, userID string) ([]models.SavedAnswer, error) {
	return c.answers.get(ctx, "/profiles/"+userID+"/answers", userID)
}
