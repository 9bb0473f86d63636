package queue

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ats-autopilot/internal/config"
	"ats-autopilot/internal/models"
)

func newTestQueue(t *testing.T) *RedisQueue {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisQueueWithClient(client, config.Config{VisibilityTimeout: time.Minute})
}

func TestClaim_OrdersByTimeThenPriority(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	// Same due time: urgent beats low. An earlier low beats both.
	if err := q.Enqueue(ctx, "low-late", models.PriorityLow, now.Add(-time.Minute)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, "urgent-late", models.PriorityUrgent, now.Add(-time.Minute)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, "low-early", models.PriorityLow, now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	want := []string{"low-early", "urgent-late", "low-late"}
	for i, expected := range want {
		id, err := q.Claim(ctx, now)
		if err != nil {
			t.Fatalf("claim %d: %v", i, err)
		}
		if id != expected {
			t.Fatalf("claim %d: got %q want %q", i, id, expected)
		}
	}
}

func TestClaim_NeverReturnsFutureJobs(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	if err := q.Enqueue(ctx, "future", models.PriorityUrgent, now.Add(time.Hour)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id, err := q.Claim(ctx, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if id != "" {
		t.Fatalf("claimed a job scheduled in the future: %q", id)
	}
}

func TestClaim_AtMostOnce(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	if err := q.Enqueue(ctx, "only", models.PriorityNormal, now.Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	first, err := q.Claim(ctx, now)
	if err != nil || first != "only" {
		t.Fatalf("first claim: id=%q err=%v", first, err)
	}
	second, err := q.Claim(ctx, now)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second != "" {
		t.Fatalf("job claimed twice: %q", second)
	}
}

func TestRelease_PreservesPriority(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	if err := q.Enqueue(ctx, "a", models.PriorityUrgent, now.Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.Release(ctx, "a", now.Add(-time.Second)); err != nil {
		t.Fatalf("release: %v", err)
	}
	// Enqueue a normal-priority job due at the same time: the released urgent
	// job must still come out first.
	if err := q.Enqueue(ctx, "b", models.PriorityNormal, now.Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	id, err := q.Claim(ctx, now)
	if err != nil || id != "a" {
		t.Fatalf("expected released urgent job first, got %q err=%v", id, err)
	}
}

func TestCancel_OnlyPending(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	if err := q.Enqueue(ctx, "pending", models.PriorityNormal, now.Add(time.Hour)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	ok, err := q.Cancel(ctx, "pending")
	if err != nil || !ok {
		t.Fatalf("cancel pending: ok=%v err=%v", ok, err)
	}

	if err := q.Enqueue(ctx, "claimed", models.PriorityNormal, now.Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	ok, err = q.Cancel(ctx, "claimed")
	if err != nil {
		t.Fatalf("cancel claimed: %v", err)
	}
	if ok {
		t.Fatal("in-flight jobs must not be cancellable")
	}
}

func TestRequeueExpired(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	if err := q.Enqueue(ctx, "stuck", models.PriorityHigh, now.Add(-time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Claim(ctx, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Nothing expires before the lease deadline.
	ids, err := q.RequeueExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("lease not yet expired, got %v", ids)
	}

	ids, err = q.RequeueExpired(ctx, now.Add(2*time.Minute), 10)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if len(ids) != 1 || ids[0] != "stuck" {
		t.Fatalf("expected stuck reclaimed, got %v", ids)
	}
	id, err := q.Claim(ctx, now.Add(2*time.Minute))
	if err != nil || id != "stuck" {
		t.Fatalf("reclaimed job not claimable: id=%q err=%v", id, err)
	}
}

func TestPauseResume(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	if err := q.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	paused, err := q.Paused(ctx)
	if err != nil || !paused {
		t.Fatalf("expected paused, got %v err=%v", paused, err)
	}
	if err := q.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	paused, err = q.Paused(ctx)
	if err != nil || paused {
		t.Fatalf("expected resumed, got %v err=%v", paused, err)
	}
}

func TestQueueStats(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)
	now := time.Now()

	_ = q.Enqueue(ctx, "p1", models.PriorityNormal, now.Add(time.Hour))
	_ = q.Enqueue(ctx, "p2", models.PriorityNormal, now.Add(-time.Second))
	if _, err := q.Claim(ctx, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_ = q.DLQPush(ctx, "dead")

	stats, err := q.QueueStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 1 || stats.Inflight != 1 || stats.DLQ != 1 || stats.Paused {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
