package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ats-autopilot/internal/config"
	"ats-autopilot/internal/models"
)

// scoreStride packs priority weight into the low bits of the millisecond
// score so one sorted set orders by (scheduledAt, priorityWeight).
const scoreStride = 8

// Score computes the sorted-set score for a job due at runAt with the given
// priority. Earlier times sort first; ties break by priority weight.
func Score(runAt time.Time, priority models.Priority) float64 {
	return float64(runAt.UnixMilli()*scoreStride + int64(priority.Weight()))
}

// dueThreshold is the maximum score considered due at now.
func dueThreshold(now time.Time) float64 {
	return float64(now.UnixMilli()*scoreStride + scoreStride - 1)
}

// RedisQueue coordinates the pending sorted set, in-flight leases, and the
// dead-letter list shared by all workers.
type RedisQueue struct {
	client        *redis.Client
	pendingKey    string
	inflightKey   string
	jobMetaPrefix string
	pausedKey     string
	visibilityTTL time.Duration
	dlqKey        string
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisQueueWithClient(client, cfg)
}

// NewRedisQueueWithClient wires an existing client (used by tests).
func NewRedisQueueWithClient(client *redis.Client, cfg config.Config) *RedisQueue {
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 5 * time.Minute
	}
	dlq := cfg.DLQName
	if dlq == "" {
		dlq = "apply:dlq"
	}
	return &RedisQueue{
		client:        client,
		pendingKey:    "apply:pending",
		inflightKey:   "apply:inflight",
		jobMetaPrefix: "apply:jobmeta:",
		pausedKey:     "apply:paused",
		visibilityTTL: visibility,
		dlqKey:        dlq,
	}
}

func (q *RedisQueue) metaKey(jobID string) string {
	return q.jobMetaPrefix + jobID
}

// Enqueue inserts a job into the pending set in (scheduledAt, priority) order.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, priority models.Priority, runAt time.Time) error {
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.metaKey(jobID), "priority", string(priority))
	pipe.ZAdd(ctx, q.pendingKey, redis.Z{Score: Score(runAt, priority), Member: jobID})
	_, err := pipe.Exec(ctx)
	return err
}

// Claim pops the earliest due job and moves it into in-flight with a
// visibility lease. The whole check-and-pop runs in one Lua script so
// concurrent workers can never claim the same job. Returns "" when the head
// is not yet due or the set is empty.
func (q *RedisQueue) Claim(ctx context.Context, now time.Time) (string, error) {
	res, err := claimScript.Run(ctx, q.client,
		[]string{q.pendingKey, q.inflightKey},
		dueThreshold(now),
		now.Add(q.visibilityTTL).UnixMilli(),
	).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	jobID, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type from claim script: %T", res)
	}
	return jobID, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight job.
func (q *RedisQueue) ExtendLease(ctx context.Context, jobID string, extension time.Duration) error {
	return q.client.ZAdd(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
}

// Ack removes a job from in-flight tracking and its meta record.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.Del(ctx, q.metaKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

// Release moves an in-flight job back to pending at runAt, preserving its
// priority. Used for retries, throttling, and lease recovery.
func (q *RedisQueue) Release(ctx context.Context, jobID string, runAt time.Time) error {
	priority, err := q.priorityOf(ctx, jobID)
	if err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.ZAdd(ctx, q.pendingKey, redis.Z{Score: Score(runAt, priority), Member: jobID})
	_, err = pipe.Exec(ctx)
	return err
}

// RequeueExpired reclaims leases that timed out, returning them to pending
// as immediately due.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	for _, id := range ids {
		if err := q.Release(ctx, id, now); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// Cancel removes a job from the pending set. It refuses jobs already claimed:
// cancellation is best effort before dispatch only.
func (q *RedisQueue) Cancel(ctx context.Context, jobID string) (bool, error) {
	removed, err := q.client.ZRem(ctx, q.pendingKey, jobID).Result()
	if err != nil {
		return false, err
	}
	if removed == 0 {
		return false, nil
	}
	return true, q.client.Del(ctx, q.metaKey(jobID)).Err()
}

// Remove drops a job from every queue structure regardless of state.
func (q *RedisQueue) Remove(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.pendingKey, jobID)
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.LRem(ctx, q.dlqKey, 0, jobID)
	pipe.Del(ctx, q.metaKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

// Pause stops all workers from claiming until Resume. The flag lives in Redis
// so the control plane can pause workers in other processes.
func (q *RedisQueue) Pause(ctx context.Context) error {
	return q.client.Set(ctx, q.pausedKey, "1", 0).Err()
}

// Resume clears the pause flag.
func (q *RedisQueue) Resume(ctx context.Context) error {
	return q.client.Del(ctx, q.pausedKey).Err()
}

// Paused reports whether claiming is currently paused.
func (q *RedisQueue) Paused(ctx context.Context) (bool, error) {
	n, err := q.client.Exists(ctx, q.pausedKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DLQPush appends to the dead-letter queue for operational inspection.
func (q *RedisQueue) DLQPush(ctx context.Context, jobID string) error {
	return q.client.RPush(ctx, q.dlqKey, jobID).Err()
}

// DLQPeek reads the latest dead-lettered job IDs.
func (q *RedisQueue) DLQPeek(ctx context.Context, count int64) ([]string, error) {
	return q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
}

// Stats reports queue depths for the control plane.
type Stats struct {
	Pending  int64 `json:"pending"`
	Inflight int64 `json:"inflight"`
	DLQ      int64 `json:"dlq"`
	Paused   bool  `json:"paused"`
}

// QueueStats returns current depths and pause state.
func (q *RedisQueue) QueueStats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.ZCard(ctx, q.pendingKey)
	inflight := pipe.ZCard(ctx, q.inflightKey)
	dlq := pipe.LLen(ctx, q.dlqKey)
	paused := pipe.Exists(ctx, q.pausedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, err
	}
	return Stats{
		Pending:  pending.Val(),
		Inflight: inflight.Val(),
		DLQ:      dlq.Val(),
		Paused:   paused.Val() > 0,
	}, nil
}

func (q *RedisQueue) priorityOf(ctx context.Context, jobID string) (models.Priority, error) {
	priority, err := q.client.HGet(ctx, q.metaKey(jobID), "priority").Result()
	if err == redis.Nil || priority == "" {
		return models.PriorityNormal, nil
	}
	if err != nil {
		return models.PriorityNormal, err
	}
	return models.Priority(priority), nil
}

var claimScript = redis.NewScript(`
local head = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if #head == 0 then return nil end
if tonumber(head[2]) > tonumber(ARGV[1]) then return nil end
redis.call('ZREM', KEYS[1], head[1])
redis.call('ZADD', KEYS[2], ARGV[2], head[1])
return head[1]
`)
