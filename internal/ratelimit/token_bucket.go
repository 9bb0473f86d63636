package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"ats-autopilot/internal/config"
)

// PlatformLimiter enforces per-ATS-platform hourly submission caps with a
// distributed token bucket in Redis, so caps hold across all workers, not per
// process.
type PlatformLimiter struct {
	client   *redis.Client
	policies map[string]config.PlatformPolicy
	ttl      time.Duration
}

// NewPlatformLimiter constructs a limiter over the provided pacing policies.
func NewPlatformLimiter(client *redis.Client, policies map[string]config.PlatformPolicy) *PlatformLimiter {
	return &PlatformLimiter{
		client:   client,
		policies: policies,
		ttl:      2 * time.Hour,
	}
}

// Allow consumes one submission token for the platform if available.
// Returns the allowed flag and the remaining token count.
func (l *PlatformLimiter) Allow(ctx context.Context, platform string) (bool, float64, error) {
	policy, ok := l.policies[platform]
	if !ok {
		policy = l.policies["default"]
	}
	capacity := policy.HourlyCap
	if capacity <= 0 {
		capacity = 20
	}
	refillPerSecond := float64(capacity) / 3600.0

	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, l.client,
		[]string{"apply:rate:" + platform},
		capacity, refillPerSecond, now, l.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, err
	}
	allowed := arr[0].(int64) == 1
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	}
	return allowed, tokens, nil
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
