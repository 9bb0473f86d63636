package schedule

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SlotAllocator hands out per-user daily submission slots. The counter lives
// in Redis and the compare-and-increment runs as one Lua script, so
// concurrent scheduling calls for the same user can never over-book a day.
type SlotAllocator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSlotAllocator builds an allocator over the shared Redis client.
func NewSlotAllocator(client *redis.Client) *SlotAllocator {
	return &SlotAllocator{client: client, ttl: 7 * 24 * time.Hour}
}

func slotKey(userID, date string) string {
	return "apply:slots:" + userID + ":" + date
}

// Reserve claims one slot for the user on the given date (YYYY-MM-DD in the
// user's timezone). Returns whether a slot was granted and the used count
// after the call (the granted slot's 1-based index on success).
func (a *SlotAllocator) Reserve(ctx context.Context, userID, date string, maxSlots int) (bool, int, error) {
	res, err := reserveScript.Run(ctx, a.client,
		[]string{slotKey(userID, date)},
		maxSlots, int(a.ttl.Seconds()),
	).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, err
	}
	granted := arr[0].(int64) == 1
	used := int(arr[1].(int64))
	return granted, used, nil
}

// Used reports the current slot count for the user/date.
func (a *SlotAllocator) Used(ctx context.Context, userID, date string) (int, error) {
	n, err := a.client.Get(ctx, slotKey(userID, date)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

var reserveScript = redis.NewScript(`
local used = tonumber(redis.call('GET', KEYS[1]) or '0')
if used >= tonumber(ARGV[1]) then
  return {0, used}
end
used = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return {1, used}
`)
