package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/outreach-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "outreach:ratelimit"

// fixedWindowScript counts a hit in the window key and reports 1 while the
// count is within ARGV[1]. The key expires with its window.
var fixedWindowScript = goredis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if hits > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a fixed-window limiter shared by every API instance
// pointed at the same Redis.
type RedisRateLimiter struct {
	client  *goredis.Client
	limit   int64
	seconds int64
	now     func() time.Time
}

func NewRedisRateLimiter(client *goredis.Client, limit int, window time.Duration) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, limit, window, time.Now)
}

func newRedisRateLimiter(client *goredis.Client, limit int, window time.Duration, nowFn func() time.Time) (*RedisRateLimiter, error) {
	switch {
	case client == nil:
		return nil, fmt.Errorf("redis client is required")
	case limit <= 0:
		return nil, fmt.Errorf("rate limit must be positive, got %d", limit)
	case window < time.Second:
		return nil, fmt.Errorf("rate limit window must be at least 1s, got %s", window)
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &RedisRateLimiter{
		client:  client,
		limit:   int64(limit),
		seconds: int64(window / time.Second),
		now:     nowFn,
	}, nil
}

// Allow counts one request for key in the current window. Keys are compared
// case-insensitively.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false, fmt.Errorf("rate limit key is required")
	}

	window := r.now().Unix() / r.seconds
	windowKey := fmt.Sprintf("%s:%s:%d", keyPrefix, key, window)

	admitted, err := fixedWindowScript.Run(ctx, r.client, []string{windowKey}, r.limit, r.seconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit for %s: %w", key, err)
	}
	return admitted == 1, nil
}
