package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys outlive their window so a late INCR never resurrects a fresh counter.
const redisWindowTTLSeconds = int(2 * Window / time.Second)

var redisIncrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter implements a fixed-window rate limiter backed by Redis.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
	}
}

// Allow checks whether the request should be allowed in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if limit <= 0 || key == "" || l == nil || l.client == nil {
		return Result{Allowed: true}, nil
	}
	start := windowStart(now)
	reset := windowReset(start)
	res, errEval := redisIncrScript.Run(ctx, l.client, []string{l.buildKey(key, start)}, redisWindowTTLSeconds).Result()
	if errEval != nil {
		return Result{}, errEval
	}
	count, ok := res.(int64)
	if !ok {
		return Result{}, errors.New("rate limit redis: unexpected response type")
	}
	if count > int64(limit) {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	return Result{Allowed: true, Remaining: limit - int(count), Reset: reset}, nil
}

func (l *RedisLimiter) buildKey(key string, start int64) string {
	startStr := strconv.FormatInt(start, 10)
	if l.prefix == "" {
		return "rl:" + key + ":" + startStr
	}
	return l.prefix + ":rl:" + key + ":" + startStr
}
