// redis.go -- go-redis client and fixed-window rate limiter.
//
// Per-route request limits are counted in Redis so they survive process restarts
// on a single node. Login throttling is NOT stored here; it stays in process memory.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to Redis and returns a ready-to-use client.
// It pings Redis to verify connectivity before returning.
// Call once at startup from main.go...returned client is safe for concurrent use.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	// Parse redisURL to get option values, if err return it
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	// Try and test client to ensure it works correctly
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// RedisRateLimiter implements fixed-window request limits on top of a shared client.
type RedisRateLimiter struct {
	rdb *redis.Client
}

// NewRedisRateLimiter wraps rdb; rdb is owned by the caller.
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb}
}

// windowScript increments the window counter and starts the window on first hit.
// A key that somehow lost its TTL gets one again so it can never pin forever.
// KEYS[1] = counter key, ARGV[1] = window in ms. Returns {count, pttl}.
var windowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
    ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Allow records one request against key under policy and reports whether it fits.
// Returns an error only for Redis failures; a denial is a Decision with Allowed=false.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string, policy RateLimit) (RateDecision, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", policy.Name, key)

	res, err := windowScript.Run(ctx, l.rdb, []string{redisKey}, policy.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return RateDecision{}, fmt.Errorf("running rate limit script: %w", err)
	}
	if len(res) != 2 {
		return RateDecision{}, fmt.Errorf("unexpected rate limit script reply: %v", res)
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	d := RateDecision{
		Allowed:    count <= policy.Max,
		Limit:      policy.Max,
		Remaining:  max(0, policy.Max-count),
		ResetAfter: ttl,
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}

// CheckHealth pings Redis; used by GET /health.
func (l *RedisRateLimiter) CheckHealth(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}
