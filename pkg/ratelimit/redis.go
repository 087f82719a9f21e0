package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"learning-hub/backend/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript prunes, counts and conditionally records in one atomic
// step. Scores are Unix microseconds.
//
// KEYS[1] client key
// ARGV[1] cutoff score; entries strictly below it are expired
// ARGV[2] score of the current request
// ARGV[3] limit
// ARGV[4] unique member for the current request
// ARGV[5] key TTL in milliseconds
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisOptions configures a RedisLimiter
type RedisOptions struct {
	// KeyPrefix is prepended to every client identifier
	KeyPrefix string
	// Timeout bounds each Redis round trip made by Allow and Remaining
	Timeout time.Duration
	// FailClosed makes Allow reject requests when Redis errors. By default
	// they are admitted.
	FailClosed bool
	// Logger receives errors swallowed by Allow (optional)
	Logger *logger.Logger
}

// DefaultRedisOptions returns sensible defaults
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		KeyPrefix: "ratelimit:",
		Timeout:   100 * time.Millisecond,
	}
}

// RedisLimiter applies the sliding-window decision against a Redis sorted set
// per client, so several server instances share one quota.
type RedisLimiter struct {
	client  redis.UniversalClient
	limit   int
	window  time.Duration
	options RedisOptions
}

// NewRedisLimiter creates a Redis-backed sliding-window limiter
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, options ...RedisOptions) *RedisLimiter {
	opts := DefaultRedisOptions()
	if len(options) > 0 {
		opts = options[0]
	}

	return &RedisLimiter{
		client:  client,
		limit:   limit,
		window:  window,
		options: opts,
	}
}

// AllowContext runs the sliding-window decision in Redis and reports any
// transport or script error to the caller.
func (rl *RedisLimiter) AllowContext(ctx context.Context, clientID string, now time.Time) (bool, error) {
	ttl := rl.window.Milliseconds()
	if ttl < 1 {
		ttl = 1
	}

	admitted, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{rl.key(clientID)},
		rl.cutoff(now),
		now.UnixMicro(),
		rl.limit,
		uuid.New().String(),
		ttl,
	).Int()
	if err != nil {
		return false, fmt.Errorf("sliding window script for %q: %w", clientID, err)
	}

	return admitted == 1, nil
}

// Allow implements Limiter. When Redis errors the request is admitted, so a
// caller using this limiter alone gets no limiting during an outage, unless
// RedisOptions.FailClosed is set. Wrap it in a FallbackLimiter to keep a
// local quota instead.
func (rl *RedisLimiter) Allow(clientID string, now time.Time) bool {
	ctx, cancel := rl.context()
	defer cancel()

	allowed, err := rl.AllowContext(ctx, clientID, now)
	if err != nil {
		if rl.options.Logger != nil {
			rl.options.Logger.LogError(err, "Redis rate limit check failed",
				"client", clientID,
				"fail_closed", rl.options.FailClosed,
			)
		}
		return !rl.options.FailClosed
	}
	return allowed
}

// RemainingContext reports how many requests clientID has left at now.
func (rl *RedisLimiter) RemainingContext(ctx context.Context, clientID string, now time.Time) (int, error) {
	count, err := rl.client.ZCount(ctx, rl.key(clientID), strconv.FormatInt(rl.cutoff(now), 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count window for %q: %w", clientID, err)
	}

	if remaining := rl.limit - int(count); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// Remaining is RemainingContext with the configured timeout. Errors report
// the full limit.
func (rl *RedisLimiter) Remaining(clientID string, now time.Time) int {
	ctx, cancel := rl.context()
	defer cancel()

	remaining, err := rl.RemainingContext(ctx, clientID, now)
	if err != nil {
		return rl.limit
	}
	return remaining
}

// Limit returns the maximum number of admissions per window.
func (rl *RedisLimiter) Limit() int {
	return rl.limit
}

// Window returns the sliding window length.
func (rl *RedisLimiter) Window() time.Duration {
	return rl.window
}

func (rl *RedisLimiter) key(clientID string) string {
	return rl.options.KeyPrefix + clientID
}

func (rl *RedisLimiter) cutoff(now time.Time) int64 {
	return now.Add(-rl.window).UnixMicro()
}

func (rl *RedisLimiter) context() (context.Context, context.CancelFunc) {
	if rl.options.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), rl.options.Timeout)
}
