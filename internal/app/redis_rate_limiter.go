package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var applyRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements distributed rate limiting using Redis. The
// fixed window is atomic: INCR plus PEXPIRE run in one script so concurrent
// callers across instances share a single counter.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "workhive:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

// scopedKey builds the window key. Scope and subject are trimmed; an empty
// scope or subject yields "" and the attempt is not counted.
func (r *RedisRateLimiter) scopedKey(scope, subject string) string {
	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
}

func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (RateLimitResult, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return RateLimitResult{}, nil
	}
	key := r.scopedKey(scope, subject)
	if key == "" {
		return RateLimitResult{}, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	raw, err := applyRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return RateLimitResult{}, err
	}
	return parseLimiterReply(raw, windowMs)
}

// parseLimiterReply decodes the {count, ttl_ms} pair the window script
// returns. A negative ttl (key without expiry) falls back to the full window.
func parseLimiterReply(raw interface{}, windowMs int64) (RateLimitResult, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return RateLimitResult{}, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}

	count, ok := values[0].(int64)
	if !ok {
		return RateLimitResult{}, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}

	ttlMs, ok := values[1].(int64)
	if !ok {
		return RateLimitResult{Count: int(count)}, fmt.Errorf("unexpected redis limiter ttl type: %T", values[1])
	}
	if ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}

	return RateLimitResult{Count: int(count), RetryAfterSeconds: retryAfter}, nil
}
