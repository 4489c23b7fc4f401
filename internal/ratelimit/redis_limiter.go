package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "ratelimit:"

// RedisLimiter keeps fixed-window counters in Redis so every instance
// of the service shares one counter space. Store failures fail OPEN:
// rate limiting is an abuse-mitigation control, not a confidentiality
// control, so an unreachable store must not take the API down. This is
// the deliberate opposite of the revocation store's fail-closed policy.
type RedisLimiter struct {
	client  *redis.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewRedisLimiter constructs a store-backed limiter.
func NewRedisLimiter(client *redis.Client, timeout time.Duration, log *zap.Logger) *RedisLimiter {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisLimiter{client: client, timeout: timeout, logger: log}
}

// Check counts a request against the shared window for key.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	storeKey := redisKeyPrefix + key

	count, err := l.client.Incr(ctx, storeKey).Result()
	if err != nil {
		l.logger.Warn("rate limit store unreachable, allowing request", zap.Error(err))
		return l.failOpen(limit, window)
	}

	if count == 1 {
		if err := l.client.PExpire(ctx, storeKey, window).Err(); err != nil {
			l.logger.Warn("failed to set rate limit window expiry", zap.Error(err))
		}
	}

	resetAt := time.Now().Add(window)
	if ttl, err := l.client.PTTL(ctx, storeKey).Result(); err == nil && ttl > 0 {
		resetAt = time.Now().Add(ttl)
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   int(count) <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func (l *RedisLimiter) failOpen(limit int, window time.Duration) Result {
	remaining := limit - 1
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().Add(window),
	}
}
