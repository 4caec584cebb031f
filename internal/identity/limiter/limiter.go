// Package limiter throttles password logins per email with Redis counters.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned by Check once the failure budget is used up.
	ErrRateLimited = errors.New("too many failed login attempts")
	// ErrRedisUnavailable wraps Redis command failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const defaultKeyPrefix = "seshlock:login:"

// Config holds the lockout budget.
type Config struct {
	MaxFailures int
	Window      time.Duration
	KeyPrefix   string
}

// RedisLimiter counts failed logins per identifier in a fixed window.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a RedisLimiter. Non-positive values fall back to 5 failures per 15 minutes.
func New(client redis.UniversalClient, cfg Config) *RedisLimiter {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}
	return &RedisLimiter{redis: client, config: cfg}
}

// Check returns ErrRateLimited when identifier has reached MaxFailures in the current window.
func (l *RedisLimiter) Check(ctx context.Context, identifier string) error {
	count, err := l.redis.Get(ctx, l.key(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxFailures) {
		return ErrRateLimited
	}
	return nil
}

// Fail records a failed attempt. The window starts at the first failure.
func (l *RedisLimiter) Fail(ctx context.Context, identifier string) error {
	key := l.key(identifier)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return nil
}

// Reset clears the failure counter after a successful login.
func (l *RedisLimiter) Reset(ctx context.Context, identifier string) error {
	if err := l.redis.Del(ctx, l.key(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	if err := l.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) key(identifier string) string {
	return l.config.KeyPrefix + identifier
}
