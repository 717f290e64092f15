// Package ratelimit throttles repeated attempts with fixed-window counters.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned once a key exceeds its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps failures talking to Redis.
	ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
)

// Limiter counts attempts per key.
type Limiter interface {
	// Allow records an attempt for key and fails with ErrRateLimited when the
	// budget for the current window is spent.
	Allow(ctx context.Context, key string) error
	// Reset forgets the attempts recorded for key.
	Reset(ctx context.Context, key string) error
}

type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// RedisLimiter is a fixed-window limiter shared by every server instance.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
	prefix string
}

func NewRedisLimiter(redisClient redis.UniversalClient, prefix string, cfg Config) *RedisLimiter {
	return &RedisLimiter{
		redis:  redisClient,
		config: cfg,
		prefix: prefix,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	k := l.key(key)
	count, err := l.redis.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, k, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count > int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *RedisLimiter) key(key string) string {
	return "ratelimit:" + l.prefix + ":" + key
}

// Noop never limits. It is used when Redis is not configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) error { return nil }
func (Noop) Reset(context.Context, string) error { return nil }
