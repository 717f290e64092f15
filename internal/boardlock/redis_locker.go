package boardlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const (
	redisLockPrefix = "lock:"
	redisLockExpiry = 8 * time.Second
	extendInterval  = 3 * time.Second
)

// RedisLocker is a Locker shared by every instance using the same Redis.
// Held locks are extended in the background until released.
type RedisLocker struct {
	rs *redsync.Redsync
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{rs: redsync.New(goredis.NewPool(client))}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (context.Context, ReleaseFunc, error) {
	mutex := l.rs.NewMutex(redisLockPrefix+key, redsync.WithExpiry(redisLockExpiry))
	if err := mutex.LockContext(ctx); err != nil {
		return ctx, func() {}, err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(extendInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if ok, err := mutex.Extend(); !ok {
					if err == nil {
						err = errors.New("lock lost")
					}
					cancel(err)
					return
				}
			}
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(done)
			// Unlock with a fresh context: the caller's may already be done,
			// and an unreleased lock still expires on its own.
			_, _ = mutex.Unlock()
			cancel(errors.New("lock released"))
		})
	}, nil
}
