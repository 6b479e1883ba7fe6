package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// Locker serializes critical sections keyed by an arbitrary string, such as
// one waitlist promotion per freed slot.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
}

// NewRedisLocker creates a locker that holds a Redis key per critical section.
// Acquisition is retried for up to wait before giving up with ErrLockNotAcquired.
func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisLocker{
		client: client,
		ttl:    ttl,
		retry:  25 * time.Millisecond,
		wait:   wait,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	key = "lock:" + key
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release must outlive a cancelled caller context
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
