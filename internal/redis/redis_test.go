package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-booking-engine/internal/config"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestWithLockRunsAndReleases(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, 0)

	ran := false
	err := locker.WithLock(context.Background(), "waitlist:a", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:waitlist:a"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:waitlist:a"))
}

func TestWithLockRejectsWhenHeld(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, 0)

	require.NoError(t, mr.Set("lock:waitlist:b", "someone-else"))

	err := locker.WithLock(context.Background(), "waitlist:b", func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// the foreign holder's token is left alone
	v, err := mr.Get("lock:waitlist:b")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestWithLockPropagatesError(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client, time.Second, 0)

	boom := errors.New("boom")
	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestWithLockSerializesContenders(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, 2*time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(context.Background(), "slot", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

type cachedThing struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestCacheRoundTripAndDelete(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewCache(client, "catalog:")
	ctx := context.Background()

	var got cachedThing
	ok, err := cache.Get(ctx, "svc:1", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "svc:1", cachedThing{Name: "cleaning", N: 30}, time.Minute))
	ok, err = cache.Get(ctx, "svc:1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, cachedThing{Name: "cleaning", N: 30}, got)

	mr.FastForward(2 * time.Minute)
	ok, err = cache.Get(ctx, "svc:1", &got)
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire after its TTL")

	require.NoError(t, cache.Set(ctx, "svc:1", cachedThing{Name: "x"}, time.Minute))
	require.NoError(t, cache.Delete(ctx, "svc:1"))
	assert.False(t, mr.Exists("catalog:svc:1"))
}

func TestCacheCorruptEntryIsMiss(t *testing.T) {
	mr, client := setupTestRedis(t)
	cache := NewCache(client, "catalog:")
	require.NoError(t, mr.Set("catalog:bad", "{not json"))

	var got cachedThing
	ok, err := cache.Get(context.Background(), "bad", &got)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("catalog:bad"))
}

func TestConnect(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := Connect(context.Background(), config.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	addr := mr.Addr()
	mr.Close()
	_, err = Connect(context.Background(), config.Config{RedisAddr: addr})
	assert.Error(t, err)
}
