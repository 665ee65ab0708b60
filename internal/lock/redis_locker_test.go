package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, "test:lock:", ttl), server
}

func TestRedisLocker_SerializesSameKey(t *testing.T) {
	locker, _ := newTestRedisLocker(t, 5*time.Second)
	locker.retry = time.Millisecond

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			release, err := locker.Acquire(ctx, AccountKey("a1"))
			if !assert.NoError(t, err) {
				return
			}
			defer release()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestRedisLocker_TimesOutWhileHeld(t *testing.T) {
	locker, server := newTestRedisLocker(t, 5*time.Second)

	release, err := locker.Acquire(context.Background(), AccountKey("a1"))
	require.NoError(t, err)
	assert.True(t, server.Exists("test:lock:account:a1"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, AccountKey("a1"))
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.False(t, server.Exists("test:lock:account:a1"))

	again, err := locker.Acquire(context.Background(), AccountKey("a1"))
	require.NoError(t, err)
	again()
}

func TestRedisLocker_ExpiredLeaseReleaseKeepsNewHolder(t *testing.T) {
	locker, server := newTestRedisLocker(t, time.Second)
	key := "test:lock:account:a1"

	stale, err := locker.Acquire(context.Background(), AccountKey("a1"))
	require.NoError(t, err)

	server.FastForward(2 * time.Second)
	require.False(t, server.Exists(key))

	current, err := locker.Acquire(context.Background(), AccountKey("a1"))
	require.NoError(t, err)
	holder, err := server.Get(key)
	require.NoError(t, err)

	stale()
	assert.True(t, server.Exists(key))
	after, err := server.Get(key)
	require.NoError(t, err)
	assert.Equal(t, holder, after)

	current()
	assert.False(t, server.Exists(key))
}

func TestRedisLocker_DifferentKeysDoNotBlock(t *testing.T) {
	locker, _ := newTestRedisLocker(t, 5*time.Second)

	first, err := locker.Acquire(context.Background(), AccountKey("a1"))
	require.NoError(t, err)
	defer first()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := locker.Acquire(ctx, AccountKey("a2"))
	require.NoError(t, err)
	second()
}
