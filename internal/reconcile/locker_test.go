package reconcile_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/re-search/internal/reconcile"
)

func exerciseMutualExclusion(t *testing.T, locker reconcile.Locker) {
	t.Helper()

	var (
		wg      sync.WaitGroup
		holders atomic.Int32
		maxSeen atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "https://a.edu/")
			if !assert.NoError(t, err) {
				return
			}
			n := holders.Add(1)
			for {
				prev := maxSeen.Load()
				if n <= prev || maxSeen.CompareAndSwap(prev, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			holders.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxSeen.Load())
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	t.Parallel()
	exerciseMutualExclusion(t, reconcile.NewLocalLocker())
}

func TestLocalLocker_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	locker := reconcile.NewLocalLocker()
	unlockA, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_ContextCancel(t *testing.T) {
	t.Parallel()

	locker := reconcile.NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	again, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err, "double unlock must not corrupt the slot")
	again()
}

func newRedisLocker(t *testing.T) (*reconcile.RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return reconcile.NewRedisLocker(client, time.Minute, 5*time.Millisecond), mr
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	t.Parallel()
	locker, _ := newRedisLocker(t)
	exerciseMutualExclusion(t, locker)
}

func TestRedisLocker_HeldLockTimesOut(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	unlock, err := locker.Lock(context.Background(), "src")
	require.NoError(t, err)
	assert.True(t, mr.Exists("reconcile:lock:src"))
	assert.Greater(t, mr.TTL("reconcile:lock:src"), time.Duration(0))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "src")
	require.ErrorIs(t, err, reconcile.ErrLockNotAcquired)

	unlock()
	assert.False(t, mr.Exists("reconcile:lock:src"))
}

func TestRedisLocker_UnlockLeavesForeignToken(t *testing.T) {
	t.Parallel()

	locker, mr := newRedisLocker(t)
	unlock, err := locker.Lock(context.Background(), "src")
	require.NoError(t, err)

	// Lock expired and someone else took it.
	require.NoError(t, mr.Set("reconcile:lock:src", "other-holder"))
	unlock()

	got, err := mr.Get("reconcile:lock:src")
	require.NoError(t, err)
	assert.Equal(t, "other-holder", got)
}
