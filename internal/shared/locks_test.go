package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, wait time.Duration) (*RedisPeriodLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPeriodLocker(client, time.Minute, wait), mr
}

func TestDepreciationLockKey(t *testing.T) {
	assert.Equal(t, "depreciation:company:7:period:2024-03:lock", DepreciationLockKey(7, 2024, 3))
}

func TestRedisPeriodLockerExclusive(t *testing.T) {
	locker, mr := newRedisLocker(t, 0)
	ctx := context.Background()
	key := DepreciationLockKey(1, 2024, 1)

	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))

	_, err = locker.Acquire(ctx, key)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(key))

	release, err = locker.Acquire(ctx, key)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestRedisPeriodLockerWaitsForRelease(t *testing.T) {
	locker, _ := newRedisLocker(t, 2*time.Second)
	ctx := context.Background()
	key := DepreciationLockKey(1, 2024, 2)

	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = release(context.Background())
	}()

	second, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	require.NoError(t, second(ctx))
}

func TestRedisPeriodLockerReleaseAfterExpiry(t *testing.T) {
	locker, mr := newRedisLocker(t, 0)
	ctx := context.Background()
	key := DepreciationLockKey(2, 2024, 1)

	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	other, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	// the stale holder must not free the new holder's lock
	require.ErrorIs(t, release(ctx), ErrLockLost)
	assert.True(t, mr.Exists(key))
	require.NoError(t, other(ctx))
}

func TestLocalPeriodLocker(t *testing.T) {
	locker := NewLocalPeriodLocker(20 * time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "k")
	require.True(t, errors.Is(err, ErrLockNotAcquired))

	other, err := locker.Acquire(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	again, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLocalPeriodLockerHandsOver(t *testing.T) {
	locker := NewLocalPeriodLocker(time.Second)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = release(context.Background())
	}()

	next, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, next(ctx))
}
