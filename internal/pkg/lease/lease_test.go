package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestLocker_AcquireExclusive(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewLocker(client)
	ctx := context.Background()

	first, err := l.Acquire(ctx, "daily", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "daily", time.Minute)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	held, err := l.Held(ctx, "daily")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, first.Release(ctx))

	second, err := l.Acquire(ctx, "daily", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, first.token, second.token)
}

func TestLease_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewLocker(client)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "daily", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	fresh, err := l.Acquire(ctx, "daily", time.Minute)
	require.NoError(t, err)

	// 过期的持有者不能释放别人的租约
	require.NoError(t, stale.Release(ctx))
	held, err := l.Held(ctx, "daily")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, fresh.Release(ctx))
	held, err = l.Held(ctx, "daily")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestLocker_WithLease(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewLocker(client)
	ctx := context.Background()

	boom := errors.New("boom")
	err := l.WithLease(ctx, "job", time.Minute, func(ctx context.Context) error {
		_, err := l.Acquire(ctx, "job", time.Minute)
		assert.ErrorIs(t, err, ErrLeaseHeld)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// 出错后租约也已释放
	held, err := l.Held(ctx, "job")
	require.NoError(t, err)
	assert.False(t, held)
}
