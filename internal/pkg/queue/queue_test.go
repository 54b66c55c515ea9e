package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestQueue_PushPop(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_enrich")
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "job-42", ReasonCreated))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	msg, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "job-42", msg.JobID)
	assert.Equal(t, ReasonCreated, msg.Reason)
	assert.False(t, msg.QueuedAt.IsZero())
}

func TestQueue_FIFO(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_fifo")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(ctx, &EnrichMessage{JobID: fmt.Sprintf("job-%d", i)}))
	}

	for i := 1; i <= 3; i++ {
		msg, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, fmt.Sprintf("job-%d", i), msg.JobID)
	}

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)
}

func TestQueue_PopEmpty(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	q := NewQueue(client, "test_empty")
	msg, err := q.Pop(context.Background(), 10*time.Millisecond)

	// miniredis 对 BRPop 超时的支持不完整，只要求不返回消息
	if err == nil {
		assert.Nil(t, msg)
	}
}

func TestQueue_PopMalformed(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, client.LPush(ctx, "test_bad", "not-json").Err())

	_, err := NewQueue(client, "test_bad").Pop(ctx, time.Second)
	assert.Error(t, err)
}
