package taskq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.Enqueue(ctx, "webhooks", []byte("a")))
	require.NoError(t, q.Enqueue(ctx, "webhooks", []byte("b")))

	first, err := q.Dequeue(ctx, "webhooks")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), first)

	second, err := q.Dequeue(ctx, "webhooks")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), second)

	empty, err := q.Dequeue(ctx, "webhooks")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestMemoryQueue_DelayedPromotion(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.SetClock(func() time.Time { return current })

	require.NoError(t, q.EnqueueDelayed(ctx, "webhooks", []byte("later"), 2*time.Second))

	// Not due yet.
	payload, err := q.Dequeue(ctx, "webhooks")
	require.NoError(t, err)
	assert.Nil(t, payload)
	assert.Equal(t, 1, q.DelayedLen("webhooks"))

	current = current.Add(3 * time.Second)

	payload, err = q.Dequeue(ctx, "webhooks")
	require.NoError(t, err)
	assert.Equal(t, []byte("later"), payload)
	assert.Equal(t, 0, q.DelayedLen("webhooks"))
}

func TestMemoryQueue_ZeroDelayIsImmediate(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.EnqueueDelayed(ctx, "cleanup", []byte("now"), 0))

	payload, err := q.Dequeue(ctx, "cleanup")
	require.NoError(t, err)
	assert.Equal(t, []byte("now"), payload)
}

func TestMemoryQueue_QueuesAreIndependent(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()

	require.NoError(t, q.Enqueue(ctx, "webhooks", []byte("w")))
	require.NoError(t, q.Enqueue(ctx, "cleanup", []byte("c")))

	payload, err := q.Dequeue(ctx, "cleanup")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), payload)

	payload, err = q.Dequeue(ctx, "webhooks")
	require.NoError(t, err)
	assert.Equal(t, []byte("w"), payload)
}
