package taskq

import (
	"context"
	"sync"
	"time"
)

type delayedTask struct {
	payload []byte
	due     time.Time
}

// MemoryQueue implements the TaskQueue interface in process memory, for
// development and tests.
type MemoryQueue struct {
	mu      sync.Mutex
	ready   map[string][][]byte
	delayed map[string][]delayedTask
	now     func() time.Time
}

// NewMemoryQueue creates an empty in-memory task queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		ready:   make(map[string][][]byte),
		delayed: make(map[string][]delayedTask),
		now:     time.Now,
	}
}

// SetClock overrides the queue's clock, for tests that advance time.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue makes the task available immediately.
func (q *MemoryQueue) Enqueue(_ context.Context, queue string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready[queue] = append(q.ready[queue], append([]byte(nil), payload...))
	return nil
}

// EnqueueDelayed makes the task available after the delay elapses.
func (q *MemoryQueue) EnqueueDelayed(_ context.Context, queue string, payload []byte, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if delay <= 0 {
		q.ready[queue] = append(q.ready[queue], append([]byte(nil), payload...))
		return nil
	}
	q.delayed[queue] = append(q.delayed[queue], delayedTask{
		payload: append([]byte(nil), payload...),
		due:     q.now().Add(delay),
	})
	return nil
}

// Dequeue pops the next available task, promoting due delayed tasks first.
// Returns nil with no error when nothing is available.
func (q *MemoryQueue) Dequeue(_ context.Context, queue string) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	remaining := q.delayed[queue][:0]
	for _, task := range q.delayed[queue] {
		if !task.due.After(now) {
			q.ready[queue] = append(q.ready[queue], task.payload)
		} else {
			remaining = append(remaining, task)
		}
	}
	q.delayed[queue] = remaining

	if len(q.ready[queue]) == 0 {
		return nil, nil
	}
	payload := q.ready[queue][0]
	q.ready[queue] = q.ready[queue][1:]
	return payload, nil
}

// DelayedLen returns how many tasks are waiting on their due time, for tests.
func (q *MemoryQueue) DelayedLen(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.delayed[queue])
}
