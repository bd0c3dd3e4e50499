// Package taskq provides the background task queues used for webhook
// deliveries and archive cleanup. Ready tasks live on a Redis list; delayed
// tasks wait in a sorted set keyed by their due time and are promoted onto
// the list on dequeue.
package taskq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements the TaskQueue interface on a Redis backend.
type RedisQueue struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisQueue creates a RedisQueue with the given client. The prefix
// namespaces queue keys so multiple deployments can share an instance.
func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "scoopd"
	}
	return &RedisQueue{client: client, prefix: prefix}
}

func (q *RedisQueue) readyKey(queue string) string {
	return q.prefix + ":queue:" + queue
}

func (q *RedisQueue) delayedKey(queue string) string {
	return q.prefix + ":delayed:" + queue
}

// Enqueue makes the task available immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, queue string, payload []byte) error {
	if queue == "" {
		return errors.New("queue name cannot be empty")
	}
	if err := q.client.RPush(ctx, q.readyKey(queue), payload).Err(); err != nil {
		return fmt.Errorf("redis rpush: %w", err)
	}
	return nil
}

// EnqueueDelayed makes the task available after the delay elapses.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, queue string, payload []byte, delay time.Duration) error {
	if queue == "" {
		return errors.New("queue name cannot be empty")
	}
	if delay <= 0 {
		return q.Enqueue(ctx, queue, payload)
	}
	due := float64(time.Now().Add(delay).UnixMilli())
	if err := q.client.ZAdd(ctx, q.delayedKey(queue), redis.Z{Score: due, Member: payload}).Err(); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

// Dequeue pops the next available task, first promoting due delayed tasks.
// Returns nil with no error when nothing is available.
func (q *RedisQueue) Dequeue(ctx context.Context, queue string) ([]byte, error) {
	if queue == "" {
		return nil, errors.New("queue name cannot be empty")
	}
	if err := q.promoteDue(ctx, queue); err != nil {
		return nil, err
	}

	result, err := q.client.LPop(ctx, q.readyKey(queue)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis lpop: %w", err)
	}
	return []byte(result), nil
}

// promoteDue moves delayed tasks whose due time has passed onto the ready
// list. ZRangeByScore plus ZRem races against concurrent workers, but a
// member removed by the winner is simply skipped by the loser, so each task
// is promoted exactly once.
func (q *RedisQueue) promoteDue(ctx context.Context, queue string) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := q.client.ZRangeByScore(ctx, q.delayedKey(queue), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return fmt.Errorf("redis zrangebyscore: %w", err)
	}

	for _, member := range members {
		removed, remErr := q.client.ZRem(ctx, q.delayedKey(queue), member).Result()
		if remErr != nil {
			return fmt.Errorf("redis zrem: %w", remErr)
		}
		if removed == 0 {
			continue
		}
		if pushErr := q.client.RPush(ctx, q.readyKey(queue), member).Err(); pushErr != nil {
			return fmt.Errorf("redis rpush promoted: %w", pushErr)
		}
	}
	return nil
}
