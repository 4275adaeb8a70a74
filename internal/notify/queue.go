package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Queue carries notifications from request handlers to the worker.
type Queue interface {
	Publish(ctx context.Context, n Notification) error
	Consume(ctx context.Context) (<-chan Notification, error)
}

// InMemoryQueue is a bounded channel-backed queue for dev/testing.
type InMemoryQueue struct {
	ch chan Notification
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(size int) *InMemoryQueue {
	return &InMemoryQueue{ch: make(chan Notification, size)}
}

// Publish enqueues a notification.
func (q *InMemoryQueue) Publish(ctx context.Context, n Notification) error {
	select {
	case q.ch <- n:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for the worker.
func (q *InMemoryQueue) Consume(ctx context.Context) (<-chan Notification, error) {
	out := make(chan Notification)
	go func() {
		defer close(out)
		for {
			select {
			case n := <-q.ch:
				out <- n
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue using LPUSH/BRPOP.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue on the given list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "attendance:notifications"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a notification as JSON.
func (q *RedisQueue) Publish(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Consume streams notifications using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Notification, error) {
	out := make(chan Notification)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var n Notification
				if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
					log.Printf("notify: drop malformed message: %v", err)
					continue
				}
				out <- n
			}
		}
	}()
	return out, nil
}

// QueueNotifier satisfies Notifier by publishing onto a Queue. Stamps id and
// creation time at publish.
type QueueNotifier struct {
	queue Queue
}

// NewQueueNotifier wraps a queue.
func NewQueueNotifier(queue Queue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

// Notify publishes the notification.
func (p *QueueNotifier) Notify(ctx context.Context, userID int64, title, message string, kind Kind) error {
	return p.queue.Publish(ctx, Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	})
}
