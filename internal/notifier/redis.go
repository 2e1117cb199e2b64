package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// DefaultTopic is the pub/sub channel used when none is configured.
const DefaultTopic = "mcp-gateway:config-events"

// RedisNotifier publishes and subscribes over a single Redis pub/sub topic
// shared by every replica. Grounded on the same redis.Client wiring as
// internal/store/redis.go (itself grounded on the existing code's
// internal/session/cache.go), reused here for a much simpler single-topic
// fan-out instead of a per-session channel.
type RedisNotifier struct {
	client *redis.Client
	topic  string
	logger *slog.Logger
}

// NewRedisNotifier connects to Redis using a "redis://" connection string.
// topic defaults to DefaultTopic when empty.
func NewRedisNotifier(ctx context.Context, connectionString, topic string, logger *slog.Logger) (*RedisNotifier, error) {
	opt, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &RedisNotifier{client: client, topic: topic, logger: logger}, nil
}

// Publish sends ev on the shared topic.
func (n *RedisNotifier) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.client.Publish(ctx, n.topic, payload).Err()
}

// Subscribe opens a pub/sub subscription and decodes incoming events onto
// the returned channel. Malformed payloads are logged and dropped rather
// than terminating the subscription, matching the store's dispatch loop.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := n.client.Subscribe(ctx, n.topic)
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.logger.Warn("dropping malformed config event", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the underlying Redis client.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

var _ Notifier = (*RedisNotifier)(nil)
