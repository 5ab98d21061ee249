package notification

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes real-time channel payloads over Redis pub/sub.
// Browser and panel clients subscribe to the queue:* and user:* topics
// through the websocket gateway.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an existing Redis connection.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	return p.client.Publish(ctx, topic, payload).Err()
}
