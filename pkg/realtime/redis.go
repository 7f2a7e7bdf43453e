package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher publishes updates on a Redis channel so every instance's relay can fan them out.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher builds a publisher for channel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, update CourseUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal course update: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

// RunRelay subscribes to channel and forwards each update to local until ctx is done.
func RunRelay(ctx context.Context, client *redis.Client, channel string, local Publisher, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	sub := client.Subscribe(ctx, channel)
	defer sub.Close() //nolint:errcheck

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", channel, err)
	}
	logger.Info("realtime relay subscribed", zap.String("channel", channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			forward(ctx, []byte(msg.Payload), local, logger)
		}
	}
}

func forward(ctx context.Context, payload []byte, local Publisher, logger *zap.Logger) {
	update, err := decodeUpdate(payload)
	if err != nil {
		logger.Warn("ignoring malformed realtime payload", zap.Error(err))
		return
	}
	if err := local.Publish(ctx, update); err != nil {
		logger.Warn("relay publish failed", zap.String("course_id", update.CourseID), zap.Error(err))
	}
}
