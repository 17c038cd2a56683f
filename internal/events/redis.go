package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisPublisher fans events out over a redis pub/sub channel.
type RedisPublisher struct {
	r       *redis.Client
	channel string
}

// NewRedisPublisher publishes on channel.
func NewRedisPublisher(r *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{r: r, channel: channel}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis.Publish: marshal: %w", err)
	}
	if err := p.r.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("redis.Publish %s: %w", e.Type, err)
	}
	return nil
}

// Subscribe forwards every event received on channel to handle until ctx is
// cancelled. Malformed messages are logged and dropped.
func Subscribe(ctx context.Context, r *redis.Client, channel string, log *zap.Logger, handle func(Event)) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					log.Warn("events: drop malformed message", zap.Error(err))
					continue
				}
				handle(e)
			}
		}
	}()
}
