package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	eventsv1 "parley/contracts/gen/events/v1"
)

const defaultRedisPrefix = "parley:meeting:"

// Redis fans channel events out to every node through Redis pub/sub. Each
// meeting channel maps to one Redis channel under the prefix.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedis(url string, logger *slog.Logger) (*Redis, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisWithClient(redis.NewClient(options), logger), nil
}

func NewRedisWithClient(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, prefix: defaultRedisPrefix, logger: logger}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Publish(ctx context.Context, channel string, event eventsv1.Envelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.prefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe returns once the pattern subscription is confirmed; messages are
// handled on a background goroutine until ctx ends.
func (r *Redis) Subscribe(ctx context.Context, handler func(channel string, event eventsv1.Envelope)) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	messages := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-messages:
				if !ok {
					return
				}
				var event eventsv1.Envelope
				if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
					if r.logger != nil {
						r.logger.Warn("discarding undecodable bus message",
							"event", "bus_message_invalid",
							"module", "internal/platform/messaging",
							"layer", "platform",
							"redis_channel", message.Channel,
							"error", err.Error(),
						)
					}
					continue
				}
				handler(strings.TrimPrefix(message.Channel, r.prefix), event)
			}
		}
	}()
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
