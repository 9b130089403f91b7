package invalidation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus fans events out over one Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
}

// NewRedisBus returns a bus on channel.
func NewRedisBus(client *redis.Client, channel string, log *zap.Logger) *RedisBus {
	if log == nil {
		log = zap.L()
	}
	return &RedisBus{client: client, channel: channel, log: log}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("invalidation publish: %w", err)
	}
	return nil
}

// Subscribe implements Bus.  Undecodable messages are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(context.Context, Event)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("invalidation subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var e Event
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.log.Warn("invalidation message undecodable", zap.String("payload", msg.Payload))
				continue
			}
			fn(ctx, e)
		}
	}
}
