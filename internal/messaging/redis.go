package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisTransport maps routing keys to Redis channels and wildcard bindings
// to PSUBSCRIBE glob patterns. Channels are flat, so the exchange name is
// folded into the key prefix.
type RedisTransport struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisTransport(client *redis.Client, logger *slog.Logger) *RedisTransport {
	return &RedisTransport{client: client, logger: logger}
}

func (t *RedisTransport) Publish(ctx context.Context, key string, payload []byte) error {
	if err := t.client.Publish(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("Publish %s: %w", key, err)
	}
	return nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, pattern string, handler Handler) error {
	ps := t.client.PSubscribe(ctx, pattern)

	// Force the subscription onto the wire before returning so publishes
	// after Subscribe are not lost.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("Subscribe %s: %w", pattern, err)
	}

	go func() {
		<-ctx.Done()
		if err := ps.Close(); err != nil {
			t.logger.Warn("closing subscription", "pattern", pattern, "error", err)
		}
	}()

	go func() {
		for msg := range ps.Channel() {
			handler(ctx, Message{Key: msg.Channel, Payload: []byte(msg.Payload)})
		}
		t.logger.Info("subscription closed", "pattern", pattern)
	}()

	return nil
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}
