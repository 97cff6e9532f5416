package redisconn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	retryAttempts  = 3
	retryInterval  = 5 * time.Second
	connectTimeout = 30 * time.Second
)

// Connect dials Redis from a connection URL, retrying until the server
// answers a ping or the attempts run out.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisconn.Connect: %w", err)
	}

	var lastErr error
	for range retryAttempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		} else {
			lastErr = err
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redisconn.Connect: %w", errors.Join(ctx.Err(), lastErr))
		case <-time.After(retryInterval):
		}
	}

	return nil, fmt.Errorf("redisconn.Connect: redis not ready: %w", lastErr)
}
