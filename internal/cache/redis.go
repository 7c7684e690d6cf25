package cache

import (
	"context"
	"fmt"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/redis/go-redis/v9"
)

// NewClient creates a Redis client and pings it.
func NewClient(ctx context.Context, cfg internal.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := internal.WithTimeout(ctx, 0)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return client, nil
}
