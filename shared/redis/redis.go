// Package redis builds the Redis client shared by the rate limiter and the
// health checker.
package redis

import (
	"context"
	"fmt"

	"learning-hub/backend/pkg/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps a go-redis client
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a client from the Redis section of cfg. No
// connection is made until the first command.
func NewRedisClient(cfg *config.Config) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})
	return &RedisClient{client: client}
}

// Client returns the underlying go-redis client
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Ping checks that Redis answers
func (r *RedisClient) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", r.client.Options().Addr, err)
	}
	return nil
}

// Close releases the connection pool
func (r *RedisClient) Close() error {
	return r.client.Close()
}
