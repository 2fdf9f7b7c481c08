// Package redis wraps the Redis connection used for request rate limiting.
// The service itself stores nothing in Redis beyond the sliding-window
// counters; provisioning state always lives in the external system.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Client wraps a go-redis client for the rate limiter.
type Client struct {
	rdb *redis.Client
}

// Config holds the Redis connection settings.
type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// NewClient connects to Redis and verifies the connection.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CheckRateLimit counts a request against a sliding window and reports
// whether it is allowed and how many requests the window already holds.
func (c *Client) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	pipe := c.rdb.TxPipeline()

	// Use a sliding window counter
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	// Remove old entries
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart))

	// Count current entries
	countCmd := pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now), Member: now})

	// Set expiration
	pipe.Expire(ctx, key, window*2) // Keep data a bit longer than window

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("failed to check rate limit: %w", err)
	}

	count := int(countCmd.Val())
	allowed := count < limit

	return allowed, count, nil
}
