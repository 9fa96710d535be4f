// Package redis owns the shared Redis connection. Revocations are the only
// Redis-backed data in this service; everything else lives in memory or
// Postgres.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"velos/internal/platform/config"
)

// Client wraps go-redis so stores depend on a velos-owned type rather than
// the driver directly.
type Client struct {
	*redis.Client
}

// Dial connects using the configured URL and verifies the connection with a
// ping. A nil client (empty URL) means revocations stay in memory.
func Dial(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}
