// Package redis wraps go-redis/v9 for the scorer's cache layer: pooled
// connections, TTL'd get/set, and glob-pattern invalidation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corpuslab/corpus-analytics-platform/pkg/config"
	"github.com/redis/go-redis/v9"
)

// scanBatch is the SCAN page size and the number of keys deleted per DEL
// during pattern invalidation.
const scanBatch = 200

// connectTimeout bounds the startup PING.
const connectTimeout = 5 * time.Second

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient connects and verifies the connection with a PING, so callers
// learn about a bad address at startup instead of on the first request.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the string value stored at key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set stores value at key with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Del deletes one or more keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// FlushByPattern deletes every key matching the glob pattern and returns
// how many were removed. Keys are scanned and deleted in batches; SCAN
// keeps the server responsive where KEYS would block it.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	batch := make([]string, 0, scanBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("deleting %d keys: %w", len(batch), err)
		}
		deleted += int64(len(batch))
		batch = batch[:0]
		return nil
	}

	iter := c.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// IsNilError reports whether err means the key does not exist.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Ping checks the connection, for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
