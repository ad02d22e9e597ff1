// Package kv wraps the Redis client used by the response cache and rate
// limiter.
package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the narrow KV surface the cache and rate limiter depend on, so they can be tested
// against an in-memory fake without a live Redis instance.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// IncrWithTTL increments key by delta and, only if this call created the
	// key (i.e. the resulting value equals delta), sets its TTL.
	IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}

// Client adapts a redis.Client to Store.
type Client struct {
	rdb *redis.Client
}

func New(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	return &Client{rdb: rdb}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) IncrWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	count, err := c.rdb.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, err
	}
	if count == delta {
		c.rdb.Expire(ctx, key, ttl)
	}
	return count, nil
}
