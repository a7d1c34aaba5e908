package usecase

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache stores rendered images by key. A miss is reported as redis.Nil.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// RedisCache is a concrete implementation backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a new Redis-backed cache adapter.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Set writes an image to Redis with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Get reads an image back from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.client.Get(ctx, key).Bytes()
}

// NopCache stores nothing; every lookup misses.
type NopCache struct{}

func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NopCache) Get(context.Context, string) ([]byte, error) { return nil, redis.Nil }
