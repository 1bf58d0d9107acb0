package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "embedcore:cache:"

// RedisCache is a cache tier shared between processes.
// Expiry is delegated to Redis, so Stats never reports expired entries.
type RedisCache struct {
	client     *redis.Client
	defaultTTL time.Duration
	enabled    atomic.Bool
}

// NewRedisCache connects to the Redis server described by url
// (redis://[:password@]host:port/db).
func NewRedisCache(url string, defaultTTL time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisCacheFromClient(redis.NewClient(opts), defaultTTL), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, defaultTTL time.Duration) *RedisCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	c := &RedisCache{client: client, defaultTTL: defaultTTL}
	c.enabled.Store(true)
	return c
}

func (c *RedisCache) key(key string) string {
	return redisKeyPrefix + hashKey(key)
}

// Get retrieves a value. Transport errors are logged and reported as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("redis cache get failed", "error", err)
		}
		return nil, false
	}
	return val, true
}

// Set stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		slog.Warn("redis cache set failed", "error", err)
		return false
	}
	return true
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) bool {
	n, err := c.client.Del(ctx, c.key(key)).Result()
	if err != nil {
		slog.Warn("redis cache delete failed", "error", err)
		return false
	}
	return n > 0
}

// Flush removes every key under the cache prefix.
func (c *RedisCache) Flush(ctx context.Context) error {
	keys, err := c.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Stats counts keys under the cache prefix.
func (c *RedisCache) Stats(ctx context.Context) Stats {
	keys, err := c.scan(ctx)
	if err != nil {
		slog.Warn("redis cache stats failed", "error", err)
		return Stats{}
	}
	return Stats{Total: len(keys), Valid: len(keys)}
}

func (c *RedisCache) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// SetEnabled toggles the cache.
func (c *RedisCache) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Enabled reports whether the cache is enabled.
func (c *RedisCache) Enabled() bool {
	return c.enabled.Load()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
