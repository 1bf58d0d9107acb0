package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)

	require.True(t, c.Set(ctx, "hello", []byte("world"), 0))
	got, ok := c.Get(ctx, "hello")
	require.True(t, ok)
	assert.Equal(t, []byte("world"), got)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], redisKeyPrefix))
	assert.Equal(t, time.Minute, mr.TTL(keys[0]))

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestRedisCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)

	c.Set(ctx, "k", []byte("v"), time.Second)
	mr.FastForward(1100 * time.Millisecond)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, Stats{}, c.Stats(ctx))
}

func TestRedisCache_FlushLeavesForeignKeys(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisCache(t)

	require.NoError(t, mr.Set("other:key", "x"))
	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)
	assert.Equal(t, Stats{Total: 2, Valid: 2}, c.Stats(ctx))

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, Stats{}, c.Stats(ctx))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedisCache_DeleteAndDisable(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisCache(t)

	c.Set(ctx, "a", []byte("1"), 0)
	assert.True(t, c.Delete(ctx, "a"))
	assert.False(t, c.Delete(ctx, "a"))

	c.SetEnabled(false)
	assert.False(t, c.Set(ctx, "a", []byte("1"), 0))
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache("not a url", time.Minute)
	assert.Error(t, err)
}
