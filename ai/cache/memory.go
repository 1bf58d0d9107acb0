package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache is an in-process cache with TTL support.
// Expired entries are evicted lazily on Get and counted by Stats until then.
type MemoryCache struct {
	now        func() time.Time
	entries    map[string]*entry
	defaultTTL time.Duration
	mu         sync.RWMutex
	enabled    atomic.Bool
}

type entry struct {
	expiresAt time.Time
	value     []byte
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryCache creates an enabled memory cache.
func NewMemoryCache(defaultTTL time.Duration, opts ...MemoryOption) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	c := &MemoryCache{
		now:        time.Now,
		entries:    make(map[string]*entry),
		defaultTTL: defaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.enabled.Store(true)
	return c
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	k := hashKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}

	// Check expiration
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, k)
		return nil, false
	}
	return e.value, true
}

// Set stores a value, overwriting any existing entry.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	if !c.Enabled() {
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hashKey(key)] = &entry{value: stored, expiresAt: c.now().Add(ttl)}
	return true
}

// Delete removes a specific entry from the cache.
func (c *MemoryCache) Delete(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := hashKey(key)
	if _, ok := c.entries[k]; ok {
		delete(c.entries, k)
		return true
	}
	return false
}

// Flush removes all entries from the cache.
func (c *MemoryCache) Flush(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	return nil
}

// Stats counts present entries, split by expiry.
func (c *MemoryCache) Stats(context.Context) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	s := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if !now.Before(e.expiresAt) {
			s.Expired++
		}
	}
	s.Valid = s.Total - s.Expired
	return s
}

// SetEnabled toggles the cache. A disabled cache misses every Get and
// ignores every Set.
func (c *MemoryCache) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
}

// Enabled reports whether the cache is enabled.
func (c *MemoryCache) Enabled() bool {
	return c.enabled.Load()
}
