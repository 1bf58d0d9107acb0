package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Memo memoizes a function's results in a Cache.
// Concurrent calls with the same key share one invocation; errors are not cached.
type Memo[T any] struct {
	cache    Cache
	recorder Recorder
	group    singleflight.Group
	name     string
	ttl      time.Duration
}

// NewMemo creates a memoizer. name labels hit/miss metrics; recorder may be nil.
func NewMemo[T any](c Cache, name string, ttl time.Duration, recorder Recorder) *Memo[T] {
	return &Memo[T]{cache: c, name: name, ttl: ttl, recorder: recorder}
}

// Do returns the cached value for key, or calls fn and caches its result.
func (m *Memo[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	if m.cache == nil || !m.cache.Enabled() {
		return fn(ctx)
	}

	if raw, ok := m.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			m.hit()
			return v, nil
		}
		slog.Warn("discarding undecodable cache entry", "memo", m.name)
		m.cache.Delete(ctx, key)
	}
	m.miss()

	out, err, _ := m.group.Do(key, func() (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		if raw, mErr := json.Marshal(v); mErr == nil {
			m.cache.Set(ctx, key, raw, m.ttl)
		}
		return v, nil
	})
	v, _ := out.(T)
	return v, err
}

func (m *Memo[T]) hit() {
	if m.recorder != nil {
		m.recorder.RecordCacheHit(m.name)
	}
}

func (m *Memo[T]) miss() {
	if m.recorder != nil {
		m.recorder.RecordCacheMiss(m.name)
	}
}
