// Package cache provides TTL caches for expensive, deterministic calls.
package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// DefaultTTL is used when a Set call passes a non-positive TTL.
const DefaultTTL = time.Hour

// Stats reports cache occupancy.
type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Expired int `json:"expired"`
}

// Cache stores opaque values under string keys with per-entry expiry.
// Keys are digested before storage, so callers may pass arbitrary text.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
	Flush(ctx context.Context) error
	Stats(ctx context.Context) Stats
	SetEnabled(enabled bool)
	Enabled() bool
}

// Recorder receives cache hit and miss events.
type Recorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CallKey builds a cache key from a function name and its arguments.
func CallKey(fn string, args ...any) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, fn)
	for _, arg := range args {
		parts = append(parts, fmt.Sprint(arg))
	}
	return strings.Join(parts, "|")
}

// hashKey digests a key to a fixed-width hex string.
func hashKey(key string) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
