package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/embedcore/ai/cache"
	"github.com/hrygo/embedcore/ai/vector/hnsw"
	"github.com/hrygo/embedcore/internal/profile"
	apiv1 "github.com/hrygo/embedcore/server/router/api/v1"
	"github.com/hrygo/embedcore/store"
	"github.com/hrygo/embedcore/store/db"
)

func newTestProfile(t *testing.T) *profile.Profile {
	t.Helper()
	return &profile.Profile{
		Mode:               "dev",
		Driver:             "sqlite",
		DSN:                filepath.Join(t.TempDir(), "server.db"),
		Version:            "test",
		EmbeddingProvider:  "deterministic",
		VectorBackend:      profile.VectorBackendNone,
		CacheEnabled:       true,
		CacheTTL:           time.Hour,
		KeyCacheTTL:        time.Minute,
		RetryMaxAttempts:   3,
		RetryBaseDelay:     time.Millisecond,
		BreakerThreshold:   5,
		BreakerRecovery:    time.Minute,
		HealthCheckTimeout: time.Second,
	}
}

func newTestStore(t *testing.T, p *profile.Profile) *store.Store {
	t.Helper()
	driver, err := db.NewDBDriver(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestServer(t *testing.T, p *profile.Profile) *Server {
	t.Helper()
	s, err := NewServer(context.Background(), p, newTestStore(t, p))
	require.NoError(t, err)
	t.Cleanup(s.Components.Close)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, newTestProfile(t))

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.False(t, resp.VectorIndex)
}

func TestAPIDisabledWithoutSecret(t *testing.T) {
	s := newTestServer(t, newTestProfile(t))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsAfterMessage(t *testing.T) {
	p := newTestProfile(t)
	p.JWTSecret = "secret"
	p.VectorBackend = profile.VectorBackendHNSW
	s := newTestServer(t, p)

	token, err := apiv1.GenerateAccessToken("u1", time.Hour, []byte("secret"))
	require.NoError(t, err)

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/messages",
			strings.NewReader(`{"session_id":"s","platform":"web","text":"hello"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	body := get(t, s.Handler(), "/metrics").Body.String()
	assert.Contains(t, body, `embedcore_pipeline_results_total{status="success"} 2`)
	assert.Contains(t, body, `embedcore_cache_hits_total{cache="embedding"} 1`)
	assert.Contains(t, body, `embedcore_store_writes_total{outcome="success"} 2`)

	rec := get(t, s.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health.VectorIndex)
}

func TestNewComponentsBackends(t *testing.T) {
	ctx := context.Background()

	t.Run("hnsw warms from store", func(t *testing.T) {
		p := newTestProfile(t)
		st := newTestStore(t, p)

		first, err := NewComponents(ctx, p, st)
		require.NoError(t, err)
		require.True(t, first.Facade.Upsert(ctx, "memo", "a", "alpha").OK())
		first.Close()

		p.VectorBackend = profile.VectorBackendHNSW
		second, err := NewComponents(ctx, p, st)
		require.NoError(t, err)
		defer second.Close()
		idx, ok := second.Index.(*hnsw.Index)
		require.True(t, ok)
		assert.Equal(t, 1, idx.Len())
	})

	t.Run("redis cache", func(t *testing.T) {
		mr := miniredis.RunT(t)
		p := newTestProfile(t)
		p.RedisURL = "redis://" + mr.Addr()
		c, err := NewComponents(ctx, p, newTestStore(t, p))
		require.NoError(t, err)
		defer c.Close()
		_, ok := c.Cache.(*cache.RedisCache)
		assert.True(t, ok)

		_, err = c.Embedder.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, 1, c.Cache.Stats(ctx).Total)
	})

	t.Run("disabled cache", func(t *testing.T) {
		p := newTestProfile(t)
		p.CacheEnabled = false
		c, err := NewComponents(ctx, p, newTestStore(t, p))
		require.NoError(t, err)
		defer c.Close()
		assert.False(t, c.Cache.Enabled())
	})

	t.Run("invalid provider", func(t *testing.T) {
		p := newTestProfile(t)
		p.EmbeddingProvider = "openai"
		_, err := NewComponents(ctx, p, newTestStore(t, p))
		assert.Error(t, err)
	})
}

func TestStartAndShutdown(t *testing.T) {
	p := newTestProfile(t)
	p.Addr = "127.0.0.1"
	p.Port = 0
	st := newTestStore(t, p)
	s, err := NewServer(context.Background(), p, st)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Shutdown(context.Background())
}

func TestRunningServerEvictsCacheOnlyOnRead(t *testing.T) {
	p := newTestProfile(t)
	p.Addr = "127.0.0.1"
	p.Port = 0
	s, err := NewServer(context.Background(), p, newTestStore(t, p))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(context.Background())

	ctx := context.Background()
	require.True(t, s.Components.Cache.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, cache.Stats{Total: 1, Valid: 0, Expired: 1}, s.Components.Cache.Stats(ctx))

	_, ok := s.Components.Cache.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, cache.Stats{}, s.Components.Cache.Stats(ctx))
}
