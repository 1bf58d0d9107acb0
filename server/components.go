package server

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/embedcore/ai"
	"github.com/hrygo/embedcore/ai/cache"
	"github.com/hrygo/embedcore/ai/core/embedding"
	"github.com/hrygo/embedcore/ai/core/retrieval"
	"github.com/hrygo/embedcore/ai/metrics"
	"github.com/hrygo/embedcore/ai/pipeline"
	"github.com/hrygo/embedcore/ai/resilience"
	"github.com/hrygo/embedcore/ai/vector"
	"github.com/hrygo/embedcore/ai/vector/hnsw"
	"github.com/hrygo/embedcore/internal/profile"
	"github.com/hrygo/embedcore/plugin/keyvault"
	"github.com/hrygo/embedcore/plugin/webhook"
	"github.com/hrygo/embedcore/store"
	"github.com/hrygo/embedcore/store/db/postgres"
)

// Components holds the long-lived services shared by the HTTP server and
// the CLI commands.
type Components struct {
	Metrics  *metrics.PrometheusExporter
	Cache    cache.Cache
	Embedder ai.EmbeddingService
	Index    vector.Index
	Facade   *retrieval.Facade
	Vault    *keyvault.Vault
	Pipeline *pipeline.Pipeline
}

// NewComponents wires every service from profile. Callers must Close the result.
func NewComponents(ctx context.Context, p *profile.Profile, st *store.Store) (*Components, error) {
	cfg := ai.NewConfigFromProfile(p)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid embedding configuration")
	}

	c := &Components{Metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig())}
	recorder := resilience.WithRecorder(c.Metrics)

	if p.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(p.RedisURL, p.CacheTTL)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create redis cache")
		}
		c.Cache = redisCache
	} else {
		c.Cache = cache.NewMemoryCache(p.CacheTTL)
	}
	c.Cache.SetEnabled(p.CacheEnabled)

	base, err := ai.NewEmbeddingService(&cfg.Embedding)
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "failed to create embedding service")
	}
	embedPolicy := resilience.NewPolicy("embedding", cfg.Resilience, recorder)
	c.Embedder = ai.NewGuardedEmbeddingService(base, c.Cache, cfg.CacheTTL, embedPolicy, c.Metrics)

	c.Index, err = newVectorIndex(ctx, p)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Facade = retrieval.NewFacade(st, c.Embedder, retrieval.Options{
		Index:              c.Index,
		Policy:             resilience.NewPolicy("store", cfg.Resilience, recorder),
		Recorder:           c.Metrics,
		HealthCheckTimeout: p.HealthCheckTimeout,
	})

	// The in-process index starts empty.
	if _, ok := c.Index.(*hnsw.Index); ok {
		if _, err := c.Facade.Reindex(ctx); err != nil {
			slog.Warn("failed to warm vector index", "error", err)
		}
	}

	vaultCfg := keyvault.Config{CacheTTL: p.KeyCacheTTL}
	if url := p.SecurityWebhookURL; url != "" {
		vaultCfg.OnSecurityEvent = func(event, userID string) {
			webhook.PostAsync(url, webhook.NewSecurityEvent(event, userID))
		}
	}
	c.Vault = keyvault.New(st, vaultCfg)
	c.Pipeline = pipeline.New(c.Embedder, c.Vault, c.Facade, c.Metrics)

	slog.Info("components initialized",
		"embedding_provider", cfg.Embedding.Provider,
		"vector_backend", p.VectorBackend,
		"redis_cache", p.RedisURL != "",
		"cache_enabled", p.CacheEnabled,
	)
	return c, nil
}

func newVectorIndex(ctx context.Context, p *profile.Profile) (vector.Index, error) {
	switch p.VectorBackend {
	case profile.VectorBackendHNSW:
		return hnsw.New(), nil
	case profile.VectorBackendPGVector:
		db, err := postgres.NewDB(ctx, p.VectorDSN, embedding.Dimensions)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open pgvector index")
		}
		return db, nil
	default:
		return nil, nil
	}
}

// Close releases the vault, vector index and cache connections.
func (c *Components) Close() {
	if c.Vault != nil {
		c.Vault.Close()
	}
	if c.Facade != nil {
		if err := c.Facade.Close(); err != nil {
			slog.Warn("failed to close vector index", "error", err)
		}
	}
	if rc, ok := c.Cache.(*cache.RedisCache); ok {
		if err := rc.Close(); err != nil {
			slog.Warn("failed to close redis cache", "error", err)
		}
	}
}
