package ai

import (
	"context"
	"errors"
	"time"

	"github.com/hrygo/embedcore/ai/cache"
	"github.com/hrygo/embedcore/ai/core/embedding"
	"github.com/hrygo/embedcore/ai/resilience"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Embed generates vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int
}

// NewEmbeddingService creates the EmbeddingService selected by cfg.Provider.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	switch cfg.Provider {
	case "", ProviderDeterministic:
		return embedding.NewGenerator(), nil
	case ProviderOpenAI:
		return embedding.NewProvider(&embedding.Config{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, errors.New("unsupported embedding provider: " + cfg.Provider)
	}
}

// GuardedEmbeddingService memoizes an EmbeddingService and runs cache misses
// under a resilience policy.
type GuardedEmbeddingService struct {
	inner  EmbeddingService
	memo   *cache.Memo[[]float32]
	policy *resilience.Policy
}

// NewGuardedEmbeddingService wraps inner. c and policy may be nil.
func NewGuardedEmbeddingService(inner EmbeddingService, c cache.Cache, ttl time.Duration, policy *resilience.Policy, recorder cache.Recorder) *GuardedEmbeddingService {
	s := &GuardedEmbeddingService{inner: inner, policy: policy}
	if c != nil {
		s.memo = cache.NewMemo[[]float32](c, "embedding", ttl, recorder)
	}
	return s
}

// Embed implements EmbeddingService.
func (s *GuardedEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	call := func(ctx context.Context) ([]float32, error) {
		return resilience.Do(ctx, s.policy, func(ctx context.Context) ([]float32, error) {
			return s.inner.Embed(ctx, text)
		})
	}
	if s.memo == nil {
		return call(ctx)
	}
	return s.memo.Do(ctx, cache.CallKey("embedding.generate", text), call)
}

// EmbedBatch implements EmbeddingService. Each text is cached independently.
func (s *GuardedEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements EmbeddingService.
func (s *GuardedEmbeddingService) Dimensions() int {
	return s.inner.Dimensions()
}
