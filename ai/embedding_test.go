package ai

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/embedcore/ai/cache"
	"github.com/hrygo/embedcore/ai/core/embedding"
	"github.com/hrygo/embedcore/ai/resilience"
	"github.com/hrygo/embedcore/internal/errs"
)

// countingService counts calls and fails the first failFirst of them.
type countingService struct {
	inner     EmbeddingService
	calls     atomic.Int64
	failFirst int64
}

func (s *countingService) Embed(ctx context.Context, text string) ([]float32, error) {
	n := s.calls.Add(1)
	if n <= s.failFirst {
		return nil, errs.Backend(context.DeadlineExceeded, "embedding backend")
	}
	return s.inner.Embed(ctx, text)
}

func (s *countingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return s.inner.EmbedBatch(ctx, texts)
}

func (s *countingService) Dimensions() int { return s.inner.Dimensions() }

func noSleep(context.Context, time.Duration) error { return nil }

func TestNewEmbeddingService(t *testing.T) {
	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: ProviderDeterministic})
	require.NoError(t, err)
	assert.IsType(t, &embedding.Generator{}, svc)
	assert.Equal(t, 384, svc.Dimensions())

	svc, err = NewEmbeddingService(&EmbeddingConfig{Provider: ProviderOpenAI, APIKey: "k", Dimensions: 384})
	require.NoError(t, err)
	assert.IsType(t, &embedding.Provider{}, svc)

	_, err = NewEmbeddingService(&EmbeddingConfig{Provider: "unknown"})
	assert.Error(t, err)
}

func TestGuardedEmbeddingService_CachesResults(t *testing.T) {
	ctx := context.Background()
	inner := &countingService{inner: embedding.NewGenerator()}
	svc := NewGuardedEmbeddingService(inner, cache.NewMemoryCache(time.Minute), time.Minute, nil, nil)

	first, err := svc.Embed(ctx, "hello")
	require.NoError(t, err)
	second, err := svc.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load())

	direct, err := embedding.NewGenerator().Generate("hello")
	require.NoError(t, err)
	assert.Equal(t, direct, second, "cached vector must match a fresh generation bit for bit")
}

func TestGuardedEmbeddingService_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	inner := &countingService{inner: embedding.NewGenerator(), failFirst: 2}
	policy := resilience.NewPolicy("embedding", resilience.Config{
		Retry: resilience.RetryConfig{MaxRetries: 3},
	}, resilience.WithSleep(noSleep))
	svc := NewGuardedEmbeddingService(inner, nil, 0, policy, nil)

	vec, err := svc.Embed(ctx, "retry me")
	require.NoError(t, err)
	assert.Len(t, vec, 384)
	assert.Equal(t, int64(3), inner.calls.Load())
}

func TestGuardedEmbeddingService_InvalidInputNotRetried(t *testing.T) {
	ctx := context.Background()
	inner := &countingService{inner: embedding.NewGenerator()}
	policy := resilience.NewPolicy("embedding", resilience.Config{}, resilience.WithSleep(noSleep))
	svc := NewGuardedEmbeddingService(inner, cache.NewMemoryCache(time.Minute), time.Minute, policy, nil)

	_, err := svc.Embed(ctx, string([]byte{0xff, 0xfe}))
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestGuardedEmbeddingService_InvalidInputKeepsCircuitClosed(t *testing.T) {
	ctx := context.Background()
	policy := resilience.NewPolicy("embedding", resilience.Config{
		Breaker: resilience.BreakerConfig{FailureThreshold: 2},
	}, resilience.WithSleep(noSleep))
	svc := NewGuardedEmbeddingService(embedding.NewGenerator(), nil, 0, policy, nil)

	for i := 0; i < 5; i++ {
		_, err := svc.Embed(ctx, string([]byte{0xff, 0xfe}))
		require.ErrorIs(t, err, errs.ErrInvalidInput)
	}
	assert.Equal(t, resilience.StateClosed, policy.Breaker().State())

	_, err := svc.Embed(ctx, "hello")
	assert.NoError(t, err)
}

func TestGuardedEmbeddingService_Batch(t *testing.T) {
	ctx := context.Background()
	svc := NewGuardedEmbeddingService(embedding.NewGenerator(), cache.NewMemoryCache(time.Minute), time.Minute, nil, nil)

	vecs, err := svc.EmbedBatch(ctx, []string{"a", "b", "a"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])

	_, err = svc.EmbedBatch(ctx, nil)
	assert.Error(t, err)
}
