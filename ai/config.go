package ai

import (
	"errors"
	"time"

	"github.com/hrygo/embedcore/ai/core/embedding"
	"github.com/hrygo/embedcore/ai/resilience"
	"github.com/hrygo/embedcore/internal/profile"
)

// Embedding providers.
const (
	ProviderDeterministic = "deterministic"
	ProviderOpenAI        = "openai"
)

// Config represents AI configuration.
type Config struct {
	Embedding  EmbeddingConfig
	Resilience resilience.Config
	CacheTTL   time.Duration
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Embedding: EmbeddingConfig{
			Provider:   p.EmbeddingProvider,
			Model:      p.EmbeddingModel,
			APIKey:     p.EmbeddingAPIKey,
			BaseURL:    p.EmbeddingBaseURL,
			Dimensions: embedding.Dimensions,
		},
		Resilience: resilience.Config{
			Breaker: resilience.BreakerConfig{
				FailureThreshold: p.BreakerThreshold,
				RecoveryTimeout:  p.BreakerRecovery,
			},
			Retry: resilience.RetryConfig{
				MaxRetries: p.RetryMaxAttempts,
				BaseDelay:  p.RetryBaseDelay,
			},
		},
		CacheTTL: p.CacheTTL,
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderDeterministic
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderDeterministic:
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return errors.New("embedding API key is required")
		}
	default:
		return errors.New("unsupported embedding provider: " + c.Embedding.Provider)
	}

	if c.Embedding.Dimensions != embedding.Dimensions {
		return errors.New("embedding dimensions must be 384")
	}
	return nil
}
