package ai

import (
	"testing"
	"time"

	"github.com/hrygo/embedcore/internal/profile"
)

// TestNewConfigFromProfile_OpenAI tests OpenAI configuration.
func TestNewConfigFromProfile_OpenAI(t *testing.T) {
	prof := &profile.Profile{
		EmbeddingProvider: "openai",
		EmbeddingModel:    "text-embedding-3-small",
		EmbeddingAPIKey:   "test-key",
		EmbeddingBaseURL:  "https://api.openai.com/v1",
		BreakerThreshold:  3,
		BreakerRecovery:   30 * time.Second,
		RetryMaxAttempts:  4,
		RetryBaseDelay:    200 * time.Millisecond,
		CacheTTL:          time.Minute,
	}

	cfg := NewConfigFromProfile(prof)

	if cfg.Embedding.Provider != "openai" {
		t.Errorf("Expected Embedding.Provider=openai, got %s", cfg.Embedding.Provider)
	}
	if cfg.Embedding.APIKey != "test-key" {
		t.Errorf("Expected Embedding.APIKey=test-key, got %s", cfg.Embedding.APIKey)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("Expected Embedding.Dimensions=384, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Resilience.Breaker.FailureThreshold != 3 {
		t.Errorf("Expected FailureThreshold=3, got %d", cfg.Resilience.Breaker.FailureThreshold)
	}
	if cfg.Resilience.Retry.MaxRetries != 4 {
		t.Errorf("Expected MaxRetries=4, got %d", cfg.Resilience.Retry.MaxRetries)
	}
	if cfg.CacheTTL != time.Minute {
		t.Errorf("Expected CacheTTL=1m, got %v", cfg.CacheTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

// TestConfigValidate tests configuration validation.
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EmbeddingConfig
		wantErr bool
	}{
		{"deterministic", EmbeddingConfig{Provider: ProviderDeterministic, Dimensions: 384}, false},
		{"openai without key", EmbeddingConfig{Provider: ProviderOpenAI, Dimensions: 384}, true},
		{"openai with key", EmbeddingConfig{Provider: ProviderOpenAI, APIKey: "k", Dimensions: 384}, false},
		{"unknown provider", EmbeddingConfig{Provider: "ollama", Dimensions: 384}, true},
		{"wrong dimensions", EmbeddingConfig{Provider: ProviderDeterministic, Dimensions: 1024}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Embedding: tt.cfg}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewConfigFromProfile_DefaultProvider(t *testing.T) {
	cfg := NewConfigFromProfile(&profile.Profile{})
	if cfg.Embedding.Provider != ProviderDeterministic {
		t.Errorf("Expected deterministic provider, got %s", cfg.Embedding.Provider)
	}
}
