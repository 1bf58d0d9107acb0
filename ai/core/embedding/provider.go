package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/embedcore/internal/errs"
)

// Config configures the OpenAI-compatible embedding provider.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// DefaultConfig returns the provider defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "text-embedding-3-small",
		Dimensions: Dimensions,
		Timeout:    30 * time.Second,
	}
}

// Provider calls an OpenAI-compatible embeddings endpoint
// (openai, siliconflow, ollama, dashscope ...).
type Provider struct {
	client *openai.Client
	config *Config
}

// NewProvider creates a provider. Zero fields are filled with defaults.
func NewProvider(cfg *Config) (*Provider, error) {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaults.Dimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Provider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// NewProviderFromEnv creates a provider from EMBEDCORE_EMBEDDING_* variables.
func NewProviderFromEnv() (*Provider, error) {
	return NewProvider(&Config{
		BaseURL: getEnv("EMBEDCORE_EMBEDDING_BASE_URL", ""),
		APIKey:  getEnv("EMBEDCORE_EMBEDDING_API_KEY", ""),
		Model:   getEnv("EMBEDCORE_EMBEDDING_MODEL", ""),
	})
}

// Validate checks that the provider can be used.
func (p *Provider) Validate(_ context.Context) error {
	if p.config.APIKey == "" {
		return errs.InvalidArgument("embedding API key is required")
	}
	return nil
}

// Embed implements ai.EmbeddingService.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements ai.EmbeddingService.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errs.InvalidInput("no texts provided for embedding")
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(p.config.Model),
		Dimensions: p.config.Dimensions,
	})
	if err != nil {
		return nil, errs.Backend(err, "create embeddings failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, errs.Backend(errors.New("unexpected embedding count"),
			fmt.Sprintf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, errs.Backend(errors.New("embedding index out of range"), "create embeddings failed")
		}
		if len(data.Embedding) != p.config.Dimensions {
			return nil, errs.Backend(fmt.Errorf("got %d dimensions, want %d", len(data.Embedding), p.config.Dimensions),
				"create embeddings failed")
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}

// Dimensions implements ai.EmbeddingService.
func (p *Provider) Dimensions() int {
	return p.config.Dimensions
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
