package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Vector index backends.
const (
	VectorBackendNone     = "none"
	VectorBackendHNSW     = "hnsw"
	VectorBackendPGVector = "pgvector"
)

// Profile is configuration to start main server.
type Profile struct {
	// Embedding configuration
	EmbeddingProvider string // deterministic | openai
	EmbeddingModel    string
	EmbeddingAPIKey   string
	EmbeddingBaseURL  string

	// Vector index configuration
	VectorBackend string // none | hnsw | pgvector
	VectorDSN     string

	// Cache configuration
	RedisURL     string
	CacheTTL     time.Duration
	KeyCacheTTL  time.Duration
	CacheEnabled bool

	// Resilience configuration
	RetryBaseDelay   time.Duration
	BreakerRecovery  time.Duration
	RetryMaxAttempts int
	BreakerThreshold int

	// API configuration
	JWTSecret          string
	SecurityWebhookURL string
	AccessTokenExpiry  time.Duration
	HealthCheckTimeout time.Duration
	RateLimit          int // requests per minute per client IP

	// Logging
	LogLevel  string
	LogFormat string

	// Other configurations
	Mode    string
	DSN     string
	Driver  string
	Version string
	Addr    string
	Data    string
	Port    int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAPIEnabled returns true if a JWT secret is configured.
func (p *Profile) IsAPIEnabled() bool {
	return p.JWTSecret != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultBool returns environment variable value as bool or default value.
func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvOrDefaultDuration reads a duration such as "90s" or "1h". A bare
// integer is read in unit.
func getEnvOrDefaultDuration(key string, unit, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * unit
	}
	slog.Warn("Invalid duration, using default", "key", key, "value", value)
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	// Embedding configuration
	p.EmbeddingProvider = getEnvOrDefault("EMBEDCORE_EMBEDDING_PROVIDER", "deterministic")
	if p.EmbeddingProvider != "deterministic" && p.EmbeddingProvider != "openai" {
		slog.Warn("Unknown embedding provider, using default: deterministic", "provider", p.EmbeddingProvider)
		p.EmbeddingProvider = "deterministic"
	}
	p.EmbeddingModel = getEnvOrDefault("EMBEDCORE_EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingAPIKey = getEnvOrDefault("EMBEDCORE_EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("EMBEDCORE_EMBEDDING_BASE_URL", "https://api.openai.com/v1")

	// Vector index configuration
	p.VectorBackend = strings.ToLower(getEnvOrDefault("EMBEDCORE_VECTOR_BACKEND", VectorBackendNone))
	p.VectorDSN = getEnvOrDefault("EMBEDCORE_VECTOR_DSN", "")

	// Cache configuration
	p.RedisURL = getEnvOrDefault("EMBEDCORE_REDIS_URL", "")
	p.CacheEnabled = getEnvOrDefaultBool("EMBEDCORE_CACHE_ENABLED", true)
	p.CacheTTL = getEnvOrDefaultDuration("EMBEDCORE_CACHE_TTL", time.Second, time.Hour)
	p.KeyCacheTTL = getEnvOrDefaultDuration("EMBEDCORE_KEY_CACHE_TTL", time.Second, 5*time.Minute)

	// Resilience configuration
	p.RetryMaxAttempts = getEnvOrDefaultInt("EMBEDCORE_RETRY_MAX", 3)
	p.RetryBaseDelay = getEnvOrDefaultDuration("EMBEDCORE_RETRY_BASE_DELAY", time.Millisecond, time.Second)
	p.BreakerThreshold = getEnvOrDefaultInt("EMBEDCORE_BREAKER_THRESHOLD", 5)
	p.BreakerRecovery = getEnvOrDefaultDuration("EMBEDCORE_BREAKER_RECOVERY", time.Second, 60*time.Second)

	// API configuration
	p.JWTSecret = getEnvOrDefault("EMBEDCORE_JWT_SECRET", "")
	p.SecurityWebhookURL = getEnvOrDefault("EMBEDCORE_SECURITY_WEBHOOK_URL", "")
	p.AccessTokenExpiry = getEnvOrDefaultDuration("EMBEDCORE_ACCESS_TOKEN_EXPIRY", time.Minute, 24*time.Hour)
	p.RateLimit = getEnvOrDefaultInt("EMBEDCORE_RATE_LIMIT", 100)
	p.HealthCheckTimeout = getEnvOrDefaultDuration("EMBEDCORE_HEALTH_CHECK_TIMEOUT", time.Millisecond, 2*time.Second)

	// Logging
	p.LogLevel = getEnvOrDefault("EMBEDCORE_LOG_LEVEL", "info")
	p.LogFormat = getEnvOrDefault("EMBEDCORE_LOG_FORMAT", "json")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}

	switch p.VectorBackend {
	case "", VectorBackendNone:
		p.VectorBackend = VectorBackendNone
	case VectorBackendHNSW:
	case VectorBackendPGVector:
		if p.VectorDSN == "" {
			return errors.New("vector dsn is required for the pgvector backend")
		}
	default:
		return errors.Errorf("unsupported vector backend %q", p.VectorBackend)
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "embedcore")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/embedcore"
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("embedcore_%s.db", p.Mode))
	}

	return nil
}
