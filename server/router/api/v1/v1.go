package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/hrygo/embedcore/ai/core/retrieval"
	"github.com/hrygo/embedcore/ai/pipeline"
	"github.com/hrygo/embedcore/internal/profile"
	"github.com/hrygo/embedcore/plugin/keyvault"
)

type APIV1Service struct {
	Profile  *profile.Profile
	Pipeline *pipeline.Pipeline
	Facade   *retrieval.Facade
	Vault    *keyvault.Vault
	Secret   string
}

func NewAPIV1Service(profile *profile.Profile, p *pipeline.Pipeline, facade *retrieval.Facade, vault *keyvault.Vault) *APIV1Service {
	return &APIV1Service{
		Profile:  profile,
		Pipeline: p,
		Facade:   facade,
		Vault:    vault,
		Secret:   profile.JWTSecret,
	}
}

// RegisterRoutes mounts the authenticated /api/v1 group on e.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.Use(middleware.CORS())
	if s.Profile.RateLimit > 0 {
		g.Use(newRateLimiter(s.Profile.RateLimit))
	}
	g.Use(s.authenticate)

	g.POST("/messages", s.ProcessMessage)
	g.POST("/embeddings", s.UpsertEmbedding)
	g.GET("/embeddings/search", s.SearchEmbeddings)
	g.DELETE("/embeddings/:type/:id", s.DeleteEmbedding)
	g.POST("/keys/rotate", s.RotateKey)
}

// newRateLimiter allows perMinute requests per client IP.
func newRateLimiter(perMinute int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     perMinute,
		ExpiresIn: 3 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client")
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			slog.Warn("rate limit exceeded", "client", identifier, "path", c.Path())
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}
