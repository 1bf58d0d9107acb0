package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/embedcore/internal/profile"
	apiv1 "github.com/hrygo/embedcore/server/router/api/v1"
	"github.com/hrygo/embedcore/store"
)

type Server struct {
	Profile    *profile.Profile
	Store      *store.Store
	Components *Components

	echoServer *echo.Echo
	httpServer *http.Server
}

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	VectorIndex bool   `json:"vector_index"`
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	components, err := NewComponents(ctx, profile, store)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Profile:    profile,
		Store:      store,
		Components: components,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestID())
	s.echoServer = echoServer

	echoServer.GET("/healthz", s.handleHealth)
	echoServer.GET("/metrics", echo.WrapHandler(components.Metrics.GetHandler()))

	if profile.IsAPIEnabled() {
		apiV1Service := apiv1.NewAPIV1Service(profile, components.Pipeline, components.Facade, components.Vault)
		apiV1Service.RegisterRoutes(echoServer)
	} else {
		slog.Warn("no JWT secret configured, /api/v1 is disabled")
	}

	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.Profile.HealthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: s.Profile.Version}
	if index := s.Components.Index; index != nil {
		resp.VectorIndex = index.HealthCheck(ctx)
	}
	if err := s.Store.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		resp.Status = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}

	s.httpServer = &http.Server{
		Handler:           s.echoServer,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to serve http", "error", err)
		}
	}()

	slog.Info("server started", "address", listener.Addr().String(), "mode", s.Profile.Mode)
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown server", "error", err)
		}
	}

	s.Components.Close()
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}
	slog.Info("server stopped properly")
}
