// Package server exposes the routing layer over HTTP: chat completions
// with SSE streaming, model listing and selection, readiness status, and
// registry-wide cancellation.
package server

import (
	"context"
	"net/http"
	"path"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"modelbridge/internal/core"
	"modelbridge/internal/metrics"
	"modelbridge/internal/router"
)

// DefaultBodySizeLimit bounds request bodies at 10MB.
const DefaultBodySizeLimit int64 = 10 << 20

// Config holds server configuration options.
type Config struct {
	MasterKey       string           // Optional: master key for authentication
	MetricsEnabled  bool             // Whether to expose the Prometheus endpoint
	MetricsEndpoint string           // HTTP path for metrics (default: /metrics)
	Metrics         *metrics.Metrics // Collectors backing the endpoint
	BodySizeLimit   int64            // Max request body size in bytes
}

// Server wraps the Echo server.
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// New creates the HTTP server over a router.
func New(rt *router.Router, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	var m *metrics.Metrics
	if cfg != nil {
		m = cfg.Metrics
	}
	handler := NewHandler(rt, m)

	authSkipPaths := []string{"/health"}

	metricsPath := "/metrics"
	if cfg != nil && cfg.MetricsEnabled {
		if cfg.MetricsEndpoint != "" {
			// Normalize path to prevent traversal attacks
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	e.Use(middleware.Recover())
	e.Use(requestIDMiddleware())

	bodySizeLimit := DefaultBodySizeLimit
	if cfg != nil && cfg.BodySizeLimit > 0 {
		bodySizeLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodySizeLimit, 10)))

	if cfg != nil && cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, authSkipPaths))
	}

	// Public routes
	e.GET("/health", handler.Health)
	if cfg != nil && cfg.MetricsEnabled && cfg.Metrics != nil {
		e.GET(metricsPath, echo.WrapHandler(cfg.Metrics.Handler()))
	}

	// API routes
	e.POST("/v1/chat/completions", handler.ChatCompletion)
	e.GET("/v1/models", handler.ListModels)
	e.POST("/v1/models/select", handler.SelectModel)
	e.GET("/v1/status", handler.Status)
	e.POST("/v1/cancel", handler.Cancel)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// requestIDMiddleware tags each request with an ID, honoring one the
// client already sent, and carries it on the context so adapters can
// forward it to the backends.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.NewString()
			}
			ctx := core.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set("X-Request-ID", id)
			return next(c)
		}
	}
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler, allowing Server to be used with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
