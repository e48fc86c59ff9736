// Package server provides the HTTP API for retrievald.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/retrievald/internal/ingest"
	"github.com/fyrsmithlabs/retrievald/internal/query"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes ingestion and query over HTTP.
type Server struct {
	echo       *echo.Echo
	ingestor   *ingest.Orchestrator
	aggregator *query.Aggregator
	logger     *zap.Logger
	config     *Config
}

// NewServer creates a new HTTP server.
func NewServer(ingestor *ingest.Orchestrator, aggregator *query.Aggregator, logger *zap.Logger, cfg *Config) (*Server, error) {
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor cannot be nil")
	}
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 5000,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		ingestor:   ingestor,
		aggregator: aggregator,
		logger:     logger,
		config:     cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/upload", s.handleUpload)
	s.echo.POST("/query", s.handleQuery)
	s.echo.GET("/clients/:client_id/files", s.handleListFiles)
	s.echo.GET("/clients/:client_id/stats", s.handleStats)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Echo returns the underlying echo instance so callers can attach extra
// routes, such as the metrics scrape endpoint.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
