// Package http serves a read-only status API over a project's pipeline
// state and artifact store.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/config"
	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
	"github.com/fyrsmithlabs/quorum/internal/sanitize"
)

// Server provides HTTP endpoints for a quorum project.
type Server struct {
	echo    *echo.Echo
	states  *orchestrator.StateStore
	store   *artifact.Store
	logger  *zap.Logger
	config  *config.ServerConfig
	metrics *HTTPMetrics
}

// NewServer creates a new HTTP server.
func NewServer(states *orchestrator.StateStore, store *artifact.Store, logger *zap.Logger, cfg *config.ServerConfig) (*Server, error) {
	if states == nil {
		return nil, fmt.Errorf("state store cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("artifact store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &config.Default().Server
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

	metrics := NewHTTPMetrics(logger)
	e.Use(metrics.MetricsMiddleware())

	s := &Server{
		echo:    e,
		states:  states,
		store:   store,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.GET("/state", s.handleState)
	v1.GET("/artifacts", s.handleArtifacts)
	v1.GET("/artifacts/:type/:id", s.handleArtifact)
	v1.GET("/verify", s.handleVerify)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) loadState() (*orchestrator.PipelineState, error) {
	st, err := s.states.Load()
	if errors.Is(err, orchestrator.ErrNoState) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no pipeline has been started")
	}
	if err != nil {
		s.logger.Error("failed to load pipeline state", zap.Error(err))
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "failed to load pipeline state")
	}
	return st, nil
}

func (s *Server) handleStatus(c echo.Context) error {
	st, err := s.loadState()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusFrom(st))
}

func (s *Server) handleState(c echo.Context) error {
	st, err := s.loadState()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// handleArtifacts lists manifest entries, optionally filtered by ?type=.
func (s *Server) handleArtifacts(c echo.Context) error {
	entries := s.store.List(artifact.Type(c.QueryParam("type")))
	return c.JSON(http.StatusOK, entries)
}

// handleArtifact serves the latest version of one artifact. Content is
// re-hashed on the way out; a mismatch is a 409 rather than bad bytes.
func (s *Server) handleArtifact(c echo.Context) error {
	typ, id := c.Param("type"), c.Param("id")
	for field, v := range map[string]string{"type": typ, "id": id} {
		if err := sanitize.ValidateIdentifier(v, field); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	entry, err := s.store.Latest(artifact.Type(typ), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "artifact not found")
	}

	content, err := s.store.Fetch(c.Request().Context(), entry.Ref)
	if errors.Is(err, artifact.ErrIntegrity) {
		s.logger.Warn("artifact failed integrity check", zap.String("ref", entry.Ref.String()), zap.Error(err))
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if err != nil {
		s.logger.Error("failed to fetch artifact", zap.String("ref", entry.Ref.String()), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch artifact")
	}

	c.Response().Header().Set("X-Artifact-Ref", entry.Ref.String())
	c.Response().Header().Set("X-Artifact-Hash", entry.Hash)
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, content)
}

func (s *Server) handleVerify(c echo.Context) error {
	failures, err := s.store.Verify(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	resp := VerifyResponse{
		Status:   "ok",
		Checked:  len(s.store.List("")),
		Failures: make([]string, 0, len(failures)),
	}
	for _, f := range failures {
		resp.Failures = append(resp.Failures, f.Error())
	}
	if len(failures) > 0 {
		resp.Status = "corrupt"
	}
	return c.JSON(http.StatusOK, resp)
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start starts the HTTP server. It blocks until Shutdown.
func (s *Server) Start() error {
	addr := s.Addr()
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
