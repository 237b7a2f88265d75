// Package api assembles the HTTP surface of the server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sensor0x0/Dromeport/internal/config"
	"github.com/sensor0x0/Dromeport/internal/download"
	"github.com/sensor0x0/Dromeport/internal/history"
	"github.com/sensor0x0/Dromeport/internal/logger"
	"github.com/sensor0x0/Dromeport/internal/playlistsync"
	"github.com/sensor0x0/Dromeport/internal/tools"
	"github.com/sensor0x0/Dromeport/internal/websocket"
)

// Server hosts the HTTP API.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger *logger.Logger
	hub    *websocket.Hub

	registry *registryHandlers
}

// registryHandlers bundles the per-feature handlers the router mounts.
type registryHandlers struct {
	download *download.Handlers
	sync     *playlistsync.Handlers
	history  *history.Handlers
	tools    *tools.Handlers
}

// Deps carries the wired services the server exposes.
type Deps struct {
	Registry    *download.Registry
	SyncService *playlistsync.Service
	History     *history.Service
	Tools       *tools.Service
	Hub         *websocket.Hub
}

// NewServer builds the Echo application around the wired services.
func NewServer(cfg *config.Config, log *logger.Logger, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		cfg:    cfg,
		logger: log,
		hub:    deps.Hub,
		registry: &registryHandlers{
			download: download.NewHandlers(
				deps.Registry,
				cfg.ParseLibraries(),
				deps.Tools.Path(),
				deps.History,
				deps.Hub,
				log.Logger,
			),
			sync:    playlistsync.NewHandlers(deps.SyncService),
			history: history.NewHandlers(deps.History),
			tools:   tools.NewHandlers(deps.Tools),
		},
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Start begins serving on the configured address.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()
	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestLogger logs completed requests through zerolog. Streaming
// endpoints show up here only once their stream ends.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		event := s.logger.Info()
		if c.Response().Status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", c.Response().Status).
			Dur("duration", time.Since(start)).
			Str("remote", c.RealIP()).
			Msg("Request")
		return nil
	}
}
