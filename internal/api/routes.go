package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("1M"))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))
	s.echo.Use(s.requestLogger)
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.health)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	api := s.echo.Group("/api")

	api.GET("/config", s.registry.download.Config)

	api.GET("/download/stream", s.registry.download.Stream)
	api.DELETE("/download/:id", s.registry.download.Cancel)

	sync := api.Group("/sync/playlists")
	sync.GET("", s.registry.sync.List)
	sync.POST("", s.registry.sync.Add)
	sync.GET("/:id", s.registry.sync.Get)
	sync.PUT("/:id", s.registry.sync.Update)
	sync.DELETE("/:id", s.registry.sync.Delete)
	sync.GET("/:id/run", s.registry.sync.Run)

	api.GET("/history", s.registry.history.List)
	api.DELETE("/history", s.registry.history.Clear)

	api.GET("/tools/versions", s.registry.tools.Version)
	api.GET("/tools/update", s.registry.tools.Update)

	api.GET("/logs", s.recentLogs)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}
