package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// recentLogs handles GET /api/logs, returning the buffered recent entries.
// Live tailing happens over the WebSocket hub; this endpoint backfills the
// buffer for a client that just connected.
func (s *Server) recentLogs(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"entries": s.logger.GetRecentLogs(),
		"file":    s.logger.GetLogFilePath(),
	})
}
