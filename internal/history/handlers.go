package history

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers exposes history over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates history handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// List handles GET /api/history.
func (h *Handlers) List(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	entries, err := h.service.List(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load history")
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}

// Clear handles DELETE /api/history.
func (h *Handlers) Clear(c echo.Context) error {
	removed, err := h.service.Clear(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to clear history")
	}
	return c.JSON(http.StatusOK, map[string]any{"removed": removed})
}
