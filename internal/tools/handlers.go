package tools

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers exposes engine management over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates tools handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Version handles GET /api/tools/versions.
func (h *Handlers) Version(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Version(c.Request().Context()))
}

// Update handles GET /api/tools/update, streaming updater output as
// server-sent events.
func (h *Handlers) Update(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	write := func(line string) {
		fmt.Fprintf(res, "data: %s\n\n", line)
		res.Flush()
	}

	if err := h.service.Update(c.Request().Context(), write); err != nil {
		write(fmt.Sprintf("❌ Update failed: %v", err))
	}
	write("[DONE]")
	return nil
}
