package playlistsync

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers exposes playlist sync over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates sync handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// List handles GET /api/sync/playlists.
func (h *Handlers) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"playlists": h.service.List()})
}

// Get handles GET /api/sync/playlists/:id.
func (h *Handlers) Get(c echo.Context) error {
	view, err := h.service.Get(c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "playlist not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load playlist")
	}
	return c.JSON(http.StatusOK, view)
}

// Add handles POST /api/sync/playlists. Validation failures are the
// client's problem and come back as 422.
func (h *Handlers) Add(c echo.Context) error {
	var p Playlist
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	view, err := h.service.Add(p)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusCreated, view)
}

// Update handles PUT /api/sync/playlists/:id. The body carries only the
// fields to change; absent fields keep their stored values.
func (h *Handlers) Update(c echo.Context) error {
	var in UpdateInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	view, err := h.service.Update(c.Param("id"), in)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "playlist not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return c.JSON(http.StatusOK, view)
}

// Delete handles DELETE /api/sync/playlists/:id.
func (h *Handlers) Delete(c echo.Context) error {
	err := h.service.Delete(c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "playlist not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete playlist")
	}
	return c.NoContent(http.StatusNoContent)
}

// Run handles GET /api/sync/playlists/:id/run, streaming the run to the
// client as server-sent events.
func (h *Handlers) Run(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.service.Get(id); errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "playlist not found")
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	h.service.Runner().RunStream(id, &sseFrameWriter{res: res})
	return nil
}

// sseFrameWriter writes protocol frames as server-sent events.
type sseFrameWriter struct {
	res *echo.Response
}

func (s *sseFrameWriter) WriteFrame(event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(s.res, "event: %s\n", event); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.res, "data: %s\n\n", data); err != nil {
		return err
	}
	s.res.Flush()
	return nil
}
