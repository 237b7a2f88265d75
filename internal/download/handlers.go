package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sensor0x0/Dromeport/internal/config"
	"github.com/sensor0x0/Dromeport/internal/history"
)

// Broadcaster pushes job lifecycle notifications to connected UIs.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Handlers exposes the download job API.
type Handlers struct {
	registry  *Registry
	libraries []config.Library
	ytdlpPath string
	history   *history.Service
	hub       Broadcaster
	log       zerolog.Logger
}

// NewHandlers creates the download handlers.
func NewHandlers(registry *Registry, libraries []config.Library, ytdlpPath string, historySvc *history.Service, hub Broadcaster, log zerolog.Logger) *Handlers {
	return &Handlers{
		registry:  registry,
		libraries: libraries,
		ytdlpPath: ytdlpPath,
		history:   historySvc,
		hub:       hub,
		log:       log.With().Str("component", "download").Logger(),
	}
}

// sseWriter adapts an Echo response to the session's frame contract. Every
// frame is flushed immediately; a failed write means the client hung up.
type sseWriter struct {
	res *echo.Response
}

func (s *sseWriter) WriteFrame(event, data string) error {
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

// Stream handles GET /api/download/stream. The response is always a valid
// event stream: configuration errors are reported inside the stream and
// closed with the end-of-stream marker rather than as HTTP errors, since
// EventSource clients cannot read error bodies.
func (h *Handlers) Stream(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	w := &sseWriter{res: res}
	fail := func(msg string) error {
		w.WriteFrame("", "❌ "+msg)
		w.WriteFrame("", endOfStreamMarker)
		return nil
	}

	url := c.QueryParam("url")
	if url == "" {
		return fail("No URL provided")
	}
	providerTag := c.QueryParam("provider")
	if providerTag == "" {
		providerTag = ProviderYtMusic
	}

	cfg, err := ParseJobConfig(c.QueryParam("config"))
	if err != nil {
		return fail(err.Error())
	}
	if folder := c.QueryParam("playlist_folder"); folder != "" {
		cfg.PlaylistMode = "folder"
		cfg.PlaylistFolder = folder
	}
	if cfg.LibraryPath == "" && len(h.libraries) > 0 {
		cfg.LibraryPath = h.libraries[0].Path
	}
	if err := cfg.Validate(); err != nil {
		return fail(err.Error())
	}
	if cfg.YtMusic.YtdlpPath == "" {
		cfg.YtMusic.YtdlpPath = h.ytdlpPath
	}

	engine, err := NewProvider(providerTag, url, cfg)
	if err != nil {
		return fail(err.Error())
	}

	id := uuid.NewString()
	session := NewSession(id, providerTag, url, cfg, h.registry, engine, h.log)

	h.hub.Broadcast("job:started", map[string]string{
		"id":       id,
		"provider": providerTag,
		"url":      url,
	})

	result := session.Run(c.Request().Context(), w)

	h.recordRun(id, providerTag, url, "manual", result)
	h.hub.Broadcast("job:finished", map[string]any{
		"id":     id,
		"status": result.Status,
	})
	return nil
}

// Cancel handles DELETE /api/download/:id.
func (h *Handlers) Cancel(c echo.Context) error {
	id := c.Param("id")

	removed, err := h.registry.Cancel(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to cancel job")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":                "cancelled",
		"partial_files_deleted": removed,
	})
}

// Config handles GET /api/config, describing libraries and engine state to
// the client.
func (h *Handlers) Config(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"libraries": h.libraries,
		"ytdlpPath": h.ytdlpPath,
		"providers": []string{ProviderYtMusic, ProviderYouTube},
	})
}

// recordRun stores a finished run in history, best effort.
func (h *Handlers) recordRun(id, provider, url, origin string, result Result) {
	status := "success"
	switch {
	case result.Cancelled:
		status = "cancelled"
	case !result.Status.Success:
		status = "error"
	}

	entry := history.Entry{
		JobID:      id,
		Provider:   provider,
		URL:        url,
		Origin:     origin,
		Status:     status,
		Downloaded: result.Status.Downloaded,
		Errors:     result.Status.Errors,
		Skipped:    result.Status.Skipped,
		DurationMs: result.Duration.Milliseconds(),
	}
	// History writes get their own deadline: the request context is
	// often already cancelled when the stream ends.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.history.Record(ctx, entry); err != nil {
		h.log.Warn().Err(err).Str("job_id", id).Msg("Failed to record history entry")
	}
}
