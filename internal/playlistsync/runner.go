package playlistsync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sensor0x0/Dromeport/internal/download"
	"github.com/sensor0x0/Dromeport/internal/history"
)

// Runner executes sync runs. Scheduled runs are headless: they use an
// ephemeral registry so their jobs never show up as cancellable client
// jobs, and they capture the stream into the definition's last-run log.
// Broadcaster pushes sync lifecycle notifications to connected UIs.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

type Runner struct {
	store     *Store
	ytdlpPath string
	history   *history.Service
	hub       Broadcaster
	log       zerolog.Logger

	// running guards against the same playlist syncing twice at once.
	mu      sync.Mutex
	running map[string]bool
}

// NewRunner creates a sync runner.
func NewRunner(store *Store, ytdlpPath string, historySvc *history.Service, log zerolog.Logger) *Runner {
	return &Runner{
		store:     store,
		ytdlpPath: ytdlpPath,
		history:   historySvc,
		log:       log.With().Str("component", "syncrunner").Logger(),
		running:   make(map[string]bool),
	}
}

// buildConfig derives the effective job config for a run from the stored
// snapshot. Folder placement comes from the definition, per-run
// sub-organization is forced off, and the discovered engine path is
// injected only when the definition did not pin its own.
func (r *Runner) buildConfig(p *Playlist) download.JobConfig {
	cfg := p.Config
	if p.PlaylistFolder != "" {
		cfg.PlaylistMode = "folder"
		cfg.PlaylistFolder = p.PlaylistFolder
	}
	cfg.YouTube.ArtistSubfolders = false
	cfg.YouTube.AlbumSubfolders = false
	if cfg.YtMusic.YtdlpPath == "" {
		cfg.YtMusic.YtdlpPath = r.ytdlpPath
	}
	return cfg
}

// logCollector buffers data frames into the last-run log. Meta and status
// frames are protocol detail and skipped.
type logCollector struct {
	mu    sync.Mutex
	lines []string
}

func (l *logCollector) WriteFrame(event, data string) error {
	if event != "" || data == "" || data == "[DONE]" {
		return nil
	}
	l.mu.Lock()
	l.lines = append(l.lines, data)
	l.mu.Unlock()
	return nil
}

func (l *logCollector) text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

// teeWriter mirrors frames to a client while collecting the log. A lost
// client stops the mirror but never the collection.
type teeWriter struct {
	client    download.FrameWriter
	collector *logCollector
	clientErr error
}

func (t *teeWriter) WriteFrame(event, data string) error {
	t.collector.WriteFrame(event, data)
	if t.clientErr == nil {
		t.clientErr = t.client.WriteFrame(event, data)
	}
	return nil
}

// RunScheduled executes a sync run with no connected client. Every exit
// path writes the definition's last-run fields; a run that cannot even
// start is recorded as an error.
func (r *Runner) RunScheduled(playlistID string) {
	collector := &logCollector{}
	r.execute(playlistID, collector, collector, "scheduled")
}

// RunStream executes a manual sync run, mirroring the stream to w.
func (r *Runner) RunStream(playlistID string, w download.FrameWriter) {
	collector := &logCollector{}
	tee := &teeWriter{client: w, collector: collector}
	r.execute(playlistID, tee, collector, "manual")
}

func (r *Runner) execute(playlistID string, w download.FrameWriter, collector *logCollector, origin string) {
	r.mu.Lock()
	if r.running[playlistID] {
		r.mu.Unlock()
		r.log.Warn().Str("playlist_id", playlistID).Msg("Sync already running, skipping")
		w.WriteFrame("", "Sync already running for this playlist.")
		w.WriteFrame("", "[DONE]")
		return
	}
	r.running[playlistID] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.running, playlistID)
		r.mu.Unlock()
	}()

	// A panic below must still produce a last-run record.
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Interface("panic", rec).Str("playlist_id", playlistID).Msg("Sync run panicked")
			r.recordOutcome(playlistID, "error", collector.text()+fmt.Sprintf("\nInternal error: %v", rec))
		}
	}()

	p, err := r.store.Get(playlistID)
	if err != nil {
		r.log.Error().Err(err).Str("playlist_id", playlistID).Msg("Sync run for unknown playlist")
		w.WriteFrame("", "❌ Playlist definition not found")
		w.WriteFrame("", "[DONE]")
		return
	}

	r.log.Info().Str("playlist_id", p.ID).Str("name", p.Name).Str("origin", origin).Msg("Sync run started")
	r.broadcast("sync:started", map[string]string{"playlist_id": p.ID, "name": p.Name, "origin": origin})

	cfg := r.buildConfig(p)
	status := "error"

	engine, err := download.NewProvider(p.Provider, p.URL, cfg)
	if err != nil {
		w.WriteFrame("", fmt.Sprintf("❌ %v", err))
		w.WriteFrame("", "[DONE]")
		r.recordOutcome(p.ID, status, collector.text())
		return
	}

	jobID := uuid.NewString()
	registry := download.NewRegistry(r.log) // ephemeral: sync jobs are not client-cancellable
	session := download.NewSession(jobID, p.Provider, p.URL, cfg, registry, engine, r.log)
	result := session.Run(context.Background(), w)

	switch {
	case result.Cancelled:
		status = "cancelled"
	case result.Status.Success:
		status = "success"
	}

	r.recordOutcome(p.ID, status, collector.text())
	r.recordHistory(jobID, p, origin, status, result)
	r.broadcast("sync:finished", map[string]any{"playlist_id": p.ID, "status": status})

	r.log.Info().
		Str("playlist_id", p.ID).
		Str("status", status).
		Int("downloaded", result.Status.Downloaded).
		Msg("Sync run finished")
}

// SetBroadcaster attaches the hub used for sync lifecycle events. Runs
// work fine without one.
func (r *Runner) SetBroadcaster(hub Broadcaster) {
	r.hub = hub
}

func (r *Runner) broadcast(msgType string, payload interface{}) {
	if r.hub != nil {
		_ = r.hub.Broadcast(msgType, payload)
	}
}

// recordOutcome writes the mandatory last-run fields. Failures here are
// logged: there is no one left to report them to.
func (r *Runner) recordOutcome(playlistID, status, log string) {
	if err := r.store.RecordRun(playlistID, status, log); err != nil {
		r.log.Error().Err(err).Str("playlist_id", playlistID).Msg("Failed to record sync outcome")
	}
}

func (r *Runner) recordHistory(jobID string, p *Playlist, origin, status string, result download.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := r.history.Record(ctx, history.Entry{
		JobID:      jobID,
		Provider:   p.Provider,
		URL:        p.URL,
		Origin:     origin,
		Status:     status,
		Downloaded: result.Status.Downloaded,
		Errors:     result.Status.Errors,
		Skipped:    result.Status.Skipped,
		DurationMs: result.Duration.Milliseconds(),
	})
	if err != nil {
		r.log.Warn().Err(err).Str("playlist_id", p.ID).Msg("Failed to record sync history entry")
	}
}
