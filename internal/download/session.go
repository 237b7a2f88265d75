package download

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	// defaultStallTimeout aborts a run whose engine produces no output
	// at all for this long.
	defaultStallTimeout = 300 * time.Second
	// defaultAbandonTimeout bounds how long a finished stream waits for
	// its worker to release resources.
	defaultAbandonTimeout = 30 * time.Second
	// endOfStreamMarker is the last data frame of every stream, no
	// matter how the job ended.
	endOfStreamMarker = "[DONE]"
)

// Result summarizes a finished session for history recording.
type Result struct {
	Status    Status
	Cancelled bool
	Fatal     bool
	Duration  time.Duration
}

// Session drives one download job from launch to the end-of-stream marker.
// All frames flow through a single FrameWriter so ordering is total.
type Session struct {
	ID       string
	provider string
	url      string
	cfg      JobConfig

	registry *Registry
	engine   Provider
	xlat     *Translator
	log      zerolog.Logger

	stallTimeout   time.Duration
	abandonTimeout time.Duration
}

// NewSession prepares a session for one job. Nothing runs until Run.
func NewSession(id, provider, url string, cfg JobConfig, registry *Registry, engine Provider, log zerolog.Logger) *Session {
	return &Session{
		ID:       id,
		provider: provider,
		url:      url,
		cfg:      cfg,
		registry: registry,
		engine:   engine,
		xlat:     NewTranslator(provider),
		log:      log.With().Str("component", "session").Str("job_id", id).Logger(),

		stallTimeout:   defaultStallTimeout,
		abandonTimeout: defaultAbandonTimeout,
	}
}

// Run executes the job and writes the full outward protocol to w. It always
// terminates the stream correctly: one status frame, then the end-of-stream
// marker, regardless of how the engine behaved. A write error on w means
// the client is gone; production stops but cleanup still runs.
func (s *Session) Run(ctx context.Context, w FrameWriter) Result {
	start := time.Now()

	// Job id first so the client can cancel immediately.
	idPayload, _ := json.Marshal(map[string]string{"type": "job_id", "id": s.ID})
	clientGone := s.writeFrame(w, "meta", string(idPayload)) != nil

	outputDir := s.cfg.OutputDir()
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		s.log.Error().Err(err).Str("dir", outputDir).Msg("Cannot create output directory")
		s.writeFrame(w, "", fmt.Sprintf("❌ Cannot create output directory: %v", err))
		s.xlat.MarkFatal(err.Error())
		return s.finish(w, start, clientGone)
	}

	s.writeFrame(w, "", fmt.Sprintf("Saving to: %s", outputDir))

	if err := s.engine.Start(ctx); err != nil {
		s.log.Error().Err(err).Str("provider", s.provider).Msg("Engine failed to launch")
		s.writeFrame(w, "", fmt.Sprintf("❌ Failed to start %s engine: %v", s.provider, err))
		s.xlat.MarkFatal(err.Error())
		return s.finish(w, start, clientGone)
	}

	job := &Job{
		ID:          s.ID,
		ProviderTag: s.provider,
		LibraryPath: s.cfg.LibraryPath,
		StartedAt:   start,
		handle:      s.engine,
	}
	if err := s.registry.Register(job); err != nil {
		s.log.Error().Err(err).Msg("Registry rejected job")
		s.killAndWait()
		s.writeFrame(w, "", fmt.Sprintf("❌ %v", err))
		s.xlat.MarkFatal(err.Error())
		return s.finish(w, start, clientGone)
	}
	defer s.registry.Unregister(s.ID)

	s.log.Info().Str("provider", s.provider).Str("url", s.url).Msg("Job started")

	stall := time.NewTimer(s.stallTimeout)
	defer stall.Stop()

lines:
	for {
		select {
		case line, ok := <-s.engine.Lines():
			if !ok {
				break lines
			}
			if !stall.Stop() {
				<-stall.C
			}
			stall.Reset(s.stallTimeout)

			tr := s.xlat.Translate(line)
			for _, ev := range tr.Events {
				if payload, ok := ev.metaPayload(); ok {
					if s.writeFrame(w, "meta", payload) != nil {
						clientGone = true
					}
				}
			}
			if tr.Echo {
				if s.writeFrame(w, "", tr.Text) != nil {
					clientGone = true
				}
			}

		case <-stall.C:
			s.log.Warn().Msg("Engine silent past stall timeout, aborting")
			s.xlat.MarkFatal(fmt.Sprintf("engine produced no output for %s", s.stallTimeout))
			s.killAndWait()
			break lines
		}
	}

	// Consume whatever the engine still managed to queue, so counters
	// reflect work that actually happened.
	for _, line := range drained(s.engine.Lines()) {
		s.xlat.Translate(line)
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), s.abandonTimeout)
	if err := s.engine.Wait(waitCtx); err != nil {
		s.log.Warn().Msg("Engine did not release resources in time, abandoning")
	}
	cancel()

	if job.Cancelled() {
		s.xlat.MarkCancelled()
	}
	if code := s.engine.ExitCode(); code > 1 && !s.xlat.Cancelled() {
		// yt-dlp exits 1 for per-item errors under --ignore-errors;
		// anything above that is a real failure.
		s.xlat.MarkFatal(fmt.Sprintf("engine exited with code %d", code))
	}

	return s.finish(w, start, clientGone)
}

// drained returns the remaining buffered lines without blocking on the
// producer.
func drained(lines <-chan string) []string {
	var out []string
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return out
			}
			out = append(out, line)
		default:
			return out
		}
	}
}

// finish writes the terminal frames and builds the result. The status frame
// is written exactly once and the end-of-stream marker is always last.
func (s *Session) finish(w FrameWriter, start time.Time, clientGone bool) Result {
	status := s.xlat.Status()

	s.writeFrame(w, "", "")
	switch {
	case s.xlat.Cancelled():
		s.writeFrame(w, "", "Download cancelled.")
	case s.xlat.Fatal():
		s.writeFrame(w, "", fmt.Sprintf("❌ Download failed: %s", s.xlat.FatalReason()))
	case status.Success:
		s.writeFrame(w, "", fmt.Sprintf("✅ Done: %d downloaded, %d skipped, %d errors",
			status.Downloaded, status.Skipped, status.Errors))
	default:
		s.writeFrame(w, "", fmt.Sprintf("❌ All %d downloads failed", status.Errors))
	}

	payload, _ := json.Marshal(status)
	s.writeFrame(w, "status", string(payload))
	s.writeFrame(w, "", endOfStreamMarker)

	result := Result{
		Status:    status,
		Cancelled: s.xlat.Cancelled(),
		Fatal:     s.xlat.Fatal(),
		Duration:  time.Since(start),
	}
	s.log.Info().
		Bool("success", status.Success).
		Int("downloaded", status.Downloaded).
		Int("errors", status.Errors).
		Int("skipped", status.Skipped).
		Bool("cancelled", result.Cancelled).
		Bool("client_gone", clientGone).
		Dur("duration", result.Duration).
		Msg("Job finished")
	return result
}

func (s *Session) writeFrame(w FrameWriter, event, data string) error {
	return w.WriteFrame(event, data)
}

// killAndWait force-stops the engine and waits briefly for it to die.
func (s *Session) killAndWait() {
	_ = s.engine.Kill()
	ctx, cancel := context.WithTimeout(context.Background(), terminateGrace)
	defer cancel()
	_ = s.engine.Wait(ctx)
}
