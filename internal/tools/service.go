// Package tools manages the external download engine binary.
package tools

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// probeTimeout bounds the version check so a wedged binary cannot hang the
// API.
const probeTimeout = 10 * time.Second

// Service probes and updates the external yt-dlp binary.
type Service struct {
	ytdlpPath string
	log       zerolog.Logger
}

// NewService creates a tools service. An empty path means PATH lookup.
func NewService(ytdlpPath string, log zerolog.Logger) *Service {
	return &Service{
		ytdlpPath: ytdlpPath,
		log:       log.With().Str("component", "tools").Logger(),
	}
}

// Path returns the configured binary path, empty for PATH lookup.
func (s *Service) Path() string {
	return s.ytdlpPath
}

func (s *Service) binary() string {
	if s.ytdlpPath != "" {
		return s.ytdlpPath
	}
	return "yt-dlp"
}

// VersionInfo describes the installed engine.
type VersionInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Version probes the engine binary for its version string.
func (s *Service) Version(ctx context.Context) VersionInfo {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.binary(), "--version").Output()
	if err != nil {
		s.log.Debug().Err(err).Msg("Engine version probe failed")
		return VersionInfo{Available: false, Error: err.Error()}
	}
	return VersionInfo{
		Available: true,
		Version:   strings.TrimSpace(string(out)),
		Path:      s.binary(),
	}
}

// Update runs the engine's self-updater, forwarding each output line to
// emit. It returns the updater's error, if any.
func (s *Service) Update(ctx context.Context, emit func(line string)) error {
	cmd := exec.CommandContext(ctx, s.binary(), "-U")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line != "" {
			emit(line)
		}
	}
	return cmd.Wait()
}
