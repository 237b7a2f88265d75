package download

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
)

// ytMusicProvider drives an external yt-dlp process. Stdout and stderr are
// merged into one line stream so ordering between progress and error output
// is preserved.
type ytMusicProvider struct {
	url string
	cfg JobConfig

	cmd   *exec.Cmd
	lines chan string
	done  chan struct{}

	mu       sync.Mutex
	exitCode int
}

func newYtMusicProvider(url string, cfg JobConfig) *ytMusicProvider {
	return &ytMusicProvider{
		url:      url,
		cfg:      cfg,
		lines:    make(chan string, 64),
		done:     make(chan struct{}),
		exitCode: -1,
	}
}

// ytdlpBinary resolves the binary to invoke: a pinned path wins over the
// bare command name.
func (p *ytMusicProvider) ytdlpBinary() string {
	if p.cfg.YtMusic.YtdlpPath != "" {
		return p.cfg.YtMusic.YtdlpPath
	}
	return "yt-dlp"
}

// buildYtdlpArgs assembles the yt-dlp argument vector for a job. The output
// template places files directly in the resolved output directory.
func buildYtdlpArgs(url string, cfg JobConfig) []string {
	format := cfg.YtMusic.Quality
	if format == "" {
		format = "opus"
	}

	outputTemplate := filepath.Join(cfg.OutputDir(), "%(title)s.%(ext)s")

	args := []string{
		"--extract-audio",
		"--audio-format", format,
		"--output", outputTemplate,
		"--ignore-errors",
		"--newline",
		"--no-colors",
	}

	if format == "mp3" {
		args = append(args, "--audio-quality", "0")
	}
	if cfg.YtMusic.EmbedMetadata {
		args = append(args, "--embed-metadata", "--embed-thumbnail")
	}
	if !isPlaylistURL(url) {
		args = append(args, "--no-playlist")
	}

	return append(args, url)
}

// Start launches yt-dlp and begins pumping its output. A returned error
// means the process never started (typically: binary not found).
func (p *ytMusicProvider) Start(ctx context.Context) error {
	p.cmd = exec.Command(p.ytdlpBinary(), buildYtdlpArgs(p.url, p.cfg)...)

	stdout, err := p.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	p.cmd.Stderr = p.cmd.Stdout

	if err := p.cmd.Start(); err != nil {
		return err
	}

	go p.pump(stdout)
	return nil
}

// pump reads merged process output line by line until EOF, then reaps the
// process. Undecodable bytes are replaced rather than dropped so a bad
// title never kills the stream.
func (p *ytMusicProvider) pump(r io.Reader) {
	defer close(p.lines)
	defer close(p.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		line = strings.ToValidUTF8(line, "�")
		if line == "" {
			continue
		}
		p.lines <- line
	}

	err := p.cmd.Wait()
	code := 0
	if err != nil {
		code = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
	}
	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()
}

func (p *ytMusicProvider) Lines() <-chan string {
	return p.lines
}

// Terminate sends SIGTERM so yt-dlp can finish writing the current file.
func (p *ytMusicProvider) Terminate() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill stops the process without ceremony.
func (p *ytMusicProvider) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Wait blocks until the process has been reaped or ctx expires.
func (p *ytMusicProvider) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitCode returns the process exit code, or -1 before exit.
func (p *ytMusicProvider) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}
