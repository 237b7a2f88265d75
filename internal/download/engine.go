package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// engine downloads audio tracks with the embedded YouTube client. It knows
// nothing about SSE or jobs: it reports through emit and checks cancelled
// between items.
type engine struct {
	client    youtube.Client
	outputDir string
	emit      func(string)
	cancelled func() bool
}

const lineSeparator = "============================================================"

// run downloads the given URL into the engine's output directory. It
// returns errRunCancelled when stopped by the cancel flag and a plain error
// for unrecoverable failures; per-item failures are reported as lines and
// do not abort the run.
func (e *engine) run(ctx context.Context, url string) error {
	e.emit("Fetching metadata from YouTube...")

	if isPlaylistURL(url) {
		return e.runPlaylist(ctx, url)
	}
	return e.runSingle(ctx, url)
}

func (e *engine) runSingle(ctx context.Context, url string) error {
	video, err := e.client.GetVideoContext(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to resolve video: %w", err)
	}

	e.emit(lineSeparator)
	e.emit(fmt.Sprintf("[1/1] Starting download: %s", video.Title))
	e.downloadTrack(ctx, video)
	return nil
}

func (e *engine) runPlaylist(ctx context.Context, url string) error {
	playlist, err := e.client.GetPlaylistContext(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to resolve playlist: %w", err)
	}

	e.emit(lineSeparator)
	e.emit(fmt.Sprintf("Playlist: %s (%d tracks)", playlist.Title, len(playlist.Videos)))
	e.emit(lineSeparator)

	total := len(playlist.Videos)
	for i, entry := range playlist.Videos {
		if e.cancelled() {
			return errRunCancelled
		}

		e.emit(fmt.Sprintf("[%d/%d] Starting download: %s", i+1, total, entry.Title))

		video, err := e.client.VideoFromPlaylistEntryContext(ctx, entry)
		if err != nil {
			e.emit(fmt.Sprintf("[X] Failed to download: %s (%v)", entry.Title, err))
			continue
		}
		e.downloadTrack(ctx, video)
	}
	return nil
}

// downloadTrack fetches the best audio-only stream for a video. Failures
// are reported as lines; a broken track never aborts the playlist.
func (e *engine) downloadTrack(ctx context.Context, video *youtube.Video) {
	formats := video.Formats.Type("audio")
	if len(formats) == 0 {
		formats = video.Formats.WithAudioChannels()
	}
	if len(formats) == 0 {
		e.emit(fmt.Sprintf("[X] Failed to download: %s (no audio stream available)", video.Title))
		return
	}

	format := bestAudioFormat(formats)
	name := sanitizeName(video.Title) + extensionForMime(format.MimeType)
	dest := filepath.Join(e.outputDir, name)

	if _, err := os.Stat(dest); err == nil {
		e.emit(fmt.Sprintf("File already exists: %s - Skipping", name))
		return
	}

	stream, _, err := e.client.GetStreamContext(ctx, video, format)
	if err != nil {
		e.emit(fmt.Sprintf("[X] Failed to download: %s (%v)", video.Title, err))
		return
	}
	defer stream.Close()

	out, err := os.Create(dest)
	if err != nil {
		e.emit(fmt.Sprintf("[X] Failed to download: %s (%v)", video.Title, err))
		return
	}

	if _, err := io.Copy(out, stream); err != nil {
		out.Close()
		os.Remove(dest)
		e.emit(fmt.Sprintf("[X] Failed to download: %s (%v)", video.Title, err))
		return
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		e.emit(fmt.Sprintf("[X] Failed to download: %s (%v)", video.Title, err))
		return
	}

	e.emit(fmt.Sprintf("Downloaded: %s", name))
}

// bestAudioFormat picks the highest-bitrate format from a non-empty list.
func bestAudioFormat(formats youtube.FormatList) *youtube.Format {
	best := &formats[0]
	for i := range formats {
		if formats[i].Bitrate > best.Bitrate {
			best = &formats[i]
		}
	}
	return best
}

// extensionForMime maps a stream MIME type to a file extension.
func extensionForMime(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "audio/webm"):
		return ".webm"
	case strings.Contains(mimeType, "audio/mp4"):
		return ".m4a"
	case strings.Contains(mimeType, "audio/mpeg"):
		return ".mp3"
	default:
		return ".m4a"
	}
}
