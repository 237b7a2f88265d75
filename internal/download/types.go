// Package download runs media download jobs and translates engine output
// into a client-facing event stream.
package download

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Provider tags accepted by the streaming endpoint. The set is closed:
// adding a provider means adding code, not configuration.
const (
	ProviderYtMusic = "ytmusic"
	ProviderYouTube = "youtube"
)

// JobConfig is the per-job configuration snapshot sent by the client.
// Scheduled runs store one of these alongside the playlist definition.
type JobConfig struct {
	LibraryPath    string         `json:"libraryPath"`
	PlaylistMode   string         `json:"playlistMode,omitempty"` // "flat" or "folder"
	PlaylistFolder string         `json:"_playlist_folder,omitempty"`
	YtMusic        YtMusicOptions `json:"ytMusic,omitempty"`
	YouTube        YouTubeOptions `json:"youtube,omitempty"`
}

// YtMusicOptions configures the yt-dlp backed provider.
type YtMusicOptions struct {
	// Quality is the target audio format, e.g. "opus" or "mp3".
	Quality       string `json:"quality,omitempty"`
	EmbedMetadata bool   `json:"embedMetadata,omitempty"`
	// YtdlpPath pins a specific yt-dlp binary. Empty means the
	// server-discovered binary (or PATH lookup) is used.
	YtdlpPath string `json:"ytdlpPath,omitempty"`
}

// YouTubeOptions configures the embedded provider.
type YouTubeOptions struct {
	ArtistSubfolders bool `json:"artistSubfolders,omitempty"`
	AlbumSubfolders  bool `json:"albumSubfolders,omitempty"`
}

// ParseJobConfig decodes the config query parameter. An empty string is a
// valid all-defaults config.
func ParseJobConfig(raw string) (JobConfig, error) {
	var cfg JobConfig
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the parts of the config the server refuses to guess.
func (c JobConfig) Validate() error {
	if c.LibraryPath == "" {
		return fmt.Errorf("no library path configured")
	}
	if !filepath.IsAbs(c.LibraryPath) {
		return fmt.Errorf("library path must be absolute: %s", c.LibraryPath)
	}
	return nil
}

// OutputDir resolves the destination directory for a job. Playlist-folder
// mode nests a sanitized folder name under the library root.
func (c JobConfig) OutputDir() string {
	if c.PlaylistMode == "folder" && c.PlaylistFolder != "" {
		return filepath.Join(c.LibraryPath, sanitizeName(c.PlaylistFolder))
	}
	return c.LibraryPath
}

// sanitizeName strips characters that are unsafe in directory names.
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	return strings.TrimSpace(replacer.Replace(name))
}

// isPlaylistURL reports whether a URL points at a playlist rather than a
// single track.
func isPlaylistURL(url string) bool {
	return strings.Contains(url, "list=") || strings.Contains(url, "/playlist")
}

// Status is the terminal summary of a job, emitted exactly once per stream.
type Status struct {
	Success    bool `json:"success"`
	Downloaded int  `json:"downloaded"`
	Errors     int  `json:"errors"`
	Skipped    int  `json:"skipped"`
}

// EventKind discriminates translated progress events.
type EventKind int

const (
	// KindLog is a plain line echoed to the client.
	KindLog EventKind = iota
	// KindTitle carries the resolved playlist or track title.
	KindTitle
	// KindProgress carries item counters for a multi-item job.
	KindProgress
	// KindThumbnail carries a cover image URL, at most once per job.
	KindThumbnail
)

// Event is one translated element of a job's outward stream.
type Event struct {
	Kind    EventKind
	Text    string // title text, thumbnail URL, or log line
	Current int
	Total   int
}

// metaPayload renders the JSON body of a meta frame. KindLog events have no
// meta representation and return false.
func (e Event) metaPayload() (string, bool) {
	switch e.Kind {
	case KindTitle:
		data, _ := json.Marshal(map[string]string{"type": "title", "value": e.Text})
		return string(data), true
	case KindProgress:
		data, _ := json.Marshal(map[string]any{"type": "progress", "current": e.Current, "total": e.Total})
		return string(data), true
	case KindThumbnail:
		data, _ := json.Marshal(map[string]string{"type": "thumb", "url": e.Text})
		return string(data), true
	default:
		return "", false
	}
}

// FrameWriter receives outward protocol frames in order. Event is "" for
// plain data frames, or a named frame type such as "meta" or "status".
// A write error means the consumer is gone and production should stop.
type FrameWriter interface {
	WriteFrame(event, data string) error
}
