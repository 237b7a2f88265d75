package playlistsync

import (
	"context"
	"strings"
	"testing"

	"github.com/sensor0x0/Dromeport/internal/download"
	"github.com/sensor0x0/Dromeport/internal/history"
	"github.com/sensor0x0/Dromeport/internal/testutil"
)

func newTestRunner(t *testing.T) (*Runner, *Store) {
	t.Helper()
	store, _ := newTestStore(t)
	tdb := testutil.NewTestDB(t)
	historySvc := history.NewService(tdb.DB, tdb.Logger)
	return NewRunner(store, "", historySvc, testutil.NopLogger()), store
}

func TestRunScheduledRecordsFailedRun(t *testing.T) {
	runner, store := newTestRunner(t)

	p := validPlaylist()
	p.Config.LibraryPath = t.TempDir()
	// A pinned nonexistent binary makes the engine launch fail fast.
	p.Config.YtMusic.YtdlpPath = "/nonexistent/yt-dlp"
	added, err := store.Add(p)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	runner.RunScheduled(added.ID)

	got, err := store.Get(added.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LastSyncedAt == nil {
		t.Fatal("Run did not write last_synced_at")
	}
	if got.LastSyncStatus != "error" {
		t.Errorf("LastSyncStatus = %q, want error", got.LastSyncStatus)
	}
	if got.LastSyncLog == "" {
		t.Error("Run did not capture a log")
	}
}

func TestRunScheduledUnknownPlaylist(t *testing.T) {
	runner, _ := newTestRunner(t)
	// Must not panic and must not create any record.
	runner.RunScheduled("ghost")
}

func TestBuildConfigForcesScheduledDefaults(t *testing.T) {
	store, _ := newTestStore(t)
	tdb := testutil.NewTestDB(t)
	runner := NewRunner(store, "/opt/tools/yt-dlp", history.NewService(tdb.DB, tdb.Logger), testutil.NopLogger())

	p := validPlaylist()
	p.PlaylistFolder = "Morning Mix"
	p.Config.YouTube.ArtistSubfolders = true
	p.Config.YouTube.AlbumSubfolders = true

	cfg := runner.buildConfig(&p)

	if cfg.PlaylistMode != "folder" || cfg.PlaylistFolder != "Morning Mix" {
		t.Errorf("Folder placement not applied: %+v", cfg)
	}
	if cfg.YouTube.ArtistSubfolders || cfg.YouTube.AlbumSubfolders {
		t.Error("Scheduled runs must not use per-run sub-organization")
	}
	if cfg.YtMusic.YtdlpPath != "/opt/tools/yt-dlp" {
		t.Errorf("Discovered engine path not injected: %q", cfg.YtMusic.YtdlpPath)
	}
}

func TestBuildConfigKeepsPinnedEnginePath(t *testing.T) {
	store, _ := newTestStore(t)
	tdb := testutil.NewTestDB(t)
	runner := NewRunner(store, "/opt/tools/yt-dlp", history.NewService(tdb.DB, tdb.Logger), testutil.NopLogger())

	p := validPlaylist()
	p.Config.YtMusic.YtdlpPath = "/home/user/yt-dlp-nightly"

	cfg := runner.buildConfig(&p)
	if cfg.YtMusic.YtdlpPath != "/home/user/yt-dlp-nightly" {
		t.Errorf("Pinned engine path overwritten: %q", cfg.YtMusic.YtdlpPath)
	}
}

func TestRunStreamMirrorsLogToClient(t *testing.T) {
	runner, store := newTestRunner(t)

	p := validPlaylist()
	p.Config.LibraryPath = t.TempDir()
	p.Config.YtMusic.YtdlpPath = "/nonexistent/yt-dlp"
	added, err := store.Add(p)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var sb strings.Builder
	client := writerFunc(func(event, data string) error {
		if event == "" {
			sb.WriteString(data + "\n")
		}
		return nil
	})
	runner.RunStream(added.ID, client)

	if !strings.Contains(sb.String(), "[DONE]") {
		t.Error("Client stream missing end-of-stream marker")
	}

	got, err := store.Get(added.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LastSyncStatus != "error" {
		t.Errorf("Manual run did not record outcome: %q", got.LastSyncStatus)
	}
}

func TestRunHistoryEntryWritten(t *testing.T) {
	store, _ := newTestStore(t)
	tdb := testutil.NewTestDB(t)
	historySvc := history.NewService(tdb.DB, tdb.Logger)
	runner := NewRunner(store, "", historySvc, testutil.NopLogger())

	p := validPlaylist()
	p.Config.LibraryPath = t.TempDir()
	p.Config.YtMusic.YtdlpPath = "/nonexistent/yt-dlp"
	added, err := store.Add(p)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	runner.RunScheduled(added.ID)

	entries, err := historySvc.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(entries))
	}
	if entries[0].Origin != "scheduled" || entries[0].Status != "error" {
		t.Errorf("History entry wrong: %+v", entries[0])
	}
}

// writerFunc adapts a function to the frame writer contract.
type writerFunc func(event, data string) error

func (f writerFunc) WriteFrame(event, data string) error { return f(event, data) }

var _ download.FrameWriter = writerFunc(nil)
