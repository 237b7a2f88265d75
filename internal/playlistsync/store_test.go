package playlistsync

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sensor0x0/Dromeport/internal/download"
	"github.com/sensor0x0/Dromeport/internal/testutil"
)

func validPlaylist() Playlist {
	return Playlist{
		URL:      "https://music.example/playlist?list=PL1",
		Name:     "Morning Mix",
		Provider: download.ProviderYtMusic,
		Config: download.JobConfig{
			LibraryPath: "/music",
			YtMusic:     download.YtMusicOptions{Quality: "opus"},
		},
		ScheduleType:  ScheduleInterval,
		IntervalValue: 6,
		IntervalUnit:  UnitHours,
		Enabled:       true,
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync_playlists.json")
	store, err := NewStore(path, testutil.NopLogger())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store, path
}

func TestStoreRoundTrip(t *testing.T) {
	store, path := newTestStore(t)

	added, err := store.Add(validPlaylist())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if added.ID == "" {
		t.Fatal("Add did not assign an id")
	}

	// A fresh store reading the same file must see the same definition.
	reloaded, err := NewStore(path, testutil.NopLogger())
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	got, err := reloaded.Get(added.ID)
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	if got.Name != "Morning Mix" || got.IntervalValue != 6 || got.IntervalUnit != UnitHours {
		t.Errorf("Definition not round-tripped: %+v", got)
	}
	if got.Config.LibraryPath != "/music" || got.Config.YtMusic.Quality != "opus" {
		t.Errorf("Config snapshot not round-tripped: %+v", got.Config)
	}
}

func TestStoreValidation(t *testing.T) {
	store, _ := newTestStore(t)

	tests := []struct {
		name   string
		mutate func(*Playlist)
	}{
		{"missing url", func(p *Playlist) { p.URL = "" }},
		{"missing name", func(p *Playlist) { p.Name = "" }},
		{"missing library path", func(p *Playlist) { p.Config.LibraryPath = "" }},
		{"unknown provider", func(p *Playlist) { p.Provider = "soundcloud" }},
		{"zero interval", func(p *Playlist) { p.IntervalValue = 0 }},
		{"bad unit", func(p *Playlist) { p.IntervalUnit = "fortnights" }},
		{"bad schedule type", func(p *Playlist) { p.ScheduleType = "lunar" }},
		{"bad cron time", func(p *Playlist) {
			p.ScheduleType = ScheduleCron
			p.CronTime = "25:00"
		}},
		{"bad cron days", func(p *Playlist) {
			p.ScheduleType = ScheduleCron
			p.CronTime = "08:00"
			p.CronDays = "someday"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlaylist()
			tt.mutate(&p)
			if _, err := store.Add(p); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestStoreUpdatePreservesBookkeeping(t *testing.T) {
	store, _ := newTestStore(t)

	added, err := store.Add(validPlaylist())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.RecordRun(added.ID, "success", "3 tracks downloaded"); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	updated, err := store.Update(added.ID, UpdateInput{Name: ptr("Evening Mix")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if updated.Name != "Evening Mix" {
		t.Errorf("Update did not apply: %+v", updated)
	}
	if updated.LastSyncStatus != "success" || updated.LastSyncLog != "3 tracks downloaded" {
		t.Errorf("Update clobbered sync bookkeeping: %+v", updated)
	}
	if updated.LastSyncedAt == nil {
		t.Error("Update dropped last_synced_at")
	}
}

func TestStoreUpdateEnabledOnly(t *testing.T) {
	store, _ := newTestStore(t)

	added, err := store.Add(validPlaylist())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	updated, err := store.Update(added.ID, UpdateInput{Enabled: ptr(false)})
	if err != nil {
		t.Fatalf("Enabled-only update rejected: %v", err)
	}

	if updated.Enabled {
		t.Error("Enabled flag not applied")
	}
	// Everything not in the patch keeps its stored value.
	if updated.URL != added.URL || updated.Name != added.Name || updated.Provider != added.Provider {
		t.Errorf("Partial update changed untouched fields: %+v", updated)
	}
	if updated.IntervalValue != 6 || updated.IntervalUnit != UnitHours {
		t.Errorf("Partial update changed schedule: %+v", updated)
	}
}

func TestStoreUpdateScheduleSwitch(t *testing.T) {
	store, _ := newTestStore(t)

	added, err := store.Add(validPlaylist())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	updated, err := store.Update(added.ID, UpdateInput{
		ScheduleType: ptr(ScheduleCron),
		CronTime:     ptr("08:00"),
		CronDays:     ptr("weekdays"),
	})
	if err != nil {
		t.Fatalf("Schedule switch rejected: %v", err)
	}
	if updated.ScheduleType != ScheduleCron || updated.CronTime != "08:00" {
		t.Errorf("Schedule switch not applied: %+v", updated)
	}

	// A switch to cron without the cron fields must fail validation of
	// the merged definition.
	fresh, err := store.Add(validPlaylist())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if _, err := store.Update(fresh.ID, UpdateInput{ScheduleType: ptr(ScheduleCron)}); err == nil {
		t.Error("Cron switch without cron_time passed validation")
	}
}

func TestStoreUpdateUnknown(t *testing.T) {
	store, _ := newTestStore(t)
	if _, err := store.Update("ghost", UpdateInput{}); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStoreDelete(t *testing.T) {
	store, _ := newTestStore(t)

	added, err := store.Add(validPlaylist())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Delete(added.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(added.ID); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(added.ID); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for double delete, got %v", err)
	}
}

func TestStoreRecordRunTruncatesLog(t *testing.T) {
	store, _ := newTestStore(t)

	added, err := store.Add(validPlaylist())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	long := strings.Repeat("x", 8000) + "FINAL"
	if err := store.RecordRun(added.ID, "error", long); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	got, err := store.Get(added.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.LastSyncLog) != maxSyncLogBytes {
		t.Errorf("Log length = %d, want %d", len(got.LastSyncLog), maxSyncLogBytes)
	}
	if !strings.HasSuffix(got.LastSyncLog, "FINAL") {
		t.Error("Truncation dropped the log tail instead of the head")
	}
}

func TestStoreRecordRunTruncationKeepsValidUTF8(t *testing.T) {
	store, _ := newTestStore(t)

	added, err := store.Add(validPlaylist())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// 2000 three-byte runes put the truncation point in the middle of
	// one: the cut offset is not a multiple of the rune width.
	long := strings.Repeat("€", 2000)
	if err := store.RecordRun(added.ID, "error", long); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	got, err := store.Get(added.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !utf8.ValidString(got.LastSyncLog) {
		t.Error("Truncated log is not valid UTF-8")
	}
	if len(got.LastSyncLog) > maxSyncLogBytes {
		t.Errorf("Log length = %d, want at most %d", len(got.LastSyncLog), maxSyncLogBytes)
	}
	if !strings.HasSuffix(got.LastSyncLog, "€") {
		t.Error("Truncation dropped the log tail instead of the head")
	}
}
