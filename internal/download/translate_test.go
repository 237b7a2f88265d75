package download

import (
	"strings"
	"testing"
)

func feed(t *testing.T, tr *Translator, lines ...string) {
	t.Helper()
	for _, l := range lines {
		tr.Translate(l)
	}
}

func TestYtdlpPlaylistVocabulary(t *testing.T) {
	tr := NewTranslator(ProviderYtMusic)

	res := tr.Translate("[download] Downloading playlist: Road Trip Mix")
	if len(res.Events) != 1 || res.Events[0].Kind != KindTitle || res.Events[0].Text != "Road Trip Mix" {
		t.Fatalf("Expected title event, got %+v", res.Events)
	}

	res = tr.Translate("[download] Playlist Road Trip Mix: Downloading 12 items of 12")
	if len(res.Events) != 1 || res.Events[0].Kind != KindProgress || res.Events[0].Total != 12 {
		t.Fatalf("Expected progress total 12, got %+v", res.Events)
	}

	res = tr.Translate("[download] Downloading item 3 of 12")
	if len(res.Events) != 1 || res.Events[0].Current != 2 || res.Events[0].Total != 12 {
		t.Fatalf("Expected progress 2/12, got %+v", res.Events)
	}
}

func TestYtdlpThumbnailEmittedOnce(t *testing.T) {
	tr := NewTranslator(ProviderYtMusic)
	line := "[youtube] Extracting URL: https://www.youtube.com/watch?v=dQw4w9WgXcQ"

	first := tr.Translate(line)
	if len(first.Events) != 1 || first.Events[0].Kind != KindThumbnail {
		t.Fatalf("Expected thumbnail event, got %+v", first.Events)
	}
	if !strings.Contains(first.Events[0].Text, "dQw4w9WgXcQ") {
		t.Errorf("Thumbnail URL missing video id: %s", first.Events[0].Text)
	}

	second := tr.Translate(line)
	if len(second.Events) != 0 {
		t.Errorf("Thumbnail emitted twice: %+v", second.Events)
	}
}

func TestYtdlpCounters(t *testing.T) {
	tr := NewTranslator(ProviderYtMusic)
	feed(t, tr,
		"[ExtractAudio] Destination: /music/Track One.opus",
		"ERROR: [youtube] abc: Video unavailable",
		"[download] /music/Track Two.opus has already been downloaded",
		"[ExtractAudio] Destination: /music/Track Three.opus",
	)

	status := tr.Status()
	if status.Downloaded != 2 || status.Errors != 1 || status.Skipped != 1 {
		t.Errorf("Counters wrong: %+v", status)
	}
	if !status.Success {
		t.Error("Partial failure should still succeed")
	}
}

func TestYtdlpSingleTrackTitle(t *testing.T) {
	tr := NewTranslator(ProviderYtMusic)
	res := tr.Translate("[ExtractAudio] Destination: /music/Some Song.opus")
	if len(res.Events) != 1 || res.Events[0].Kind != KindTitle || res.Events[0].Text != "Some Song" {
		t.Fatalf("Expected title from destination, got %+v", res.Events)
	}
}

func TestEmbeddedVocabulary(t *testing.T) {
	tr := NewTranslator(ProviderYouTube)

	res := tr.Translate("Playlist: Focus Beats (8 tracks)")
	if len(res.Events) != 1 || res.Events[0].Kind != KindTitle || res.Events[0].Text != "Focus Beats" {
		t.Fatalf("Expected title event, got %+v", res.Events)
	}

	res = tr.Translate("[3/8] Starting download: Song C")
	if len(res.Events) != 1 || res.Events[0].Current != 2 || res.Events[0].Total != 8 {
		t.Fatalf("Expected progress 2/8, got %+v", res.Events)
	}

	feed(t, tr,
		"Downloaded: Song C.webm",
		"[X] Failed to download: Song D (no audio stream available)",
		"File already exists: Song E.webm - Skipping",
	)
	status := tr.Status()
	if status.Downloaded != 1 || status.Errors != 1 || status.Skipped != 1 {
		t.Errorf("Counters wrong: %+v", status)
	}
}

func TestEmbeddedMarkersNeverEcho(t *testing.T) {
	tr := NewTranslator(ProviderYouTube)

	res := tr.Translate(markerCancelled)
	if res.Echo {
		t.Error("Cancel marker echoed to client")
	}
	if !tr.Cancelled() {
		t.Error("Cancel marker not recorded")
	}

	tr = NewTranslator(ProviderYouTube)
	res = tr.Translate(markerException + "network unreachable")
	if !res.Echo || strings.Contains(res.Text, "__") {
		t.Errorf("Exception marker leaked raw: %+v", res)
	}
	if !tr.Fatal() || tr.FatalReason() != "network unreachable" {
		t.Errorf("Exception not recorded: fatal=%v reason=%q", tr.Fatal(), tr.FatalReason())
	}
}

func TestEmbeddedSeparatorEchoesBlank(t *testing.T) {
	tr := NewTranslator(ProviderYouTube)
	res := tr.Translate("============================================================")
	if !res.Echo || res.Text != "" {
		t.Errorf("Separator should echo as blank line, got %+v", res)
	}
}

func TestStatusSuccessRule(t *testing.T) {
	tests := []struct {
		name       string
		downloaded int
		errors     int
		skipped    int
		want       bool
	}{
		{"all failed", 0, 3, 0, false},
		{"mostly succeeded", 5, 1, 0, true},
		{"nothing attempted", 0, 0, 0, true},
		{"all skipped", 0, 0, 4, true},
		{"errors but skips too", 0, 2, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTranslator(ProviderYouTube)
			for i := 0; i < tt.downloaded; i++ {
				tr.Translate("Downloaded: x")
			}
			for i := 0; i < tt.errors; i++ {
				tr.Translate("[X] Failed to download: x (err)")
			}
			for i := 0; i < tt.skipped; i++ {
				tr.Translate("File already exists: x - Skipping")
			}
			if got := tr.Status().Success; got != tt.want {
				t.Errorf("Success = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusCancelledNeverSucceeds(t *testing.T) {
	tr := NewTranslator(ProviderYtMusic)
	tr.Translate("[ExtractAudio] Destination: /music/a.opus")
	tr.MarkCancelled()
	if tr.Status().Success {
		t.Error("Cancelled run reported success")
	}
}

func TestStatusFatalNeverSucceeds(t *testing.T) {
	tr := NewTranslator(ProviderYtMusic)
	tr.Translate("[ExtractAudio] Destination: /music/a.opus")
	tr.MarkFatal("engine exited with code 2")
	if tr.Status().Success {
		t.Error("Fatal run reported success")
	}
}
