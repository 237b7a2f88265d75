package download

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Translator turns raw engine output lines into structured events and echo
// text, and accumulates the counters behind the terminal status. Rules are
// checked in priority order per line; the first match wins and later rules
// never see the line.
type Translator struct {
	provider string

	downloaded int
	errors     int
	skipped    int
	total      int
	current    int

	title         string
	thumbnailSent bool
	fatal         bool
	fatalReason   string
	cancelled     bool
}

// Translation is the outcome of feeding one line to the translator.
type Translation struct {
	// Events to write as meta frames before the echo, in order.
	Events []Event
	// Echo reports whether the line (possibly rewritten) is sent to the
	// client as a plain data frame.
	Echo bool
	// Text is the echoed line when Echo is true.
	Text string
}

// NewTranslator creates a translator for a provider tag.
func NewTranslator(provider string) *Translator {
	return &Translator{provider: provider}
}

var (
	ytPlaylistTitleRe = regexp.MustCompile(`\[download\] Downloading playlist: (.+)`)
	ytPlaylistCountRe = regexp.MustCompile(`Playlist .+: Downloading (\d+) items`)
	ytItemProgressRe  = regexp.MustCompile(`\[download\] Downloading item (\d+) of (\d+)`)
	ytVideoIDRe       = regexp.MustCompile(`\[youtube\] Extracting URL: .*watch\?v=([A-Za-z0-9_-]{11})`)
	ytDestinationRe   = regexp.MustCompile(`\[ExtractAudio\] Destination: (.+)`)

	embeddedItemRe = regexp.MustCompile(`^\[(\d+)/(\d+)\] Starting download: (.+)`)
	separatorRe    = regexp.MustCompile(`^=+$`)
)

// Translate processes one raw line.
func (t *Translator) Translate(line string) Translation {
	switch t.provider {
	case ProviderYouTube:
		return t.translateEmbedded(line)
	default:
		return t.translateYtdlp(line)
	}
}

// translateYtdlp handles the external yt-dlp vocabulary.
func (t *Translator) translateYtdlp(line string) Translation {
	if strings.HasPrefix(line, "ERROR:") {
		t.errors++
		return Translation{Echo: true, Text: line}
	}

	if m := ytPlaylistTitleRe.FindStringSubmatch(line); m != nil {
		t.title = m[1]
		return Translation{
			Events: []Event{{Kind: KindTitle, Text: m[1]}},
			Echo:   true, Text: line,
		}
	}

	if m := ytPlaylistCountRe.FindStringSubmatch(line); m != nil {
		t.total, _ = strconv.Atoi(m[1])
		return Translation{
			Events: []Event{{Kind: KindProgress, Current: 0, Total: t.total}},
			Echo:   true, Text: line,
		}
	}

	if m := ytItemProgressRe.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.Atoi(m[1])
		tot, _ := strconv.Atoi(m[2])
		t.current = cur
		t.total = tot
		// The item is starting, not finished: report one less.
		return Translation{
			Events: []Event{{Kind: KindProgress, Current: cur - 1, Total: tot}},
			Echo:   true, Text: line,
		}
	}

	if m := ytVideoIDRe.FindStringSubmatch(line); m != nil && !t.thumbnailSent {
		t.thumbnailSent = true
		thumb := "https://i.ytimg.com/vi/" + m[1] + "/hqdefault.jpg"
		return Translation{
			Events: []Event{{Kind: KindThumbnail, Text: thumb}},
			Echo:   true, Text: line,
		}
	}

	if m := ytDestinationRe.FindStringSubmatch(line); m != nil {
		t.downloaded++
		events := []Event{}
		if t.total > 0 {
			events = append(events, Event{Kind: KindProgress, Current: t.downloaded, Total: t.total})
		} else if t.title == "" {
			// Single track: the destination file name is the best title.
			base := filepath.Base(m[1])
			name := strings.TrimSuffix(base, filepath.Ext(base))
			t.title = name
			events = append(events, Event{Kind: KindTitle, Text: name})
		}
		return Translation{Events: events, Echo: true, Text: line}
	}

	if strings.Contains(line, "has already been downloaded") {
		t.skipped++
		return Translation{Echo: true, Text: line}
	}

	return Translation{Echo: true, Text: line}
}

// translateEmbedded handles the embedded engine vocabulary, including the
// internal end-of-run markers which never reach the client verbatim.
func (t *Translator) translateEmbedded(line string) Translation {
	if strings.HasPrefix(line, markerException) {
		t.fatal = true
		t.fatalReason = strings.TrimPrefix(line, markerException)
		return Translation{Echo: true, Text: "Engine error: " + t.fatalReason}
	}

	if line == markerCancelled {
		t.cancelled = true
		return Translation{}
	}

	if separatorRe.MatchString(line) {
		return Translation{Echo: true, Text: ""}
	}

	if m := embeddedItemRe.FindStringSubmatch(line); m != nil {
		cur, _ := strconv.Atoi(m[1])
		tot, _ := strconv.Atoi(m[2])
		t.current = cur
		t.total = tot
		events := []Event{{Kind: KindProgress, Current: cur - 1, Total: tot}}
		if t.title == "" && tot == 1 {
			t.title = m[3]
			events = append(events, Event{Kind: KindTitle, Text: m[3]})
		}
		return Translation{Events: events, Echo: true, Text: line}
	}

	if strings.HasPrefix(line, "Playlist: ") {
		title := strings.TrimPrefix(line, "Playlist: ")
		if idx := strings.LastIndex(title, " ("); idx > 0 {
			title = title[:idx]
		}
		t.title = title
		return Translation{
			Events: []Event{{Kind: KindTitle, Text: title}},
			Echo:   true, Text: line,
		}
	}

	if strings.HasPrefix(line, "Downloaded: ") {
		t.downloaded++
		events := []Event{}
		if t.total > 0 {
			events = append(events, Event{Kind: KindProgress, Current: t.downloaded + t.skipped + t.errors, Total: t.total})
		}
		return Translation{Events: events, Echo: true, Text: line}
	}

	if strings.HasPrefix(line, "[X] Failed to download:") {
		t.errors++
		return Translation{Echo: true, Text: line}
	}

	if strings.HasPrefix(line, "File already exists:") && strings.HasSuffix(line, "Skipping") {
		t.skipped++
		return Translation{Echo: true, Text: line}
	}

	return Translation{Echo: true, Text: line}
}

// MarkFatal records an out-of-band fatal condition (stall, dirty exit).
func (t *Translator) MarkFatal(reason string) {
	t.fatal = true
	if t.fatalReason == "" {
		t.fatalReason = reason
	}
}

// MarkCancelled records an out-of-band cancellation.
func (t *Translator) MarkCancelled() {
	t.cancelled = true
}

// Fatal reports whether the run hit an unrecoverable failure.
func (t *Translator) Fatal() bool { return t.fatal }

// FatalReason returns the first recorded fatal reason.
func (t *Translator) FatalReason() string { return t.fatalReason }

// Cancelled reports whether the run was cancelled.
func (t *Translator) Cancelled() bool { return t.cancelled }

// Title returns the best title seen so far, empty if none.
func (t *Translator) Title() string { return t.title }

// attempted is the number of items the run tried to process.
func (t *Translator) attempted() int {
	if t.total > 0 {
		return t.total
	}
	return t.downloaded + t.errors + t.skipped
}

// Status computes the terminal summary. A run succeeds unless it was
// fatal, cancelled, or a complete failure: at least one attempt, zero
// downloads and at least one error.
func (t *Translator) Status() Status {
	completeFailure := t.errors > 0 && t.downloaded == 0 && t.attempted() > 0
	return Status{
		Success:    !t.fatal && !t.cancelled && !completeFailure,
		Downloaded: t.downloaded,
		Errors:     t.errors,
		Skipped:    t.skipped,
	}
}
