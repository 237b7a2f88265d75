package logger

import (
	"encoding/json"
	"sync"
)

const defaultBufferSize = 1000

// Broadcaster is the interface for broadcasting messages.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// LogEntry represents a parsed log entry for streaming.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogBroadcaster implements io.Writer on the zerolog output chain. Each
// well-formed entry is kept in a fixed-size history and, when a hub is
// attached, pushed to connected clients.
type LogBroadcaster struct {
	mu  sync.RWMutex
	hub Broadcaster

	// entries is a circular history: next is the slot the next entry lands
	// in, wrapped flips once the history has been overwritten at least once.
	entries []LogEntry
	next    int
	wrapped bool
}

// NewLogBroadcaster creates a new log broadcaster.
// Hub can be nil initially and set later with SetHub.
func NewLogBroadcaster(hub Broadcaster, bufferSize int) *LogBroadcaster {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &LogBroadcaster{
		hub:     hub,
		entries: make([]LogEntry, bufferSize),
	}
}

// SetHub sets the broadcaster hub for sending messages.
func (b *LogBroadcaster) SetHub(hub Broadcaster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hub = hub
}

// Write implements io.Writer. It receives JSON log entries from zerolog.
// Malformed entries are swallowed so a logging hiccup never fails a write.
func (b *LogBroadcaster) Write(p []byte) (n int, err error) {
	n = len(p)

	entry, ok := parseLogEntry(p)
	if !ok {
		return n, nil
	}

	b.mu.Lock()
	b.entries[b.next] = entry
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.wrapped = true
	}
	hub := b.hub
	b.mu.Unlock()

	if hub != nil {
		_ = hub.Broadcast("logs:entry", entry)
	}

	return n, nil
}

// GetRecentLogs returns the buffered entries, oldest first.
func (b *LogBroadcaster) GetRecentLogs() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.wrapped {
		out := make([]LogEntry, b.next)
		copy(out, b.entries[:b.next])
		return out
	}
	out := make([]LogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	out = append(out, b.entries[:b.next]...)
	return out
}

// parseLogEntry lifts the zerolog envelope keys out of a JSON entry and
// keeps whatever remains as free-form fields.
func parseLogEntry(data []byte) (LogEntry, bool) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, false
	}

	entry := LogEntry{
		Timestamp: takeString(raw, "time"),
		Level:     takeString(raw, "level"),
		Component: takeString(raw, "component"),
		Message:   takeString(raw, "message"),
	}
	if len(raw) > 0 {
		entry.Fields = raw
	}
	return entry, true
}

// takeString removes key from raw and returns its string value, or "" when
// absent or not a string.
func takeString(raw map[string]any, key string) string {
	v, ok := raw[key].(string)
	if ok {
		delete(raw, key)
	}
	return v
}
