// Package playlistsync keeps persisted playlist definitions and runs them
// on recurring schedules.
package playlistsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sensor0x0/Dromeport/internal/download"
)

// ErrNotFound is returned for unknown playlist ids.
var ErrNotFound = errors.New("playlist not found")

// Schedule types and interval units accepted in definitions.
const (
	ScheduleInterval = "interval"
	ScheduleCron     = "cron"

	UnitMinutes = "minutes"
	UnitHours   = "hours"
	UnitDays    = "days"
)

// maxSyncLogBytes caps the stored per-run log. When a run produces more,
// the head is dropped: the tail carries the outcome.
const maxSyncLogBytes = 5000

// Playlist is one persisted sync definition.
type Playlist struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Thumb    string `json:"thumb,omitempty"`
	Provider string `json:"provider"`

	// Config is the job configuration snapshot applied on every run.
	Config         download.JobConfig `json:"config"`
	PlaylistFolder string             `json:"playlist_folder,omitempty"`

	ScheduleType  string `json:"schedule_type"`
	IntervalValue int    `json:"interval_value,omitempty"`
	IntervalUnit  string `json:"interval_unit,omitempty"`
	CronTime      string `json:"cron_time,omitempty"`
	CronDays      string `json:"cron_days,omitempty"`
	Enabled       bool   `json:"enabled"`

	CreatedAt      time.Time  `json:"created_at"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	LastSyncStatus string     `json:"last_sync_status,omitempty"`
	LastSyncLog    string     `json:"last_sync_log,omitempty"`
}

// Validate checks a definition before it is stored or scheduled.
func (p *Playlist) Validate() error {
	if p.URL == "" {
		return fmt.Errorf("url is required")
	}
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.Config.LibraryPath == "" {
		return fmt.Errorf("config.libraryPath is required")
	}
	if p.Provider != download.ProviderYtMusic && p.Provider != download.ProviderYouTube {
		return fmt.Errorf("unknown provider: %s", p.Provider)
	}
	switch p.ScheduleType {
	case ScheduleInterval:
		if p.IntervalValue <= 0 {
			return fmt.Errorf("interval_value must be positive")
		}
		switch p.IntervalUnit {
		case UnitMinutes, UnitHours, UnitDays:
		default:
			return fmt.Errorf("unknown interval_unit: %s", p.IntervalUnit)
		}
	case ScheduleCron:
		if _, _, err := parseClock(p.CronTime); err != nil {
			return err
		}
		if _, err := parseCronDays(p.CronDays); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown schedule_type: %s", p.ScheduleType)
	}
	return nil
}

// Store holds playlist definitions in a single JSON file. Every mutation
// rewrites the whole file; the in-memory map is the source of truth between
// writes.
type Store struct {
	mu        sync.RWMutex
	path      string
	playlists map[string]*Playlist
	log       zerolog.Logger
}

// NewStore loads the definitions file, treating a missing file as an empty
// store.
func NewStore(path string, log zerolog.Logger) (*Store, error) {
	s := &Store{
		path:      path,
		playlists: make(map[string]*Playlist),
		log:       log.With().Str("component", "syncstore").Logger(),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync store: %w", err)
	}
	if err := json.Unmarshal(data, &s.playlists); err != nil {
		return nil, fmt.Errorf("failed to parse sync store: %w", err)
	}
	s.log.Info().Int("playlists", len(s.playlists)).Msg("Sync store loaded")
	return s, nil
}

// save rewrites the definitions file. Callers hold the write lock.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.playlists, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sync store: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write sync store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace sync store: %w", err)
	}
	return nil
}

// List returns all definitions sorted by creation time.
func (s *Store) List() []*Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Playlist, 0, len(s.playlists))
	for _, p := range s.playlists {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns one definition by id.
func (s *Store) Get(id string) (*Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.playlists[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Add stores a new definition and assigns it an id.
func (s *Store) Add(p Playlist) (*Playlist, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	s.playlists[p.ID] = &p

	if err := s.save(); err != nil {
		delete(s.playlists, p.ID)
		return nil, err
	}
	cp := p
	return &cp, nil
}

// UpdateInput carries the mutable fields of a definition. Nil fields are
// left unchanged. The url, provider and config snapshot are fixed when the
// definition is added; changing them means deleting and re-adding.
type UpdateInput struct {
	Name          *string `json:"name"`
	ScheduleType  *string `json:"schedule_type"`
	IntervalValue *int    `json:"interval_value"`
	IntervalUnit  *string `json:"interval_unit"`
	CronTime      *string `json:"cron_time"`
	CronDays      *string `json:"cron_days"`
	Enabled       *bool   `json:"enabled"`
}

// Update patches the provided fields onto a stored definition and validates
// the merged result. Sync bookkeeping fields are owned by the runner and
// not touched here.
func (s *Store) Update(id string, in UpdateInput) (*Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.playlists[id]
	if !ok {
		return nil, ErrNotFound
	}

	updated := *existing
	if in.Name != nil {
		updated.Name = *in.Name
	}
	if in.ScheduleType != nil {
		updated.ScheduleType = *in.ScheduleType
	}
	if in.IntervalValue != nil {
		updated.IntervalValue = *in.IntervalValue
	}
	if in.IntervalUnit != nil {
		updated.IntervalUnit = *in.IntervalUnit
	}
	if in.CronTime != nil {
		updated.CronTime = *in.CronTime
	}
	if in.CronDays != nil {
		updated.CronDays = *in.CronDays
	}
	if in.Enabled != nil {
		updated.Enabled = *in.Enabled
	}

	if err := updated.Validate(); err != nil {
		return nil, err
	}
	s.playlists[id] = &updated

	if err := s.save(); err != nil {
		s.playlists[id] = existing
		return nil, err
	}
	cp := updated
	return &cp, nil
}

// Delete removes a definition.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.playlists[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.playlists, id)

	if err := s.save(); err != nil {
		s.playlists[id] = existing
		return err
	}
	return nil
}

// RecordRun stores the outcome of a sync run. The log is tail-truncated so
// the file stays bounded no matter how chatty the engine was.
func (s *Store) RecordRun(id, status, log string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.playlists[id]
	if !ok {
		return ErrNotFound
	}

	if len(log) > maxSyncLogBytes {
		log = log[len(log)-maxSyncLogBytes:]
		// The byte cut can land inside a multibyte rune; skip ahead to
		// the next boundary so the stored log stays valid UTF-8.
		for len(log) > 0 && !utf8.RuneStart(log[0]) {
			log = log[1:]
		}
	}

	now := time.Now().UTC()
	p.LastSyncedAt = &now
	p.LastSyncStatus = status
	p.LastSyncLog = log

	return s.save()
}
