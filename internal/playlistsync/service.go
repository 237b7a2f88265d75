package playlistsync

import (
	"time"

	"github.com/rs/zerolog"
)

// Service coordinates the store and the scheduler so a definition and its
// trigger never drift apart.
type Service struct {
	store     *Store
	scheduler *Scheduler
	runner    *Runner
	log       zerolog.Logger
}

// NewService wires the sync components together.
func NewService(store *Store, scheduler *Scheduler, runner *Runner, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		scheduler: scheduler,
		runner:    runner,
		log:       log.With().Str("component", "sync").Logger(),
	}
}

// PlaylistView is a definition plus its live schedule state.
type PlaylistView struct {
	Playlist
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// List returns all definitions with their next fire times.
func (s *Service) List() []PlaylistView {
	playlists := s.store.List()
	out := make([]PlaylistView, 0, len(playlists))
	for _, p := range playlists {
		out = append(out, PlaylistView{
			Playlist:  *p,
			NextRunAt: s.scheduler.NextRun(p.ID),
		})
	}
	return out
}

// Get returns one definition with its next fire time.
func (s *Service) Get(id string) (*PlaylistView, error) {
	p, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return &PlaylistView{Playlist: *p, NextRunAt: s.scheduler.NextRun(p.ID)}, nil
}

// Add persists a new definition and installs its trigger when enabled.
func (s *Service) Add(p Playlist) (*PlaylistView, error) {
	stored, err := s.store.Add(p)
	if err != nil {
		return nil, err
	}
	if err := s.scheduler.Schedule(stored); err != nil {
		// The definition is saved; a broken trigger is repairable by a
		// later update.
		s.log.Error().Err(err).Str("playlist_id", stored.ID).Msg("Failed to install trigger")
	}
	return &PlaylistView{Playlist: *stored, NextRunAt: s.scheduler.NextRun(stored.ID)}, nil
}

// Update patches a definition. The old trigger is removed and, when the
// updated definition is enabled, a fresh one is installed.
func (s *Service) Update(id string, in UpdateInput) (*PlaylistView, error) {
	stored, err := s.store.Update(id, in)
	if err != nil {
		return nil, err
	}
	if err := s.scheduler.Schedule(stored); err != nil {
		s.log.Error().Err(err).Str("playlist_id", stored.ID).Msg("Failed to reinstall trigger")
	}
	return &PlaylistView{Playlist: *stored, NextRunAt: s.scheduler.NextRun(stored.ID)}, nil
}

// Delete removes a definition and its trigger.
func (s *Service) Delete(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.scheduler.Unschedule(id)
	return nil
}

// Reconcile installs triggers for all enabled definitions. Called once at
// startup.
func (s *Service) Reconcile() {
	s.scheduler.Reconcile(s.store.List())
}

// Runner exposes the run executor for the HTTP layer.
func (s *Service) Runner() *Runner {
	return s.runner
}
