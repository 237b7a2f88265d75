package playlistsync

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// Scheduler owns the recurring triggers for enabled playlists. Each enabled
// playlist has at most one trigger; the mapping from playlist id to trigger
// is direct so updates can replace a trigger without scanning.
type Scheduler struct {
	scheduler gocron.Scheduler
	run       func(playlistID string)
	log       zerolog.Logger

	mu   sync.Mutex
	jobs map[string]gocron.Job
}

// NewScheduler creates a stopped scheduler. run is invoked with the
// playlist id each time a trigger fires.
func NewScheduler(run func(playlistID string), log zerolog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{
		scheduler: s,
		run:       run,
		log:       log.With().Str("component", "syncscheduler").Logger(),
		jobs:      make(map[string]gocron.Job),
	}, nil
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running triggers to return.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// Reconcile builds triggers for every enabled playlist. Called once at
// startup so persisted definitions fire again after a restart.
func (s *Scheduler) Reconcile(playlists []*Playlist) {
	for _, p := range playlists {
		if !p.Enabled {
			continue
		}
		if err := s.Schedule(p); err != nil {
			s.log.Error().Err(err).Str("playlist_id", p.ID).Msg("Failed to reschedule playlist")
		}
	}
	s.log.Info().Int("triggers", s.TriggerCount()).Msg("Sync schedules reconciled")
}

// Schedule installs the trigger for a playlist, replacing any existing one.
// Disabled playlists end up with no trigger.
func (s *Scheduler) Schedule(p *Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[p.ID]; ok {
		if err := s.scheduler.RemoveJob(existing.ID()); err != nil {
			s.log.Debug().Err(err).Str("playlist_id", p.ID).Msg("Stale trigger removal failed")
		}
		delete(s.jobs, p.ID)
	}

	if !p.Enabled {
		return nil
	}

	def, err := jobDefinition(p)
	if err != nil {
		return err
	}

	id := p.ID
	job, err := s.scheduler.NewJob(def, gocron.NewTask(func() { s.run(id) }))
	if err != nil {
		return fmt.Errorf("failed to create trigger: %w", err)
	}
	s.jobs[p.ID] = job

	if next, err := job.NextRun(); err == nil {
		s.log.Info().Str("playlist_id", p.ID).Time("next_run", next).Msg("Sync trigger installed")
	}
	return nil
}

// Unschedule removes a playlist's trigger if present.
func (s *Scheduler) Unschedule(playlistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[playlistID]
	if !ok {
		return
	}
	if err := s.scheduler.RemoveJob(job.ID()); err != nil {
		s.log.Debug().Err(err).Str("playlist_id", playlistID).Msg("Trigger removal failed")
	}
	delete(s.jobs, playlistID)
}

// NextRun returns the next fire time for a playlist, or nil when it has no
// trigger.
func (s *Scheduler) NextRun(playlistID string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[playlistID]
	if !ok {
		return nil
	}
	next, err := job.NextRun()
	if err != nil || next.IsZero() {
		return nil
	}
	return &next
}

// TriggerCount returns the number of installed triggers.
func (s *Scheduler) TriggerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// jobDefinition maps a playlist's schedule fields onto a gocron job
// definition.
func jobDefinition(p *Playlist) (gocron.JobDefinition, error) {
	switch p.ScheduleType {
	case ScheduleInterval:
		d, err := intervalDuration(p.IntervalValue, p.IntervalUnit)
		if err != nil {
			return nil, err
		}
		return gocron.DurationJob(d), nil

	case ScheduleCron:
		hour, minute, err := parseClock(p.CronTime)
		if err != nil {
			return nil, err
		}
		at := gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))

		days, err := parseCronDays(p.CronDays)
		if err != nil {
			return nil, err
		}
		if days == nil {
			return gocron.DailyJob(1, at), nil
		}
		return gocron.WeeklyJob(1, gocron.NewWeekdays(days[0], days[1:]...), at), nil

	default:
		return nil, fmt.Errorf("unknown schedule_type: %s", p.ScheduleType)
	}
}

// intervalDuration converts an interval spec into a duration.
func intervalDuration(value int, unit string) (time.Duration, error) {
	if value <= 0 {
		return 0, fmt.Errorf("interval_value must be positive")
	}
	switch unit {
	case UnitMinutes:
		return time.Duration(value) * time.Minute, nil
	case UnitHours:
		return time.Duration(value) * time.Hour, nil
	case UnitDays:
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown interval_unit: %s", unit)
	}
}

// parseClock parses an "HH:MM" wall clock time.
func parseClock(clock string) (uint, uint, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid cron_time: %s", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid cron_time hour: %s", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid cron_time minute: %s", clock)
	}
	return uint(hour), uint(minute), nil
}

// parseCronDays resolves a day spec into weekdays. A nil result means every
// day.
func parseCronDays(spec string) ([]time.Weekday, error) {
	switch spec {
	case "", "daily":
		return nil, nil
	case "weekdays":
		return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, nil
	case "weekends":
		return []time.Weekday{time.Saturday, time.Sunday}, nil
	}

	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
		"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
		"sat": time.Saturday,
	}
	var days []time.Weekday
	for _, part := range strings.Split(spec, ",") {
		day, ok := names[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return nil, fmt.Errorf("unknown cron_days entry: %s", part)
		}
		days = append(days, day)
	}
	return days, nil
}
