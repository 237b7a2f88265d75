package playlistsync

import (
	"testing"
	"time"

	"github.com/sensor0x0/Dromeport/internal/testutil"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := NewScheduler(func(string) {}, testutil.NopLogger())
	if err != nil {
		t.Fatalf("NewScheduler failed: %v", err)
	}
	s.Start()
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestSchedulerSingleTriggerPerPlaylist(t *testing.T) {
	s := newTestScheduler(t)

	p := validPlaylist()
	p.ID = "p1"

	if err := s.Schedule(&p); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if s.TriggerCount() != 1 {
		t.Fatalf("Expected 1 trigger, got %d", s.TriggerCount())
	}

	// Rescheduling replaces, never stacks.
	if err := s.Schedule(&p); err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if s.TriggerCount() != 1 {
		t.Errorf("Reschedule stacked triggers: %d", s.TriggerCount())
	}

	// Disabling removes the trigger.
	p.Enabled = false
	if err := s.Schedule(&p); err != nil {
		t.Fatalf("Schedule (disabled) failed: %v", err)
	}
	if s.TriggerCount() != 0 {
		t.Errorf("Disabled playlist kept a trigger: %d", s.TriggerCount())
	}
	if s.NextRun("p1") != nil {
		t.Error("Disabled playlist reports a next run")
	}
}

func TestSchedulerIntervalNextFire(t *testing.T) {
	s := newTestScheduler(t)

	p := validPlaylist() // every 6 hours
	p.ID = "p2"
	if err := s.Schedule(&p); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	next := s.NextRun("p2")
	if next == nil {
		t.Fatal("No next run for enabled playlist")
	}
	until := time.Until(*next)
	if until < 5*time.Hour+55*time.Minute || until > 6*time.Hour+5*time.Minute {
		t.Errorf("Next fire in %v, want about 6h", until)
	}
}

func TestSchedulerCronDefinitions(t *testing.T) {
	s := newTestScheduler(t)

	tests := []struct {
		name string
		days string
	}{
		{"daily", "daily"},
		{"weekdays", "weekdays"},
		{"weekends", "weekends"},
		{"explicit days", "mon,wed,fri"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPlaylist()
			p.ID = "cron-" + tt.name
			p.ScheduleType = ScheduleCron
			p.CronTime = "03:30"
			p.CronDays = tt.days

			if err := s.Schedule(&p); err != nil {
				t.Fatalf("Schedule failed: %v", err)
			}
			if s.NextRun(p.ID) == nil {
				t.Error("Cron trigger has no next run")
			}
		})
	}
}

func TestSchedulerUnscheduleIdempotent(t *testing.T) {
	s := newTestScheduler(t)

	p := validPlaylist()
	p.ID = "p3"
	if err := s.Schedule(&p); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	s.Unschedule("p3")
	s.Unschedule("p3")
	if s.TriggerCount() != 0 {
		t.Errorf("Expected no triggers, got %d", s.TriggerCount())
	}
}

func TestSchedulerReconcile(t *testing.T) {
	s := newTestScheduler(t)

	enabled := validPlaylist()
	enabled.ID = "on"
	disabled := validPlaylist()
	disabled.ID = "off"
	disabled.Enabled = false

	s.Reconcile([]*Playlist{&enabled, &disabled})

	if s.TriggerCount() != 1 {
		t.Errorf("Expected 1 trigger after reconcile, got %d", s.TriggerCount())
	}
	if s.NextRun("on") == nil {
		t.Error("Enabled playlist has no trigger after reconcile")
	}
	if s.NextRun("off") != nil {
		t.Error("Disabled playlist gained a trigger from reconcile")
	}
}

func TestIntervalDuration(t *testing.T) {
	tests := []struct {
		value int
		unit  string
		want  time.Duration
	}{
		{30, UnitMinutes, 30 * time.Minute},
		{6, UnitHours, 6 * time.Hour},
		{2, UnitDays, 48 * time.Hour},
	}
	for _, tt := range tests {
		got, err := intervalDuration(tt.value, tt.unit)
		if err != nil {
			t.Errorf("intervalDuration(%d, %s) failed: %v", tt.value, tt.unit, err)
			continue
		}
		if got != tt.want {
			t.Errorf("intervalDuration(%d, %s) = %v, want %v", tt.value, tt.unit, got, tt.want)
		}
	}
}
