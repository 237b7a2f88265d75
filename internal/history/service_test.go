package history

import (
	"context"
	"testing"

	"github.com/sensor0x0/Dromeport/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	return NewService(tdb.DB, tdb.Logger)
}

func TestRecordAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	entries := []Entry{
		{JobID: "job-1", Provider: "ytmusic", URL: "https://music.example/a", Origin: "manual", Status: "success", Downloaded: 3},
		{JobID: "job-2", Provider: "youtube", URL: "https://music.example/b", Origin: "scheduled", Status: "error", Errors: 2},
	}
	for _, e := range entries {
		if err := svc.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s) failed: %v", e.JobID, err)
		}
	}

	got, err := svc.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}
	// Newest first.
	if got[0].JobID != "job-2" {
		t.Errorf("Expected job-2 first, got %s", got[0].JobID)
	}
	if got[0].Errors != 2 || got[0].Status != "error" {
		t.Errorf("Entry fields not round-tripped: %+v", got[0])
	}
	if got[1].Origin != "manual" {
		t.Errorf("Expected manual origin, got %s", got[1].Origin)
	}
}

func TestListLimit(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := svc.Record(ctx, Entry{JobID: "job", Provider: "ytmusic", URL: "u", Origin: "manual", Status: "success"}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := svc.List(ctx, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(got))
	}
}

func TestClear(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Record(ctx, Entry{JobID: "job", Provider: "ytmusic", URL: "u", Origin: "manual", Status: "success"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	removed, err := svc.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}

	got, err := svc.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty history after clear, got %d entries", len(got))
	}
}
