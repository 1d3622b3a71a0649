package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/flow"
	"github.com/BTreeMap/ShiftGuide/internal/models"
	"github.com/BTreeMap/ShiftGuide/internal/protocol"
	"github.com/BTreeMap/ShiftGuide/internal/store"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	for _, expr := range []string{"* * * * *", "@every 30s", "@hourly"} {
		if err := s.AddJob(expr, func() {}); err != nil {
			t.Errorf("AddJob(%q): %v", expr, err)
		}
	}
	if err := s.AddJob("not a schedule", func() {}); err == nil {
		t.Error("expected an error for an invalid expression")
	}
}

// fakeSweeper records Sweep calls.
type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (f *fakeSweeper) Sweep(now time.Time, idle time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, idle)
	return []string{"s1"}
}

func (f *fakeSweeper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSweeperRunOnceAbandonsIdleSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	defer st.Close()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	e, err := flow.NewEngine(protocol.MustDefault(), st, flow.WithClock(clock))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := e.Start(context.Background(), "user-1", "s1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	s := NewSweeper(e, WithIdleTimeout(30*time.Minute), WithClock(func() time.Time { return now.Add(time.Hour) }))
	swept, purged := s.RunOnce()
	if len(swept) != 1 || swept[0] != "s1" || purged != 0 {
		t.Fatalf("swept=%v purged=%d", swept, purged)
	}
	e.Flush()
	rec, err := st.GetSession("s1")
	if err != nil || rec == nil {
		t.Fatalf("GetSession: %v %v", rec, err)
	}
	if rec.Status != models.SessionStatusAbandoned {
		t.Errorf("status = %s, want abandoned", rec.Status)
	}
}

func TestSweeperPurgesOldRecords(t *testing.T) {
	st := store.NewInMemoryStore()
	defer st.Close()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	recs := []models.SessionRecord{
		{SessionID: "old-done", Status: models.SessionStatusCompleted, UpdatedAt: old},
		{SessionID: "old-gone", Status: models.SessionStatusAbandoned, UpdatedAt: old},
		{SessionID: "old-active", Status: models.SessionStatusActive, UpdatedAt: old},
		{SessionID: "fresh-done", Status: models.SessionStatusCompleted, UpdatedAt: now.Add(-time.Hour)},
	}
	for _, rec := range recs {
		if err := st.SaveSession(rec); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	fs := &fakeSweeper{}
	s := NewSweeper(fs, WithRetention(st, 24*time.Hour), WithClock(func() time.Time { return now }))
	if _, purged := s.RunOnce(); purged != 2 {
		t.Fatalf("purged %d records, want 2", purged)
	}
	for id, want := range map[string]bool{"old-done": false, "old-gone": false, "old-active": true, "fresh-done": true} {
		rec, _ := st.GetSession(id)
		if (rec != nil) != want {
			t.Errorf("%s present=%v, want %v", id, rec != nil, want)
		}
	}
	if fs.calls[0] != 0 {
		t.Errorf("idle timeout passed as %v, want 0", fs.calls[0])
	}
}

func TestSweeperRun(t *testing.T) {
	fs := &fakeSweeper{}
	s := NewSweeper(fs)

	if err := s.Run(context.Background(), "every tuesday"); err == nil {
		t.Error("expected an error for an invalid schedule")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "@every 1s") }()

	deadline := time.Now().Add(3 * time.Second)
	for fs.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep did not run")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
