package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// SessionSweeper abandons stale in-memory sessions.
type SessionSweeper interface {
	Sweep(now time.Time, idle time.Duration) []string
}

// RetentionStore lists and deletes persisted sessions.
type RetentionStore interface {
	ListSessions(status models.SessionStatus) ([]models.SessionRecord, error)
	DeleteSession(sessionID string) error
}

// Sweeper is the periodic session maintenance job.
type Sweeper struct {
	engine    SessionSweeper
	store     RetentionStore
	idle      time.Duration
	retention time.Duration
	now       func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithIdleTimeout abandons sessions without a turn for longer than d. Zero disables the
// idle check; sessions that overrun their phase are still abandoned.
func WithIdleTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.idle = d
	}
}

// WithRetention deletes completed and abandoned records last updated more than d ago.
func WithRetention(st RetentionStore, d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.store = st
		s.retention = d
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a Sweeper for engine.
func NewSweeper(engine SessionSweeper, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunOnce performs one sweep and returns the abandoned session ids and the number of
// purged records.
func (s *Sweeper) RunOnce() ([]string, int) {
	now := s.now()
	swept := s.engine.Sweep(now, s.idle)
	if len(swept) > 0 {
		slog.Info("Sweeper.RunOnce: abandoned stale sessions", "count", len(swept))
	}
	purged, err := s.purge(now)
	if err != nil {
		slog.Error("Sweeper.RunOnce: purge failed", "error", err, "purged", purged)
	}
	return swept, purged
}

func (s *Sweeper) purge(now time.Time) (int, error) {
	if s.store == nil || s.retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.retention)
	purged := 0
	for _, status := range []models.SessionStatus{models.SessionStatusCompleted, models.SessionStatusAbandoned} {
		recs, err := s.store.ListSessions(status)
		if err != nil {
			return purged, fmt.Errorf("failed to list %s sessions: %w", status, err)
		}
		for _, rec := range recs {
			if !rec.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := s.store.DeleteSession(rec.SessionID); err != nil {
				return purged, fmt.Errorf("failed to delete session %s: %w", rec.SessionID, err)
			}
			purged++
		}
	}
	if purged > 0 {
		slog.Info("Sweeper.purge: deleted old sessions", "count", purged, "cutoff", cutoff)
	}
	return purged, nil
}

// Run schedules the sweep with expr and blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, expr string) error {
	if expr == "" {
		expr = DefaultSweepSchedule
	}
	sched := NewScheduler()
	if err := sched.AddJob(expr, func() { s.RunOnce() }); err != nil {
		sched.Stop()
		return fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	slog.Info("Sweeper.Run: scheduled", "schedule", expr, "idle", s.idle, "retention", s.retention)
	<-ctx.Done()
	sched.Stop()
	slog.Info("Sweeper.Run: stopped")
	return nil
}
