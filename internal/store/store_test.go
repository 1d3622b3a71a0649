package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "state", "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backends returns every store the shared tests run against. Postgres joins when
// DATABASE_URL is set.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{
		"memory": NewInMemoryStore(),
		"sqlite": newTestSQLiteStore(t),
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := NewPostgresStore(WithPostgresDSN(dsn))
		if err != nil {
			t.Logf("Postgres not available: %v", err)
		} else {
			for _, table := range []string{"sessions", "turns", "assist_usage", "inbound_dedup", "outbox_messages"} {
				pg.db.Exec("DELETE FROM " + table)
			}
			t.Cleanup(func() { pg.Close() })
			out["postgres"] = pg
		}
	}
	return out
}

func sampleRecord(id string, status models.SessionStatus, created time.Time) models.SessionRecord {
	return models.SessionRecord{
		SessionID: id,
		UserID:    "user-1",
		Phase:     models.PhaseDiscovery,
		Step:      "ds_welcome",
		Status:    status,
		Snapshot:  `{"session_id":"` + id + `"}`,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestDetectDSNType(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost/db":  DSNTypePostgres,
		"postgresql://localhost/db":    DSNTypePostgres,
		"host=localhost dbname=shift":  DSNTypePostgres,
		"/var/lib/shiftguide/state.db": DSNTypeSQLite,
		"file:test.db?cache=shared":    DSNTypeSQLite,
	}
	for dsn, want := range tests {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("expected in-memory store without DSN, got %T", s)
	}

	s, err = New(WithSQLiteDSN(filepath.Join(t.TempDir(), "x.db")))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected SQLite store, got %T", s)
	}
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error without DSN")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			created := time.Now().Add(-time.Hour).Truncate(time.Second)
			rec := sampleRecord("s1", models.SessionStatusActive, created)
			if err := s.SaveSession(rec); err != nil {
				t.Fatalf("SaveSession failed: %v", err)
			}

			done := time.Now().Truncate(time.Second)
			rec.Phase = models.PhaseIntegration
			rec.Step = "in_close"
			rec.Status = models.SessionStatusCompleted
			rec.ProblemsCleared = 2
			rec.WorkType = models.WorkTypeProblem
			rec.Method = models.MethodBeliefShifting
			rec.UpdatedAt = done
			rec.CompletedAt = &done
			if err := s.SaveSession(rec); err != nil {
				t.Fatalf("SaveSession (update) failed: %v", err)
			}

			got, err := s.GetSession("s1")
			if err != nil || got == nil {
				t.Fatalf("GetSession = %v, %v", got, err)
			}
			if got.Phase != models.PhaseIntegration || got.Status != models.SessionStatusCompleted {
				t.Errorf("update not persisted: %+v", got)
			}
			if got.ProblemsCleared != 2 || got.Method != models.MethodBeliefShifting || got.WorkType != models.WorkTypeProblem {
				t.Errorf("unexpected fields: %+v", got)
			}
			if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
				t.Errorf("expected completed_at %v, got %v", done, got.CompletedAt)
			}
			if !got.CreatedAt.Equal(created) {
				t.Errorf("created_at changed: %v -> %v", created, got.CreatedAt)
			}
			if got.Snapshot != rec.Snapshot {
				t.Errorf("snapshot changed: %q", got.Snapshot)
			}

			missing, err := s.GetSession("nope")
			if err != nil || missing != nil {
				t.Errorf("expected nil, nil for unknown session, got %v, %v", missing, err)
			}
		})
	}
}

func TestListSessionsByStatus(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Now().Add(-time.Hour)
			s.SaveSession(sampleRecord("a", models.SessionStatusActive, base))
			s.SaveSession(sampleRecord("b", models.SessionStatusAbandoned, base.Add(time.Minute)))
			s.SaveSession(sampleRecord("c", models.SessionStatusActive, base.Add(2*time.Minute)))

			active, err := s.ListSessions(models.SessionStatusActive)
			if err != nil {
				t.Fatalf("ListSessions failed: %v", err)
			}
			if len(active) != 2 || active[0].SessionID != "a" || active[1].SessionID != "c" {
				t.Errorf("unexpected active sessions %+v", active)
			}
			all, err := s.ListSessions("")
			if err != nil || len(all) != 3 {
				t.Errorf("expected 3 sessions, got %d (%v)", len(all), err)
			}
		})
	}
}

func TestTurnsAndUsageDeletedWithSession(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s.SaveSession(sampleRecord("s1", models.SessionStatusActive, time.Now()))
			for i, out := range []models.TurnOutcome{models.TurnOutcomeStarted, models.TurnOutcomeAdvanced} {
				err := s.AddTurn(models.TurnRecord{
					SessionID: "s1",
					Phase:     models.PhaseDiscovery,
					Step:      models.StepID([]string{"ds_welcome", "ds_ready_gate"}[i]),
					Input:     "yes",
					Output:    "text",
					Outcome:   out,
				})
				if err != nil {
					t.Fatalf("AddTurn failed: %v", err)
				}
			}
			turns, err := s.GetTurns("s1")
			if err != nil {
				t.Fatalf("GetTurns failed: %v", err)
			}
			if len(turns) != 2 || turns[0].Outcome != models.TurnOutcomeStarted || turns[1].Step != "ds_ready_gate" {
				t.Errorf("unexpected turns %+v", turns)
			}
			if turns[0].ID >= turns[1].ID {
				t.Errorf("turn ids should increase: %d, %d", turns[0].ID, turns[1].ID)
			}

			if _, err := s.AddUsage("s1", time.Now(), 100, 0.001); err != nil {
				t.Fatalf("AddUsage failed: %v", err)
			}
			if err := s.DeleteSession("s1"); err != nil {
				t.Fatalf("DeleteSession failed: %v", err)
			}
			if rec, _ := s.GetSession("s1"); rec != nil {
				t.Error("session not deleted")
			}
			if turns, _ := s.GetTurns("s1"); len(turns) != 0 {
				t.Errorf("turns not deleted: %d", len(turns))
			}
			if u, _ := s.GetUsage("s1"); u != nil {
				t.Errorf("usage not deleted: %+v", u)
			}
		})
	}
}

func TestUsageAccumulates(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if u, err := s.GetUsage("s1"); err != nil || u != nil {
				t.Fatalf("expected nil usage, got %v, %v", u, err)
			}
			started := time.Now().Add(-time.Minute).Truncate(time.Second)
			if _, err := s.AddUsage("s1", started, 102, 0.0001); err != nil {
				t.Fatalf("AddUsage failed: %v", err)
			}
			u, err := s.AddUsage("s1", time.Now(), 50, 0.0002)
			if err != nil {
				t.Fatalf("AddUsage failed: %v", err)
			}
			if u.Calls != 2 || u.Tokens != 152 {
				t.Errorf("unexpected totals %+v", u)
			}
			if u.Cost < 0.000299 || u.Cost > 0.000301 {
				t.Errorf("unexpected cost %v", u.Cost)
			}
			if !u.StartedAt.Equal(started) {
				t.Errorf("started_at should keep the first value, got %v", u.StartedAt)
			}
			got, err := s.GetUsage("s1")
			if err != nil || got == nil || got.Calls != 2 {
				t.Errorf("GetUsage = %+v, %v", got, err)
			}
		})
	}
}

func TestDedup(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			dup, err := s.IsDuplicate("msg-1")
			if err != nil || dup {
				t.Fatalf("IsDuplicate = %v, %v; want false", dup, err)
			}
			isNew, err := s.RecordInbound("msg-1", "+15550001")
			if err != nil || !isNew {
				t.Fatalf("RecordInbound = %v, %v; want true", isNew, err)
			}
			if dup, _ := s.IsDuplicate("msg-1"); !dup {
				t.Error("expected duplicate after record")
			}
			if isNew, _ := s.RecordInbound("msg-1", "+15550001"); isNew {
				t.Error("second record of the same message should report false")
			}
			if done, err := s.IsProcessed("msg-1"); err != nil || done {
				t.Errorf("IsProcessed before mark = %v, %v; want false", done, err)
			}
			if err := s.MarkProcessed("msg-1"); err != nil {
				t.Errorf("MarkProcessed failed: %v", err)
			}
			if done, err := s.IsProcessed("msg-1"); err != nil || !done {
				t.Errorf("IsProcessed after mark = %v, %v; want true", done, err)
			}
			if done, _ := s.IsProcessed("msg-unknown"); done {
				t.Error("unknown message reported processed")
			}
		})
	}
}
