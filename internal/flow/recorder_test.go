package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// flakyStore fails every write while failing is set.
type flakyStore struct {
	mu       sync.Mutex
	failing  bool
	sessions []models.SessionRecord
	turns    []models.TurnRecord
}

func (f *flakyStore) SaveSession(rec models.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("database is locked")
	}
	f.sessions = append(f.sessions, rec)
	return nil
}

func (f *flakyStore) AddTurn(t models.TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("database is locked")
	}
	f.turns = append(f.turns, t)
	return nil
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyStore) written() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions), len(f.turns)
}

func TestRecorderKeepsOrderAcrossFailures(t *testing.T) {
	st := &flakyStore{failing: true}
	r := NewRecorder(st, time.Hour)

	r.RecordSession(models.SessionRecord{SessionID: "s1", Phase: models.PhaseDiscovery})
	r.RecordTurn(models.TurnRecord{SessionID: "s1", Outcome: models.TurnOutcomeStarted})
	r.Flush()
	if r.Pending() != 2 {
		t.Fatalf("failed writes should stay queued, pending=%d", r.Pending())
	}

	r.RecordSession(models.SessionRecord{SessionID: "s1", Phase: models.PhaseWorkTypeSelection})
	st.setFailing(false)
	r.Flush()
	if r.Pending() != 0 {
		t.Fatalf("expected an empty queue, pending=%d", r.Pending())
	}
	if sessions, turns := st.written(); sessions != 2 || turns != 1 {
		t.Fatalf("unexpected writes sessions=%d turns=%d", sessions, turns)
	}
	if st.sessions[1].Phase != models.PhaseWorkTypeSelection {
		t.Errorf("later record written first: %+v", st.sessions)
	}
}

func TestRecorderRunFlushesOnEnqueueAndStop(t *testing.T) {
	st := &flakyStore{}
	r := NewRecorder(st, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.RecordTurn(models.TurnRecord{SessionID: "s1"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, turns := st.written(); turns == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("turn was not written")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
