package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

const defaultFlushInterval = time.Second

// RecordStore is the persistence the recorder writes behind to.
type RecordStore interface {
	SaveSession(rec models.SessionRecord) error
	AddTurn(t models.TurnRecord) error
}

// pendingWrite is one queued session record or turn log line.
type pendingWrite struct {
	session *models.SessionRecord
	turn    *models.TurnRecord
}

// Recorder queues session records and turn log lines and writes them to the store off
// the turn path. Writes keep their enqueue order.
type Recorder struct {
	store    RecordStore
	interval time.Duration

	mu      sync.Mutex
	pending []pendingWrite
	notify  chan struct{}

	writeMu sync.Mutex
}

// NewRecorder creates a Recorder. Nothing is written until Run or Flush is called.
func NewRecorder(st RecordStore, interval time.Duration) *Recorder {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Recorder{
		store:    st,
		interval: interval,
		notify:   make(chan struct{}, 1),
	}
}

// RecordSession queues a session record.
func (r *Recorder) RecordSession(rec models.SessionRecord) {
	r.enqueue(pendingWrite{session: &rec})
}

// RecordTurn queues a turn log line.
func (r *Recorder) RecordTurn(t models.TurnRecord) {
	r.enqueue(pendingWrite{turn: &t})
}

func (r *Recorder) enqueue(w pendingWrite) {
	r.mu.Lock()
	r.pending = append(r.pending, w)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued writes.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Run drains the queue whenever something is enqueued, and on a timer to retry failed
// writes. It flushes once more and returns when ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	slog.Info("Recorder.Run: starting write-behind recorder", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Flush()
			slog.Info("Recorder.Run: stopping", "unwritten", r.Pending())
			return nil
		case <-r.notify:
			r.Flush()
		case <-ticker.C:
			r.Flush()
		}
	}
}

// Flush writes everything queued so far. A write that fails is put back at the head of
// the queue together with everything after it, and is retried on the next flush.
func (r *Recorder) Flush() {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	for i, w := range batch {
		if err := r.write(w); err != nil {
			slog.Error("Recorder.Flush: write failed, will retry", "error", err, "remaining", len(batch)-i)
			r.mu.Lock()
			r.pending = append(append([]pendingWrite(nil), batch[i:]...), r.pending...)
			r.mu.Unlock()
			return
		}
	}
	if len(batch) > 0 {
		slog.Debug("Recorder.Flush: wrote batch", "count", len(batch))
	}
}

func (r *Recorder) write(w pendingWrite) error {
	if w.session != nil {
		return r.store.SaveSession(*w.session)
	}
	return r.store.AddTurn(*w.turn)
}
