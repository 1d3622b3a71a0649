package flow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// SessionStore is the persistence the engine needs: write-behind records plus the reads
// used to bring sessions back after a restart.
type SessionStore interface {
	RecordStore
	GetSession(sessionID string) (*models.SessionRecord, error)
	ListSessions(status models.SessionStatus) ([]models.SessionRecord, error)
}

// sessionEntry serializes the turns of one session.
type sessionEntry struct {
	mu      sync.Mutex
	sc      *models.SessionContext
	removed bool
}

// sessionTable is the authoritative in-memory session map. Sessions missing from it are
// rehydrated from the store's latest snapshot.
type sessionTable struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	// ended remembers sessions removed from memory whose final record may still be
	// queued, so a stale store row is not rehydrated.
	ended map[string]models.SessionStatus
	store SessionStore
}

func newSessionTable(st SessionStore) *sessionTable {
	return &sessionTable{
		entries: make(map[string]*sessionEntry),
		ended:   make(map[string]models.SessionStatus),
		store:   st,
	}
}

// acquire returns the locked entry for sessionID. The caller must unlock it.
func (t *sessionTable) acquire(sessionID string) (*sessionEntry, error) {
	for {
		t.mu.RLock()
		e, ok := t.entries[sessionID]
		t.mu.RUnlock()
		if !ok {
			var err error
			e, err = t.load(sessionID)
			if err != nil {
				return nil, err
			}
		}
		e.mu.Lock()
		if !e.removed {
			return e, nil
		}
		// Removed while we waited; look again in case it was replaced.
		e.mu.Unlock()
		t.mu.RLock()
		_, again := t.entries[sessionID]
		t.mu.RUnlock()
		if !again {
			return nil, ErrSessionNotFound
		}
	}
}

// load rehydrates an active session from the store.
func (t *sessionTable) load(sessionID string) (*sessionEntry, error) {
	slog.Debug("SessionTable load", "sessionID", sessionID)
	t.mu.RLock()
	status, gone := t.ended[sessionID]
	t.mu.RUnlock()
	if gone {
		if status == models.SessionStatusCompleted {
			return nil, ErrSessionComplete
		}
		return nil, ErrSessionNotFound
	}

	rec, err := t.store.GetSession(sessionID)
	if err != nil {
		slog.Error("SessionTable load error", "error", err, "sessionID", sessionID)
		return nil, err
	}
	if rec == nil || rec.Status == models.SessionStatusAbandoned {
		return nil, ErrSessionNotFound
	}
	if rec.Status == models.SessionStatusCompleted {
		return nil, ErrSessionComplete
	}
	sc, err := decodeSnapshot(rec.Snapshot)
	if err != nil {
		slog.Error("SessionTable load snapshot error", "error", err, "sessionID", sessionID)
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[sessionID]; ok {
		return e, nil
	}
	e := &sessionEntry{sc: sc}
	t.entries[sessionID] = e
	slog.Info("SessionTable load succeeded", "sessionID", sessionID, "phase", sc.CurrentPhase, "step", sc.CurrentStep)
	return e, nil
}

// insert adds a new session and returns its entry locked. It fails if the id is taken
// in memory or in the store.
func (t *sessionTable) insert(sc *models.SessionContext) (*sessionEntry, error) {
	rec, err := t.store.GetSession(sc.SessionID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ended := t.ended[sc.SessionID]
	if _, ok := t.entries[sc.SessionID]; ok || ended || rec != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, sc.SessionID)
	}
	e := &sessionEntry{sc: sc}
	e.mu.Lock()
	t.entries[sc.SessionID] = e
	return e, nil
}

// put adds or replaces a session without checking the store. Used when warming.
func (t *sessionTable) put(sc *models.SessionContext) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[sc.SessionID]; ok {
		return false
	}
	t.entries[sc.SessionID] = &sessionEntry{sc: sc}
	return true
}

// remove drops a locked entry from the table.
func (t *sessionTable) remove(sessionID string, e *sessionEntry, status models.SessionStatus) {
	e.removed = true
	t.mu.Lock()
	if t.entries[sessionID] == e {
		delete(t.entries, sessionID)
	}
	t.ended[sessionID] = status
	t.mu.Unlock()
}

// endedIDs lists the current removal markers.
func (t *sessionTable) endedIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.ended))
	for id := range t.ended {
		ids = append(ids, id)
	}
	return ids
}

// forget drops removal markers whose final records have been written.
func (t *sessionTable) forget(ids []string) {
	t.mu.Lock()
	for _, id := range ids {
		delete(t.ended, id)
	}
	t.mu.Unlock()
}

// snapshot returns the current entries. Callers lock each entry themselves.
func (t *sessionTable) snapshot() map[string]*sessionEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*sessionEntry, len(t.entries))
	for id, e := range t.entries {
		out[id] = e
	}
	return out
}

func (t *sessionTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func encodeSnapshot(sc *models.SessionContext) (string, error) {
	data, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("failed to encode session snapshot: %w", err)
	}
	return string(data), nil
}

func decodeSnapshot(data string) (*models.SessionContext, error) {
	if data == "" {
		return nil, fmt.Errorf("session record has no snapshot")
	}
	var sc models.SessionContext
	if err := json.Unmarshal([]byte(data), &sc); err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	if sc.UserResponses == nil {
		sc.UserResponses = make(map[models.StepID]string)
	}
	if sc.Metadata == nil {
		sc.Metadata = make(map[models.MetadataKey]string)
	}
	return &sc, nil
}
