package store

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
	"github.com/BTreeMap/ShiftGuide/internal/util"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps everything in process memory. It is the default when no DSN is
// configured and is what tests use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.SessionRecord
	turns    map[string][]models.TurnRecord
	usage    map[string]models.UsageStats
	inbound  map[string]DedupRecord
	outbox   map[string]*OutboxMessage
	nextTurn int64
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.SessionRecord),
		turns:    make(map[string][]models.TurnRecord),
		usage:    make(map[string]models.UsageStats),
		inbound:  make(map[string]DedupRecord),
		outbox:   make(map[string]*OutboxMessage),
	}
}

func (s *InMemoryStore) SaveSession(rec models.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[rec.SessionID]; ok && !old.CreatedAt.IsZero() {
		rec.CreatedAt = old.CreatedAt
	}
	s.sessions[rec.SessionID] = rec
	slog.Debug("InMemoryStore SaveSession succeeded", "sessionID", rec.SessionID, "phase", rec.Phase, "status", rec.Status)
	return nil
}

func (s *InMemoryStore) GetSession(sessionID string) (*models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *InMemoryStore) ListSessions(status models.SessionStatus) ([]models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SessionRecord
	for _, rec := range s.sessions {
		if status == "" || rec.Status == status {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) DeleteSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	delete(s.usage, sessionID)
	return nil
}

func (s *InMemoryStore) AddTurn(t models.TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTurn++
	t.ID = s.nextTurn
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	s.turns[t.SessionID] = append(s.turns[t.SessionID], t)
	return nil
}

func (s *InMemoryStore) GetTurns(sessionID string) ([]models.TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TurnRecord(nil), s.turns[sessionID]...), nil
}

func (s *InMemoryStore) GetUsage(sessionID string) (*models.UsageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usage[sessionID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *InMemoryStore) AddUsage(sessionID string, startedAt time.Time, tokens int, cost float64) (models.UsageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usage[sessionID]
	if !ok {
		u = models.UsageStats{SessionID: sessionID, StartedAt: startedAt}
	}
	u.Calls++
	u.Tokens += tokens
	u.Cost += cost
	u.UpdatedAt = time.Now()
	s.usage[sessionID] = u
	return u, nil
}

func (s *InMemoryStore) IsDuplicate(messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.inbound[messageID]
	return ok, nil
}

func (s *InMemoryStore) RecordInbound(messageID, sender string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbound[messageID]; ok {
		return false, nil
	}
	s.inbound[messageID] = DedupRecord{MessageID: messageID, Sender: sender, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.inbound[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
		s.inbound[messageID] = rec
	}
	return nil
}

func (s *InMemoryStore) IsProcessed(messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.inbound[messageID]
	return ok && rec.ProcessedAt != nil, nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(recipient, channel, body, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && m.Status != OutboxStatusSent {
				return m.ID, nil
			}
		}
	}
	now := time.Now()
	m := &OutboxMessage{
		ID:        util.GenerateOutboxID(),
		Recipient: recipient,
		Channel:   channel,
		Body:      body,
		Status:    OutboxStatusQueued,
		DedupeKey: dedupeKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.outbox[m.ID] = m
	return m.ID, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*OutboxMessage
	for _, m := range s.outbox {
		if m.Status == OutboxStatusQueued && (m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]OutboxMessage, 0, len(due))
	for _, m := range due {
		locked := now
		m.Status = OutboxStatusSending
		m.LockedAt = &locked
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.outbox[id]; ok {
		m.Status = OutboxStatusSent
		m.LockedAt = nil
		m.UpdatedAt = time.Now()
	}
	return nil
}

func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.outbox[id]; ok {
		next := nextAttemptAt
		m.Status = OutboxStatusQueued
		m.Attempts++
		m.LastError = errMsg
		m.NextAttemptAt = &next
		m.LockedAt = nil
		m.UpdatedAt = time.Now()
	}
	return nil
}

func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.outbox {
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}
