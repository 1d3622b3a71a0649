// Package models defines session state structures for ShiftGuide.
package models

import (
	"strconv"
	"time"
)

// SessionStatus is the lifecycle state of a session record.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// HistoryEntry is one completed step on the undo stack: the step that received an
// answer and the prompt that answer was given to.
type HistoryEntry struct {
	Phase  PhaseName `json:"phase"`
	Step   StepID    `json:"step"`
	Prompt string    `json:"prompt"`
}

// SessionContext is the mutable per-session dialogue state.
type SessionContext struct {
	SessionID      string                 `json:"session_id"`
	UserID         string                 `json:"user_id"`
	CurrentPhase   PhaseName              `json:"current_phase"`
	CurrentStep    StepID                 `json:"current_step"`
	UserResponses  map[StepID]string      `json:"user_responses"`
	StepHistory    []HistoryEntry         `json:"step_history"`
	Metadata       map[MetadataKey]string `json:"metadata"`
	LastPrompt     string                 `json:"last_prompt"`
	Turns          int                    `json:"turns"`
	Done           bool                   `json:"done"`
	StartedAt      time.Time              `json:"started_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	PhaseEnteredAt time.Time              `json:"phase_entered_at"`
}

// NewSessionContext creates a session positioned at the given step.
func NewSessionContext(sessionID, userID string, phase PhaseName, step StepID, now time.Time) *SessionContext {
	return &SessionContext{
		SessionID:      sessionID,
		UserID:         userID,
		CurrentPhase:   phase,
		CurrentStep:    step,
		UserResponses:  make(map[StepID]string),
		Metadata:       make(map[MetadataKey]string),
		StartedAt:      now,
		UpdatedAt:      now,
		PhaseEnteredAt: now,
	}
}

// Get returns a metadata value, or "" when unset.
func (s *SessionContext) Get(key MetadataKey) string {
	return s.Metadata[key]
}

// Int returns a metadata value parsed as an integer, or 0.
func (s *SessionContext) Int(key MetadataKey) int {
	n, err := strconv.Atoi(s.Metadata[key])
	if err != nil {
		return 0
	}
	return n
}

// Clone returns a deep copy.
func (s *SessionContext) Clone() *SessionContext {
	c := *s
	c.UserResponses = make(map[StepID]string, len(s.UserResponses))
	for k, v := range s.UserResponses {
		c.UserResponses[k] = v
	}
	c.Metadata = make(map[MetadataKey]string, len(s.Metadata))
	for k, v := range s.Metadata {
		c.Metadata[k] = v
	}
	c.StepHistory = append([]HistoryEntry(nil), s.StepHistory...)
	return &c
}

// MetadataSnapshot returns a copy of the metadata bag.
func (s *SessionContext) MetadataSnapshot() map[MetadataKey]string {
	out := make(map[MetadataKey]string, len(s.Metadata))
	for k, v := range s.Metadata {
		out[k] = v
	}
	return out
}

// TurnInput is one request to the dialogue engine. UserInput is nil only on session start.
type TurnInput struct {
	SessionID string  `json:"sessionId"`
	UserInput *string `json:"userInput"`
}

// TurnOutput is what the engine returns for a turn.
type TurnOutput struct {
	SessionID        string                 `json:"sessionId"`
	Text             string                 `json:"text"`
	Done             bool                   `json:"done"`
	Phase            PhaseName              `json:"phase"`
	Step             StepID                 `json:"step"`
	MetadataSnapshot map[MetadataKey]string `json:"metadataSnapshot,omitempty"`
}

// UsageStats is the per-session assistance budget ledger. All fields only grow.
type UsageStats struct {
	SessionID string    `json:"session_id"`
	Calls     int       `json:"calls"`
	Tokens    int       `json:"tokens"`
	Cost      float64   `json:"cost"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionRecord is what the persistence collaborator stores for a session.
type SessionRecord struct {
	SessionID       string        `json:"session_id"`
	UserID          string        `json:"user_id"`
	Phase           PhaseName     `json:"current_phase"`
	Step            StepID        `json:"current_step"`
	Status          SessionStatus `json:"status"`
	ProblemsCleared int           `json:"problems_cleared"`
	WorkType        WorkType      `json:"work_type,omitempty"`
	Method          Method        `json:"selected_method,omitempty"`
	Snapshot        string        `json:"snapshot,omitempty"` // JSON encoded SessionContext
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
}

// TurnOutcome classifies what a turn did.
type TurnOutcome string

const (
	TurnOutcomeStarted   TurnOutcome = "started"
	TurnOutcomeAdvanced  TurnOutcome = "advanced"
	TurnOutcomeRouted    TurnOutcome = "routed"
	TurnOutcomeRejected  TurnOutcome = "rejected"
	TurnOutcomeCorrected TurnOutcome = "corrected"
	TurnOutcomeCompleted TurnOutcome = "completed"
	TurnOutcomeUndone    TurnOutcome = "undone"
)

// TurnRecord is one line of the persisted turn log.
type TurnRecord struct {
	ID        int64       `json:"id"`
	SessionID string      `json:"session_id"`
	Phase     PhaseName   `json:"phase"`
	Step      StepID      `json:"step"`
	Input     string      `json:"input"`
	Output    string      `json:"output"`
	Outcome   TurnOutcome `json:"outcome"`
	CreatedAt time.Time   `json:"created_at"`
}
