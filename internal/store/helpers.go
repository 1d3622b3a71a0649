package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

const (
	sessionColumns = `session_id, user_id, current_phase, current_step, status, problems_cleared, work_type, selected_method, snapshot, created_at, updated_at, completed_at`
	turnColumns    = `id, session_id, phase, step, input, output, outcome, created_at`
	usageColumns   = `session_id, calls, tokens, cost, started_at, updated_at`
	outboxColumns  = `id, recipient, channel, body, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanSession(row rowScanner) (models.SessionRecord, error) {
	var r models.SessionRecord
	var workType, method, snapshot sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&r.SessionID, &r.UserID, &r.Phase, &r.Step, &r.Status, &r.ProblemsCleared,
		&workType, &method, &snapshot, &r.CreatedAt, &r.UpdatedAt, &completedAt,
	)
	if err != nil {
		return r, err
	}
	r.WorkType = models.WorkType(workType.String)
	r.Method = models.Method(method.String)
	r.Snapshot = snapshot.String
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return r, nil
}

func scanSessions(rows *sql.Rows) ([]models.SessionRecord, error) {
	defer rows.Close()
	var out []models.SessionRecord
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session failed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session iteration failed: %w", err)
	}
	return out, nil
}

func scanTurns(rows *sql.Rows) ([]models.TurnRecord, error) {
	defer rows.Close()
	var out []models.TurnRecord
	for rows.Next() {
		var t models.TurnRecord
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Phase, &t.Step, &t.Input, &t.Output, &t.Outcome, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn failed: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("turn iteration failed: %w", err)
	}
	return out, nil
}

func scanUsage(row rowScanner) (models.UsageStats, error) {
	var u models.UsageStats
	err := row.Scan(&u.SessionID, &u.Calls, &u.Tokens, &u.Cost, &u.StartedAt, &u.UpdatedAt)
	return u, err
}

func scanOutboxMessages(rows *sql.Rows) ([]OutboxMessage, error) {
	defer rows.Close()
	var msgs []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var dedupeKey, lastError sql.NullString
		var nextAttemptAt, lockedAt sql.NullTime
		err := rows.Scan(
			&m.ID, &m.Recipient, &m.Channel, &m.Body, &m.Status, &m.Attempts,
			&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message failed: %w", err)
		}
		m.DedupeKey = dedupeKey.String
		m.LastError = lastError.String
		if nextAttemptAt.Valid {
			m.NextAttemptAt = &nextAttemptAt.Time
		}
		if lockedAt.Valid {
			m.LockedAt = &lockedAt.Time
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox iteration failed: %w", err)
	}
	return msgs, nil
}
