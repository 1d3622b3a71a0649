package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/ShiftGuide/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists sessions in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// One writer at a time; the recorder, the outbox sender and request handlers share it.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dir", dir)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSession(rec models.SessionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   current_phase = excluded.current_phase,
		   current_step = excluded.current_step,
		   status = excluded.status,
		   problems_cleared = excluded.problems_cleared,
		   work_type = excluded.work_type,
		   selected_method = excluded.selected_method,
		   snapshot = excluded.snapshot,
		   updated_at = excluded.updated_at,
		   completed_at = excluded.completed_at`,
		rec.SessionID, rec.UserID, rec.Phase, rec.Step, rec.Status, rec.ProblemsCleared,
		nilIfEmpty(string(rec.WorkType)), nilIfEmpty(string(rec.Method)), nilIfEmpty(rec.Snapshot),
		rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", rec.SessionID)
		return fmt.Errorf("failed to save session %s: %w", rec.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", rec.SessionID, "phase", rec.Phase, "status", rec.Status)
	return nil
}

func (s *SQLiteStore) GetSession(sessionID string) (*models.SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) ListSessions(status models.SessionStatus) ([]models.SessionRecord, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at`)
	} else {
		rows, err = s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE status = ? ORDER BY created_at`, status)
	}
	if err != nil {
		slog.Error("SQLiteStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	recs, err := scanSessions(rows)
	if err != nil {
		return nil, err
	}
	slog.Debug("SQLiteStore ListSessions succeeded", "status", status, "count", len(recs))
	return recs, nil
}

func (s *SQLiteStore) DeleteSession(sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM turns WHERE session_id = ?`,
		`DELETE FROM assist_usage WHERE session_id = ?`,
		`DELETE FROM sessions WHERE session_id = ?`,
	} {
		if _, err := tx.Exec(q, sessionID); err != nil {
			slog.Error("SQLiteStore DeleteSession failed", "error", err, "sessionID", sessionID)
			return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "sessionID", sessionID)
	return nil
}

func (s *SQLiteStore) AddTurn(t models.TurnRecord) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO turns (session_id, phase, step, input, output, outcome, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID, t.Phase, t.Step, t.Input, t.Output, t.Outcome, t.CreatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore AddTurn failed", "error", err, "sessionID", t.SessionID)
		return fmt.Errorf("failed to insert turn for %s: %w", t.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetTurns(sessionID string) ([]models.TurnRecord, error) {
	rows, err := s.db.Query(`SELECT `+turnColumns+` FROM turns WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore GetTurns query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	return scanTurns(rows)
}

func (s *SQLiteStore) GetUsage(sessionID string) (*models.UsageStats, error) {
	u, err := scanUsage(s.db.QueryRow(`SELECT `+usageColumns+` FROM assist_usage WHERE session_id = ?`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage for %s: %w", sessionID, err)
	}
	return &u, nil
}

func (s *SQLiteStore) AddUsage(sessionID string, startedAt time.Time, tokens int, cost float64) (models.UsageStats, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return models.UsageStats{}, fmt.Errorf("failed to begin usage update: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.Exec(
		`INSERT INTO assist_usage (session_id, calls, tokens, cost, started_at, updated_at)
		 VALUES (?, 1, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   calls = calls + 1,
		   tokens = tokens + excluded.tokens,
		   cost = cost + excluded.cost,
		   updated_at = excluded.updated_at`,
		sessionID, tokens, cost, startedAt, now,
	)
	if err != nil {
		slog.Error("SQLiteStore AddUsage failed", "error", err, "sessionID", sessionID)
		return models.UsageStats{}, fmt.Errorf("failed to add usage for %s: %w", sessionID, err)
	}
	u, err := scanUsage(tx.QueryRow(`SELECT `+usageColumns+` FROM assist_usage WHERE session_id = ?`, sessionID))
	if err != nil {
		return models.UsageStats{}, fmt.Errorf("failed to read usage for %s: %w", sessionID, err)
	}
	if err := tx.Commit(); err != nil {
		return models.UsageStats{}, fmt.Errorf("failed to commit usage for %s: %w", sessionID, err)
	}
	slog.Debug("SQLiteStore AddUsage succeeded", "sessionID", sessionID, "calls", u.Calls, "cost", u.Cost)
	return u, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
