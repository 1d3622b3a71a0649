package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/ShiftGuide/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveSession(rec models.SessionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (session_id) DO UPDATE SET
		   current_phase = EXCLUDED.current_phase,
		   current_step = EXCLUDED.current_step,
		   status = EXCLUDED.status,
		   problems_cleared = EXCLUDED.problems_cleared,
		   work_type = EXCLUDED.work_type,
		   selected_method = EXCLUDED.selected_method,
		   snapshot = EXCLUDED.snapshot,
		   updated_at = EXCLUDED.updated_at,
		   completed_at = EXCLUDED.completed_at`,
		rec.SessionID, rec.UserID, rec.Phase, rec.Step, rec.Status, rec.ProblemsCleared,
		nilIfEmpty(string(rec.WorkType)), nilIfEmpty(string(rec.Method)), nilIfEmpty(rec.Snapshot),
		rec.CreatedAt, rec.UpdatedAt, rec.CompletedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", rec.SessionID)
		return fmt.Errorf("failed to save session %s: %w", rec.SessionID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", rec.SessionID, "phase", rec.Phase, "status", rec.Status)
	return nil
}

func (s *PostgresStore) GetSession(sessionID string) (*models.SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListSessions(status models.SessionStatus) ([]models.SessionRecord, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at`)
	} else {
		rows, err = s.db.Query(`SELECT `+sessionColumns+` FROM sessions WHERE status = $1 ORDER BY created_at`, status)
	}
	if err != nil {
		slog.Error("PostgresStore ListSessions query failed", "error", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return scanSessions(rows)
}

func (s *PostgresStore) DeleteSession(sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM turns WHERE session_id = $1`,
		`DELETE FROM assist_usage WHERE session_id = $1`,
		`DELETE FROM sessions WHERE session_id = $1`,
	} {
		if _, err := tx.Exec(q, sessionID); err != nil {
			slog.Error("PostgresStore DeleteSession failed", "error", err, "sessionID", sessionID)
			return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "sessionID", sessionID)
	return nil
}

func (s *PostgresStore) AddTurn(t models.TurnRecord) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO turns (session_id, phase, step, input, output, outcome, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.SessionID, t.Phase, t.Step, t.Input, t.Output, t.Outcome, t.CreatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore AddTurn failed", "error", err, "sessionID", t.SessionID)
		return fmt.Errorf("failed to insert turn for %s: %w", t.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) GetTurns(sessionID string) ([]models.TurnRecord, error) {
	rows, err := s.db.Query(`SELECT `+turnColumns+` FROM turns WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		slog.Error("PostgresStore GetTurns query failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	return scanTurns(rows)
}

func (s *PostgresStore) GetUsage(sessionID string) (*models.UsageStats, error) {
	u, err := scanUsage(s.db.QueryRow(`SELECT `+usageColumns+` FROM assist_usage WHERE session_id = $1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage for %s: %w", sessionID, err)
	}
	return &u, nil
}

func (s *PostgresStore) AddUsage(sessionID string, startedAt time.Time, tokens int, cost float64) (models.UsageStats, error) {
	u, err := scanUsage(s.db.QueryRow(
		`INSERT INTO assist_usage (session_id, calls, tokens, cost, started_at, updated_at)
		 VALUES ($1, 1, $2, $3, $4, $5)
		 ON CONFLICT (session_id) DO UPDATE SET
		   calls = assist_usage.calls + 1,
		   tokens = assist_usage.tokens + EXCLUDED.tokens,
		   cost = assist_usage.cost + EXCLUDED.cost,
		   updated_at = EXCLUDED.updated_at
		 RETURNING `+usageColumns,
		sessionID, tokens, cost, startedAt, time.Now(),
	))
	if err != nil {
		slog.Error("PostgresStore AddUsage failed", "error", err, "sessionID", sessionID)
		return models.UsageStats{}, fmt.Errorf("failed to add usage for %s: %w", sessionID, err)
	}
	slog.Debug("PostgresStore AddUsage succeeded", "sessionID", sessionID, "calls", u.Calls, "cost", u.Cost)
	return u, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
