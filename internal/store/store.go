// Package store provides storage backends for ShiftGuide.
//
// It persists session records with their JSON snapshots, the turn log, per-session
// assistance usage, inbound message dedup and the outbox of channel replies. An
// in-memory store is used when no DSN is configured; SQLite and PostgreSQL are selected
// by DSN shape.
package store

import (
	"strings"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// DSN types returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite"
)

// Store is the persistence collaborator of the dialogue engine.
type Store interface {
	// SaveSession inserts or replaces a session record.
	SaveSession(rec models.SessionRecord) error
	// GetSession returns nil, nil when the session is unknown.
	GetSession(sessionID string) (*models.SessionRecord, error)
	// ListSessions returns records with the given status, or all records when status is empty.
	ListSessions(status models.SessionStatus) ([]models.SessionRecord, error)
	// DeleteSession removes a session with its turns and usage.
	DeleteSession(sessionID string) error

	AddTurn(turn models.TurnRecord) error
	GetTurns(sessionID string) ([]models.TurnRecord, error)

	// GetUsage returns nil, nil when the session has no usage yet.
	GetUsage(sessionID string) (*models.UsageStats, error)
	// AddUsage charges one completion call to the session and returns the new totals.
	AddUsage(sessionID string, startedAt time.Time, tokens int, cost float64) (models.UsageStats, error)

	DedupRepo
	OutboxRepo

	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option configures a store.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports whether dsn addresses PostgreSQL or an SQLite file.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// New opens the store selected by the options: PostgreSQL or SQLite depending on the
// DSN, or an in-memory store when no DSN is set.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	switch {
	case cfg.DSN == "":
		return NewInMemoryStore(), nil
	case DetectDSNType(cfg.DSN) == DSNTypePostgres:
		return NewPostgresStore(opts...)
	default:
		return NewSQLiteStore(opts...)
	}
}
