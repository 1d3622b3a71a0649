package recovery

import (
	"context"
	"log/slog"
)

// SessionWarmer loads active sessions from the store into memory.
type SessionWarmer interface {
	Warm(ctx context.Context) (int, error)
}

// StaleMessageRecoverer requeues outbox messages left in the sending state.
type StaleMessageRecoverer interface {
	RecoverStaleMessages() error
}

// Func adapts a function to Recoverable.
type Func struct {
	name string
	fn   func(ctx context.Context) error
}

// NewFunc creates a named Recoverable from fn.
func NewFunc(name string, fn func(ctx context.Context) error) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Recover(ctx context.Context) error { return f.fn(ctx) }

// SessionRecovery warms the engine's session table.
func SessionRecovery(w SessionWarmer) Recoverable {
	return NewFunc("sessions", func(ctx context.Context) error {
		n, err := w.Warm(ctx)
		if err != nil {
			return err
		}
		slog.Info("Recovered active sessions", "count", n)
		return nil
	})
}

// OutboxRecovery requeues channel replies interrupted mid-send.
func OutboxRecovery(o StaleMessageRecoverer) Recoverable {
	return NewFunc("outbox", func(ctx context.Context) error {
		return o.RecoverStaleMessages()
	})
}
