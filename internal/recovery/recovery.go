// Package recovery restores process state after a restart.
//
// Components register a Recoverable; RecoverAll runs each one at startup, keeps going
// past failures and reports how many failed.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Recoverable is a component that restores its state at startup.
type Recoverable interface {
	// Name identifies the component in logs.
	Name() string
	// Recover is called once during application startup.
	Recover(ctx context.Context) error
}

// RecoveryManager orchestrates recovery of all registered components.
type RecoveryManager struct {
	recoverables []Recoverable
}

// NewRecoveryManager creates a new recovery manager.
func NewRecoveryManager() *RecoveryManager {
	return &RecoveryManager{}
}

// RegisterRecoverable adds a component that can be recovered.
func (rm *RecoveryManager) RegisterRecoverable(r Recoverable) {
	rm.recoverables = append(rm.recoverables, r)
}

// RecoverAll performs recovery of all registered components in registration order.
func (rm *RecoveryManager) RecoverAll(ctx context.Context) error {
	slog.Info("RecoveryManager.RecoverAll: starting", "components", len(rm.recoverables))

	recoveredCount := 0
	errorCount := 0
	for _, r := range rm.recoverables {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Recover(ctx); err != nil {
			slog.Error("RecoveryManager.RecoverAll: component failed", "error", err, "component", r.Name())
			errorCount++
			continue
		}
		recoveredCount++
	}

	slog.Info("RecoveryManager.RecoverAll: completed", "recovered", recoveredCount, "errors", errorCount)
	if errorCount > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", errorCount, len(rm.recoverables))
	}
	return nil
}
