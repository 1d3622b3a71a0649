package flow

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

var (
	// ErrSessionNotFound is returned for an unknown or abandoned session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when Start is given an id that is already in use.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionComplete is returned for any turn after the terminal step rendered.
	ErrSessionComplete = errors.New("session is complete")
	// ErrNothingToUndo is returned by Undo on an empty history.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrInputRequired is returned for a nil input after the session has started.
	ErrInputRequired = errors.New("user input is required after the session has started")
	// ErrHopLimit is the reason of a RoutingError raised when a turn chains too many jumps and routes.
	ErrHopLimit = errors.New("too many jumps in one turn")
)

// RoutingError means the phase library could not resolve where a turn goes. It is
// fatal to the turn and leaves the session where it was.
type RoutingError struct {
	Phase  models.PhaseName
	Step   models.StepID
	Target string
	Reason error
}

func (e *RoutingError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("routing failed at %s/%s: %v", e.Phase, e.Step, e.Reason)
	}
	return fmt.Sprintf("routing failed at %s/%s -> %s: %v", e.Phase, e.Step, e.Target, e.Reason)
}

func (e *RoutingError) Unwrap() error {
	return e.Reason
}
