package protocol

import (
	"errors"
	"fmt"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

var (
	ErrUnknownPhase = errors.New("unknown phase")
	ErrUnknownStep  = errors.New("unknown step")
	ErrDuplicateID  = errors.New("duplicate step id")
	ErrDanglingNext = errors.New("next pointer does not resolve")
)

// Library is the phase table the orchestrator routes through.
type Library struct {
	start   models.PhaseName
	phases  map[models.PhaseName]*Phase
	steps   map[models.StepID]*Step
	phaseOf map[models.StepID]models.PhaseName
	order   []models.PhaseName
}

// NewLibrary indexes phases and checks that every step id is unique, every entry
// exists, and every next pointer resolves to a step of the same phase or to another
// phase's entry step. The first phase is where sessions start.
func NewLibrary(phases ...*Phase) (*Library, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: library has no phases", ErrUnknownPhase)
	}
	l := &Library{
		start:   phases[0].Name,
		phases:  make(map[models.PhaseName]*Phase, len(phases)),
		steps:   make(map[models.StepID]*Step),
		phaseOf: make(map[models.StepID]models.PhaseName),
	}
	entries := make(map[models.StepID]bool, len(phases))
	for _, p := range phases {
		if _, dup := l.phases[p.Name]; dup {
			return nil, fmt.Errorf("duplicate phase %q", p.Name)
		}
		l.phases[p.Name] = p
		l.order = append(l.order, p.Name)
		entries[p.Entry] = true
		for _, s := range p.Steps {
			if _, dup := l.steps[s.ID]; dup {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateID, s.ID)
			}
			if s.Respond == nil {
				return nil, fmt.Errorf("step %q has no response generator", s.ID)
			}
			l.steps[s.ID] = s
			l.phaseOf[s.ID] = p.Name
		}
	}
	for _, p := range phases {
		if l.phaseOf[p.Entry] != p.Name {
			return nil, fmt.Errorf("%w: entry %q of phase %q", ErrUnknownStep, p.Entry, p.Name)
		}
		for _, s := range p.Steps {
			if s.Next == "" {
				continue
			}
			owner, ok := l.phaseOf[s.Next]
			if !ok || (owner != p.Name && !entries[s.Next]) {
				return nil, fmt.Errorf("%w: %q -> %q", ErrDanglingNext, s.ID, s.Next)
			}
		}
	}
	return l, nil
}

// Start returns the phase and step every session begins at.
func (l *Library) Start() (models.PhaseName, models.StepID) {
	return l.start, l.phases[l.start].Entry
}

// Phase resolves a phase by name.
func (l *Library) Phase(name models.PhaseName) (*Phase, error) {
	p, ok := l.phases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPhase, name)
	}
	return p, nil
}

// Step resolves a step that must belong to phase.
func (l *Library) Step(phase models.PhaseName, id models.StepID) (*Step, error) {
	s, ok := l.steps[id]
	if !ok || l.phaseOf[id] != phase {
		return nil, fmt.Errorf("%w: %q in phase %q", ErrUnknownStep, id, phase)
	}
	return s, nil
}

// PhaseOf returns the phase a step belongs to.
func (l *Library) PhaseOf(id models.StepID) (models.PhaseName, bool) {
	p, ok := l.phaseOf[id]
	return p, ok
}

// Phases returns the phase names in library order.
func (l *Library) Phases() []models.PhaseName {
	return append([]models.PhaseName(nil), l.order...)
}

// Default builds the standard ShiftGuide library.
func Default() (*Library, error) {
	return NewLibrary(
		Discovery(),
		WorkTypeSelection(),
		ProblemShifting(),
		IdentityShifting(),
		BeliefShifting(),
		BlockageShifting(),
		RealityShifting(),
		TraumaShifting(),
		DiggingDeeper(),
		Integration(),
	)
}

// MustDefault is Default for callers that treat a malformed library as a programming error.
func MustDefault() *Library {
	l, err := Default()
	if err != nil {
		panic(fmt.Sprintf("protocol: invalid default library: %v", err))
	}
	return l
}
