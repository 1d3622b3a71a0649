package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

var (
	// ErrPhasePrecondition is returned when a Phase is entered without the metadata it needs.
	ErrPhasePrecondition = errors.New("phase precondition not met")
	// ErrUnknownWorkType is returned by SelectModality for an unset or invalid work type.
	ErrUnknownWorkType = errors.New("unknown work type")
	// ErrUnknownMethod is returned by SelectModality for an unset or invalid method.
	ErrUnknownMethod = errors.New("unknown method")
)

// CurrentProblem is the problem every template interpolates. A restated problem
// captured while digging deeper takes priority over the original statement.
func CurrentProblem(v View) string {
	if p := v.Get(models.KeyCurrentDiggingProblem); p != "" {
		return p
	}
	return v.Get(models.KeyProblemStatement)
}

// CurrentGoal is the goal every template interpolates. A deadline-qualified
// restatement takes priority over the goal as first stated.
func CurrentGoal(v View) string {
	if g := v.Get(models.KeyGoalWithDeadline); g != "" {
		return g
	}
	return v.Get(models.KeyGoalStatement)
}

// Subject is what the session is working on, chosen by work type.
func Subject(v View) string {
	switch models.WorkType(v.Get(models.KeyWorkType)) {
	case models.WorkTypeGoal:
		return CurrentGoal(v)
	case models.WorkTypeNegativeExperience:
		return v.Get(models.KeyExperienceStatement)
	default:
		return CurrentProblem(v)
	}
}

// SelectModality fans Work-Type Selection out into exactly one modality Phase. Goals
// always go to Reality Shifting and negative experiences to Trauma Shifting, and the
// returned patch forces selectedMethod to match whatever was chosen before.
func SelectModality(v View) (models.PhaseName, Patch, error) {
	switch wt := models.WorkType(v.Get(models.KeyWorkType)); wt {
	case models.WorkTypeGoal:
		return models.PhaseRealityShifting, Patch{Set(models.KeySelectedMethod, string(models.MethodRealityShifting))}, nil
	case models.WorkTypeNegativeExperience:
		return models.PhaseTraumaShifting, Patch{Set(models.KeySelectedMethod, string(models.MethodTraumaShifting))}, nil
	case models.WorkTypeProblem:
		m := models.Method(v.Get(models.KeySelectedMethod))
		if !m.ProblemMethod() {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
		}
		return m.Phase(), nil, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownWorkType, wt)
	}
}

// ParseWorkType maps a menu reply to a work type.
func ParseWorkType(input string) (models.WorkType, bool) {
	s := normalize(input)
	switch {
	case s == "1" || strings.Contains(s, "problem"):
		return models.WorkTypeProblem, true
	case s == "2" || strings.Contains(s, "goal"):
		return models.WorkTypeGoal, true
	case s == "3" || strings.Contains(s, "experience") || strings.Contains(s, "negative") || strings.Contains(s, "memory"):
		return models.WorkTypeNegativeExperience, true
	}
	return "", false
}

// ParseMethod maps a menu reply to one of the four problem methods.
func ParseMethod(input string) (models.Method, bool) {
	s := normalize(input)
	switch {
	case s == "1" || strings.Contains(s, "problem"):
		return models.MethodProblemShifting, true
	case s == "2" || strings.Contains(s, "identity"):
		return models.MethodIdentityShifting, true
	case s == "3" || strings.Contains(s, "belief"):
		return models.MethodBeliefShifting, true
	case s == "4" || strings.Contains(s, "blockage") || strings.Contains(s, "block"):
		return models.MethodBlockageShifting, true
	}
	return "", false
}

func requireAny(keys ...models.MetadataKey) func(View) error {
	return func(v View) error {
		for _, k := range keys {
			if v.Get(k) != "" {
				return nil
			}
		}
		return fmt.Errorf("%w: one of %v must be set", ErrPhasePrecondition, keys)
	}
}

func requireProblem(v View) error {
	if CurrentProblem(v) == "" {
		return fmt.Errorf("%w: no problem statement captured", ErrPhasePrecondition)
	}
	return nil
}

func requireSubject(v View) error {
	if !models.WorkType(v.Get(models.KeyWorkType)).Valid() {
		return fmt.Errorf("%w: work type not chosen", ErrPhasePrecondition)
	}
	if Subject(v) == "" {
		return fmt.Errorf("%w: nothing to integrate", ErrPhasePrecondition)
	}
	return nil
}
