package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

var testNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func viewOf(md map[models.MetadataKey]string) View {
	sc := models.NewSessionContext("s", "u", models.PhaseWorkTypeSelection, StepRouteToModality, testNow)
	for k, v := range md {
		sc.Metadata[k] = v
	}
	return NewView(sc)
}

func TestCurrentProblemPrecedence(t *testing.T) {
	v := viewOf(map[models.MetadataKey]string{models.KeyProblemStatement: "I procrastinate"})
	if got := CurrentProblem(v); got != "I procrastinate" {
		t.Errorf("got %q", got)
	}
	v = viewOf(map[models.MetadataKey]string{
		models.KeyProblemStatement:      "I procrastinate",
		models.KeyCurrentDiggingProblem: "I fear failing",
	})
	if got := CurrentProblem(v); got != "I fear failing" {
		t.Errorf("restated problem should win, got %q", got)
	}
}

func TestCurrentGoalPrecedence(t *testing.T) {
	v := viewOf(map[models.MetadataKey]string{
		models.KeyGoalStatement:    "run a marathon",
		models.KeyGoalWithDeadline: "run a marathon by October",
	})
	if got := CurrentGoal(v); got != "run a marathon by October" {
		t.Errorf("got %q", got)
	}
	v = viewOf(map[models.MetadataKey]string{models.KeyGoalStatement: "run a marathon"})
	if got := CurrentGoal(v); got != "run a marathon" {
		t.Errorf("got %q", got)
	}
}

func TestSubjectByWorkType(t *testing.T) {
	md := map[models.MetadataKey]string{
		models.KeyProblemStatement:    "p",
		models.KeyGoalStatement:       "g",
		models.KeyExperienceStatement: "e",
	}
	for wt, want := range map[models.WorkType]string{
		models.WorkTypeProblem:            "p",
		models.WorkTypeGoal:               "g",
		models.WorkTypeNegativeExperience: "e",
	} {
		md[models.KeyWorkType] = string(wt)
		if got := Subject(viewOf(md)); got != want {
			t.Errorf("Subject(%s) = %q, want %q", wt, got, want)
		}
	}
}

func TestSelectModality(t *testing.T) {
	tests := []struct {
		name       string
		md         map[models.MetadataKey]string
		want       models.PhaseName
		wantMethod string
		wantErr    error
	}{
		{
			name: "goal overrides an earlier method",
			md: map[models.MetadataKey]string{
				models.KeyWorkType:       string(models.WorkTypeGoal),
				models.KeySelectedMethod: string(models.MethodBeliefShifting),
			},
			want:       models.PhaseRealityShifting,
			wantMethod: string(models.MethodRealityShifting),
		},
		{
			name:       "negative experience",
			md:         map[models.MetadataKey]string{models.KeyWorkType: string(models.WorkTypeNegativeExperience)},
			want:       models.PhaseTraumaShifting,
			wantMethod: string(models.MethodTraumaShifting),
		},
		{
			name: "problem uses the chosen method",
			md: map[models.MetadataKey]string{
				models.KeyWorkType:       string(models.WorkTypeProblem),
				models.KeySelectedMethod: string(models.MethodIdentityShifting),
			},
			want: models.PhaseIdentityShifting,
		},
		{
			name:    "problem without method",
			md:      map[models.MetadataKey]string{models.KeyWorkType: string(models.WorkTypeProblem)},
			wantErr: ErrUnknownMethod,
		},
		{
			name: "problem with a goal method",
			md: map[models.MetadataKey]string{
				models.KeyWorkType:       string(models.WorkTypeProblem),
				models.KeySelectedMethod: string(models.MethodRealityShifting),
			},
			wantErr: ErrUnknownMethod,
		},
		{
			name:    "missing work type",
			md:      map[models.MetadataKey]string{},
			wantErr: ErrUnknownWorkType,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viewOf(tt.md)
			got, patch, err := SelectModality(v)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Errorf("phase = %q, want %q", got, tt.want)
			}
			md := v.s.MetadataSnapshot()
			patch.Apply(md)
			if tt.wantMethod != "" && md[models.KeySelectedMethod] != tt.wantMethod {
				t.Errorf("selectedMethod = %q, want %q", md[models.KeySelectedMethod], tt.wantMethod)
			}
		})
	}
}

func TestParseWorkTypeAndMethod(t *testing.T) {
	if wt, ok := ParseWorkType("2"); !ok || wt != models.WorkTypeGoal {
		t.Errorf("ParseWorkType(2) = %q %v", wt, ok)
	}
	if wt, ok := ParseWorkType("A negative experience"); !ok || wt != models.WorkTypeNegativeExperience {
		t.Errorf("ParseWorkType(experience) = %q %v", wt, ok)
	}
	if _, ok := ParseWorkType("7"); ok {
		t.Error("ParseWorkType accepted an unknown option")
	}
	if m, ok := ParseMethod("Blockage"); !ok || m != models.MethodBlockageShifting {
		t.Errorf("ParseMethod(Blockage) = %q %v", m, ok)
	}
	if _, ok := ParseMethod("reality"); ok {
		t.Error("reality shifting is not a problem method")
	}
}

func TestPhasePreconditions(t *testing.T) {
	lib := MustDefault()
	ps, _ := lib.Phase(models.PhaseProblemShifting)
	if err := ps.Requires(viewOf(nil)); !errors.Is(err, ErrPhasePrecondition) {
		t.Errorf("expected precondition failure, got %v", err)
	}
	if err := ps.Requires(viewOf(map[models.MetadataKey]string{models.KeyProblemStatement: "x"})); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	rs, _ := lib.Phase(models.PhaseRealityShifting)
	if err := rs.Requires(viewOf(map[models.MetadataKey]string{models.KeyGoalWithDeadline: "x by y"})); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	in, _ := lib.Phase(models.PhaseIntegration)
	if err := in.Requires(viewOf(map[models.MetadataKey]string{models.KeyGoalStatement: "g"})); !errors.Is(err, ErrPhasePrecondition) {
		t.Errorf("integration without work type should fail, got %v", err)
	}
}
