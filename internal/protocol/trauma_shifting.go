package protocol

import (
	"fmt"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Trauma Shifting step ids.
const (
	StepTSEntry          models.StepID = "ts_entry"
	StepTSFeelIdentity   models.StepID = "ts_feel_identity"
	StepTSFeel           models.StepID = "ts_feel"
	StepTSDissolve       models.StepID = "ts_dissolve"
	StepTSFeelNew        models.StepID = "ts_feel_new"
	StepTSCheckIdentity  models.StepID = "ts_check_identity"
	StepTSIdentityGate   models.StepID = "ts_identity_gate"
	StepTSExperienceGate models.StepID = "ts_experience_gate"
)

// TraumaShifting works through the identity held inside a single negative experience.
func TraumaShifting() *Phase {
	return &Phase{
		Name:        models.PhaseTraumaShifting,
		MaxDuration: 25 * time.Minute,
		Entry:       StepTSEntry,
		Requires:    requireAny(models.KeyExperienceStatement),
		Scoped: []models.MetadataKey{
			models.KeyCycles, models.KeyRounds, models.KeyIdentity, models.KeyFeeling, models.KeyNewIdentity,
		},
		Steps: []*Step{
			{
				ID:      StepTSEntry,
				Expects: models.ResponseNone,
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("Think about %s for a moment, without going into detail... "+
						"what kind of person are you being in that experience?", quote(v.Get(models.KeyExperienceStatement))))
				},
				Next: StepTSFeelIdentity,
			},
			{
				ID:       StepTSFeelIdentity,
				Expects:  models.ResponseIdentity,
				Rules:    []ValidationRule{MinLength(2, msgFewWords)},
				Triggers: []AITrigger{{Condition: models.ConditionIdentityWording, Action: models.ActionRewrite}},
				Respond: func(v View, in Input) Result {
					return Render(feelYourselfBeing(v.Remembered(models.KeyIdentity, in)), SetOnce(models.KeyIdentity, in.Trimmed()))
				},
				Next: StepTSFeel,
			},
			{
				ID:      StepTSFeel,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(feelWhatHappens(v.Remembered(models.KeyFeeling, in)), SetOnce(models.KeyFeeling, in.Trimmed()))
				},
				Next: StepTSDissolve,
			},
			{
				ID:      StepTSDissolve,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					return Render(fmt.Sprintf("What are you when you're not being %s?", quote(v.Get(models.KeyIdentity))))
				},
				Next: StepTSFeelNew,
			},
			{
				ID:      StepTSFeelNew,
				Expects: models.ResponseIdentity,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					next := v.Remembered(models.KeyNewIdentity, in)
					return Render(fmt.Sprintf("Feel yourself being %s... what does that feel like?", quote(next)),
						SetOnce(models.KeyNewIdentity, in.Trimmed()))
				},
				Next: StepTSCheckIdentity,
			},
			{
				ID:      StepTSCheckIdentity,
				Expects: models.ResponseFeeling,
				Rules:   []ValidationRule{MinLength(2, msgFewWords)},
				Respond: func(v View, in Input) Result {
					identity := quote(v.Get(models.KeyIdentity))
					return Render(fmt.Sprintf("Feel yourself being %s again... can you still feel yourself being %s?", identity, identity))
				},
				Next: StepTSIdentityGate,
			},
			{
				ID:      StepTSIdentityGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					if Affirmative(in.Text) && canLoop(v, models.KeyRounds, MaxCycles) {
						return JumpTo(StepTSFeelIdentity,
							Clear(models.KeyFeeling), Clear(models.KeyNewIdentity), Incr(models.KeyRounds))
					}
					return Render(fmt.Sprintf("Think about %s now... is there anything about it that still feels like a problem?",
						quote(v.Get(models.KeyExperienceStatement))))
				},
				Next: StepTSExperienceGate,
			},
			{
				ID:      StepTSExperienceGate,
				Expects: models.ResponseYesNo,
				Rules:   []ValidationRule{YesNo(msgYesNo)},
				Respond: func(v View, in Input) Result {
					if Affirmative(in.Text) && canLoop(v, models.KeyCycles, MaxCycles) {
						return JumpTo(StepTSEntry, Clear(models.KeyIdentity), Clear(models.KeyFeeling),
							Clear(models.KeyNewIdentity), Clear(models.KeyRounds), Incr(models.KeyCycles))
					}
					return RouteTo(models.PhaseIntegration)
				},
			},
		},
	}
}
