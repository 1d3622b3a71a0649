// Package protocol defines the Step/Phase model of the scripted dialogue and the phase
// library built on it.
//
// A Step receives the user's answer to the previously displayed text, is validated,
// and renders its own text through Respond. Respond is a reducer: it never mutates the
// session, it returns a Result carrying the text (or a jump/route) plus a Patch that
// the orchestrator applies.
package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Input is the user text handed to a Step. Present is false when a Step is rendered
// without an answer (session start, phase entry through routing).
type Input struct {
	Text    string
	Present bool
}

// NoInput is the input used when entering a Phase.
var NoInput = Input{}

// Answer wraps user text as a present Input.
func Answer(text string) Input {
	return Input{Text: text, Present: true}
}

// Trimmed returns the input text without surrounding whitespace.
func (in Input) Trimmed() string {
	return strings.TrimSpace(in.Text)
}

// OpKind is a metadata operation kind.
type OpKind int

const (
	// OpSetOnce writes the value only if the key is unset or empty.
	OpSetOnce OpKind = iota
	// OpSet overwrites the value.
	OpSet
	// OpClear deletes the key.
	OpClear
	// OpIncr adds one to an integer counter.
	OpIncr
)

func (k OpKind) String() string {
	switch k {
	case OpSetOnce:
		return "set_once"
	case OpSet:
		return "set"
	case OpClear:
		return "clear"
	case OpIncr:
		return "incr"
	}
	return "unknown"
}

// Op is a single metadata operation.
type Op struct {
	Kind  OpKind
	Key   models.MetadataKey
	Value string
}

// SetOnce records value under key the first time key is produced.
func SetOnce(key models.MetadataKey, value string) Op {
	return Op{Kind: OpSetOnce, Key: key, Value: value}
}

// Set overwrites key.
func Set(key models.MetadataKey, value string) Op {
	return Op{Kind: OpSet, Key: key, Value: value}
}

// Clear removes key.
func Clear(key models.MetadataKey) Op {
	return Op{Kind: OpClear, Key: key}
}

// Incr increments the integer counter under key.
func Incr(key models.MetadataKey) Op {
	return Op{Kind: OpIncr, Key: key}
}

// Patch is an ordered list of metadata operations.
type Patch []Op

// Apply executes the patch against md and returns the keys whose value changed.
func (p Patch) Apply(md map[models.MetadataKey]string) []models.MetadataKey {
	var changed []models.MetadataKey
	for _, op := range p {
		old, had := md[op.Key]
		switch op.Kind {
		case OpSetOnce:
			if had && old != "" {
				continue
			}
			md[op.Key] = op.Value
		case OpSet:
			md[op.Key] = op.Value
		case OpClear:
			if !had {
				continue
			}
			delete(md, op.Key)
		case OpIncr:
			n, _ := strconv.Atoi(old)
			md[op.Key] = strconv.Itoa(n + 1)
		}
		if md[op.Key] != old || had != hasKey(md, op.Key) {
			changed = append(changed, op.Key)
		}
	}
	return changed
}

func hasKey(md map[models.MetadataKey]string, key models.MetadataKey) bool {
	_, ok := md[key]
	return ok
}

// ResultKind tags a Result.
type ResultKind int

const (
	// KindRender displays Text and advances to the Step's next pointer.
	KindRender ResultKind = iota
	// KindJump continues at another Step of the same Phase with the same input.
	KindJump
	// KindRoute enters the Target Phase at its entry Step with no input.
	KindRoute
)

func (k ResultKind) String() string {
	switch k {
	case KindRender:
		return "render"
	case KindJump:
		return "jump"
	case KindRoute:
		return "route"
	}
	return "unknown"
}

// Result is the tagged union a Step's Respond returns.
type Result struct {
	Kind   ResultKind
	Text   string
	Step   models.StepID
	Target models.PhaseName
	Patch  Patch
	// Err is set when a Step cannot decide where to route; the orchestrator
	// surfaces it as a routing failure.
	Err error
}

// Render displays text.
func Render(text string, ops ...Op) Result {
	return Result{Kind: KindRender, Text: text, Patch: ops}
}

// JumpTo continues at step within the current Phase.
func JumpTo(step models.StepID, ops ...Op) Result {
	return Result{Kind: KindJump, Step: step, Patch: ops}
}

// RouteTo transitions to the entry Step of target.
func RouteTo(target models.PhaseName, ops ...Op) Result {
	return Result{Kind: KindRoute, Target: target, Patch: ops}
}

// RouteError reports that the Step could not resolve a routing target.
func RouteError(err error) Result {
	return Result{Kind: KindRoute, Err: err}
}

// AITrigger binds an assistance condition to an action for a Step.
type AITrigger struct {
	Condition models.AssistCondition
	Action    models.AssistAction
}

// Step is one atomic turn-producing node.
type Step struct {
	ID       models.StepID
	Expects  models.ResponseType
	Rules    []ValidationRule
	Triggers []AITrigger
	Respond  func(v View, in Input) Result
	// Next is the static successor. A Step with no Next ends the session when it
	// renders; Steps that only ever jump or route leave it empty too.
	Next models.StepID
}

// Terminal reports whether rendering this Step ends the session.
func (s *Step) Terminal() bool {
	return s.Next == ""
}

// RewriteTrigger returns the rewrite binding of the Step, if any.
func (s *Step) RewriteTrigger() (AITrigger, bool) {
	for _, t := range s.Triggers {
		if t.Action == models.ActionRewrite {
			return t, true
		}
	}
	return AITrigger{}, false
}

// Phase is a named, ordered bundle of Steps.
type Phase struct {
	Name        models.PhaseName
	MaxDuration time.Duration
	Entry       models.StepID
	Steps       []*Step
	// Requires validates metadata before the Phase is entered through routing.
	Requires func(v View) error
	// Scoped keys are cleared when the Phase is entered through routing.
	Scoped []models.MetadataKey
}

// View is the read-only window a Step has onto the session.
type View struct {
	s *models.SessionContext
}

// NewView wraps a session context.
func NewView(s *models.SessionContext) View {
	return View{s: s}
}

// Get returns a metadata value.
func (v View) Get(key models.MetadataKey) string {
	if v.s == nil {
		return ""
	}
	return v.s.Get(key)
}

// Int returns a metadata counter.
func (v View) Int(key models.MetadataKey) int {
	if v.s == nil {
		return 0
	}
	return v.s.Int(key)
}

// Response returns the raw answer last given at step.
func (v View) Response(step models.StepID) string {
	if v.s == nil {
		return ""
	}
	return v.s.UserResponses[step]
}

// Remembered returns the stored value of key, falling back to the live input. Steps use
// it for write-once fields so that a later confirmation turn ("yes") never replaces the
// captured wording.
func (v View) Remembered(key models.MetadataKey, in Input) string {
	if stored := v.Get(key); stored != "" {
		return stored
	}
	return in.Trimmed()
}

// quote wraps user words in single quotes for interpolation.
func quote(s string) string {
	return "'" + strings.TrimSpace(s) + "'"
}
