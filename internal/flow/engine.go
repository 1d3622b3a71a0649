// Package flow is the dialogue orchestrator. It drives sessions through the phase
// library one turn at a time: validating input, consulting the assistance layer,
// applying step results and recording the outcome behind the turn.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/ShiftGuide/internal/assist"
	"github.com/BTreeMap/ShiftGuide/internal/metrics"
	"github.com/BTreeMap/ShiftGuide/internal/models"
	"github.com/BTreeMap/ShiftGuide/internal/protocol"
)

const (
	// DefaultHopLimit caps the jumps and routes one turn may chain.
	DefaultHopLimit = 8
	// phaseOverrun is how many times a phase's MaxDuration a session may sit in it
	// before the sweeper abandons it.
	phaseOverrun = 4

	outcomeError = "error"
)

// Assistant is the assistance layer consulted for a step's triggers.
type Assistant interface {
	Validate(ctx context.Context, q assist.Query, allowCall bool) assist.Result
	Rewrite(ctx context.Context, q assist.Query, allowCall bool) assist.Result
	Release(sessionID string)
}

// Engine runs sessions against a phase library.
type Engine struct {
	lib              *protocol.Library
	store            SessionStore
	sessions         *sessionTable
	recorder         *Recorder
	assistant        Assistant
	metrics          metrics.Recorder
	now              func() time.Time
	hopLimit         int
	snapshotMetadata bool
	flushInterval    time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithAssistant enables trigger evaluation and rewriting.
func WithAssistant(a Assistant) Option {
	return func(e *Engine) {
		e.assistant = a
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithHopLimit overrides DefaultHopLimit.
func WithHopLimit(n int) Option {
	return func(e *Engine) {
		e.hopLimit = n
	}
}

// WithSnapshotMetadata includes the metadata bag in every turn output.
func WithSnapshotMetadata(enabled bool) Option {
	return func(e *Engine) {
		e.snapshotMetadata = enabled
	}
}

// WithFlushInterval sets how often the write-behind recorder retries.
func WithFlushInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.flushInterval = d
	}
}

// NewEngine creates an Engine. Session records and turn logs are written to st by a
// recorder that only runs while Run is active; Flush writes synchronously.
func NewEngine(lib *protocol.Library, st SessionStore, opts ...Option) (*Engine, error) {
	if lib == nil {
		return nil, errors.New("flow: phase library is required")
	}
	if st == nil {
		return nil, errors.New("flow: session store is required")
	}
	e := &Engine{
		lib:      lib,
		store:    st,
		metrics:  metrics.Nop{},
		now:      time.Now,
		hopLimit: DefaultHopLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sessions = newSessionTable(st)
	e.recorder = NewRecorder(st, e.flushInterval)
	slog.Debug("Engine created", "phases", len(lib.Phases()), "assist", e.assistant != nil, "hopLimit", e.hopLimit)
	return e, nil
}

// Run drives the write-behind recorder until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return e.recorder.Run(ctx)
}

// Flush writes every queued record now.
func (e *Engine) Flush() {
	e.recorder.Flush()
}

// Start creates a session and renders its opening text. An empty sessionID gets a
// generated one.
func (e *Engine) Start(ctx context.Context, userID, sessionID string) (models.TurnOutput, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := e.now()
	phase, step := e.lib.Start()
	sc := models.NewSessionContext(sessionID, userID, phase, step, now)

	entry, err := e.sessions.insert(sc)
	if err != nil {
		slog.Warn("Engine.Start: cannot create session", "sessionID", sessionID, "error", err)
		return models.TurnOutput{}, err
	}
	defer entry.mu.Unlock()

	res, err := e.advance(ctx, sc, protocol.NoInput, now)
	if err != nil {
		e.sessions.remove(sessionID, entry, models.SessionStatusAbandoned)
		e.metrics.ObserveTurn(string(phase), outcomeError, e.now().Sub(now))
		slog.Error("Engine.Start: opening step failed", "sessionID", sessionID, "error", err)
		return models.TurnOutput{}, err
	}
	res.outcome = models.TurnOutcomeStarted
	e.metrics.SessionStarted()
	slog.Info("Engine.Start: session started", "sessionID", sessionID, "userID", userID)
	return e.commit(entry, sc, res, "", now), nil
}

// Turn processes one user answer. A nil input is only accepted before the first turn.
func (e *Engine) Turn(ctx context.Context, sessionID string, input *string) (models.TurnOutput, error) {
	now := e.now()
	entry, err := e.sessions.acquire(sessionID)
	if err != nil {
		return models.TurnOutput{}, err
	}
	defer entry.mu.Unlock()

	sc := entry.sc
	if sc.Done {
		return models.TurnOutput{}, ErrSessionComplete
	}
	in := protocol.NoInput
	raw := ""
	switch {
	case input != nil:
		in, raw = protocol.Answer(*input), *input
	case sc.Turns > 0:
		return models.TurnOutput{}, ErrInputRequired
	}

	res, err := e.advance(ctx, sc, in, now)
	if err != nil {
		e.metrics.ObserveTurn(string(sc.CurrentPhase), outcomeError, e.now().Sub(now))
		slog.Error("Engine.Turn: turn failed", "sessionID", sessionID, "phase", sc.CurrentPhase, "step", sc.CurrentStep, "error", err)
		return models.TurnOutput{}, err
	}
	if sc.Turns == 0 && res.outcome == models.TurnOutcomeAdvanced {
		res.outcome = models.TurnOutcomeStarted
	}
	return e.commit(entry, sc, res, raw, now), nil
}

// Undo steps back to the step that received the most recent answer and repeats the
// prompt that step was answering. Metadata written since is kept.
func (e *Engine) Undo(ctx context.Context, sessionID string) (models.TurnOutput, error) {
	now := e.now()
	entry, err := e.sessions.acquire(sessionID)
	if err != nil {
		return models.TurnOutput{}, err
	}
	defer entry.mu.Unlock()

	sc := entry.sc
	if sc.Done {
		return models.TurnOutput{}, ErrSessionComplete
	}
	if len(sc.StepHistory) == 0 {
		return models.TurnOutput{}, ErrNothingToUndo
	}
	work := sc.Clone()
	last := work.StepHistory[len(work.StepHistory)-1]
	work.StepHistory = work.StepHistory[:len(work.StepHistory)-1]
	if _, err := e.lib.Step(last.Phase, last.Step); err != nil {
		return models.TurnOutput{}, &RoutingError{Phase: sc.CurrentPhase, Step: sc.CurrentStep, Target: string(last.Step), Reason: err}
	}
	if last.Phase != work.CurrentPhase {
		work.PhaseEnteredAt = now
	}
	work.CurrentPhase, work.CurrentStep, work.LastPrompt = last.Phase, last.Step, last.Prompt

	slog.Debug("Engine.Undo: restored step", "sessionID", sessionID, "phase", last.Phase, "step", last.Step)
	res := turnResult{next: work, text: last.Prompt, outcome: models.TurnOutcomeUndone}
	return e.commit(entry, sc, res, "", now), nil
}

// Get returns a copy of the session context.
func (e *Engine) Get(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	entry, err := e.sessions.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer entry.mu.Unlock()
	return entry.sc.Clone(), nil
}

// Abandon ends a session early and removes it from memory. Completed sessions are only
// evicted.
func (e *Engine) Abandon(ctx context.Context, sessionID string) error {
	entry, err := e.sessions.acquire(sessionID)
	if err != nil {
		return err
	}
	defer entry.mu.Unlock()
	e.end(sessionID, entry, "requested")
	return nil
}

// FindActive returns the most recently started unfinished session of userID.
func (e *Engine) FindActive(userID string) (string, bool) {
	var (
		found   string
		started time.Time
	)
	for id, entry := range e.sessions.snapshot() {
		entry.mu.Lock()
		sc := entry.sc
		if !entry.removed && !sc.Done && sc.UserID == userID && (found == "" || sc.StartedAt.After(started)) {
			found, started = id, sc.StartedAt
		}
		entry.mu.Unlock()
	}
	return found, found != ""
}

// ActiveSessions returns how many sessions are held in memory.
func (e *Engine) ActiveSessions() int {
	return e.sessions.len()
}

// Sweep abandons sessions idle for longer than idle, or sitting in one phase for more
// than phaseOverrun times its MaxDuration, and evicts completed sessions idle that long.
// It returns the ids it abandoned.
func (e *Engine) Sweep(now time.Time, idle time.Duration) []string {
	var abandoned []string
	for id, entry := range e.sessions.snapshot() {
		entry.mu.Lock()
		if entry.removed {
			entry.mu.Unlock()
			continue
		}
		sc := entry.sc
		reason := e.staleReason(sc, now, idle)
		switch {
		case sc.Done && idle > 0 && now.Sub(sc.UpdatedAt) > idle:
			e.sessions.remove(id, entry, models.SessionStatusCompleted)
		case !sc.Done && reason != "":
			e.end(id, entry, reason)
			abandoned = append(abandoned, id)
		}
		entry.mu.Unlock()
	}

	ended := e.sessions.endedIDs()
	e.recorder.Flush()
	if e.recorder.Pending() == 0 {
		e.sessions.forget(ended)
	}
	if len(abandoned) > 0 {
		slog.Info("Engine.Sweep: abandoned stale sessions", "count", len(abandoned))
	}
	return abandoned
}

func (e *Engine) staleReason(sc *models.SessionContext, now time.Time, idle time.Duration) string {
	if idle > 0 && now.Sub(sc.UpdatedAt) > idle {
		return "idle"
	}
	p, err := e.lib.Phase(sc.CurrentPhase)
	if err == nil && p.MaxDuration > 0 && now.Sub(sc.PhaseEnteredAt) > phaseOverrun*p.MaxDuration {
		return "phase overrun"
	}
	return ""
}

// Warm loads every active session from the store into memory. It returns how many
// sessions were loaded.
func (e *Engine) Warm(ctx context.Context) (int, error) {
	recs, err := e.store.ListSessions(models.SessionStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}
	n := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		sc, err := decodeSnapshot(rec.Snapshot)
		if err != nil {
			slog.Warn("Engine.Warm: skipping unreadable snapshot", "sessionID", rec.SessionID, "error", err)
			continue
		}
		if _, err := e.lib.Step(sc.CurrentPhase, sc.CurrentStep); err != nil {
			slog.Warn("Engine.Warm: skipping session at unknown step", "sessionID", rec.SessionID, "phase", sc.CurrentPhase, "step", sc.CurrentStep)
			continue
		}
		if e.sessions.put(sc) {
			e.metrics.SessionStarted()
			n++
		}
	}
	slog.Info("Engine.Warm: active sessions loaded", "count", n)
	return n, nil
}

// end abandons an unfinished session or evicts a finished one. The entry must be locked.
func (e *Engine) end(sessionID string, entry *sessionEntry, reason string) {
	sc := entry.sc
	if sc.Done {
		e.sessions.remove(sessionID, entry, models.SessionStatusCompleted)
		return
	}
	now := e.now()
	e.recorder.RecordSession(e.sessionRecord(sc, models.SessionStatusAbandoned, now))
	e.sessions.remove(sessionID, entry, models.SessionStatusAbandoned)
	e.metrics.SessionEnded(string(models.SessionStatusAbandoned))
	if e.assistant != nil {
		e.assistant.Release(sessionID)
	}
	slog.Info("Engine: session abandoned", "sessionID", sessionID, "phase", sc.CurrentPhase, "step", sc.CurrentStep, "reason", reason)
}

// turnResult is what one turn produced. next is nil when the session does not move.
type turnResult struct {
	next    *models.SessionContext
	text    string
	outcome models.TurnOutcome
}

// advance runs one turn against a copy of sc.
func (e *Engine) advance(ctx context.Context, sc *models.SessionContext, in protocol.Input, now time.Time) (turnResult, error) {
	phase, id := sc.CurrentPhase, sc.CurrentStep
	st, err := e.lib.Step(phase, id)
	if err != nil {
		return turnResult{}, &RoutingError{Phase: phase, Step: id, Reason: err}
	}

	work := sc.Clone()
	answered := in.Present
	allowCall := true
	if answered {
		if err := protocol.Validate(st.Rules, in.Text); err != nil {
			var verr *protocol.ValidationError
			if !errors.As(err, &verr) {
				return turnResult{}, err
			}
			slog.Debug("Engine.Turn: input rejected", "sessionID", sc.SessionID, "step", id, "rule", verr.Rule)
			return turnResult{text: verr.Message, outcome: models.TurnOutcomeRejected}, nil
		}
		if text, corrected := e.checkTriggers(ctx, work, st, in, &allowCall); corrected {
			return turnResult{text: text, outcome: models.TurnOutcomeCorrected}, nil
		}
		work.UserResponses[id] = in.Text
	}

	receiver := models.HistoryEntry{Phase: phase, Step: id, Prompt: sc.LastPrompt}
	cur, curPhase := st, phase
	direct, routed := true, false
	for hops := 0; ; hops++ {
		if hops > e.hopLimit {
			return turnResult{}, &RoutingError{Phase: curPhase, Step: cur.ID, Reason: ErrHopLimit}
		}
		res := cur.Respond(protocol.NewView(work), in)
		if res.Err != nil {
			return turnResult{}, &RoutingError{Phase: curPhase, Step: cur.ID, Target: string(res.Target), Reason: res.Err}
		}
		res.Patch.Apply(work.Metadata)

		switch res.Kind {
		case protocol.KindJump:
			next, err := e.lib.Step(curPhase, res.Step)
			if err != nil {
				return turnResult{}, &RoutingError{Phase: curPhase, Step: cur.ID, Target: string(res.Step), Reason: err}
			}
			cur, direct = next, false

		case protocol.KindRoute:
			p, err := e.enter(work, res.Target, now)
			if err != nil {
				return turnResult{}, &RoutingError{Phase: curPhase, Step: cur.ID, Target: string(res.Target), Reason: err}
			}
			entry, err := e.lib.Step(p.Name, p.Entry)
			if err != nil {
				return turnResult{}, &RoutingError{Phase: curPhase, Step: cur.ID, Target: string(p.Entry), Reason: err}
			}
			slog.Debug("Engine.Turn: routed", "sessionID", sc.SessionID, "from", curPhase, "to", p.Name)
			cur, curPhase, in = entry, p.Name, protocol.NoInput
			direct, routed = false, true

		default:
			text := res.Text
			if direct && answered && allowCall {
				text = e.rewrite(ctx, work, cur, in, text)
			}
			work.LastPrompt = text
			if answered {
				work.StepHistory = append(work.StepHistory, receiver)
			}

			if cur.Terminal() {
				work.CurrentPhase, work.CurrentStep, work.Done = curPhase, cur.ID, true
				return turnResult{next: work, text: text, outcome: models.TurnOutcomeCompleted}, nil
			}
			nextPhase, ok := e.lib.PhaseOf(cur.Next)
			if !ok {
				return turnResult{}, &RoutingError{Phase: curPhase, Step: cur.ID, Target: string(cur.Next), Reason: protocol.ErrUnknownStep}
			}
			if nextPhase != curPhase {
				if _, err := e.enter(work, nextPhase, now); err != nil {
					return turnResult{}, &RoutingError{Phase: curPhase, Step: cur.ID, Target: string(nextPhase), Reason: err}
				}
				routed = true
			}
			work.CurrentPhase, work.CurrentStep = nextPhase, cur.Next

			outcome := models.TurnOutcomeAdvanced
			if routed {
				outcome = models.TurnOutcomeRouted
			}
			return turnResult{next: work, text: text, outcome: outcome}, nil
		}
	}
}

// enter checks a phase's preconditions and resets its scoped keys.
func (e *Engine) enter(work *models.SessionContext, target models.PhaseName, now time.Time) (*protocol.Phase, error) {
	p, err := e.lib.Phase(target)
	if err != nil {
		return nil, err
	}
	if p.Requires != nil {
		if err := p.Requires(protocol.NewView(work)); err != nil {
			return nil, err
		}
	}
	for _, key := range p.Scoped {
		delete(work.Metadata, key)
	}
	work.PhaseEnteredAt = now
	return p, nil
}

// checkTriggers evaluates the validation triggers of the receiving step. A correction
// ends the turn; extracted values are written to work.
func (e *Engine) checkTriggers(ctx context.Context, work *models.SessionContext, st *protocol.Step, in protocol.Input, allowCall *bool) (string, bool) {
	if e.assistant == nil {
		return "", false
	}
	for _, trig := range st.Triggers {
		if trig.Action == models.ActionRewrite {
			continue
		}
		res := e.assistant.Validate(ctx, assist.Query{
			SessionID: work.SessionID,
			Phase:     work.CurrentPhase,
			Step:      st.ID,
			Condition: trig.Condition,
			Input:     in.Text,
			StartedAt: work.StartedAt,
		}, *allowCall)
		if res.Called {
			*allowCall = false
		}
		if res.Err != nil {
			slog.Warn("Engine.Turn: assistance failed open", "sessionID", work.SessionID, "step", st.ID, "category", trig.Condition, "error", res.Err)
		}
		if res.Corrected {
			slog.Info("Engine.Turn: answer corrected", "sessionID", work.SessionID, "step", st.ID, "category", trig.Condition)
			return res.Text, true
		}
		if len(res.Updates) > 0 {
			updatePatch(res.Updates).Apply(work.Metadata)
		}
	}
	return "", false
}

// rewrite smooths the rendered text of a whitelisted step around the user's words.
func (e *Engine) rewrite(ctx context.Context, work *models.SessionContext, st *protocol.Step, in protocol.Input, scripted string) string {
	trig, ok := st.RewriteTrigger()
	if !ok || e.assistant == nil {
		return scripted
	}
	res := e.assistant.Rewrite(ctx, assist.Query{
		SessionID: work.SessionID,
		Phase:     work.CurrentPhase,
		Step:      st.ID,
		Condition: trig.Condition,
		Input:     in.Trimmed(),
		Scripted:  scripted,
		StartedAt: work.StartedAt,
	}, true)
	if res.Err != nil {
		slog.Warn("Engine.Turn: rewrite fell back to script", "sessionID", work.SessionID, "step", st.ID, "error", res.Err)
	}
	if res.Text == "" {
		return scripted
	}
	return res.Text
}

// updatePatch turns extracted values into Set operations in key order.
func updatePatch(updates map[models.MetadataKey]string) protocol.Patch {
	keys := make([]models.MetadataKey, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	patch := make(protocol.Patch, 0, len(keys))
	for _, k := range keys {
		patch = append(patch, protocol.Set(k, updates[k]))
	}
	return patch
}

// commit installs the turn's result and queues its records. The entry must be locked.
func (e *Engine) commit(entry *sessionEntry, prev *models.SessionContext, res turnResult, input string, now time.Time) models.TurnOutput {
	sc := prev
	if res.next != nil {
		res.next.Turns++
		res.next.UpdatedAt = now
		entry.sc = res.next
		sc = res.next
	} else {
		prev.UpdatedAt = now
	}

	e.recorder.RecordTurn(models.TurnRecord{
		SessionID: prev.SessionID,
		Phase:     prev.CurrentPhase,
		Step:      prev.CurrentStep,
		Input:     input,
		Output:    res.text,
		Outcome:   res.outcome,
		CreatedAt: now,
	})
	if res.next != nil {
		status := models.SessionStatusActive
		if sc.Done {
			status = models.SessionStatusCompleted
		}
		e.recorder.RecordSession(e.sessionRecord(sc, status, now))
	}
	if res.outcome == models.TurnOutcomeCompleted {
		e.metrics.SessionEnded(string(models.SessionStatusCompleted))
		if e.assistant != nil {
			e.assistant.Release(sc.SessionID)
		}
		slog.Info("Engine.Turn: session completed", "sessionID", sc.SessionID, "turns", sc.Turns)
	}
	e.metrics.ObserveTurn(string(prev.CurrentPhase), string(res.outcome), e.now().Sub(now))
	slog.Debug("Engine.Turn: committed", "sessionID", sc.SessionID, "outcome", res.outcome, "phase", sc.CurrentPhase, "step", sc.CurrentStep)

	out := models.TurnOutput{
		SessionID: sc.SessionID,
		Text:      res.text,
		Done:      sc.Done,
		Phase:     sc.CurrentPhase,
		Step:      sc.CurrentStep,
	}
	if e.snapshotMetadata {
		out.MetadataSnapshot = sc.MetadataSnapshot()
	}
	return out
}

func (e *Engine) sessionRecord(sc *models.SessionContext, status models.SessionStatus, now time.Time) models.SessionRecord {
	snapshot, err := encodeSnapshot(sc)
	if err != nil {
		slog.Error("Engine: snapshot encoding failed", "sessionID", sc.SessionID, "error", err)
	}
	rec := models.SessionRecord{
		SessionID:       sc.SessionID,
		UserID:          sc.UserID,
		Phase:           sc.CurrentPhase,
		Step:            sc.CurrentStep,
		Status:          status,
		ProblemsCleared: sc.Int(models.KeyProblemsCleared),
		WorkType:        models.WorkType(sc.Get(models.KeyWorkType)),
		Method:          models.Method(sc.Get(models.KeySelectedMethod)),
		Snapshot:        snapshot,
		CreatedAt:       sc.StartedAt,
		UpdatedAt:       now,
	}
	if status == models.SessionStatusCompleted {
		done := now
		rec.CompletedAt = &done
	}
	return rec
}
