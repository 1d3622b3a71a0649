// Package assist validates ambiguous answers and smooths scripted wording through a
// completion service, under a per-session call and cost budget. Every failure path
// falls back to the scripted behavior.
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/ShiftGuide/internal/genai"
	"github.com/BTreeMap/ShiftGuide/internal/metrics"
	"github.com/BTreeMap/ShiftGuide/internal/models"
)

// Budget defaults.
const (
	DefaultMaxCalls = 10
	DefaultMaxCost  = 0.10
	DefaultTimeout  = 8 * time.Second

	classifyMaxTokens = 4
	extractMaxTokens  = 80
	rewriteMaxTokens  = 120
)

var (
	// ErrBudgetExceeded means the session has used its assistance allowance.
	ErrBudgetExceeded = errors.New("assistance budget exceeded")
	// ErrMalformedReply means the completion could not be interpreted.
	ErrMalformedReply = errors.New("malformed completion reply")
	// ErrTurnCallUsed means this turn already made its one completion call.
	ErrTurnCallUsed = errors.New("completion call already used this turn")
	// ErrWordingChanged means a rewrite dropped or altered the user's words.
	ErrWordingChanged = errors.New("rewrite did not preserve the user's wording")
)

// ServiceError wraps a completion-service failure.
type ServiceError struct {
	Category models.AssistCondition
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("assistance %s: %v", e.Category, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// UsageStore persists per-session usage. GetUsage returns nil when a session has none.
type UsageStore interface {
	GetUsage(sessionID string) (*models.UsageStats, error)
	AddUsage(sessionID string, startedAt time.Time, tokens int, cost float64) (models.UsageStats, error)
}

// Query is one assistance request.
type Query struct {
	SessionID string
	Phase     models.PhaseName
	Step      models.StepID
	Condition models.AssistCondition
	Input     string
	// Scripted is the deterministic text a rewrite starts from and falls back to.
	Scripted string
	// StartedAt is the session start, recorded with the first usage row.
	StartedAt time.Time
}

// Result is the outcome of one assistance evaluation.
type Result struct {
	Category   models.AssistCondition
	Matched    bool // the guard selected this input
	Called     bool // the completion service was called
	Corrected  bool // Text replaces the step's output
	Text       string
	Updates    map[models.MetadataKey]string
	TokenCount int
	Cost       float64
	Fallback   bool
	Err        error

	elapsed time.Duration
}

// Manager runs catalogue categories against answers.
type Manager struct {
	completer genai.Completer
	usage     UsageStore
	catalog   *Catalog
	tokens    *genai.TokenCounter
	recorder  metrics.Recorder
	model     string
	maxCalls  int
	maxCost   float64
	timeout   time.Duration

	mu       sync.Mutex
	disabled map[string]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxCalls sets the per-session call cap.
func WithMaxCalls(n int) Option {
	return func(m *Manager) {
		m.maxCalls = n
	}
}

// WithMaxCost sets the per-session cost cap in USD.
func WithMaxCost(usd float64) Option {
	return func(m *Manager) {
		m.maxCost = usd
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithCatalog replaces the embedded catalogue.
func WithCatalog(c *Catalog) Option {
	return func(m *Manager) {
		m.catalog = c
	}
}

// WithModel sets the model used for cost estimates when the completer does not report one.
func WithModel(model string) Option {
	return func(m *Manager) {
		m.model = model
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// NewManager creates a Manager. A nil completer disables every completion call.
func NewManager(completer genai.Completer, usage UsageStore, opts ...Option) (*Manager, error) {
	m := &Manager{
		completer: completer,
		usage:     usage,
		recorder:  metrics.Nop{},
		model:     genai.DefaultOpenAIModel,
		maxCalls:  DefaultMaxCalls,
		maxCost:   DefaultMaxCost,
		timeout:   DefaultTimeout,
		disabled:  make(map[string]bool),
	}
	if named, ok := completer.(interface{ Model() string }); ok && named.Model() != "" {
		m.model = named.Model()
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.usage == nil {
		return nil, errors.New("assist: usage store is required")
	}
	if m.catalog == nil {
		c, err := DefaultCatalog()
		if err != nil {
			return nil, err
		}
		m.catalog = c
	}
	tc, err := genai.NewTokenCounter()
	if err != nil {
		slog.Warn("NewManager: token counter unavailable, using character estimate", "error", err)
	}
	m.tokens = tc
	return m, nil
}

// Validate runs a classification or extraction category against an answer. It never
// returns an error: failures are reported in Result.Err with Fallback set, and the
// caller proceeds as if the answer were valid.
func (m *Manager) Validate(ctx context.Context, q Query, allowCall bool) Result {
	res := Result{Category: q.Condition}
	cat, ok := m.lookup(q, &res)
	if !ok {
		return res
	}
	if cat.Kind == KindRewrite {
		return m.fallback(res, fmt.Errorf("%w: %q is a rewrite category", ErrUnknownCategory, q.Condition))
	}

	req := genai.Request{
		System:    strings.TrimSpace(cat.Prompt),
		User:      fmt.Sprintf("Answer: %s", strings.TrimSpace(q.Input)),
		MaxTokens: classifyMaxTokens,
	}
	if cat.Kind == KindExtractDeadline {
		req.MaxTokens = extractMaxTokens
	}

	out, ok := m.call(ctx, q, cat, req, allowCall, &res)
	if !ok {
		return res
	}

	switch cat.Kind {
	case KindClassify:
		positive, err := parseClassification(out.Text)
		if err != nil {
			return m.fallback(res, &ServiceError{Category: cat.Name, Err: err})
		}
		if positive {
			res.Corrected = true
			res.Text = strings.TrimSpace(cat.Message)
		}
	case KindExtractDeadline:
		goal, deadline, found, err := parseDeadline(out.Text)
		if err != nil {
			return m.fallback(res, &ServiceError{Category: cat.Name, Err: err})
		}
		if found {
			res.Updates = map[models.MetadataKey]string{
				models.KeyGoalDeadline:     deadline,
				models.KeyGoalWithDeadline: goal + " by " + deadline,
			}
		}
	}
	m.record(q, out, &res)
	m.observe(res, "")
	return res
}

// Rewrite smooths scripted text around the user's answer. When the category does not
// apply, or anything fails, Text is the scripted text unchanged.
func (m *Manager) Rewrite(ctx context.Context, q Query, allowCall bool) Result {
	res := Result{Category: q.Condition, Text: q.Scripted}
	cat, ok := m.lookup(q, &res)
	if !ok {
		return res
	}
	if cat.Kind != KindRewrite {
		return m.fallback(res, fmt.Errorf("%w: %q is not a rewrite category", ErrUnknownCategory, q.Condition))
	}

	req := genai.Request{
		System:    strings.TrimSpace(cat.Prompt),
		User:      fmt.Sprintf("TEMPLATE: %s\nANSWER: %s", q.Scripted, strings.TrimSpace(q.Input)),
		MaxTokens: rewriteMaxTokens,
	}
	out, ok := m.call(ctx, q, cat, req, allowCall, &res)
	if !ok {
		return res
	}
	text := strings.Trim(strings.TrimSpace(out.Text), "\"")
	if !PreservesWording(text, q.Input) {
		slog.Debug("Manager.Rewrite: wording not preserved, using scripted text", "sessionID", q.SessionID, "step", q.Step)
		return m.fallback(res, ErrWordingChanged)
	}
	res.Corrected = true
	res.Text = text
	m.record(q, out, &res)
	m.observe(res, "")
	return res
}

// Usage returns the session's usage so far. Sessions without usage report zero values.
func (m *Manager) Usage(sessionID string) (models.UsageStats, error) {
	u, err := m.usage.GetUsage(sessionID)
	if err != nil {
		return models.UsageStats{}, err
	}
	if u == nil {
		return models.UsageStats{SessionID: sessionID}, nil
	}
	return *u, nil
}

// Release forgets the in-memory budget state of a finished session. Persisted usage is kept.
func (m *Manager) Release(sessionID string) {
	m.mu.Lock()
	delete(m.disabled, sessionID)
	m.mu.Unlock()
}

// lookup resolves the category and evaluates its guard.
func (m *Manager) lookup(q Query, res *Result) (*Category, bool) {
	cat, err := m.catalog.Category(q.Condition)
	if err != nil {
		*res = m.fallback(*res, err)
		return nil, false
	}
	matched, err := cat.Matches(NewGuardEnv(q.Input, q.Phase, q.Step))
	if err != nil {
		slog.Warn("Manager: guard evaluation failed", "category", cat.Name, "error", err)
		*res = m.fallback(*res, err)
		return nil, false
	}
	res.Matched = matched
	if !matched {
		m.observe(*res, "skipped")
		return nil, false
	}
	return cat, true
}

// call checks the budget and performs the single completion call. Usage is recorded
// separately, once the reply has been accepted.
func (m *Manager) call(ctx context.Context, q Query, cat *Category, req genai.Request, allowCall bool, res *Result) (genai.Completion, bool) {
	if m.completer == nil {
		*res = m.fallback(*res, &ServiceError{Category: cat.Name, Err: errors.New("no completion service configured")})
		return genai.Completion{}, false
	}
	if !allowCall {
		*res = m.fallback(*res, ErrTurnCallUsed)
		return genai.Completion{}, false
	}
	if err := m.reserve(q.SessionID, req); err != nil {
		*res = m.fallback(*res, err)
		return genai.Completion{}, false
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	start := time.Now()
	res.Called = true
	out, err := m.completer.Complete(callCtx, req)
	elapsed := time.Since(start)
	res.elapsed = elapsed
	if err != nil {
		slog.Warn("Manager: completion call failed, failing open", "sessionID", q.SessionID, "category", cat.Name, "error", err)
		*res = m.fallback(*res, &ServiceError{Category: cat.Name, Err: err})
		return genai.Completion{}, false
	}
	slog.Debug("Manager: completion call succeeded", "sessionID", q.SessionID, "category", cat.Name, "duration", elapsed)
	return out, true
}

// record charges an accepted completion to the session.
func (m *Manager) record(q Query, out genai.Completion, res *Result) {
	model := out.Model
	if model == "" {
		model = m.model
	}
	res.TokenCount = out.TotalTokens()
	res.Cost = genai.Cost(model, out.PromptTokens, out.CompletionTokens)
	startedAt := q.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	u, err := m.usage.AddUsage(q.SessionID, startedAt, res.TokenCount, res.Cost)
	if err != nil {
		slog.Error("Manager: failed to record usage", "sessionID", q.SessionID, "error", err)
		return
	}
	slog.Debug("Manager: usage recorded", "sessionID", q.SessionID, "calls", u.Calls, "tokens", u.Tokens, "cost", u.Cost)
}

// reserve refuses a call that would exceed the session's call or cost cap.
func (m *Manager) reserve(sessionID string, req genai.Request) error {
	m.mu.Lock()
	disabled := m.disabled[sessionID]
	m.mu.Unlock()
	if disabled {
		return ErrBudgetExceeded
	}

	u, err := m.usage.GetUsage(sessionID)
	if err != nil {
		return &ServiceError{Err: fmt.Errorf("read usage: %w", err)}
	}
	var calls int
	var cost float64
	if u != nil {
		calls, cost = u.Calls, u.Cost
	}
	if calls >= m.maxCalls || cost >= m.maxCost {
		m.disable(sessionID, calls, cost)
		return fmt.Errorf("%w: %d calls, $%.4f", ErrBudgetExceeded, calls, cost)
	}
	estimate := genai.Cost(m.model, m.tokens.EstimatePrompt(req), req.MaxTokens)
	if cost+estimate > m.maxCost {
		return fmt.Errorf("%w: estimated $%.4f on top of $%.4f", ErrBudgetExceeded, estimate, cost)
	}
	return nil
}

func (m *Manager) disable(sessionID string, calls int, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.disabled[sessionID] {
		slog.Info("Manager: assistance disabled for session", "sessionID", sessionID, "calls", calls, "cost", cost)
	}
	m.disabled[sessionID] = true
}

// fallback marks res as the deterministic outcome of a failed or skipped evaluation.
// Nothing is charged for a fallback.
func (m *Manager) fallback(res Result, err error) Result {
	res.Fallback = true
	res.Corrected = false
	res.Updates = nil
	res.TokenCount = 0
	res.Cost = 0
	res.Err = err
	outcome := "fallback"
	if errors.Is(err, ErrBudgetExceeded) {
		outcome = "budget_exceeded"
	}
	m.observe(res, outcome)
	return res
}

func (m *Manager) observe(res Result, outcome string) {
	if outcome == "" {
		outcome = "accepted"
		if res.Corrected {
			outcome = "corrected"
		}
	}
	m.recorder.ObserveAssist(string(res.Category), outcome, res.TokenCount, res.Cost, res.elapsed)
}

// parseClassification reads a YES/NO reply from its first word.
func parseClassification(reply string) (bool, error) {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return false, ErrMalformedReply
	}
	word := strings.ToUpper(strings.Trim(fields[0], ".,!:;\"'`*"))
	switch word {
	case "YES":
		return true, nil
	case "NO":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrMalformedReply, reply)
}

type deadlineReply struct {
	HasDeadline bool   `json:"has_deadline"`
	Goal        string `json:"goal"`
	Deadline    string `json:"deadline"`
}

// parseDeadline reads the JSON reply of the deadline category. Code fences are tolerated.
func parseDeadline(reply string) (goal, deadline string, found bool, err error) {
	s := strings.TrimSpace(reply)
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}
	var d deadlineReply
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return "", "", false, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	goal, deadline = strings.TrimSpace(d.Goal), strings.TrimSpace(d.Deadline)
	if !d.HasDeadline || goal == "" || deadline == "" {
		return "", "", false, nil
	}
	return goal, deadline, true, nil
}
