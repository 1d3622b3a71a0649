package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/rivo/uniseg"
)

// RuleKind is a validation predicate kind.
type RuleKind string

const (
	RuleMinLength RuleKind = "min_length"
	RuleMaxLength RuleKind = "max_length"
	RuleYesNo     RuleKind = "yes_no"
	RuleChoice    RuleKind = "choice"
	RuleIntRange  RuleKind = "int_range"
)

// ValidationRule is evaluated against the raw input before a Step responds.
type ValidationRule struct {
	Kind    RuleKind
	Min     int
	Max     int
	Accept  func(string) bool // RuleChoice only
	Message string
}

// ValidationError is a local rule failure. The turn re-prompts with Message.
type ValidationError struct {
	Rule    RuleKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Rule, e.Message)
}

// MinLength rejects input with fewer than n characters once surrounding whitespace is
// trimmed. Characters are grapheme clusters so that accented or emoji input counts the
// way a user sees it.
func MinLength(n int, message string) ValidationRule {
	return ValidationRule{Kind: RuleMinLength, Min: n, Message: message}
}

// MaxLength rejects trimmed input longer than n characters.
func MaxLength(n int, message string) ValidationRule {
	return ValidationRule{Kind: RuleMaxLength, Max: n, Message: message}
}

// YesNo accepts yes, no and maybe in their common forms.
func YesNo(message string) ValidationRule {
	return ValidationRule{Kind: RuleYesNo, Message: message}
}

// Choice accepts input for which accept returns true.
func Choice(accept func(string) bool, message string) ValidationRule {
	return ValidationRule{Kind: RuleChoice, Accept: accept, Message: message}
}

// IntRange accepts input containing an integer in [lo, hi].
func IntRange(lo, hi int, message string) ValidationRule {
	return ValidationRule{Kind: RuleIntRange, Min: lo, Max: hi, Message: message}
}

// Check reports whether input satisfies the rule.
func (r ValidationRule) Check(input string) bool {
	switch r.Kind {
	case RuleMinLength:
		return uniseg.GraphemeClusterCount(strings.TrimSpace(input)) >= r.Min
	case RuleMaxLength:
		return uniseg.GraphemeClusterCount(strings.TrimSpace(input)) <= r.Max
	case RuleYesNo:
		_, ok := ParseYesNo(input)
		return ok
	case RuleChoice:
		return r.Accept != nil && r.Accept(input)
	case RuleIntRange:
		n, ok := ParseInt(input)
		return ok && n >= r.Min && n <= r.Max
	}
	return true
}

// Validate runs rules in order and returns the first failure.
func Validate(rules []ValidationRule, input string) error {
	for _, r := range rules {
		if !r.Check(input) {
			return &ValidationError{Rule: r.Kind, Message: r.Message}
		}
	}
	return nil
}

// YesNoAnswer is a normalized yes/no/maybe reply.
type YesNoAnswer int

const (
	AnswerNo YesNoAnswer = iota
	AnswerYes
	AnswerMaybe
)

var (
	yesWords   = []string{"yes", "y", "yeah", "yep", "yup", "sure", "ok", "okay", "it does", "i do", "i can", "still", "definitely", "absolutely"}
	noWords    = []string{"no", "n", "nope", "nah", "not really", "it doesn't", "it does not", "i don't", "i do not", "i can't", "i cannot", "not anymore", "gone"}
	maybeWords = []string{"maybe", "not sure", "unsure", "a bit", "a little", "kind of", "kinda", "sort of", "somewhat", "partly", "i don't know", "dunno"}
)

// ParseYesNo normalizes a yes/no/maybe reply. Maybe phrases are checked first since
// several of them contain a negation.
func ParseYesNo(input string) (YesNoAnswer, bool) {
	s := normalize(input)
	if s == "" {
		return AnswerNo, false
	}
	if matchesAny(s, maybeWords) {
		return AnswerMaybe, true
	}
	if matchesAny(s, noWords) {
		return AnswerNo, true
	}
	if matchesAny(s, yesWords) {
		return AnswerYes, true
	}
	return AnswerNo, false
}

// Affirmative reports whether input is yes or maybe. Gates treat maybe as yes so the
// protocol errs toward continuing the work.
func Affirmative(input string) bool {
	a, ok := ParseYesNo(input)
	return ok && a != AnswerNo
}

// ParseInt extracts the first integer in input ("7", "about 8", "9/10").
func ParseInt(input string) (int, bool) {
	start := -1
	for i, r := range input {
		if unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(input[start:i])
			return n, err == nil
		}
	}
	if start < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(input[start:])
	return n, err == nil
}

// normalize lowercases, trims and strips trailing punctuation.
func normalize(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// matchesAny reports whether s equals a phrase or starts with it as a whole word.
func matchesAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if s == p || strings.HasPrefix(s, p+" ") || strings.HasPrefix(s, p+",") {
			return true
		}
	}
	return false
}
