package assist

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/BTreeMap/ShiftGuide/internal/models"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Kind is how a category uses the completion service.
type Kind string

const (
	KindClassify        Kind = "classify"
	KindExtractDeadline Kind = "extract_deadline"
	KindRewrite         Kind = "rewrite"
)

var (
	// ErrUnknownCategory is returned for a condition the catalogue does not define.
	ErrUnknownCategory = errors.New("unknown assistance category")
	// ErrInvalidCatalog is returned when the catalogue cannot be loaded.
	ErrInvalidCatalog = errors.New("invalid assistance catalogue")
)

// Category is one entry of the assistance catalogue.
type Category struct {
	Name    models.AssistCondition `yaml:"name"`
	Kind    Kind                   `yaml:"kind"`
	Action  models.AssistAction    `yaml:"action"`
	Guard   string                 `yaml:"guard"`
	Prompt  string                 `yaml:"prompt"`
	Message string                 `yaml:"message"`

	program *vm.Program
}

// GuardEnv is what a guard expression can see.
type GuardEnv struct {
	Input string `expr:"input"`
	Text  string `expr:"text"`
	Words int    `expr:"words"`
	Step  string `expr:"step"`
	Phase string `expr:"phase"`
}

// NewGuardEnv builds the guard environment for an answer.
func NewGuardEnv(input string, phase models.PhaseName, step models.StepID) GuardEnv {
	trimmed := strings.TrimSpace(input)
	return GuardEnv{
		Input: trimmed,
		Text:  strings.ToLower(trimmed),
		Words: len(strings.Fields(trimmed)),
		Step:  string(step),
		Phase: string(phase),
	}
}

// Matches evaluates the guard. An empty guard always matches.
func (c *Category) Matches(env GuardEnv) (bool, error) {
	if c.program == nil {
		return true, nil
	}
	out, err := expr.Run(c.program, env)
	if err != nil {
		return false, fmt.Errorf("guard %s: %w", c.Name, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Catalog indexes categories by condition.
type Catalog struct {
	Version    int         `yaml:"version"`
	Categories []*Category `yaml:"categories"`

	byName map[models.AssistCondition]*Category
}

// LoadCatalog parses and compiles a YAML catalogue.
func LoadCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	c.byName = make(map[models.AssistCondition]*Category, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Name == "" || cat.Prompt == "" {
			return nil, fmt.Errorf("%w: category %q needs a name and a prompt", ErrInvalidCatalog, cat.Name)
		}
		if _, dup := c.byName[cat.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidCatalog, cat.Name)
		}
		switch cat.Kind {
		case KindClassify:
			if cat.Message == "" {
				return nil, fmt.Errorf("%w: classifier %q has no corrective message", ErrInvalidCatalog, cat.Name)
			}
		case KindExtractDeadline, KindRewrite:
		default:
			return nil, fmt.Errorf("%w: category %q has unknown kind %q", ErrInvalidCatalog, cat.Name, cat.Kind)
		}
		if guard := strings.TrimSpace(cat.Guard); guard != "" {
			program, err := expr.Compile(guard, expr.Env(GuardEnv{}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("%w: guard of %q: %v", ErrInvalidCatalog, cat.Name, err)
			}
			cat.program = program
		}
		c.byName[cat.Name] = cat
	}
	return &c, nil
}

// DefaultCatalog returns the embedded catalogue.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(defaultCatalog)
}

// Category looks up a condition.
func (c *Catalog) Category(name models.AssistCondition) (*Category, error) {
	cat, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
	return cat, nil
}
