package machine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stateflow-labs/stateflow/expr"
)

// DefaultChoiceTimeout bounds a single decision evaluation. Decisions are
// pure in-memory tree walks, so one second is generous.
const DefaultChoiceTimeout = time.Second

// Choice routes on a compiled decision function. At construction the
// statements are hashed and resolved through the disk cache: a hit loads the
// cached program, a miss compiles, saves, and reloads. The decision runs
// against the incoming event and its result names the successor state; the
// event itself passes through unchanged.
type Choice struct {
	baseState
	decide  expr.DecisionFunc
	targets []string
}

type choiceConfig struct {
	cache       *expr.Cache
	timeout     time.Duration
	compileOpts []expr.CompileOption
}

// ChoiceOption configures a choice state.
type ChoiceOption func(*choiceConfig)

// WithChoiceCache sets the compiled-program cache. Without one the choice
// compiles in memory on every construction.
func WithChoiceCache(c *expr.Cache) ChoiceOption {
	return func(cfg *choiceConfig) { cfg.cache = c }
}

// WithChoiceTimeout overrides the decision evaluation deadline.
func WithChoiceTimeout(d time.Duration) ChoiceOption {
	return func(cfg *choiceConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithCompileOptions forwards options to the statement compiler.
func WithCompileOptions(opts ...expr.CompileOption) ChoiceOption {
	return func(cfg *choiceConfig) { cfg.compileOpts = append(cfg.compileOpts, opts...) }
}

// NewChoice builds a choice state from decision statements. stateRefs maps
// #tag names to successor state names; targets lists every state name the
// decision can produce, so machine construction can validate them. Compile
// errors in the statements surface directly; cache failures wrap in
// ChoiceInitError.
func NewChoice(name string, statements []string, stateRefs map[string]string, targets []string, opts ...ChoiceOption) (*Choice, error) {
	if name == "" {
		return nil, fmt.Errorf("choice: name is empty")
	}

	cfg := choiceConfig{timeout: DefaultChoiceTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	program, err := resolveProgram(name, statements, stateRefs, &cfg)
	if err != nil {
		return nil, err
	}

	return &Choice{
		baseState: baseState{name: name, timeout: cfg.timeout},
		decide:    program.Decision(),
		targets:   append([]string(nil), targets...),
	}, nil
}

// resolveProgram goes through the cache when one is configured: load by
// hash, compile+save on miss, then load the saved artifact so the running
// program is always the cached representation.
func resolveProgram(name string, statements []string, stateRefs map[string]string, cfg *choiceConfig) (*expr.Program, error) {
	if cfg.cache == nil {
		return expr.Compile(name, statements, stateRefs, cfg.compileOpts...)
	}

	hash := expr.Hash(name, statements)
	program, err := cfg.cache.Load(name, hash)
	if err == nil {
		return program, nil
	}
	if !errors.Is(err, expr.ErrCacheMiss) {
		return nil, &ChoiceInitError{Choice: name, Err: err}
	}

	program, err = expr.Compile(name, statements, stateRefs, cfg.compileOpts...)
	if err != nil {
		return nil, err
	}
	if _, err := cfg.cache.Save(program, hash); err != nil {
		return nil, &ChoiceInitError{Choice: name, Err: err}
	}

	program, err = cfg.cache.Load(name, hash)
	if err != nil {
		return nil, &ChoiceInitError{Choice: name, Err: err}
	}
	return program, nil
}

func (c *Choice) Kind() Kind { return KindChoice }

// Targets returns the successor state names the decision can produce.
func (c *Choice) Targets() []string { return c.targets }

// Handle evaluates the decision against the event. An absent result means no
// statement matched: the machine terminates with the event as final output.
// Non-string results are rendered with fmt.Sprint so numeric successors
// written as literals still resolve by name.
func (c *Choice) Handle(ctx context.Context, event any, ec *Context) (any, string, error) {
	ec.Touch()

	v := c.decide(event)
	if expr.IsAbsent(v) {
		return event, "", nil
	}
	if s, ok := v.(string); ok {
		return event, s, nil
	}
	return event, fmt.Sprint(v), nil
}
