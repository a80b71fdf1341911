package decl

import (
	"fmt"
	"regexp"
	"time"

	"github.com/stateflow-labs/stateflow/expr"
	"github.com/stateflow-labs/stateflow/lambda"
	"github.com/stateflow-labs/stateflow/machine"
	"github.com/stateflow-labs/stateflow/observability"
)

// tagPattern matches #tag references inside decision statements, including
// hyphenated tags.
var tagPattern = regexp.MustCompile(`#\w+(?:-\w+)*`)

// Builder turns a declaration file into runnable machines. Task handlers
// resolve eagerly through the lambda registry, choice programs compile (or
// load from cache) at build time, and parallel states recurse into sibling
// machine definitions.
type Builder struct {
	file     *File
	cache    *expr.Cache
	observer observability.Observer
	timeout  time.Duration

	building map[string]bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithCache sets the compiled-decision cache used by choice states.
func WithCache(c *expr.Cache) BuilderOption {
	return func(b *Builder) { b.cache = c }
}

// WithObserver sets the observer wired into every built machine.
func WithObserver(o observability.Observer) BuilderOption {
	return func(b *Builder) { b.observer = o }
}

// WithDefaultStateTimeout sets the timeout applied to states that declare
// none.
func WithDefaultStateTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewBuilder creates a Builder over a parsed declaration file.
func NewBuilder(file *File, opts ...BuilderOption) *Builder {
	b := &Builder{
		file:     file,
		timeout:  machine.DefaultStateTimeout,
		building: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build constructs the entry machine.
func (b *Builder) Build() (*machine.Machine, error) {
	return b.buildMachine(b.file.Entry)
}

func (b *Builder) buildMachine(key string) (*machine.Machine, error) {
	decl, ok := b.file.Machines[key]
	if !ok {
		return nil, fmt.Errorf("machine %q is not defined", key)
	}
	if b.building[key] {
		return nil, fmt.Errorf("machine %q references itself through a parallel state", key)
	}
	b.building[key] = true
	defer delete(b.building, key)

	pairs, err := decl.treePairs()
	if err != nil {
		return nil, err
	}

	states := make([]machine.State, 0, len(pairs))
	for _, pair := range pairs {
		st, ok := decl.States[pair.current]
		if !ok {
			return nil, fmt.Errorf("machine %q: state key %q is not defined", key, pair.current)
		}

		built, err := b.buildState(decl, st, pair)
		if err != nil {
			return nil, fmt.Errorf("machine %q: state %q: %w", key, st.Name, err)
		}
		states = append(states, built)
	}

	opts := []machine.Option{}
	if decl.Timeout > 0 {
		opts = append(opts, machine.WithTimeout(time.Duration(decl.Timeout)*time.Second))
	}
	if b.observer != nil {
		opts = append(opts, machine.WithObserver(b.observer))
	}

	return machine.New(decl.Name, states, opts...)
}

func (b *Builder) buildState(decl *MachineDecl, st *StateDecl, pair treePair) (machine.State, error) {
	switch st.Type {
	case "lambda":
		return b.buildTask(decl, st, pair)
	case "fire_and_forget":
		return b.buildFireAndForget(decl, st, pair)
	case "choice":
		return b.buildChoice(decl, st, pair)
	case "parallel":
		return b.buildParallel(decl, st, pair)
	default:
		return nil, fmt.Errorf("unknown state type %q", st.Type)
	}
}

// successorName resolves the tree's successor key to a state name. A choice
// state's tree value is a vars key, not a successor, so this is only used by
// the other kinds.
func successorName(decl *MachineDecl, pair treePair) (string, error) {
	if pair.next == "" {
		return "", nil
	}
	next, ok := decl.States[pair.next]
	if !ok {
		return "", fmt.Errorf("successor key %q is not defined", pair.next)
	}
	return next.Name, nil
}

func (b *Builder) stateTimeout(st *StateDecl) machine.StateOption {
	if st.Timeout > 0 {
		return machine.WithStateTimeout(time.Duration(st.Timeout) * time.Second)
	}
	return machine.WithStateTimeout(b.timeout)
}

func (b *Builder) buildTask(decl *MachineDecl, st *StateDecl, pair treePair) (machine.State, error) {
	next, err := successorName(decl, pair)
	if err != nil {
		return nil, err
	}
	h, err := lambda.Resolve(decl.LambdaDir, st.Name)
	if err != nil {
		return nil, err
	}
	return machine.NewTask(st.Name, next, h, b.stateTimeout(st))
}

func (b *Builder) buildFireAndForget(decl *MachineDecl, st *StateDecl, pair treePair) (machine.State, error) {
	next, err := successorName(decl, pair)
	if err != nil {
		return nil, err
	}
	h, err := lambda.Resolve(decl.LambdaDir, st.Name)
	if err != nil {
		return nil, err
	}
	return machine.NewFireAndForget(st.Name, next, h, b.observer, b.stateTimeout(st))
}

func (b *Builder) buildChoice(decl *MachineDecl, st *StateDecl, pair treePair) (machine.State, error) {
	statements, ok := decl.Vars[pair.next]
	if !ok {
		return nil, fmt.Errorf("decision statements %q are not defined under vars", pair.next)
	}

	refs := decl.stateRefs()
	targets, err := choiceTargets(decl, statements)
	if err != nil {
		return nil, err
	}

	opts := []machine.ChoiceOption{}
	if b.cache != nil {
		opts = append(opts, machine.WithChoiceCache(b.cache))
	}
	if st.Timeout > 0 {
		opts = append(opts, machine.WithChoiceTimeout(time.Duration(st.Timeout)*time.Second))
	}
	return machine.NewChoice(st.Name, statements, refs, targets, opts...)
}

// choiceTargets collects the state names a decision can route to via #tag
// references. Literal state names in the statements are not statically
// resolvable, so they pass unvalidated.
func choiceTargets(decl *MachineDecl, statements []string) ([]string, error) {
	seen := make(map[string]struct{})
	var targets []string
	for _, stmt := range statements {
		for _, tag := range tagPattern.FindAllString(maskQuoted(stmt), -1) {
			key := tag[1:]
			st, ok := decl.States[key]
			if !ok {
				return nil, fmt.Errorf("%w: %s", expr.ErrUnknownTag, key)
			}
			if _, dup := seen[st.Name]; dup {
				continue
			}
			seen[st.Name] = struct{}{}
			targets = append(targets, st.Name)
		}
	}
	return targets, nil
}

// maskQuoted blanks single-quoted string literals so tag extraction only
// sees statement structure. The expression lexer treats quoted text as
// opaque content, so a # inside a literal is not a state reference.
func maskQuoted(stmt string) string {
	out := []byte(stmt)
	quoted := false
	for i := 0; i < len(out); i++ {
		if out[i] == '\'' {
			quoted = !quoted
			continue
		}
		if quoted {
			out[i] = ' '
		}
	}
	return string(out)
}

func (b *Builder) buildParallel(decl *MachineDecl, st *StateDecl, pair treePair) (machine.State, error) {
	next, err := successorName(decl, pair)
	if err != nil {
		return nil, err
	}
	if len(st.Workflows) == 0 {
		return nil, fmt.Errorf("parallel state has no workflows")
	}

	subs := make([]*machine.Machine, 0, len(st.Workflows))
	for _, wkey := range st.Workflows {
		sub, err := b.buildMachine(wkey)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return machine.NewParallel(st.Name, next, subs, b.stateTimeout(st))
}
