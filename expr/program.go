package expr

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// Program is a compiled decision function: an ordered list of statement
// trees plus the JSONPath-to-parameter mapping used by the evaluation shim.
// Programs are immutable after compilation and safe for concurrent use.
type Program struct {
	ChoiceName string            `json:"choice_name"`
	Statements []*Node           `json:"statements"`
	Params     map[string]string `json:"jsonpath_params"` // param name -> JSONPath

	paths map[string]jp.Expr
}

// DecisionFunc maps an input document to a successor state name or literal.
// It returns Absent when no statement produces a value.
type DecisionFunc func(doc any) any

type compileOptions struct {
	allowNoDefault bool
}

// CompileOption adjusts compilation behavior.
type CompileOption func(*compileOptions)

// AllowNoDefault permits a program whose last statement is conditional.
// Without it, a missing unconditional default is a compile-time error,
// since an unmatched program silently terminates the machine.
func AllowNoDefault() CompileOption {
	return func(o *compileOptions) { o.allowNoDefault = true }
}

// Hash computes the content hash for a choice: SHA-256 over the canonical
// JSON serialization of the choice name and its normalized statements.
// Statements that differ only in collapsible whitespace hash identically.
func Hash(choiceName string, statements []string) string {
	payload, err := json.Marshal(struct {
		ChoiceName string   `json:"choice_name"`
		Statements []string `json:"statements"`
	}{choiceName, normalizeStatements(statements)})
	if err != nil {
		// Marshaling strings cannot fail; keep the signature simple.
		panic(err)
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Compile parses the statements of a choice into a Program. Tags (#name)
// resolve through stateRefs to successor state names; an unknown tag,
// operator, or malformed statement fails compilation before anything is
// cached.
func Compile(choiceName string, statements []string, stateRefs map[string]string, opts ...CompileOption) (*Program, error) {
	var options compileOptions
	for _, opt := range opts {
		opt(&options)
	}

	normalized := normalizeStatements(statements)
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: choice %q has no statements", ErrMalformedStatement, choiceName)
	}

	params := make(map[string]string)
	nodes := make([]*Node, 0, len(normalized))

	for _, stmt := range normalized {
		node, err := parseStatement(stmt, stateRefs, params)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	if !options.allowNoDefault && nodes[len(nodes)-1].Kind == kindWhen {
		return nil, fmt.Errorf(
			"%w: choice %q has no unconditional default statement",
			ErrMalformedStatement, choiceName,
		)
	}

	program := &Program{
		ChoiceName: choiceName,
		Statements: nodes,
		Params:     params,
	}
	if err := program.bind(); err != nil {
		return nil, err
	}
	return program, nil
}

// bind compiles the program's JSONPath expressions once. Called after
// Compile and after deserializing a cached artifact.
func (p *Program) bind() error {
	p.paths = make(map[string]jp.Expr, len(p.Params))
	for param, path := range p.Params {
		x, err := jp.ParseString(path)
		if err != nil {
			return fmt.Errorf("%w: bad JSONPath %q: %v", ErrMalformedStatement, path, err)
		}
		p.paths[param] = x
	}
	return nil
}

// Decision returns the pure decision function for this program. Each call
// applies every JSONPath once against the document, then walks the
// statement trees in order.
func (p *Program) Decision() DecisionFunc {
	return p.Evaluate
}

// Evaluate runs the program against a document. Statements evaluate top to
// bottom; the first statement producing a value short-circuits. A statement
// whose evaluation fails at run time is skipped so a later default can still
// apply. Returns Absent when nothing matches.
func (p *Program) Evaluate(doc any) any {
	env := make(map[string]any, len(p.paths))
	for param, x := range p.paths {
		env[param] = queryDocument(x, doc)
	}

	for _, stmt := range p.Statements {
		v, err := evalNode(stmt, env)
		if err != nil {
			continue
		}
		if !IsAbsent(v) {
			return v
		}
	}
	return Absent
}

// queryDocument resolves a compiled JSONPath against the document: one match
// returns its value, many matches return the ordered list, zero matches
// return the absent sentinel.
func queryDocument(x jp.Expr, doc any) any {
	results := x.Get(doc)
	switch len(results) {
	case 0:
		return Absent
	case 1:
		return results[0]
	default:
		return results
	}
}
