package expr_test

import (
	"testing"

	"github.com/stateflow-labs/stateflow/expr"
)

func mustCompile(t *testing.T, choiceName string, statements []string, refs map[string]string) *expr.Program {
	t.Helper()
	program, err := expr.Compile(choiceName, statements, refs)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return program
}

func TestEvaluate_Routing(t *testing.T) {
	program := mustCompile(t, "route", []string{
		"when $.value gt 30 then 'x'",
		"'y'",
	}, nil)

	tests := []struct {
		name string
		doc  any
		want any
	}{
		{name: "above threshold", doc: map[string]any{"value": 50.0}, want: "x"},
		{name: "below threshold", doc: map[string]any{"value": 5.0}, want: "y"},
		{name: "missing path falls to default", doc: map[string]any{}, want: "y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := program.Evaluate(tt.doc); got != tt.want {
				t.Errorf("Evaluate(%v) = %v, want %v", tt.doc, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Operators(t *testing.T) {
	tests := []struct {
		name      string
		statement string
		doc       map[string]any
		want      any
	}{
		{
			name:      "eq string",
			statement: "when $.s eq 'hi' then 'm'",
			doc:       map[string]any{"s": "hi"},
			want:      "m",
		},
		{
			name:      "neq",
			statement: "when $.s neq 'hi' then 'm'",
			doc:       map[string]any{"s": "bye"},
			want:      "m",
		},
		{
			name:      "numeric cross-type eq",
			statement: "when $.n eq 3 then 'm'",
			doc:       map[string]any{"n": 3},
			want:      "m",
		},
		{
			name:      "gte boundary",
			statement: "when $.n gte 10 then 'm'",
			doc:       map[string]any{"n": 10.0},
			want:      "m",
		},
		{
			name:      "lte boundary",
			statement: "when $.n lte 10 then 'm'",
			doc:       map[string]any{"n": 10.0},
			want:      "m",
		},
		{
			name:      "lt",
			statement: "when $.n lt 10 then 'm'",
			doc:       map[string]any{"n": 9.0},
			want:      "m",
		},
		{
			name:      "string ordering",
			statement: "when $.s gt 'alpha' then 'm'",
			doc:       map[string]any{"s": "beta"},
			want:      "m",
		},
		{
			name:      "contains substring",
			statement: "when $.s contains 'lph' then 'm'",
			doc:       map[string]any{"s": "alpha"},
			want:      "m",
		},
		{
			name:      "contains list element",
			statement: "when $.tags contains 'red' then 'm'",
			doc:       map[string]any{"tags": []any{"blue", "red"}},
			want:      "m",
		},
		{
			name:      "contains map key",
			statement: "when $.attrs contains 'color' then 'm'",
			doc:       map[string]any{"attrs": map[string]any{"color": "red"}},
			want:      "m",
		},
		{
			name:      "literal list contains document value",
			statement: "when [1, 2, 3] contains $.n then 'm'",
			doc:       map[string]any{"n": 2.0},
			want:      "m",
		},
		{
			name:      "starts_with",
			statement: "when $.s starts_with 'al' then 'm'",
			doc:       map[string]any{"s": "alpha"},
			want:      "m",
		},
		{
			name:      "ends_with",
			statement: "when $.s ends_with 'ha' then 'm'",
			doc:       map[string]any{"s": "alpha"},
			want:      "m",
		},
		{
			name:      "null literal eq explicit null",
			statement: "when $.v eq null then 'm'",
			doc:       map[string]any{"v": nil},
			want:      "m",
		},
		{
			name:      "boolean literal",
			statement: "when $.flag eq true then 'm'",
			doc:       map[string]any{"flag": true},
			want:      "m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program := mustCompile(t, "ops", []string{tt.statement, "'default'"}, nil)
			if got := program.Evaluate(tt.doc); got != tt.want {
				t.Errorf("Evaluate(%v) = %v, want %v", tt.doc, got, tt.want)
			}
		})
	}
}

func TestEvaluate_Precedence(t *testing.T) {
	// and binds tighter than or: true or (false and false) is true.
	program := mustCompile(t, "prec", []string{
		"when $.a eq 1 or $.a eq 2 and $.b eq 3 then 'm'",
		"'default'",
	}, nil)

	doc := map[string]any{"a": 1.0, "b": 0.0}
	if got := program.Evaluate(doc); got != "m" {
		t.Errorf("Evaluate(%v) = %v, want m", doc, got)
	}

	// Grouping overrides: (true or false) and false is false.
	grouped := mustCompile(t, "prec", []string{
		"when ($.a eq 1 or $.a eq 2) and $.b eq 3 then 'm'",
		"'default'",
	}, nil)
	if got := grouped.Evaluate(doc); got != "default" {
		t.Errorf("Evaluate(%v) = %v, want default", doc, got)
	}
}

func TestEvaluate_Not(t *testing.T) {
	program := mustCompile(t, "neg", []string{
		"when not $.flag eq true then 'off'",
		"'on'",
	}, nil)

	if got := program.Evaluate(map[string]any{"flag": false}); got != "off" {
		t.Errorf("Evaluate(flag=false) = %v, want off", got)
	}
	if got := program.Evaluate(map[string]any{"flag": true}); got != "on" {
		t.Errorf("Evaluate(flag=true) = %v, want on", got)
	}
}

func TestEvaluate_Exist(t *testing.T) {
	program := mustCompile(t, "presence", []string{
		"when exist $.user.email then 'notify'",
		"'skip'",
	}, nil)

	tests := []struct {
		name string
		doc  any
		want any
	}{
		{
			name: "present",
			doc:  map[string]any{"user": map[string]any{"email": "a@b"}},
			want: "notify",
		},
		{
			name: "explicit null still exists",
			doc:  map[string]any{"user": map[string]any{"email": nil}},
			want: "notify",
		},
		{
			name: "missing",
			doc:  map[string]any{"user": map[string]any{}},
			want: "skip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := program.Evaluate(tt.doc); got != tt.want {
				t.Errorf("Evaluate(%v) = %v, want %v", tt.doc, got, tt.want)
			}
		})
	}
}

func TestEvaluate_AbsentSemantics(t *testing.T) {
	t.Run("absent equals only itself", func(t *testing.T) {
		program := mustCompile(t, "absent", []string{
			"when $.missing eq $.also.missing then 'both-absent'",
			"'default'",
		}, nil)
		if got := program.Evaluate(map[string]any{}); got != "both-absent" {
			t.Errorf("Evaluate() = %v, want both-absent", got)
		}
	})

	t.Run("absent never equals a present value", func(t *testing.T) {
		program := mustCompile(t, "absent", []string{
			"when $.missing eq 1 then 'm'",
			"'default'",
		}, nil)
		if got := program.Evaluate(map[string]any{"other": 1.0}); got != "default" {
			t.Errorf("Evaluate() = %v, want default", got)
		}
	})

	t.Run("ordering against absent skips the statement", func(t *testing.T) {
		program := mustCompile(t, "absent", []string{
			"when $.missing gt 5 then 'm'",
			"'default'",
		}, nil)
		if got := program.Evaluate(map[string]any{}); got != "default" {
			t.Errorf("Evaluate() = %v, want default", got)
		}
	})
}

func TestEvaluate_StatementErrorFallsThrough(t *testing.T) {
	// A type mismatch at evaluation time skips the statement so a later
	// default still applies.
	program := mustCompile(t, "skip", []string{
		"when $.v gt 5 then 'big'",
		"'default'",
	}, nil)

	if got := program.Evaluate(map[string]any{"v": "not-a-number"}); got != "default" {
		t.Errorf("Evaluate() = %v, want default", got)
	}
}

func TestEvaluate_NestedWhenFallthrough(t *testing.T) {
	// A matched outer when whose inner when produces nothing falls through
	// to the next top-level statement.
	program := mustCompile(t, "nested", []string{
		"when $.v gt 10 then when $.v gt 30 then 'big'",
		"'small'",
	}, nil)

	tests := []struct {
		v    float64
		want any
	}{
		{v: 5, want: "small"},
		{v: 15, want: "small"},
		{v: 35, want: "big"},
	}

	for _, tt := range tests {
		doc := map[string]any{"v": tt.v}
		if got := program.Evaluate(doc); got != tt.want {
			t.Errorf("Evaluate(v=%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestEvaluate_DeepNestingWithTags(t *testing.T) {
	refs := map[string]string{
		"match":    "match",
		"no-match": "no-match",
		"default":  "default",
	}
	program := mustCompile(t, "deep", []string{
		"when $.v gt 10 then when $.v gt 20 then when $.v gt 30 then #match else #no-match",
		"#default",
	}, refs)

	tests := []struct {
		v    float64
		want any
	}{
		{v: 9, want: "default"},
		{v: 15, want: "default"},
		{v: 25, want: "no-match"},
		{v: 35, want: "match"},
	}

	for _, tt := range tests {
		doc := map[string]any{"v": tt.v}
		if got := program.Evaluate(doc); got != tt.want {
			t.Errorf("Evaluate(v=%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestEvaluate_NestedElseChain(t *testing.T) {
	program := mustCompile(t, "chain", []string{
		"when $.v gt 10 then when $.v gt 30 then 'big' else 'mid' else 'small'",
	}, nil)

	tests := []struct {
		v    float64
		want any
	}{
		{v: 5, want: "small"},
		{v: 20, want: "mid"},
		{v: 40, want: "big"},
	}

	for _, tt := range tests {
		doc := map[string]any{"v": tt.v}
		if got := program.Evaluate(doc); got != tt.want {
			t.Errorf("Evaluate(v=%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestEvaluate_MultiMatchPath(t *testing.T) {
	// A wildcard path with several matches yields the ordered match list.
	program := mustCompile(t, "multi", []string{
		"when $.items[*].id contains 7 then 'found'",
		"'default'",
	}, nil)

	doc := map[string]any{
		"items": []any{
			map[string]any{"id": 3.0},
			map[string]any{"id": 7.0},
		},
	}
	if got := program.Evaluate(doc); got != "found" {
		t.Errorf("Evaluate() = %v, want found", got)
	}
}

func TestEvaluate_Purity(t *testing.T) {
	program := mustCompile(t, "pure", []string{
		"when $.value gt 30 then 'x'",
		"'y'",
	}, nil)

	doc := map[string]any{"value": 50.0}
	first := program.Evaluate(doc)
	second := program.Evaluate(doc)
	if first != second {
		t.Errorf("Evaluate() not deterministic: %v then %v", first, second)
	}
	if doc["value"] != 50.0 || len(doc) != 1 {
		t.Errorf("Evaluate() mutated the document: %v", doc)
	}
}
