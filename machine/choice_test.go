package machine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stateflow-labs/stateflow/expr"
	"github.com/stateflow-labs/stateflow/machine"
)

// routingMachine builds choice -> x | y where each target records its visit
// in the event.
func routingMachine(t *testing.T, opts ...machine.ChoiceOption) *machine.Machine {
	t.Helper()

	route, err := machine.NewChoice("route", []string{
		"when $.value gt 30 then 'x'",
		"'y'",
	}, nil, []string{"x", "y"}, opts...)
	if err != nil {
		t.Fatalf("NewChoice() error = %v", err)
	}

	stamp := func(name string) machine.Handler {
		return func(ctx context.Context, event any, ec *machine.Context) (any, error) {
			doc := event.(map[string]any)
			out := map[string]any{"value": doc["value"], "handled_by": name}
			return out, nil
		}
	}

	m, err := machine.New("router", []machine.State{
		route,
		mustTask(t, "x", "", stamp("x")),
		mustTask(t, "y", "", stamp("y")),
	}, machine.WithObserver(&captureObserver{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func TestChoice_Routing(t *testing.T) {
	m := routingMachine(t)

	tests := []struct {
		name  string
		value float64
		want  string
	}{
		{name: "above threshold routes to x", value: 50, want: "x"},
		{name: "below threshold routes to y", value: 5, want: "y"},
		{name: "just above threshold routes to x", value: 31, want: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := m.Run(context.Background(), map[string]any{"value": tt.value})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := result.(map[string]any)["handled_by"]; got != tt.want {
				t.Errorf("Run(value=%v) handled by %v, want %s", tt.value, got, tt.want)
			}
		})
	}
}

func TestChoice_BandRoutingWithElse(t *testing.T) {
	refs := map[string]string{"X": "x_state", "Y": "y_state"}

	route, err := machine.NewChoice("band", []string{
		"when $.value gt 10 and $.value lt 53 then #X else #Y",
	}, refs, []string{"x_state", "y_state"},
		machine.WithCompileOptions(expr.AllowNoDefault()))
	if err != nil {
		t.Fatalf("NewChoice() error = %v", err)
	}

	stamp := func(name string) machine.Handler {
		return func(ctx context.Context, event any, ec *machine.Context) (any, error) {
			return name, nil
		}
	}

	m, err := machine.New("bander", []machine.State{
		route,
		mustTask(t, "x_state", "", stamp("x_state")),
		mustTask(t, "y_state", "", stamp("y_state")),
	}, machine.WithObserver(&captureObserver{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		value float64
		want  string
	}{
		{value: 50, want: "x_state"},
		{value: 5, want: "y_state"},
		{value: 53, want: "y_state"}, // strict lt
	}

	for _, tt := range tests {
		result, err := m.Run(context.Background(), map[string]any{"value": tt.value})
		if err != nil {
			t.Fatalf("Run(value=%v) error = %v", tt.value, err)
		}
		if result != tt.want {
			t.Errorf("Run(value=%v) = %v, want %s", tt.value, result, tt.want)
		}
	}
}

func TestChoice_EventPassesThroughUnchanged(t *testing.T) {
	route, err := machine.NewChoice("route", []string{"'sink'"}, nil, []string{"sink"})
	if err != nil {
		t.Fatalf("NewChoice() error = %v", err)
	}

	var received any
	sink := mustTask(t, "sink", "", func(ctx context.Context, event any, ec *machine.Context) (any, error) {
		received = event
		return event, nil
	})

	m, err := machine.New("passthrough", []machine.State{route, sink},
		machine.WithObserver(&captureObserver{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	input := map[string]any{"value": 1.0, "extra": "untouched"}
	if _, err := m.Run(context.Background(), input); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	doc, ok := received.(map[string]any)
	if !ok || doc["extra"] != "untouched" || len(doc) != 2 {
		t.Errorf("choice altered the event: %v", received)
	}
}

func TestChoice_NoMatchTerminates(t *testing.T) {
	route, err := machine.NewChoice("route", []string{
		"when $.value gt 100 then 'sink'",
	}, nil, []string{"sink"},
		machine.WithCompileOptions(expr.AllowNoDefault()))
	if err != nil {
		t.Fatalf("NewChoice() error = %v", err)
	}

	sink := mustTask(t, "sink", "", func(ctx context.Context, event any, ec *machine.Context) (any, error) {
		t.Error("sink ran despite no matching statement")
		return event, nil
	})

	obs := &captureObserver{}
	m, err := machine.New("unmatched", []machine.State{route, sink}, machine.WithObserver(obs))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	input := map[string]any{"value": 1.0}
	result, err := m.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if doc := result.(map[string]any); doc["value"] != 1.0 {
		t.Errorf("Run() = %v, want the input event back", result)
	}
	if completes := obs.ofType(machine.EventRunComplete); len(completes) != 1 {
		t.Errorf("got %d run-complete events, want 1", len(completes))
	}
}

func TestChoice_TagTargetsValidated(t *testing.T) {
	refs := map[string]string{"big": "x", "small": "y"}

	route, err := machine.NewChoice("route", []string{
		"when $.value gt 30 then #big",
		"#small",
	}, refs, []string{"x", "y"})
	if err != nil {
		t.Fatalf("NewChoice() error = %v", err)
	}
	if got := route.Targets(); len(got) != 2 {
		t.Fatalf("Targets() = %v, want 2 entries", got)
	}

	// Machine registry missing a target fails construction.
	only := mustTask(t, "x", "", func(ctx context.Context, event any, ec *machine.Context) (any, error) {
		return event, nil
	})
	_, err = machine.New("partial", []machine.State{route, only},
		machine.WithObserver(&captureObserver{}))
	if !errors.Is(err, machine.ErrStateNotFound) {
		t.Errorf("New() error = %v, want ErrStateNotFound", err)
	}
}

func TestChoice_CompileErrorSurfaces(t *testing.T) {
	_, err := machine.NewChoice("route", []string{
		"when $.value gt 30 then #missing",
		"'y'",
	}, nil, nil)
	if !errors.Is(err, expr.ErrUnknownTag) {
		t.Errorf("NewChoice() error = %v, want ErrUnknownTag", err)
	}
}

func TestChoice_CachedConstruction(t *testing.T) {
	cache := expr.NewCache(t.TempDir())

	// First construction compiles and saves; second loads the artifact.
	for i := 0; i < 2; i++ {
		m := routingMachine(t, machine.WithChoiceCache(cache))
		result, err := m.Run(context.Background(), map[string]any{"value": 50.0})
		if err != nil {
			t.Fatalf("Run() round %d error = %v", i, err)
		}
		if got := result.(map[string]any)["handled_by"]; got != "x" {
			t.Errorf("Run() round %d handled by %v, want x", i, got)
		}
	}
}

func TestChoice_CacheLoadFailureWrapsInitError(t *testing.T) {
	// A cache rooted at an unwritable path fails the save step.
	cache := expr.NewCache("/dev/null/not-a-dir")

	_, err := machine.NewChoice("route", []string{"'y'"}, nil, nil,
		machine.WithChoiceCache(cache))
	if !errors.Is(err, machine.ErrChoiceInitialization) {
		t.Fatalf("NewChoice() error = %v, want ErrChoiceInitialization", err)
	}

	var initErr *machine.ChoiceInitError
	if !errors.As(err, &initErr) || initErr.Choice != "route" {
		t.Errorf("NewChoice() error = %v, want ChoiceInitError for route", err)
	}
}

func TestChoice_NonStringDecisionRendered(t *testing.T) {
	route, err := machine.NewChoice("route", []string{"42"}, nil, nil)
	if err != nil {
		t.Fatalf("NewChoice() error = %v", err)
	}

	sink := mustTask(t, "42", "", func(ctx context.Context, event any, ec *machine.Context) (any, error) {
		return "numeric successor", nil
	})

	m, err := machine.New("numeric", []machine.State{route, sink},
		machine.WithObserver(&captureObserver{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	result, err := m.Run(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result != "numeric successor" {
		t.Errorf("Run() = %v, want numeric successor", result)
	}
}
