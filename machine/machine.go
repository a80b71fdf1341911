package machine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stateflow-labs/stateflow/observability"
)

// Machine is a named, ordered set of states with one head state. The first
// element of the state list is the head; every successor referenced by any
// state must be registered, except the empty terminal. A Machine is built
// once and reused for many runs.
type Machine struct {
	name     string
	id       string
	head     State
	states   map[string]State
	declared time.Duration
	timeout  time.Duration
	observer observability.Observer
}

// Option configures a Machine at construction.
type Option func(*Machine)

// WithTimeout declares the machine's total timeout. When the declared value
// is smaller than the sum of the state timeouts plus one second, the
// effective timeout is raised to that sum and a warning event is emitted.
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) { m.declared = d }
}

// WithObserver overrides the default slog observer.
func WithObserver(o observability.Observer) Option {
	return func(m *Machine) { m.observer = o }
}

// choiceTargets is implemented by choice states so machine construction can
// validate their dynamic successors against the registry.
type choiceTargets interface {
	Targets() []string
}

// New builds a Machine from an ordered state list. The machine id derives
// deterministically from the name (UUIDv5 in the URL namespace), so the
// same machine name always yields the same id.
func New(name string, states []State, opts ...Option) (*Machine, error) {
	if name == "" {
		return nil, fmt.Errorf("machine name is empty")
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("machine %s: state list is empty", name)
	}

	m := &Machine{
		name:     name,
		id:       uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String(),
		head:     states[0],
		states:   make(map[string]State, len(states)),
		observer: observability.NewSlogObserver(slog.Default()),
	}

	var total time.Duration
	for _, s := range states {
		if s.Name() == "" {
			return nil, fmt.Errorf("machine %s: state with empty name", name)
		}
		if _, dup := m.states[s.Name()]; dup {
			return nil, fmt.Errorf("machine %s: duplicate state name %q", name, s.Name())
		}
		m.states[s.Name()] = s
		total += s.Timeout()
	}

	for _, s := range states {
		if next := s.Next(); next != "" {
			if _, ok := m.states[next]; !ok {
				return nil, &StateNotFoundError{Machine: name, State: next}
			}
		}
		if ct, ok := s.(choiceTargets); ok {
			for _, target := range ct.Targets() {
				if _, registered := m.states[target]; !registered {
					return nil, &StateNotFoundError{Machine: name, State: target}
				}
			}
		}
	}

	for _, opt := range opts {
		opt(m)
	}

	floor := total + time.Second
	m.timeout = m.declared
	if m.timeout < floor {
		if m.declared > 0 {
			m.observer.OnEvent(context.Background(), observability.Event{
				Type:      EventTimeoutAdjusted,
				Level:     observability.LevelWarning,
				Timestamp: time.Now(),
				Source:    "machine.New",
				Data: map[string]any{
					"machine":          m.name,
					"declared_seconds": m.declared.Seconds(),
					"adjusted_seconds": floor.Seconds(),
				},
			})
		}
		m.timeout = floor
	}

	return m, nil
}

// Name returns the machine name.
func (m *Machine) Name() string { return m.name }

// ID returns the deterministic machine id.
func (m *Machine) ID() string { return m.id }

// Timeout returns the effective total timeout for one run.
func (m *Machine) Timeout() time.Duration { return m.timeout }

// Run executes the machine over an input event and returns the final
// state's output. Each run gets a fresh execution context; states run
// strictly in sequence, each under its own deadline, and the total deadline
// is checked at every state boundary.
func (m *Machine) Run(ctx context.Context, event any) (any, error) {
	return m.run(ctx, event, nil)
}

func (m *Machine) run(ctx context.Context, event any, parent *Context) (any, error) {
	ec := newContext(m.name, m.id, m.head.Name(), parent)

	current := m.head
	currentName := m.head.Name()

	for {
		if time.Since(ec.StartTime) > m.timeout {
			err := &ExecutionTimeoutError{Machine: m.name, Timeout: m.timeout}
			m.emitError(ctx, ec, currentName, "ExecutionTimeout", err)
			return nil, err
		}

		if current == nil {
			err := &StateNotFoundError{Machine: m.name, State: currentName}
			m.emitError(ctx, ec, currentName, "StateNotFound", err)
			return nil, err
		}

		ec.enter(currentName)
		m.observer.OnEvent(ctx, observability.Event{
			Type:      EventStateEnter,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "machine.Run",
			Data: map[string]any{
				"execution_id": ec.ExecutionID,
				"state_name":   currentName,
				"input":        event,
			},
		})

		stepStart := time.Now()
		out, next, err := m.runState(ctx, current, event, ec)
		if err != nil {
			kind := "StateExecutionError"
			switch err.(type) {
			case *StateTimeoutError:
				kind = "StateTimeout"
			case *ExecutionTimeoutError:
				kind = "ExecutionTimeout"
			default:
				err = &StateExecutionError{Machine: m.name, State: currentName, Err: err}
			}
			m.emitError(ctx, ec, currentName, kind, err)
			return nil, err
		}

		m.observer.OnEvent(ctx, observability.Event{
			Type:      EventStateExit,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "machine.Run",
			Data: map[string]any{
				"execution_id":     ec.ExecutionID,
				"state_name":       currentName,
				"output":           out,
				"duration_seconds": time.Since(stepStart).Seconds(),
			},
		})

		event = out

		if next == "" {
			m.observer.OnEvent(ctx, observability.Event{
				Type:      EventRunComplete,
				Level:     observability.LevelInfo,
				Timestamp: time.Now(),
				Source:    "machine.Run",
				Data: map[string]any{
					"execution_id":   ec.ExecutionID,
					"final_output":   event,
					"total_duration": time.Since(ec.StartTime).Seconds(),
				},
			})
			return event, nil
		}

		currentName = next
		current = m.states[next]
	}
}

// runState dispatches the state's handler on an ephemeral goroutine and
// waits up to the per-state deadline. On elapse the worker is cancelled
// best-effort and the state fails with StateTimeout; side effects already
// performed are not undone. Parallel states enforce their own aggregate
// deadline and must surface ExecutionTimeout rather than StateTimeout, so
// they run without the driver's timer.
func (m *Machine) runState(ctx context.Context, st State, event any, ec *Context) (any, string, error) {
	if st.Kind() == KindParallel {
		return st.Handle(ctx, event, ec)
	}

	sctx, cancel := context.WithTimeout(ctx, st.Timeout())
	defer cancel()

	type outcome struct {
		out  any
		next string
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		out, next, err := st.Handle(sctx, event, ec)
		done <- outcome{out: out, next: next, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.next, o.err
	case <-sctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, "", fmt.Errorf("machine %s: state %q cancelled: %w", m.name, st.Name(), err)
		}
		return nil, "", &StateTimeoutError{Machine: m.name, State: st.Name(), Timeout: st.Timeout()}
	}
}

func (m *Machine) emitError(ctx context.Context, ec *Context, state, kind string, err error) {
	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventError,
		Level:     observability.LevelError,
		Timestamp: time.Now(),
		Source:    "machine.Run",
		Data: map[string]any{
			"execution_id": ec.ExecutionID,
			"state_name":   state,
			"kind":         kind,
			"message":      err.Error(),
		},
	})
}
