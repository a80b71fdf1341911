package machine

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the run-time taxonomy. Typed wrappers below unwrap to
// these so callers can classify with errors.Is.
var (
	ErrStateNotFound        = errors.New("state not found")
	ErrStateTimeout         = errors.New("state timed out")
	ErrExecutionTimeout     = errors.New("execution timed out")
	ErrChoiceInitialization = errors.New("choice initialization failed")
)

// StateNotFoundError reports a successor name that does not resolve in the
// machine's state registry.
type StateNotFoundError struct {
	Machine string
	State   string
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("machine %s: state %q not found", e.Machine, e.State)
}

func (e *StateNotFoundError) Unwrap() error { return ErrStateNotFound }

// StateTimeoutError reports a state whose handler exceeded its per-state
// deadline.
type StateTimeoutError struct {
	Machine string
	State   string
	Timeout time.Duration
}

func (e *StateTimeoutError) Error() string {
	return fmt.Sprintf("machine %s: state %q exceeded its %s deadline", e.Machine, e.State, e.Timeout)
}

func (e *StateTimeoutError) Unwrap() error { return ErrStateTimeout }

// ExecutionTimeoutError reports an elapsed machine or parallel-aggregate
// deadline.
type ExecutionTimeoutError struct {
	Machine string
	Timeout time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("machine %s: execution exceeded its %s deadline", e.Machine, e.Timeout)
}

func (e *ExecutionTimeoutError) Unwrap() error { return ErrExecutionTimeout }

// StateExecutionError wraps a handler failure, preserving the originating
// state name and the cause.
type StateExecutionError struct {
	Machine string
	State   string
	Err     error
}

func (e *StateExecutionError) Error() string {
	return fmt.Sprintf("machine %s: state %q failed: %v", e.Machine, e.State, e.Err)
}

func (e *StateExecutionError) Unwrap() error { return e.Err }

// ChoiceInitError reports a decision function that could not be compiled,
// saved, or loaded at choice construction.
type ChoiceInitError struct {
	Choice string
	Err    error
}

func (e *ChoiceInitError) Error() string {
	return fmt.Sprintf("choice %s: initialization failed: %v", e.Choice, e.Err)
}

func (e *ChoiceInitError) Unwrap() []error {
	return []error{ErrChoiceInitialization, e.Err}
}
