// Package machine implements the state-machine driver and its state kinds:
// task states wrapping user handlers, choice states routing on compiled
// decision functions, parallel states fanning out over sub-machines, and
// fire-and-forget states running detached handlers.
//
// A Machine is built once from an ordered state list and reused for many
// runs; each run owns a fresh execution Context. States are immutable after
// construction — Handle returns the successor per call instead of mutating
// the state, so a single Machine is safe for concurrent runs.
package machine

import (
	"context"
	"time"
)

// Kind tags a state with its behavior class.
type Kind string

const (
	KindTask          Kind = "task"
	KindChoice        Kind = "choice"
	KindParallel      Kind = "parallel"
	KindFireAndForget Kind = "fire_and_forget"
)

// DefaultStateTimeout applies when a state declares no timeout.
const DefaultStateTimeout = 60 * time.Second

// Handler is the signature of a user task handler: it receives the current
// event and the run's execution context, and produces the event handed to
// the next state. Handlers may read and write context values; they must
// respect ctx cancellation for the per-state deadline to be effective.
type Handler func(ctx context.Context, event any, ec *Context) (any, error)

// State is one unit of a machine: a name unique within its machine, a kind,
// a per-state timeout, a static successor, and the Handle behavior.
//
// Handle returns the produced event and the name of the successor state; an
// empty successor terminates the machine. Only choice states compute the
// successor per call — every other kind returns its configured Next.
type State interface {
	Name() string
	Kind() Kind
	Timeout() time.Duration
	Next() string
	Handle(ctx context.Context, event any, ec *Context) (out any, next string, err error)
}

// baseState carries the fields shared by all state kinds.
type baseState struct {
	name    string
	next    string
	timeout time.Duration
}

func (s *baseState) Name() string           { return s.name }
func (s *baseState) Next() string           { return s.next }
func (s *baseState) Timeout() time.Duration { return s.timeout }

// StateOption adjusts the shared state fields at construction.
type StateOption func(*baseState)

// WithStateTimeout overrides the default per-state timeout. Non-positive
// values are ignored.
func WithStateTimeout(d time.Duration) StateOption {
	return func(s *baseState) {
		if d > 0 {
			s.timeout = d
		}
	}
}
