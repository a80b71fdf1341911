package machine

import (
	"context"
	"fmt"
)

// Task is the workhorse state kind: it runs a user handler over the current
// event and advances to its configured successor.
type Task struct {
	baseState
	fn Handler
}

// NewTask builds a task state. next may be empty for a terminal state.
func NewTask(name, next string, fn Handler, opts ...StateOption) (*Task, error) {
	if name == "" {
		return nil, fmt.Errorf("task: name is empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("task %s: handler is nil", name)
	}
	t := &Task{
		baseState: baseState{name: name, next: next, timeout: DefaultStateTimeout},
		fn:        fn,
	}
	for _, opt := range opts {
		opt(&t.baseState)
	}
	return t, nil
}

func (t *Task) Kind() Kind { return KindTask }

func (t *Task) Handle(ctx context.Context, event any, ec *Context) (any, string, error) {
	out, err := t.fn(ctx, event, ec)
	if err != nil {
		return nil, "", err
	}
	return out, t.next, nil
}
