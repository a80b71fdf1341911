package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/stateflow-labs/stateflow/observability"
)

// FireAndForget runs a handler detached from the machine's control flow: the
// machine advances immediately with the event unchanged while the handler
// finishes in the background under its own deadline, decoupled from the
// run's cancellation. Failures are observed, never returned.
type FireAndForget struct {
	baseState
	fn       Handler
	observer observability.Observer
}

// NewFireAndForget builds a detached state around a handler.
func NewFireAndForget(name, next string, fn Handler, observer observability.Observer, opts ...StateOption) (*FireAndForget, error) {
	if name == "" {
		return nil, fmt.Errorf("fire_and_forget: name is empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("fire_and_forget %s: handler is nil", name)
	}
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	f := &FireAndForget{
		baseState: baseState{name: name, next: next, timeout: DefaultStateTimeout},
		fn:        fn,
		observer:  observer,
	}
	for _, opt := range opts {
		opt(&f.baseState)
	}
	return f, nil
}

func (f *FireAndForget) Kind() Kind { return KindFireAndForget }

// Handle launches the handler in the background and returns at once. The
// detached context survives the run's cancellation but not the state's own
// timeout.
func (f *FireAndForget) Handle(ctx context.Context, event any, ec *Context) (any, string, error) {
	f.observer.OnEvent(ctx, observability.Event{
		Type:      EventDetachedStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "machine.FireAndForget",
		Data: map[string]any{
			"execution_id": ec.ExecutionID,
			"state_name":   f.name,
		},
	})

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	go func() {
		defer cancel()

		start := time.Now()
		_, err := f.fn(dctx, event, ec)
		if err != nil {
			f.observer.OnEvent(dctx, observability.Event{
				Type:      EventError,
				Level:     observability.LevelError,
				Timestamp: time.Now(),
				Source:    "machine.FireAndForget",
				Data: map[string]any{
					"execution_id": ec.ExecutionID,
					"state_name":   f.name,
					"kind":         "DetachedHandlerError",
					"message":      err.Error(),
				},
			})
			return
		}

		f.observer.OnEvent(dctx, observability.Event{
			Type:      EventDetachedComplete,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "machine.FireAndForget",
			Data: map[string]any{
				"execution_id":     ec.ExecutionID,
				"state_name":       f.name,
				"duration_seconds": time.Since(start).Seconds(),
			},
		})
	}()

	return event, f.next, nil
}
