package machine

import (
	"context"
	"fmt"
	"time"

	"github.com/stateflow-labs/stateflow/observability"
)

// Parallel fans the current event out to a set of sub-machines and collects
// their final outputs into one map keyed by sub-machine name. A failing
// sub-machine does not abort its siblings: its slot carries the error
// message instead of an output. The aggregate deadline is the declared
// timeout or, if larger, the sum of the sub-machine timeouts plus one
// second.
type Parallel struct {
	baseState
	subs []*Machine
}

// NewParallel builds a parallel state over sub-machines. Sub-machine names
// must be unique since they key the result map.
func NewParallel(name, next string, subs []*Machine, opts ...StateOption) (*Parallel, error) {
	if name == "" {
		return nil, fmt.Errorf("parallel: name is empty")
	}
	if len(subs) == 0 {
		return nil, fmt.Errorf("parallel %s: no sub-machines", name)
	}

	seen := make(map[string]struct{}, len(subs))
	var total time.Duration
	for _, sub := range subs {
		if _, dup := seen[sub.Name()]; dup {
			return nil, fmt.Errorf("parallel %s: duplicate sub-machine name %q", name, sub.Name())
		}
		seen[sub.Name()] = struct{}{}
		total += sub.Timeout()
	}

	p := &Parallel{
		baseState: baseState{name: name, next: next, timeout: DefaultStateTimeout},
		subs:      subs,
	}
	for _, opt := range opts {
		opt(&p.baseState)
	}

	floor := total + time.Second
	if p.timeout < floor {
		// The first sub-machine's observer stands in for the state, which has
		// no observer of its own.
		subs[0].observer.OnEvent(context.Background(), observability.Event{
			Type:      EventTimeoutAdjusted,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "machine.NewParallel",
			Data: map[string]any{
				"state":            name,
				"declared_seconds": p.timeout.Seconds(),
				"adjusted_seconds": floor.Seconds(),
			},
		})
		p.timeout = floor
	}

	return p, nil
}

func (p *Parallel) Kind() Kind { return KindParallel }

// Handle runs every sub-machine concurrently over the same event and waits
// for all of them under the aggregate deadline. Each sub-machine run gets
// the parent execution context so its own context links back to this run.
func (p *Parallel) Handle(ctx context.Context, event any, ec *Context) (any, string, error) {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	type slot struct {
		name string
		out  any
		err  error
	}
	results := make(chan slot, len(p.subs))

	for _, sub := range p.subs {
		go func(sub *Machine) {
			out, err := sub.run(pctx, event, ec)
			results <- slot{name: sub.Name(), out: out, err: err}
		}(sub)
	}

	collected := make(map[string]any, len(p.subs))
	for range p.subs {
		select {
		case r := <-results:
			if r.err != nil {
				collected[r.name] = map[string]any{"error": r.err.Error()}
			} else {
				collected[r.name] = r.out
			}
		case <-pctx.Done():
			if err := ctx.Err(); err != nil {
				return nil, "", fmt.Errorf("parallel %s: cancelled: %w", p.name, err)
			}
			return nil, "", &ExecutionTimeoutError{Machine: p.name, Timeout: p.timeout}
		}
	}

	return collected, p.next, nil
}
