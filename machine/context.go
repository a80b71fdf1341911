package machine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Context is the per-run execution context threaded through every state. It
// carries the machine identity, a fresh execution id, the name of the state
// currently entered, and timing information. Handlers may attach arbitrary
// values via Set/Get; the driver updates the state name and timestamp as it
// advances. All methods are safe for concurrent use, which matters when a
// parallel state hands the parent context to its sub-machines.
type Context struct {
	MachineName string
	MachineID   string
	ExecutionID string
	StartTime   time.Time

	parent *Context

	mu        sync.RWMutex
	stateName string
	timestamp time.Time
	values    map[string]any
}

func newContext(machineName, machineID, headState string, parent *Context) *Context {
	now := time.Now()
	return &Context{
		MachineName: machineName,
		MachineID:   machineID,
		ExecutionID: uuid.NewString(),
		StartTime:   now,
		parent:      parent,
		stateName:   headState,
		timestamp:   now,
		values:      make(map[string]any),
	}
}

// Parent returns the invoking machine's context when this run was started
// by a parallel state, nil otherwise. Sub-machines treat it as read-only.
func (c *Context) Parent() *Context { return c.parent }

// StateName returns the name of the state currently entered.
func (c *Context) StateName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateName
}

// Timestamp returns the time of the most recent state entry or Touch.
func (c *Context) Timestamp() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timestamp
}

// Touch refreshes the context timestamp.
func (c *Context) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timestamp = time.Now()
}

// enter records a state entry: the driver calls it before dispatching the
// state's handler.
func (c *Context) enter(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateName = state
	c.timestamp = time.Now()
}

// Set stores a user value in the context.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns a user value previously stored with Set.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Values returns a snapshot copy of the user values.
func (c *Context) Values() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
