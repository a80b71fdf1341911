package machine

import "github.com/stateflow-labs/stateflow/observability"

// Machine event types emitted by the driver and the state adapters.
const (
	EventStateEnter       observability.EventType = "machine.state.enter"
	EventStateExit        observability.EventType = "machine.state.exit"
	EventRunComplete      observability.EventType = "machine.run.complete"
	EventError            observability.EventType = "machine.error"
	EventTimeoutAdjusted  observability.EventType = "machine.timeout.adjusted"
	EventDetachedStart    observability.EventType = "machine.detached.start"
	EventDetachedComplete observability.EventType = "machine.detached.complete"
)
