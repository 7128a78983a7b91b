package core

import "reflect"

// NodeInfo identifies a node within a compiled workflow: the node ID declared
// at build time and a categorization label supplied by the executor type.
type NodeInfo struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Executor is the single polymorphic capability a workflow node must provide.
// A compiled workflow binds one Executor per node; the runner invokes Execute
// each time a message is delivered to the node.
//
// Execute returns the messages to route onward. Returning an empty slice is
// valid: the node simply produces nothing for this delivery. Any returned
// error halts the run.
//
// Implementations must be safe for concurrent Execute calls when the same
// node instance is registered in workflows executed in parallel.
type Executor interface {
	// Name returns the executor's logical name for logging and events.
	Name() string

	// Description returns a human-readable summary of the executor's purpose.
	Description() string

	// InputType reports the payload type the executor accepts. A nil return
	// means the executor accepts any payload; the runner skips the
	// compatibility check for such nodes.
	InputType() reflect.Type

	// Execute processes one delivered message and returns the messages to
	// route to the node's outgoing edges.
	Execute(rc *RunContext, msg Message) ([]Message, error)
}
