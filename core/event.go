package core

import (
	"errors"
	"time"
)

// ErrRunCancelled is the error a synchronous caller observes when a run
// terminated with EventRunCancelled. Cancellation is not a failure; callers
// that treat it as benign should match with errors.Is.
var ErrRunCancelled = errors.New("run cancelled")

// EventKind categorizes the lifecycle events emitted during a workflow run.
type EventKind string

const (
	// EventRunStarted is emitted once, before the start node is dispatched.
	EventRunStarted EventKind = "run.started"
	// EventNodeStarted is emitted when a node invocation begins.
	EventNodeStarted EventKind = "node.started"
	// EventNodeCompleted is emitted when a node invocation returns successfully.
	EventNodeCompleted EventKind = "node.completed"
	// EventOutput is emitted when a message is recorded as a workflow output.
	EventOutput EventKind = "output"
	// EventCustom is emitted by executors via RunContext.EmitCustom (streaming
	// partials, progress markers).
	EventCustom EventKind = "custom"
	// EventRunCompleted terminates a successful run and carries collected outputs.
	EventRunCompleted EventKind = "run.completed"
	// EventRunFailed terminates a failed run and carries the failure description.
	EventRunFailed EventKind = "run.failed"
	// EventRunCancelled terminates a cancelled run.
	EventRunCancelled EventKind = "run.cancelled"
)

// Event is the primary unit of communication between the runner and external
// clients. After emission it should be treated as immutable. It captures:
//   - Correlation (ID, RunID, source NodeID)
//   - Ordering (monotonic per-run Sequence assigned at delivery)
//   - The message being processed or produced, where applicable
//   - Collected outputs on the terminal run-completed event
//   - Error metadata on the terminal run-failed event
//   - High precision UTC timestamp
//
// Exactly one event with a terminal kind is delivered per run.
type Event struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	Kind         EventKind      `json:"kind"`
	NodeID       string         `json:"node_id,omitempty"`
	Sequence     int64          `json:"sequence"`
	Timestamp    time.Time      `json:"timestamp"`
	Message      *Message       `json:"message,omitempty"`
	Outputs      []Message      `json:"outputs,omitempty"`
	Name         string         `json:"name,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}

// NewEvent creates a bare event of the given kind bound to a run.
// Prefer the helper constructors for common lifecycle categories.
func NewEvent(runID string, kind EventKind) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// NewRunStartedEvent marks the beginning of a run.
func NewRunStartedEvent(runID string) Event {
	return NewEvent(runID, EventRunStarted)
}

// NewNodeStartedEvent records the dispatch of a message to a node.
func NewNodeStartedEvent(runID, nodeID string, msg Message) Event {
	e := NewEvent(runID, EventNodeStarted)
	e.NodeID = nodeID
	e.Message = &msg
	return e
}

// NewNodeCompletedEvent records a successful node invocation.
func NewNodeCompletedEvent(runID, nodeID string) Event {
	e := NewEvent(runID, EventNodeCompleted)
	e.NodeID = nodeID
	return e
}

// NewOutputEvent records a message collected as a workflow output.
func NewOutputEvent(runID, nodeID string, msg Message) Event {
	e := NewEvent(runID, EventOutput)
	e.NodeID = nodeID
	e.Message = &msg
	return e
}

// NewCustomEvent creates an executor-defined event with a name and free-form data.
func NewCustomEvent(runID, nodeID, name string, data map[string]any) Event {
	e := NewEvent(runID, EventCustom)
	e.NodeID = nodeID
	e.Name = name
	e.Data = data
	return e
}

// NewRunCompletedEvent terminates a successful run with its collected outputs.
func NewRunCompletedEvent(runID string, outputs []Message) Event {
	e := NewEvent(runID, EventRunCompleted)
	e.Outputs = outputs
	return e
}

// NewRunFailedEvent terminates a failed run. NodeID names the failing node
// when the failure is attributable to one.
func NewRunFailedEvent(runID, nodeID string, err error) Event {
	e := NewEvent(runID, EventRunFailed)
	e.NodeID = nodeID
	if err != nil {
		msg := err.Error()
		e.ErrorMessage = &msg
	}
	return e
}

// NewRunCancelledEvent terminates a cancelled run.
func NewRunCancelledEvent(runID string) Event {
	return NewEvent(runID, EventRunCancelled)
}

// IsTerminal reports whether the event ends its run. After a terminal event
// no further events are delivered for the run.
func (e Event) IsTerminal() bool {
	switch e.Kind {
	case EventRunCompleted, EventRunFailed, EventRunCancelled:
		return true
	default:
		return false
	}
}

// Err converts a terminal event into the error a synchronous caller should
// observe: nil for a completed run, the failure for a failed run and
// a cancellation error for a cancelled run. Non-terminal events yield nil.
func (e Event) Err() error {
	switch e.Kind {
	case EventRunFailed:
		if e.ErrorMessage != nil {
			return errors.New(*e.ErrorMessage)
		}
		return errors.New("run failed")
	case EventRunCancelled:
		return ErrRunCancelled
	default:
		return nil
	}
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
// Useful for metrics & numeric serialization paths.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
