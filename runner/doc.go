// Package runner executes compiled workflows and streams their lifecycle
// events. It is the runtime counterpart to package graph: a Runner takes an
// immutable graph.Workflow and drives any number of concurrent runs over it.
//
// Execution Model:
//   - One scheduler goroutine per run owns the ready queue, routing decisions
//     and fan-in barrier state, so none of that needs locking.
//   - Node handlers execute in their own goroutines, bounded by
//     MaxConcurrentNodes, and report back over a results channel.
//   - All events funnel through a single emit channel; a forwarding goroutine
//     assigns monotonic sequence numbers, appends to the optional history
//     store and delivers to the consumer channel in production order.
//
// Back-pressure: the consumer channel is buffered (EventBufferSize); once
// full, event production blocks rather than dropping events. Consumers must
// drain the event channel until it closes.
//
// Cancellation is observed at dispatch boundaries. In-flight handlers drain,
// their outputs are discarded, and exactly one run-cancelled terminal event
// is delivered.
package runner
