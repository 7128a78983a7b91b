package graph

import "github.com/flowmesh/flowmesh/core"

// Condition gates message delivery along an edge. It must be a pure predicate:
// inspect the message, return whether the edge accepts it, mutate nothing.
type Condition func(msg core.Message) bool

// Edge is a directed connection between two declared nodes. A nil Condition
// accepts every message.
type Edge struct {
	Source    string
	Target    string
	Condition Condition
}

// Accepts reports whether the edge delivers the given message.
func (e Edge) Accepts(msg core.Message) bool {
	return e.Condition == nil || e.Condition(msg)
}

// FanOutGroup broadcasts every message leaving Source to all Targets
// unconditionally. Each target receives an independent clone.
type FanOutGroup struct {
	Source  string
	Targets []string
}

// JoinPolicy selects when a fan-in group fires its joined delivery.
type JoinPolicy int

const (
	// JoinAll fires once every declared source has delivered a message.
	JoinAll JoinPolicy = iota
	// JoinThreshold fires on the k-th distinct source delivery; later
	// arrivals are recorded but never trigger a second firing.
	JoinThreshold
)

// String returns the string representation of the join policy.
func (p JoinPolicy) String() string {
	switch p {
	case JoinAll:
		return "all"
	case JoinThreshold:
		return "threshold"
	default:
		return "unknown"
	}
}

// FanInGroup joins messages from multiple Sources into a single delivery to
// Target. The joined payload is the collected []core.Message in arrival
// order. Threshold is only meaningful for JoinThreshold and must lie in
// [1, len(Sources)].
type FanInGroup struct {
	Sources   []string
	Target    string
	Policy    JoinPolicy
	Threshold int
}

// RequiredArrivals returns the number of distinct source deliveries that
// trigger the joined dispatch.
func (g FanInGroup) RequiredArrivals() int {
	if g.Policy == JoinThreshold {
		return g.Threshold
	}
	return len(g.Sources)
}
