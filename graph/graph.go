package graph

import "github.com/flowmesh/flowmesh/core"

// Workflow is a compiled, immutable workflow graph produced by Builder.Build.
// A single Workflow can back any number of concurrent runs; it carries no
// per-run state. The introspection methods expose the declared topology in
// full, sufficient to re-derive the original declaration.
type Workflow struct {
	startID   string
	nodes     map[string]core.Executor
	nodeOrder []string
	edges     []Edge
	fanOuts   []FanOutGroup
	fanIns    []FanInGroup
}

// StartNodeID returns the ID of the node that receives the run input.
func (w *Workflow) StartNodeID() string { return w.startID }

// NodeIDs returns the declared node IDs in declaration order.
func (w *Workflow) NodeIDs() []string {
	return append([]string{}, w.nodeOrder...)
}

// Node returns the executor bound to id and whether the node is declared.
func (w *Workflow) Node(id string) (core.Executor, bool) {
	ex, ok := w.nodes[id]
	return ex, ok
}

// Edges returns all declared plain edges.
func (w *Workflow) Edges() []Edge {
	return append([]Edge{}, w.edges...)
}

// FanOutGroups returns all declared fan-out groups.
func (w *Workflow) FanOutGroups() []FanOutGroup {
	out := make([]FanOutGroup, len(w.fanOuts))
	for i, g := range w.fanOuts {
		out[i] = FanOutGroup{Source: g.Source, Targets: append([]string{}, g.Targets...)}
	}
	return out
}

// FanInGroups returns all declared fan-in groups.
func (w *Workflow) FanInGroups() []FanInGroup {
	out := make([]FanInGroup, len(w.fanIns))
	for i, g := range w.fanIns {
		out[i] = FanInGroup{
			Sources:   append([]string{}, g.Sources...),
			Target:    g.Target,
			Policy:    g.Policy,
			Threshold: g.Threshold,
		}
	}
	return out
}

// EdgesFrom returns the plain edges leaving the given node.
func (w *Workflow) EdgesFrom(id string) []Edge {
	var out []Edge
	for _, e := range w.edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// FanOutFrom returns the fan-out groups whose source is the given node.
func (w *Workflow) FanOutFrom(id string) []FanOutGroup {
	var out []FanOutGroup
	for _, g := range w.fanOuts {
		if g.Source == id {
			out = append(out, g)
		}
	}
	return out
}

// FanInsFor returns the fan-in groups that list the given node as a source.
func (w *Workflow) FanInsFor(id string) []FanInGroup {
	var out []FanInGroup
	for _, g := range w.fanIns {
		for _, source := range g.Sources {
			if source == id {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// HasRoutes reports whether any edge, fan-out or fan-in consumes messages
// leaving the given node. Messages leaving a node without routes become
// workflow outputs.
func (w *Workflow) HasRoutes(id string) bool {
	return len(w.EdgesFrom(id)) > 0 || len(w.FanOutFrom(id)) > 0 || len(w.FanInsFor(id)) > 0
}
