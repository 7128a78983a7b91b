package graph

import (
	"fmt"

	"github.com/flowmesh/flowmesh/core"
)

// EdgeOption customizes a single AddEdge declaration.
type EdgeOption func(e *Edge)

// WithCondition attaches a routing predicate to an edge. Messages the
// predicate rejects are not delivered along the edge.
func WithCondition(cond Condition) EdgeOption {
	return func(e *Edge) {
		e.Condition = cond
	}
}

// FanInOption customizes a single AddFanIn declaration.
type FanInOption func(g *FanInGroup)

// WithThreshold switches the group to JoinThreshold firing after k distinct
// source deliveries. k must lie in [1, number of sources]; violations surface
// at Build.
func WithThreshold(k int) FanInOption {
	return func(g *FanInGroup) {
		g.Policy = JoinThreshold
		g.Threshold = k
	}
}

// Builder accumulates a workflow declaration and compiles it into an
// immutable Workflow. Declaration methods never fail; structural issues are
// collected and surfaced together when Build is called.
//
// Builder is not safe for concurrent use and is single-use: after a
// successful Build, further mutation and Build calls fail with ErrBuilderUsed.
type Builder struct {
	nodes     map[string]core.Executor
	nodeOrder []string
	edges     []Edge
	fanOuts   []FanOutGroup
	fanIns    []FanInGroup
	startID   string
	startSet  bool
	issues    []string
	built     bool
}

// NewBuilder creates an empty workflow builder.
func NewBuilder() *Builder {
	return &Builder{nodes: map[string]core.Executor{}}
}

// AddNode declares a node binding id to an executor. Duplicate IDs and nil
// executors are recorded as build issues.
func (b *Builder) AddNode(id string, executor core.Executor) *Builder {
	if b.built {
		return b
	}

	if id == "" {
		b.issues = append(b.issues, "node id must not be empty")
		return b
	}

	if executor == nil {
		b.issues = append(b.issues, fmt.Sprintf("node %q: executor must not be nil", id))
		return b
	}

	if _, exists := b.nodes[id]; exists {
		b.issues = append(b.issues, fmt.Sprintf("duplicate node id %q", id))
		return b
	}

	b.nodes[id] = executor
	b.nodeOrder = append(b.nodeOrder, id)

	return b
}

// AddEdge declares a directed edge from source to target, optionally gated by
// a condition.
func (b *Builder) AddEdge(source, target string, optFns ...EdgeOption) *Builder {
	if b.built {
		return b
	}

	e := Edge{Source: source, Target: target}
	for _, fn := range optFns {
		fn(&e)
	}

	b.edges = append(b.edges, e)

	return b
}

// AddFanOut declares an unconditional broadcast from source to every target.
func (b *Builder) AddFanOut(source string, targets ...string) *Builder {
	if b.built {
		return b
	}

	if len(targets) == 0 {
		b.issues = append(b.issues, fmt.Sprintf("fan-out from %q: target set must not be empty", source))
		return b
	}

	b.fanOuts = append(b.fanOuts, FanOutGroup{Source: source, Targets: targets})

	return b
}

// AddFanIn declares a join of the given sources into target. The default
// policy is JoinAll; use WithThreshold for k-of-n firing.
func (b *Builder) AddFanIn(target string, sources []string, optFns ...FanInOption) *Builder {
	if b.built {
		return b
	}

	g := FanInGroup{Sources: sources, Target: target, Policy: JoinAll}
	for _, fn := range optFns {
		fn(&g)
	}

	if len(sources) == 0 {
		b.issues = append(b.issues, fmt.Sprintf("fan-in to %q: source set must not be empty", target))
		return b
	}

	b.fanIns = append(b.fanIns, g)

	return b
}

// SetStart designates the node that receives the run's input message.
func (b *Builder) SetStart(id string) *Builder {
	if b.built {
		return b
	}

	b.startID = id
	b.startSet = true

	return b
}

// Build validates the accumulated declaration and freezes it into an
// immutable Workflow. All issues are reported together via BuildError. On
// success the builder becomes unusable (ErrBuilderUsed on further calls).
func (b *Builder) Build() (*Workflow, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	issues := append([]string{}, b.issues...)
	issues = append(issues, b.validate()...)

	if len(issues) > 0 {
		return nil, &BuildError{Issues: issues}
	}

	b.built = true

	nodes := make(map[string]core.Executor, len(b.nodes))
	for id, ex := range b.nodes {
		nodes[id] = ex
	}

	return &Workflow{
		startID:   b.startID,
		nodes:     nodes,
		nodeOrder: append([]string{}, b.nodeOrder...),
		edges:     append([]Edge{}, b.edges...),
		fanOuts:   append([]FanOutGroup{}, b.fanOuts...),
		fanIns:    append([]FanInGroup{}, b.fanIns...),
	}, nil
}

// validate performs the structural checks that need the whole declaration:
// start node, endpoint resolution, threshold ranges and reachability.
func (b *Builder) validate() []string {
	var issues []string

	declared := func(id string) bool {
		_, ok := b.nodes[id]
		return ok
	}

	if !b.startSet {
		issues = append(issues, "start node not set")
	} else if !declared(b.startID) {
		issues = append(issues, fmt.Sprintf("start node %q not declared", b.startID))
	}

	for _, e := range b.edges {
		if !declared(e.Source) {
			issues = append(issues, fmt.Sprintf("edge %s->%s: source %q not declared", e.Source, e.Target, e.Source))
		}
		if !declared(e.Target) {
			issues = append(issues, fmt.Sprintf("edge %s->%s: target %q not declared", e.Source, e.Target, e.Target))
		}
	}

	for _, g := range b.fanOuts {
		if !declared(g.Source) {
			issues = append(issues, fmt.Sprintf("fan-out from %q: source not declared", g.Source))
		}
		for _, target := range g.Targets {
			if !declared(target) {
				issues = append(issues, fmt.Sprintf("fan-out from %q: target %q not declared", g.Source, target))
			}
		}
	}

	for _, g := range b.fanIns {
		if !declared(g.Target) {
			issues = append(issues, fmt.Sprintf("fan-in to %q: target not declared", g.Target))
		}
		seen := map[string]bool{}
		for _, source := range g.Sources {
			if !declared(source) {
				issues = append(issues, fmt.Sprintf("fan-in to %q: source %q not declared", g.Target, source))
			}
			if seen[source] {
				issues = append(issues, fmt.Sprintf("fan-in to %q: duplicate source %q", g.Target, source))
			}
			seen[source] = true
		}
		if g.Policy == JoinThreshold && (g.Threshold < 1 || g.Threshold > len(g.Sources)) {
			issues = append(issues, fmt.Sprintf("fan-in to %q: threshold %d out of range [1, %d]", g.Target, g.Threshold, len(g.Sources)))
		}
	}

	// Reachability only makes sense on an otherwise well-formed declaration.
	if len(issues) == 0 && b.startSet {
		for _, id := range b.unreachableNodes() {
			issues = append(issues, fmt.Sprintf("node %q not reachable from start", id))
		}
	}

	return issues
}

// unreachableNodes runs a BFS from the start node over edges, fan-outs and
// fan-ins (a fan-in target is reachable once any of its sources is) and
// returns declared nodes the traversal never visits, in declaration order.
func (b *Builder) unreachableNodes() []string {
	adjacency := map[string][]string{}
	for _, e := range b.edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}
	for _, g := range b.fanOuts {
		adjacency[g.Source] = append(adjacency[g.Source], g.Targets...)
	}
	for _, g := range b.fanIns {
		for _, source := range g.Sources {
			adjacency[source] = append(adjacency[source], g.Target)
		}
	}

	visited := map[string]bool{b.startID: true}
	queue := []string{b.startID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	var unreachable []string
	for _, id := range b.nodeOrder {
		if !visited[id] {
			unreachable = append(unreachable, id)
		}
	}
	return unreachable
}
