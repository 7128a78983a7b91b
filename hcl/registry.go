package hcl

import (
	"fmt"
	"sync"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/graph"
)

// ExecutorFactory constructs an executor for a node block. nodeID is the
// block label; attrs holds the block's remaining attributes decoded to native
// Go values (string, float64, bool, []any, map[string]any).
type ExecutorFactory func(nodeID string, attrs map[string]any) (core.Executor, error)

// Registry maps executor type names and condition names referenced in HCL
// definitions to their Go implementations. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]ExecutorFactory
	conditions map[string]graph.Condition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories:  make(map[string]ExecutorFactory),
		conditions: make(map[string]graph.Condition),
	}
}

// RegisterExecutor binds an executor type name to a factory. Re-registering a
// name replaces the previous factory.
func (r *Registry) RegisterExecutor(name string, factory ExecutorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// RegisterCondition binds a condition name usable in edge blocks.
func (r *Registry) RegisterCondition(name string, cond graph.Condition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conditions[name] = cond
}

// executorFor resolves a factory by type name.
func (r *Registry) executorFor(name string) (ExecutorFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("executor type %q not registered", name)
	}
	return factory, nil
}

// conditionFor resolves a condition by name.
func (r *Registry) conditionFor(name string) (graph.Condition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cond, ok := r.conditions[name]
	if !ok {
		return nil, fmt.Errorf("condition %q not registered", name)
	}
	return cond, nil
}
