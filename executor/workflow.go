package executor

import (
	"fmt"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/graph"
	"github.com/flowmesh/flowmesh/runner"
)

// WorkflowExecutorOptions configures a WorkflowExecutor instance.
type WorkflowExecutorOptions struct {
	// Description overrides the generated executor description.
	Description string
	// RunnerOptions are applied to the nested runner (concurrency limits,
	// buffer sizes, model-call caps).
	RunnerOptions []func(o *runner.Options)
}

// WorkflowExecutor adapts a compiled workflow into a single node of an outer
// graph. Each delivered message starts one synchronous sub-run; the sub-run's
// outputs become the node's outgoing messages.
//
// The sub-run executes with its own state store and event stream. Custom
// events from the inner run are not forwarded to the outer run's consumers.
type WorkflowExecutor struct {
	BaseExecutor
	runner *runner.Runner
}

// NewWorkflowExecutor wraps the given compiled workflow as an executor.
func NewWorkflowExecutor(name string, workflow *graph.Workflow, optFns ...func(o *WorkflowExecutorOptions)) *WorkflowExecutor {
	opts := WorkflowExecutorOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	base := NewBaseExecutor(name, nil)
	if opts.Description != "" {
		base.SetDescription(opts.Description)
	}

	return &WorkflowExecutor{
		BaseExecutor: base,
		runner:       runner.New(workflow, opts.RunnerOptions...),
	}
}

// Execute runs the sub-workflow to completion with the delivered message as
// its input. Cancellation of the outer run propagates through the context and
// cancels the sub-run at its next dispatch boundary.
func (e *WorkflowExecutor) Execute(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
	subRunID, events, err := e.runner.RunSync(rc.Context, msg)
	if err != nil {
		return nil, fmt.Errorf("sub-workflow %s failed: %w", e.Name(), err)
	}

	rc.LogDebug("subworkflow.completed", "node", e.Name(), "sub_run_id", subRunID, "events", len(events))

	for i := len(events) - 1; i >= 0; i-- {
		if events[i].IsTerminal() {
			outputs := make([]core.Message, len(events[i].Outputs))
			copy(outputs, events[i].Outputs)
			return outputs, nil
		}
	}

	return nil, fmt.Errorf("sub-workflow %s produced no terminal event", e.Name())
}
