// Package flowmesh provides a high-level façade over the workflow graph
// engine: a Builder for declaring typed executor graphs, a Runner that
// executes compiled workflows with streamed events, and the surrounding
// services (logging, run history). Most applications interact with this
// package by:
//  1. Declaring a workflow via NewBuilder() (nodes, edges, fan-out/fan-in)
//  2. Creating a FlowMesh via New() with the compiled workflow
//  3. Starting runs asynchronously (Run) or synchronously (RunSync)
//
// The façade delegates orchestration to runner.Runner while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a structured logger and a
// durable history store.
package flowmesh

import (
	"context"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/graph"
	"github.com/flowmesh/flowmesh/history"
	"github.com/flowmesh/flowmesh/logging"
	"github.com/flowmesh/flowmesh/runner"
)

// Options configures the FlowMesh instance.
type Options struct {
	// RunnerConfig holds the runner's operational parameters (concurrency,
	// buffering, model-call caps).
	RunnerConfig runner.Config

	// History records every delivered event per run for later inspection.
	// Defaults to an in-memory store; set to nil to disable recording.
	History history.Store

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// FlowMesh is the high-level façade aggregating the runner and its services.
type FlowMesh struct {
	opts   Options
	runner *runner.Runner
}

// New creates a FlowMesh executing the given compiled workflow. Unset
// services default to in-memory implementations.
func New(workflow *graph.Workflow, optFns ...func(o *Options)) *FlowMesh {
	opts := Options{
		RunnerConfig: runner.DefaultConfig,
		History:      history.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	r := runner.New(workflow, func(o *runner.Options) {
		o.Config = opts.RunnerConfig
		o.Logger = opts.Logger
		o.History = opts.History
	})

	return &FlowMesh{opts: opts, runner: r}
}

// NewBuilder creates an empty workflow builder. Re-exported from graph for
// single-import use.
func NewBuilder() *graph.Builder { return graph.NewBuilder() }

// Workflow returns the compiled workflow this instance executes.
func (m *FlowMesh) Workflow() *graph.Workflow { return m.runner.Workflow() }

// History returns the configured history store, or nil if recording is
// disabled.
func (m *FlowMesh) History() history.Store { return m.opts.History }

// Run starts an asynchronous run with the given input message delivered to
// the start node. It returns the run ID and the run's event stream; the
// channel closes after the single terminal event.
func (m *FlowMesh) Run(ctx context.Context, input core.Message) (string, <-chan core.Event, error) {
	return m.runner.Run(ctx, input)
}

// RunSync executes the workflow synchronously, collecting all events. The
// returned error is derived from the terminal event.
func (m *FlowMesh) RunSync(ctx context.Context, input core.Message) (string, []core.Event, error) {
	return m.runner.RunSync(ctx, input)
}

// Cancel requests cancellation of an active run by ID.
func (m *FlowMesh) Cancel(runID string) error { return m.runner.Cancel(runID) }
