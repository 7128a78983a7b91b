package runner

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/graph"
	"github.com/flowmesh/flowmesh/history"
	"github.com/flowmesh/flowmesh/logging"
)

// ErrRunCancelled is the error observed by synchronous callers when a run
// terminates with a run-cancelled event. Re-exported from core for ergonomic
// errors.Is checks at the runner call site.
var ErrRunCancelled = core.ErrRunCancelled

// Config defines tuning parameters for the Runner's operational behavior.
type Config struct {
	// MaxConcurrentNodes limits how many node handlers execute
	// simultaneously within one run. Values below 1 fall back to the
	// default.
	MaxConcurrentNodes int

	// EventBufferSize sets the channel buffer size for event delivery.
	// Larger buffers reduce blocking but increase memory usage. Once the
	// buffer fills, event production blocks (back-pressure); events are
	// never dropped.
	EventBufferSize int

	// MaxModelCalls caps model invocations per run via the shared
	// CallLimiter. Zero means unlimited.
	MaxModelCalls int
}

// DefaultConfig provides production-ready default configuration values.
var DefaultConfig = Config{
	MaxConcurrentNodes: 10,
	EventBufferSize:    100,
	MaxModelCalls:      0,
}

// Options configures a Runner instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters for scheduling and buffering.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to NoOpLogger if nil.
	Logger logging.Logger

	// History optionally records every delivered event per run for later
	// inspection. Nil disables recording.
	History history.Store
}

// RoutingError describes a message that could not be delivered because its
// payload type does not match the target node's declared input type. Routing
// errors halt the run.
type RoutingError struct {
	NodeID string
	Got    reflect.Type
	Want   reflect.Type
}

// Error implements the error interface for RoutingError.
func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing error: node %q expects input type %v, got %v", e.NodeID, e.Want, e.Got)
}

// Runner executes compiled workflows, streaming lifecycle events per run.
//
// A single Runner is bound to one Workflow and is safe for concurrent use:
// each Run call creates an isolated execution with its own state store,
// fan-in barriers and event pipeline. Active runs are tracked by ID so they
// can be cancelled individually via Cancel.
type Runner struct {
	workflow *graph.Workflow
	config   Config
	logger   logging.Logger
	history  history.Store

	activeRuns map[string]context.CancelFunc
	runsMu     sync.RWMutex
}

// New creates a Runner for the given compiled workflow. Configuration is
// applied through functional options; all defaults are safe for development
// and testing.
//
// Example:
//
//	r := runner.New(workflow, func(o *runner.Options) {
//	    o.Config.MaxConcurrentNodes = 4
//	    o.Logger = logger
//	})
func New(workflow *graph.Workflow, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config.MaxConcurrentNodes < 1 {
		opts.Config.MaxConcurrentNodes = DefaultConfig.MaxConcurrentNodes
	}
	if opts.Config.EventBufferSize < 1 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Runner{
		workflow:   workflow,
		config:     opts.Config,
		logger:     opts.Logger,
		history:    opts.History,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Workflow returns the compiled workflow this runner executes.
func (r *Runner) Workflow() *graph.Workflow { return r.workflow }

// Run starts an asynchronous execution of the workflow with the given input
// message delivered to the start node. It returns the run ID and a channel
// streaming the run's events in production order.
//
// The channel is closed after the single terminal event (run completed, run
// failed or run cancelled) has been delivered. Consumers must drain the
// channel until it closes; the runner applies back-pressure rather than
// dropping events when the buffer fills.
func (r *Runner) Run(ctx context.Context, input core.Message) (string, <-chan core.Event, error) {
	if r.workflow == nil {
		return "", nil, fmt.Errorf("runner has no workflow")
	}

	runID := core.NewID()

	emit := make(chan core.Event, r.config.EventBufferSize)
	events := make(chan core.Event, r.config.EventBufferSize)

	runCtx, cancel := context.WithCancel(ctx)

	r.runsMu.Lock()
	r.activeRuns[runID] = cancel
	r.runsMu.Unlock()

	s := newScheduler(r.workflow, runID, emit, r.config, r.logger)

	// Scheduler goroutine: owns routing and barrier state, closes the emit
	// funnel when the run reaches its terminal event.
	go func() {
		defer close(emit)
		s.run(runCtx, input)
	}()

	// Forwarding goroutine: assigns sequence numbers, records history and
	// delivers events to the consumer in production order.
	go func() {
		defer func() {
			close(events)
			cancel()
			r.runsMu.Lock()
			delete(r.activeRuns, runID)
			r.runsMu.Unlock()
		}()

		var seq int64
		for ev := range emit {
			ev.Sequence = seq
			seq++

			if r.history != nil {
				if err := r.history.Append(runID, ev); err != nil {
					r.logger.Warn("run.history.append_failed", "run_id", runID, "event_id", ev.ID, "error", err.Error())
				}
			}

			events <- ev
			r.logger.Debug("run.event.delivered", "run_id", runID, "kind", string(ev.Kind), "seq", ev.Sequence)
		}
	}()

	return runID, events, nil
}

// RunSync executes the workflow synchronously, collecting all events. The
// returned error is derived from the terminal event: nil for a completed run,
// the failure for a failed run and ErrRunCancelled for a cancelled run.
func (r *Runner) RunSync(ctx context.Context, input core.Message) (string, []core.Event, error) {
	runID, events, err := r.Run(ctx, input)
	if err != nil {
		return "", nil, err
	}

	var collected []core.Event
	var terminal *core.Event

	for ev := range events {
		collected = append(collected, ev)
		if ev.IsTerminal() {
			t := ev
			terminal = &t
		}
	}

	if terminal == nil {
		return runID, collected, fmt.Errorf("run %s ended without terminal event", runID)
	}

	return runID, collected, terminal.Err()
}

// Cancel requests cancellation of an active run by ID. The run observes the
// request at its next dispatch boundary, drains in-flight handlers and
// terminates with a single run-cancelled event.
func (r *Runner) Cancel(runID string) error {
	r.runsMu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.runsMu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}
