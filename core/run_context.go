package core

import (
	"context"

	"github.com/flowmesh/flowmesh/logging"
)

// RunContext carries execution state & helpers for a single node invocation.
// It encapsulates the per-delivery execution scope passed to an Executor's
// Execute method. It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (RunID, current Node info)
//   - The Emit channel for custom events (streaming partials, progress)
//   - The run-scoped State store shared across the run's node invocations
//   - The model-call Limiter shared across the run
//   - Explicit output / completion hooks (YieldOutput, Complete)
//
// A RunContext is valid only for the duration of one Execute call; executors
// must not retain it.
type RunContext struct {
	Context context.Context
	RunID   string
	Node    NodeInfo
	Emit    chan<- Event
	State   *State
	Limiter *CallLimiter

	yieldFn    func(nodeID string, msg Message)
	completeFn func()

	*loggerAdapter
}

// NewRunContext constructs a RunContext bound to a run. The yield and
// complete hooks are provided by the runner; either may be nil, in which case
// the corresponding method is a no-op.
func NewRunContext(
	ctx context.Context,
	runID string,
	emit chan<- Event,
	state *State,
	limiter *CallLimiter,
	yieldFn func(nodeID string, msg Message),
	completeFn func(),
	logger logging.Logger,
) *RunContext {
	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		Emit:          emit,
		State:         state,
		Limiter:       limiter,
		yieldFn:       yieldFn,
		completeFn:    completeFn,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// WithNode returns a copy of the context bound to the given node. The runner
// derives one per dispatch so executors see their own node identity while
// sharing the run-scoped state, limiter and emit channel.
func (rc *RunContext) WithNode(node NodeInfo) *RunContext {
	c := *rc
	c.Node = node
	return &c
}

// GetState returns the value stored under key in the run-scoped state.
func (rc *RunContext) GetState(key string) (any, bool) {
	if rc.State == nil {
		return nil, false
	}
	return rc.State.Get(key)
}

// SetState stores a value in the run-scoped state.
func (rc *RunContext) SetState(key string, value any) {
	if rc.State != nil {
		rc.State.Set(key, value)
	}
}

// UpdateState applies an atomic read-modify-write to the run-scoped state.
func (rc *RunContext) UpdateState(key string, fn func(current any, ok bool) any) {
	if rc.State != nil {
		rc.State.Update(key, fn)
	}
}

// EmitEvent sends an event through the run's emit channel, honoring context
// cancellation so a cancelled run never blocks an executor on a full channel.
func (rc *RunContext) EmitEvent(ev Event) error {
	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
		return nil
	}
}

// EmitCustom emits an executor-defined event attributed to the current node.
func (rc *RunContext) EmitCustom(name string, data map[string]any) error {
	return rc.EmitEvent(NewCustomEvent(rc.RunID, rc.Node.ID, name, data))
}

// YieldOutput records a message as a workflow output regardless of the node's
// outgoing routes. The output event is delivered in production order with the
// rest of the run's events.
func (rc *RunContext) YieldOutput(msg Message) {
	if rc.yieldFn != nil {
		rc.yieldFn(rc.Node.ID, msg)
	}
}

// Complete marks the run as explicitly completed: once all in-flight work
// drains, the run terminates successfully even if no outputs were produced.
func (rc *RunContext) Complete() {
	if rc.completeFn != nil {
		rc.completeFn()
	}
}

// NodeID returns the ID of the node currently executing.
func (rc *RunContext) NodeID() string { return rc.Node.ID }

// NodeType returns the categorization label of the current node's executor.
func (rc *RunContext) NodeType() string { return rc.Node.Type }

// loggerAdapter gives RunContext its Log* methods over a never-nil
// logging.Logger.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &loggerAdapter{logger: l}
}

// Logger returns the underlying logger.
func (l *loggerAdapter) Logger() logging.Logger { return l.logger }

// LogDebug logs at debug level with key/value args.
func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// LogInfo logs at info level with key/value args.
func (l *loggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

// LogWarn logs at warn level with key/value args.
func (l *loggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// LogError logs at error level with key/value args.
func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
