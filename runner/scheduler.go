package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/graph"
	"github.com/flowmesh/flowmesh/logging"
)

// item is one pending delivery on the ready queue.
type item struct {
	nodeID string
	msg    core.Message
}

// nodeResult is reported by a handler goroutine when a node invocation ends.
type nodeResult struct {
	nodeID  string
	outputs []core.Message
	err     error
}

// scheduler drives one run of a workflow. The run loop goroutine exclusively
// owns the ready queue, routing decisions and barrier state; only the output
// collection is shared with handler goroutines (guarded by outMu, since
// executors may call YieldOutput / Complete concurrently).
type scheduler struct {
	workflow *graph.Workflow
	runID    string
	emit     chan<- core.Event
	config   Config
	logger   logging.Logger

	ctx      context.Context
	queue    []item
	inFlight int
	results  chan nodeResult
	barriers map[int]*barrier
	fanIns   []graph.FanInGroup

	outMu     sync.Mutex
	outputs   []core.Message
	completed bool
}

func newScheduler(workflow *graph.Workflow, runID string, emit chan<- core.Event, config Config, logger logging.Logger) *scheduler {
	return &scheduler{
		workflow: workflow,
		runID:    runID,
		emit:     emit,
		config:   config,
		logger:   logger,
		results:  make(chan nodeResult, config.MaxConcurrentNodes),
		barriers: make(map[int]*barrier),
		fanIns:   workflow.FanInGroups(),
	}
}

// run executes the workflow to its terminal event. It seeds the ready queue
// with the input at the start node, then loops: observe cancellation, fill
// free handler slots from the queue, wait for a result, route its outputs.
func (s *scheduler) run(ctx context.Context, input core.Message) {
	s.ctx = ctx

	s.sendEvent(core.NewRunStartedEvent(s.runID))

	state := core.NewState()
	limiter := core.NewCallLimiter(s.config.MaxModelCalls)
	rc := core.NewRunContext(ctx, s.runID, s.emit, state, limiter, s.yieldOutput, s.complete, s.logger)

	s.queue = append(s.queue, item{nodeID: s.workflow.StartNodeID(), msg: input})

	for {
		// Cancellation is observed here, at the dispatch boundary. Pending
		// queue items never dispatch; in-flight handlers drain with their
		// outputs discarded.
		if ctx.Err() != nil {
			s.drainInFlight()
			s.sendTerminal(core.NewRunCancelledEvent(s.runID))
			return
		}

		for len(s.queue) > 0 && s.inFlight < s.config.MaxConcurrentNodes {
			next := s.queue[0]
			s.queue = s.queue[1:]

			if err := s.checkInput(next); err != nil {
				s.failRun(next.nodeID, err)
				return
			}

			s.dispatch(rc, next)
		}

		if s.inFlight == 0 {
			s.finish()
			return
		}

		select {
		case <-ctx.Done():
			// Loop top handles the cancellation path.
		case res := <-s.results:
			s.inFlight--

			if res.err != nil {
				s.failRun(res.nodeID, res.err)
				return
			}

			s.sendEvent(core.NewNodeCompletedEvent(s.runID, res.nodeID))

			for _, out := range res.outputs {
				if err := s.route(res.nodeID, out); err != nil {
					s.failRun(res.nodeID, err)
					return
				}
			}
		}
	}
}

// dispatch hands a queue item to a handler goroutine.
func (s *scheduler) dispatch(rc *core.RunContext, it item) {
	executor, _ := s.workflow.Node(it.nodeID)

	s.sendEvent(core.NewNodeStartedEvent(s.runID, it.nodeID, it.msg))

	nodeRC := rc.WithNode(core.NodeInfo{ID: it.nodeID, Type: executor.Name()})

	s.inFlight++

	go func() {
		outputs, err := s.invoke(nodeRC, executor, it.msg)
		s.results <- nodeResult{nodeID: it.nodeID, outputs: outputs, err: err}
	}()
}

// invoke runs the executor with panic recovery so a panicking handler fails
// its run instead of crashing the process.
func (s *scheduler) invoke(rc *core.RunContext, executor core.Executor, msg core.Message) (outputs []core.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor %s panicked: %v", executor.Name(), r)
		}
	}()

	return executor.Execute(rc, msg)
}

// checkInput verifies the message payload against the target executor's
// declared input type. A nil declared type accepts anything.
func (s *scheduler) checkInput(it item) error {
	executor, ok := s.workflow.Node(it.nodeID)
	if !ok {
		return fmt.Errorf("node %q not found in workflow", it.nodeID)
	}

	want := executor.InputType()
	if want == nil {
		return nil
	}

	got := it.msg.PayloadType()
	if got != nil && (got == want || got.AssignableTo(want)) {
		return nil
	}

	return &RoutingError{NodeID: it.nodeID, Got: got, Want: want}
}

// route resolves the outgoing routes for one message leaving a node:
// fan-out broadcasts clones, plain edges gate on their conditions, fan-in
// memberships record arrivals. A message leaving a node with no routes at all
// becomes a workflow output; one that matches routes but passes no condition
// is dropped.
func (s *scheduler) route(source string, msg core.Message) error {
	routed := false
	delivered := false

	for _, g := range s.workflow.FanOutFrom(source) {
		routed = true
		delivered = true
		for _, target := range g.Targets {
			s.queue = append(s.queue, item{nodeID: target, msg: msg.Clone()})
		}
	}

	for _, e := range s.workflow.EdgesFrom(source) {
		routed = true
		if e.Accepts(msg) {
			delivered = true
			s.queue = append(s.queue, item{nodeID: e.Target, msg: msg.Clone()})
		}
	}

	for i, g := range s.fanIns {
		if !containsSource(g, source) {
			continue
		}

		routed = true
		delivered = true

		b, ok := s.barriers[i]
		if !ok {
			b = newBarrier(g)
			s.barriers[i] = b
		}

		fire, joined, err := b.deliver(source, msg)
		if err != nil {
			return err
		}
		if fire {
			s.queue = append(s.queue, item{nodeID: g.Target, msg: core.NewMessage(joined)})
		}
	}

	if !routed {
		s.recordOutput(source, msg)
		return nil
	}

	if !delivered {
		s.logger.Debug("run.message.dropped", "run_id", s.runID, "node_id", source, "message_id", msg.ID)
	}

	return nil
}

func containsSource(g graph.FanInGroup, source string) bool {
	for _, src := range g.Sources {
		if src == source {
			return true
		}
	}
	return false
}

// recordOutput collects a workflow output and announces it.
func (s *scheduler) recordOutput(nodeID string, msg core.Message) {
	s.outMu.Lock()
	s.outputs = append(s.outputs, msg)
	s.outMu.Unlock()

	s.sendEvent(core.NewOutputEvent(s.runID, nodeID, msg))
}

// yieldOutput is the RunContext hook for explicit outputs; handler goroutines
// may call it concurrently.
func (s *scheduler) yieldOutput(nodeID string, msg core.Message) {
	s.recordOutput(nodeID, msg)
}

// complete is the RunContext hook marking the run explicitly completed.
func (s *scheduler) complete() {
	s.outMu.Lock()
	s.completed = true
	s.outMu.Unlock()
}

// finish terminates a drained run: completed with outputs when any output was
// produced or completion was signaled, failed with a stall error otherwise.
func (s *scheduler) finish() {
	s.outMu.Lock()
	outputs := append([]core.Message{}, s.outputs...)
	completed := s.completed
	s.outMu.Unlock()

	if len(outputs) > 0 || completed {
		s.sendTerminal(core.NewRunCompletedEvent(s.runID, outputs))
		return
	}

	s.sendTerminal(core.NewRunFailedEvent(s.runID, "", fmt.Errorf("workflow stalled: no outputs produced and no node signaled completion")))
}

// failRun drains in-flight handlers and terminates the run with a failure
// attributed to the given node. Pending queue items never dispatch.
func (s *scheduler) failRun(nodeID string, err error) {
	s.logger.Error("run.failed", "run_id", s.runID, "node_id", nodeID, "error", err.Error())
	s.drainInFlight()
	s.sendTerminal(core.NewRunFailedEvent(s.runID, nodeID, err))
}

// drainInFlight waits for outstanding handlers to return, discarding their
// outputs. Handlers observe cancellation through their RunContext.
func (s *scheduler) drainInFlight() {
	for s.inFlight > 0 {
		<-s.results
		s.inFlight--
	}
}

// sendEvent delivers a non-terminal event through the emit funnel, dropping
// it if the run has been cancelled so producers never block on a dead run.
func (s *scheduler) sendEvent(ev core.Event) {
	select {
	case <-s.ctx.Done():
	case s.emit <- ev:
	}
}

// sendTerminal delivers the run's single terminal event unconditionally; the
// consumer contract (drain until close) guarantees the send completes.
func (s *scheduler) sendTerminal(ev core.Event) {
	s.emit <- ev
}
