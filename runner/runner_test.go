package runner

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/graph"
	"github.com/flowmesh/flowmesh/history"
	"github.com/flowmesh/flowmesh/internal/testutil"
)

func buildLinear(t *testing.T, executors ...core.Executor) *graph.Workflow {
	t.Helper()

	b := graph.NewBuilder()
	ids := []string{"a", "b", "c", "d", "e"}
	for i, ex := range executors {
		b.AddNode(ids[i], ex)
		if i > 0 {
			b.AddEdge(ids[i-1], ids[i])
		}
	}
	b.SetStart("a")

	wf, err := b.Build()
	require.NoError(t, err)
	return wf
}

func TestRunSyncLinearPipeline(t *testing.T) {
	upper := testutil.NewFuncExecutor("upper", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		return []core.Message{core.NewMessage(msg.Payload.(string) + "!")}, nil
	})

	wf := buildLinear(t, testutil.Echo("a"), testutil.Echo("b"), upper)
	r := New(wf)

	runID, events, err := r.RunSync(context.Background(), core.NewMessage("hello"))
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	// exactly one terminal event, and it is the last delivered
	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	assert.Equal(t, core.EventRunCompleted, terminals[0].Kind)
	assert.True(t, events[len(events)-1].IsTerminal())

	// first event is run started
	assert.Equal(t, core.EventRunStarted, events[0].Kind)

	// sequence numbers are monotonic from zero
	for i, ev := range events {
		assert.Equal(t, int64(i), ev.Sequence)
		assert.Equal(t, runID, ev.RunID)
	}

	// message leaving the last node became the workflow output
	require.Len(t, terminals[0].Outputs, 1)
	assert.Equal(t, "hello!", terminals[0].Outputs[0].Payload)
}

func TestRunHandlerErrorHaltsRun(t *testing.T) {
	boom := errors.New("handler exploded")
	tail := testutil.Echo("tail")

	wf, err := graph.NewBuilder().
		AddNode("a", testutil.Echo("a")).
		AddNode("b", testutil.Failing("b", boom)).
		AddNode("c", tail).
		AddEdge("a", "b").
		AddEdge("b", "c").
		SetStart("a").
		Build()
	require.NoError(t, err)

	_, events, runErr := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "handler exploded")

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	assert.Equal(t, core.EventRunFailed, terminals[0].Kind)
	assert.Equal(t, "b", terminals[0].NodeID)

	// pending downstream work never dispatched
	assert.Zero(t, tail.Calls())
}

func TestRunPanicRecovered(t *testing.T) {
	panicking := testutil.NewFuncExecutor("panicking", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		panic("unexpected state")
	})

	wf := buildLinear(t, panicking)

	_, events, err := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	assert.Equal(t, core.EventRunFailed, terminals[0].Kind)
}

func TestRunCancellation(t *testing.T) {
	started := make(chan struct{})
	blocker := testutil.NewFuncExecutor("blocker", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		close(started)
		<-rc.Done()
		return []core.Message{core.NewMessage("discarded")}, nil
	})
	tail := testutil.Echo("tail")

	wf, err := graph.NewBuilder().
		AddNode("a", blocker).
		AddNode("b", tail).
		AddEdge("a", "b").
		SetStart("a").
		Build()
	require.NoError(t, err)

	r := New(wf)
	runID, events, err := r.Run(context.Background(), core.NewMessage("in"))
	require.NoError(t, err)

	<-started
	require.NoError(t, r.Cancel(runID))

	var collected []core.Event
	for ev := range events {
		collected = append(collected, ev)
	}

	terminals := testutil.TerminalEvents(collected)
	require.Len(t, terminals, 1)
	assert.Equal(t, core.EventRunCancelled, terminals[0].Kind)

	// in-flight output was discarded, downstream never dispatched
	assert.Zero(t, tail.Calls())
	for _, ev := range collected {
		assert.NotEqual(t, core.EventOutput, ev.Kind)
	}
}

func TestCancelUnknownRun(t *testing.T) {
	wf := buildLinear(t, testutil.Echo("a"))
	err := New(wf).Cancel("no-such-run")
	assert.Error(t, err)
}

func TestRunStallFails(t *testing.T) {
	wf, err := graph.NewBuilder().
		AddNode("a", testutil.Echo("a")).
		AddNode("b", testutil.Sink("b")).
		AddEdge("a", "b").
		SetStart("a").
		Build()
	require.NoError(t, err)

	_, events, runErr := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "stalled")

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	assert.Equal(t, core.EventRunFailed, terminals[0].Kind)
}

func TestRunExplicitComplete(t *testing.T) {
	completer := testutil.NewFuncExecutor("completer", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		rc.Complete()
		return nil, nil
	})

	wf := buildLinear(t, completer)

	_, events, err := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.NoError(t, err)

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	assert.Equal(t, core.EventRunCompleted, terminals[0].Kind)
	assert.Empty(t, terminals[0].Outputs)
}

func TestRunYieldOutput(t *testing.T) {
	yielder := testutil.NewFuncExecutor("yielder", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		rc.YieldOutput(core.NewMessage("explicit"))
		return nil, nil
	})

	wf := buildLinear(t, yielder)

	_, events, err := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.NoError(t, err)

	outputs := testutil.EventsOfKind(events, core.EventOutput)
	require.Len(t, outputs, 1)
	assert.Equal(t, "a", outputs[0].NodeID)

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	require.Len(t, terminals[0].Outputs, 1)
	assert.Equal(t, "explicit", terminals[0].Outputs[0].Payload)
}

func TestRunTypeMismatchIsRoutingError(t *testing.T) {
	producer := testutil.NewFuncExecutor("producer", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		return []core.Message{core.NewMessage(42)}, nil
	})
	typed := testutil.Echo("typed")
	typed.Input = reflect.TypeOf("")

	wf, err := graph.NewBuilder().
		AddNode("a", producer).
		AddNode("b", typed).
		AddEdge("a", "b").
		SetStart("a").
		Build()
	require.NoError(t, err)

	_, events, runErr := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "routing error")

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	assert.Equal(t, core.EventRunFailed, terminals[0].Kind)
	assert.Equal(t, "b", terminals[0].NodeID)
	assert.Zero(t, typed.Calls())
}

func TestRunConditionalRouting(t *testing.T) {
	left := testutil.Echo("left")
	right := testutil.Echo("right")

	build := func() *graph.Workflow {
		wf, err := graph.NewBuilder().
			AddNode("a", testutil.Echo("a")).
			AddNode("left", left).
			AddNode("right", right).
			AddEdge("a", "left", graph.WithCondition(func(msg core.Message) bool { return msg.Payload == "go-left" })).
			AddEdge("a", "right", graph.WithCondition(func(msg core.Message) bool { return msg.Payload == "go-right" })).
			SetStart("a").
			Build()
		require.NoError(t, err)
		return wf
	}

	_, events, err := New(build()).RunSync(context.Background(), core.NewMessage("go-left"))
	require.NoError(t, err)
	assert.Equal(t, 1, left.Calls())
	assert.Zero(t, right.Calls())

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	require.Len(t, terminals[0].Outputs, 1)
	assert.Equal(t, "go-left", terminals[0].Outputs[0].Payload)
}

func TestRunConditionDropStalls(t *testing.T) {
	// routes exist but no condition accepts: the message is dropped and the
	// run stalls with a failure
	wf, err := graph.NewBuilder().
		AddNode("a", testutil.Echo("a")).
		AddNode("b", testutil.Echo("b")).
		AddEdge("a", "b", graph.WithCondition(func(msg core.Message) bool { return false })).
		SetStart("a").
		Build()
	require.NoError(t, err)

	_, _, runErr := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "stalled")
}

func TestRunFanOutCopyIndependence(t *testing.T) {
	seen := make(chan string, 2)
	mutate := func(name string) *testutil.FuncExecutor {
		return testutil.NewFuncExecutor(name, func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
			payload := msg.Payload.(map[string]any)
			seen <- payload["value"].(string)
			payload["value"] = "mutated-by-" + name
			return nil, nil
		})
	}

	wf, err := graph.NewBuilder().
		AddNode("a", testutil.Echo("a")).
		AddNode("b", mutate("b")).
		AddNode("c", mutate("c")).
		AddFanOut("a", "b", "c").
		SetStart("a").
		Build()
	require.NoError(t, err)

	input := core.NewMessage(map[string]any{"value": "original"})
	_, _, runErr := New(wf).RunSync(context.Background(), input)
	// both branches are sinks, so the run stalls; the mutation observations
	// are what this test is about
	require.Error(t, runErr)

	close(seen)
	var observed []string
	for v := range seen {
		observed = append(observed, v)
	}
	require.Len(t, observed, 2)
	assert.Equal(t, []string{"original", "original"}, observed)
}

func TestRunFanInJoinAll(t *testing.T) {
	var joinedPayload []core.Message
	join := testutil.NewFuncExecutor("join", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		joinedPayload = msg.Payload.([]core.Message)
		return []core.Message{core.NewMessage("joined")}, nil
	})

	label := func(name string) *testutil.FuncExecutor {
		return testutil.NewFuncExecutor(name, func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
			return []core.Message{core.NewMessage(name)}, nil
		})
	}

	wf, err := graph.NewBuilder().
		AddNode("a", testutil.Echo("a")).
		AddNode("b", label("b")).
		AddNode("c", label("c")).
		AddNode("join", join).
		AddFanOut("a", "b", "c").
		AddFanIn("join", []string{"b", "c"}).
		SetStart("a").
		Build()
	require.NoError(t, err)

	_, events, runErr := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.NoError(t, runErr)

	assert.Equal(t, 1, join.Calls())
	require.Len(t, joinedPayload, 2)
	payloads := []any{joinedPayload[0].Payload, joinedPayload[1].Payload}
	assert.ElementsMatch(t, []any{"b", "c"}, payloads)

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	require.Len(t, terminals[0].Outputs, 1)
	assert.Equal(t, "joined", terminals[0].Outputs[0].Payload)
}

func TestRunFanInThresholdNoRefire(t *testing.T) {
	join := testutil.NewFuncExecutor("join", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		return []core.Message{core.NewMessage("joined")}, nil
	})

	wf, err := graph.NewBuilder().
		AddNode("a", testutil.Echo("a")).
		AddNode("b", testutil.Echo("b")).
		AddNode("c", testutil.Echo("c")).
		AddNode("d", testutil.Echo("d")).
		AddNode("join", join).
		AddFanOut("a", "b", "c", "d").
		AddFanIn("join", []string{"b", "c", "d"}, graph.WithThreshold(2)).
		SetStart("a").
		Build()
	require.NoError(t, err)

	_, _, runErr := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.NoError(t, runErr)

	assert.Equal(t, 1, join.Calls())
}

func TestRunStateSharedAcrossNodes(t *testing.T) {
	writer := testutil.NewFuncExecutor("writer", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		rc.SetState("seen", msg.Payload)
		return []core.Message{msg}, nil
	})
	reader := testutil.NewFuncExecutor("reader", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		v, ok := rc.GetState("seen")
		if !ok {
			return nil, errors.New("state missing")
		}
		return []core.Message{core.NewMessage(v)}, nil
	})

	wf := buildLinear(t, writer, reader)

	_, events, err := New(wf).RunSync(context.Background(), core.NewMessage("shared"))
	require.NoError(t, err)

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	require.Len(t, terminals[0].Outputs, 1)
	assert.Equal(t, "shared", terminals[0].Outputs[0].Payload)
}

func TestRunRecordsHistory(t *testing.T) {
	store := history.NewInMemoryStore()
	wf := buildLinear(t, testutil.Echo("a"))

	r := New(wf, func(o *Options) { o.History = store })

	runID, events, err := r.RunSync(context.Background(), core.NewMessage("in"))
	require.NoError(t, err)

	recorded, err := store.Get(runID)
	require.NoError(t, err)
	require.Len(t, recorded, len(events))
	for i, ev := range events {
		assert.Equal(t, ev.ID, recorded[i].ID)
	}
}

func TestRunConcurrentRunsAreIsolated(t *testing.T) {
	counter := testutil.NewFuncExecutor("counter", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		rc.UpdateState("count", func(current any, ok bool) any {
			if !ok {
				return 1
			}
			return current.(int) + 1
		})
		v, _ := rc.GetState("count")
		return []core.Message{core.NewMessage(v)}, nil
	})

	wf := buildLinear(t, counter)
	r := New(wf)

	for i := 0; i < 5; i++ {
		_, events, err := r.RunSync(context.Background(), core.NewMessage("in"))
		require.NoError(t, err)

		terminals := testutil.TerminalEvents(events)
		require.Len(t, terminals, 1)
		require.Len(t, terminals[0].Outputs, 1)
		// each run has its own state, so the counter is always 1
		assert.Equal(t, 1, terminals[0].Outputs[0].Payload)
	}
}

func TestRunCustomEventsAreSequenced(t *testing.T) {
	emitter := testutil.NewFuncExecutor("emitter", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		for i := 0; i < 3; i++ {
			if err := rc.EmitCustom("tick", map[string]any{"i": i}); err != nil {
				return nil, err
			}
		}
		return []core.Message{msg}, nil
	})

	wf := buildLinear(t, emitter)

	_, events, err := New(wf).RunSync(context.Background(), core.NewMessage("in"))
	require.NoError(t, err)

	custom := testutil.EventsOfKind(events, core.EventCustom)
	require.Len(t, custom, 3)
	for i, ev := range custom {
		assert.Equal(t, "tick", ev.Name)
		assert.Equal(t, i, ev.Data["i"])
	}
}

func TestRunSyncRespectsContextDeadline(t *testing.T) {
	blocker := testutil.NewFuncExecutor("blocker", func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		<-rc.Done()
		return nil, nil
	})

	wf := buildLinear(t, blocker)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, events, err := New(wf).RunSync(ctx, core.NewMessage("in"))
	assert.ErrorIs(t, err, ErrRunCancelled)

	terminals := testutil.TerminalEvents(events)
	require.Len(t, terminals, 1)
	assert.Equal(t, core.EventRunCancelled, terminals[0].Kind)
}
