package testutil

import (
	"reflect"
	"sync/atomic"

	"github.com/flowmesh/flowmesh/core"
)

// FuncExecutor adapts a plain function into a core.Executor for tests.
// InputType is optional; nil accepts any payload. Call counting is atomic so
// tests can assert on concurrently executed nodes.
type FuncExecutor struct {
	ExecName string
	ExecDesc string
	Input    reflect.Type
	Fn       func(rc *core.RunContext, msg core.Message) ([]core.Message, error)

	calls atomic.Int64
}

// NewFuncExecutor creates a test executor around fn.
func NewFuncExecutor(name string, fn func(rc *core.RunContext, msg core.Message) ([]core.Message, error)) *FuncExecutor {
	return &FuncExecutor{ExecName: name, ExecDesc: "test executor", Fn: fn}
}

// Name returns the executor name.
func (e *FuncExecutor) Name() string { return e.ExecName }

// Description returns the executor description.
func (e *FuncExecutor) Description() string { return e.ExecDesc }

// InputType returns the declared input type (nil accepts any).
func (e *FuncExecutor) InputType() reflect.Type { return e.Input }

// Execute invokes the wrapped function and counts the call.
func (e *FuncExecutor) Execute(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
	e.calls.Add(1)
	return e.Fn(rc, msg)
}

// Calls returns how many times Execute has been invoked.
func (e *FuncExecutor) Calls() int { return int(e.calls.Load()) }

// Echo returns an executor that forwards its input unchanged.
func Echo(name string) *FuncExecutor {
	return NewFuncExecutor(name, func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		return []core.Message{msg}, nil
	})
}

// Failing returns an executor that always fails with the given error.
func Failing(name string, err error) *FuncExecutor {
	return NewFuncExecutor(name, func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		return nil, err
	})
}

// Sink returns an executor that consumes its input and produces nothing.
func Sink(name string) *FuncExecutor {
	return NewFuncExecutor(name, func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
		return nil, nil
	})
}

// EventsOfKind filters events by kind, preserving order.
func EventsOfKind(events []core.Event, kind core.EventKind) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// TerminalEvents returns the terminal events in the slice (a correct run has
// exactly one).
func TerminalEvents(events []core.Event) []core.Event {
	var out []core.Event
	for _, ev := range events {
		if ev.IsTerminal() {
			out = append(out, ev)
		}
	}
	return out
}
