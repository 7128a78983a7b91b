package executor

import (
	"reflect"

	"github.com/flowmesh/flowmesh/core"
)

// HandlerFunc is the signature wrapped by FunctionExecutor. It receives the
// per-invocation RunContext and the delivered message and returns the
// messages to route onward. Returning an empty slice is valid for sinks.
type HandlerFunc func(rc *core.RunContext, msg core.Message) ([]core.Message, error)

// FunctionExecutorOptions configures a FunctionExecutor instance.
type FunctionExecutorOptions struct {
	// Description overrides the generated description.
	Description string
	// InputType restricts accepted payloads. Nil accepts any payload.
	InputType reflect.Type
}

// FunctionExecutor adapts a plain Go function into a workflow node. It is the
// simplest Executor implementation and the workhorse for transformation,
// filtering and aggregation steps.
type FunctionExecutor struct {
	BaseExecutor
	fn HandlerFunc
}

// NewFunctionExecutor wraps fn as an executor named name.
//
// Example:
//
//	upper := executor.NewFunctionExecutor("upper",
//	    func(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
//	        s, _ := msg.Payload.(string)
//	        return []core.Message{core.NewMessage(strings.ToUpper(s))}, nil
//	    },
//	    func(o *executor.FunctionExecutorOptions) {
//	        o.InputType = reflect.TypeOf("")
//	    },
//	)
func NewFunctionExecutor(name string, fn HandlerFunc, optFns ...func(o *FunctionExecutorOptions)) *FunctionExecutor {
	opts := FunctionExecutorOptions{}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	base := NewBaseExecutor(name, opts.InputType)
	if opts.Description != "" {
		base.SetDescription(opts.Description)
	}

	return &FunctionExecutor{
		BaseExecutor: base,
		fn:           fn,
	}
}

// Execute invokes the wrapped function.
func (e *FunctionExecutor) Execute(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
	return e.fn(rc, msg)
}
