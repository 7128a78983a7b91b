package executor

import (
	"fmt"
	"reflect"
)

// BaseExecutor bundles the identity helpers shared by concrete executor
// implementations. Embed it and supply an Execute method to satisfy
// core.Executor.
type BaseExecutor struct {
	name        string
	description string
	inputType   reflect.Type
}

// NewBaseExecutor constructs a BaseExecutor with a generated description
// (customizable via SetDescription). A nil inputType accepts any payload.
func NewBaseExecutor(name string, inputType reflect.Type) BaseExecutor {
	return BaseExecutor{
		name:        name,
		description: fmt.Sprintf("Executor %s", name),
		inputType:   inputType,
	}
}

// Name returns the human-readable name for this executor.
func (b *BaseExecutor) Name() string { return b.name }

// Description returns a detailed description of this executor's purpose.
func (b *BaseExecutor) Description() string { return b.description }

// SetDescription updates the executor's description.
func (b *BaseExecutor) SetDescription(desc string) { b.description = desc }

// InputType returns the payload type this executor accepts, or nil for any.
func (b *BaseExecutor) InputType() reflect.Type { return b.inputType }
