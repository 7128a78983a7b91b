// Package tool implements the function / tool calling subsystem that lets
// agent executors invoke structured capabilities (APIs, computations,
// side effects) with schema validated arguments, consistent error handling
// and rich metadata for LLM guidance.
package tool

import (
	"fmt"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/internal/util"
)

// Tool is a callable capability registered on an AgentExecutor, letting
// models act beyond text generation (API calls, calculations, lookups).
//
// Every call receives the RunContext of the node invocation that triggered
// it, giving access to run-scoped state, custom event emission and logging.
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique identifier for this tool, snake_case by
	// convention.
	Name() string

	// Description tells the model what the tool does and when to use it.
	Description() string

	// Parameters returns the JSON schema used for argument validation and
	// for the model's function declaration.
	Parameters() map[string]interface{}

	// Call executes the tool. Arguments arrive parsed from the model's JSON
	// and validated against the tool's schema.
	Call(rc *core.RunContext, args map[string]interface{}) (interface{}, error)
}

// ValidationError reports a parameter that failed schema validation.
type ValidationError = util.ValidationError

// ToolError is the normalized failure type for tool execution. Code
// categorizes the failure (VALIDATION_ERROR, EXECUTION_ERROR, or a
// tool-specific code).
type ToolError struct {
	Tool    string      `json:"tool"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the given code.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
