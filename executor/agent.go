package executor

import (
	"fmt"
	"time"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/internal/util"
	"github.com/flowmesh/flowmesh/model"
	"github.com/flowmesh/flowmesh/tool"
)

// DefaultMaxToolIterations bounds the generate -> tool-call -> tool-response
// loop so a model that keeps requesting tools cannot spin a run forever.
const DefaultMaxToolIterations = 8

// AgentExecutorOptions configures an AgentExecutor instance.
type AgentExecutorOptions struct {
	// Instructions is the system prompt sent with every model request.
	Instructions string
	// Description overrides the generated executor description.
	Description string
	// EnableStreaming requests streaming generation; partial chunks are
	// surfaced as "model.partial" custom events on the run's event stream.
	EnableStreaming bool
	// MaxToolIterations bounds the tool-call loop. Values below 1 fall back
	// to DefaultMaxToolIterations.
	MaxToolIterations int
	// Tools pre-registers tools for function calling.
	Tools []tool.Tool
}

// AgentExecutor is a model-backed workflow node. Each delivered message
// becomes a user turn; the executor drives the model (with function calling
// against its registered tools) until the model produces a plain assistant
// response, which is returned as the outgoing message.
//
// Model calls count against the run's shared CallLimiter, so a workflow can
// cap total LLM spend across all agent nodes via runner configuration.
type AgentExecutor struct {
	BaseExecutor
	llm               model.Model
	instructions      string
	enableStreaming   bool
	maxToolIterations int
	tools             map[string]tool.Tool
}

// NewAgentExecutor creates a model-backed executor with sensible defaults:
// generic assistant instructions, no streaming, an empty tool registry and
// the default tool-loop bound.
func NewAgentExecutor(name string, llm model.Model, optFns ...func(o *AgentExecutorOptions)) *AgentExecutor {
	opts := AgentExecutorOptions{
		Instructions:      fmt.Sprintf("You are %s, a helpful assistant.", name),
		MaxToolIterations: DefaultMaxToolIterations,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxToolIterations < 1 {
		opts.MaxToolIterations = DefaultMaxToolIterations
	}

	base := NewBaseExecutor(name, nil)
	if opts.Description != "" {
		base.SetDescription(opts.Description)
	}

	e := &AgentExecutor{
		BaseExecutor:      base,
		llm:               llm,
		instructions:      opts.Instructions,
		enableStreaming:   opts.EnableStreaming,
		maxToolIterations: opts.MaxToolIterations,
		tools:             make(map[string]tool.Tool),
	}
	e.RegisterTools(opts.Tools...)

	return e
}

// RegisterTool adds a tool to the executor's capability set. Registered tools
// become available for the model to call during generation.
func (e *AgentExecutor) RegisterTool(t tool.Tool) {
	e.tools[t.Name()] = t
}

// RegisterTools adds multiple tools at once.
func (e *AgentExecutor) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		e.RegisterTool(t)
	}
}

// HasTool checks whether a tool is registered.
func (e *AgentExecutor) HasTool(name string) bool {
	_, exists := e.tools[name]
	return exists
}

// ListTools returns the names of all registered tools.
func (e *AgentExecutor) ListTools() []string {
	names := make([]string, 0, len(e.tools))
	for name := range e.tools {
		names = append(names, name)
	}
	return names
}

// Execute runs the agent loop: build a conversation from the inbound message,
// generate, execute any requested tool calls, feed the responses back and
// repeat until the model answers in plain text or the iteration bound trips.
func (e *AgentExecutor) Execute(rc *core.RunContext, msg core.Message) ([]core.Message, error) {
	contents, err := contentsFromMessage(msg)
	if err != nil {
		return nil, err
	}

	for iteration := 0; iteration < e.maxToolIterations; iteration++ {
		final, err := e.generate(rc, contents)
		if err != nil {
			return nil, err
		}

		calls := final.Content.FunctionCalls()
		if len(calls) == 0 {
			out := core.NewMessageWithMetadata(final.Content.Text(), map[string]any{
				"role":          "assistant",
				"finish_reason": final.FinishReason,
			})
			return []core.Message{out}, nil
		}

		contents = append(contents, final.Content)
		contents = append(contents, e.executeToolCalls(rc, calls))
	}

	return nil, fmt.Errorf("agent %s exceeded %d tool iterations without a final response", e.Name(), e.maxToolIterations)
}

// generate performs one model turn, forwarding streaming partials as custom
// events and returning the final (non-partial) response.
func (e *AgentExecutor) generate(rc *core.RunContext, contents []model.Content) (*model.Response, error) {
	if rc.Limiter != nil {
		if err := rc.Limiter.Increment(); err != nil {
			return nil, err
		}
	}

	req := model.Request{
		Instructions: e.instructions,
		Contents:     contents,
		Tools:        e.toolDefinitions(),
		Stream:       e.enableStreaming,
	}

	start := time.Now()
	respCh, errCh := e.llm.Generate(rc.Context, req)

	var final *model.Response
	for resp := range respCh {
		if resp.Partial {
			_ = rc.EmitCustom("model.partial", map[string]any{
				"agent": e.Name(),
				"text":  resp.Content.Text(),
			})
			continue
		}
		r := resp
		final = &r
	}

	if err, ok := <-errCh; ok && err != nil {
		return nil, fmt.Errorf("model generation failed: %w", err)
	}

	if final == nil {
		return nil, fmt.Errorf("model %s returned no final response", e.llm.Info().Name)
	}

	rc.LogInfo(
		"agent.llm.generated",
		"agent", e.Name(),
		"model", e.llm.Info().Name,
		"finish_reason", final.FinishReason,
		"fn_calls", len(final.Content.FunctionCalls()),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return final, nil
}

// executeToolCalls runs each requested call against the registry and returns
// a single tool-role content carrying one response part per call. Tool
// failures are reported back to the model rather than failing the node, so
// the model can recover or explain.
func (e *AgentExecutor) executeToolCalls(rc *core.RunContext, calls []model.FunctionCall) model.Content {
	parts := make([]model.Part, 0, len(calls))

	for _, fc := range calls {
		result, err := e.executeTool(rc, fc)

		fr := model.FunctionResponse{
			ID:   fc.ID,
			Name: fc.Name,
		}
		if err != nil {
			fr.Error = err.Error()
			rc.LogWarn("agent.tool.failed", "agent", e.Name(), "tool", fc.Name, "error", err.Error())
		} else {
			fr.Response = result
		}

		parts = append(parts, model.FunctionResponsePart{FunctionResponse: fr})
	}

	return model.Content{Role: "tool", Parts: parts}
}

// executeTool resolves and invokes one tool call. Arguments are decoded with
// a repair fallback since models emit slightly malformed JSON.
func (e *AgentExecutor) executeTool(rc *core.RunContext, fc model.FunctionCall) (any, error) {
	impl, exists := e.tools[fc.Name]
	if !exists {
		return nil, fmt.Errorf("tool %s not found", fc.Name)
	}

	args, err := util.DecodeArguments(fc.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to decode arguments for %s: %w", fc.Name, err)
	}

	start := time.Now()
	result, err := impl.Call(rc, args)

	rc.LogInfo(
		"agent.tool.executed",
		"agent", e.Name(),
		"tool", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return result, err
}

// toolDefinitions exposes the registry as model tool declarations.
func (e *AgentExecutor) toolDefinitions() []model.ToolDefinition {
	if len(e.tools) == 0 {
		return nil
	}

	defs := make([]model.ToolDefinition, 0, len(e.tools))
	for _, t := range e.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	return defs
}

// contentsFromMessage normalizes an inbound payload into a conversation.
func contentsFromMessage(msg core.Message) ([]model.Content, error) {
	switch payload := msg.Payload.(type) {
	case string:
		return []model.Content{model.NewUserContent(payload)}, nil
	case model.Content:
		return []model.Content{payload}, nil
	case []model.Content:
		contents := make([]model.Content, len(payload))
		copy(contents, payload)
		return contents, nil
	case nil:
		return nil, fmt.Errorf("agent input payload is nil")
	default:
		return nil, fmt.Errorf("unsupported agent input payload type %T", payload)
	}
}
