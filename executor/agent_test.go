package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/core"
	"github.com/flowmesh/flowmesh/model"
	"github.com/flowmesh/flowmesh/tool"
)

func TestAgentExecutorPlainResponse(t *testing.T) {
	mock := model.NewMockModel("mock-1", "mock")
	mock.AddResponse("hi", "hello there")

	agent := NewAgentExecutor("assistant", mock)

	outputs, err := agent.Execute(newTestRunContext(t, nil), core.NewMessage("hi"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "hello there", outputs[0].Payload)
	assert.Equal(t, "assistant", outputs[0].Metadata["role"])
	assert.Equal(t, "stop", outputs[0].Metadata["finish_reason"])
}

func TestAgentExecutorToolLoop(t *testing.T) {
	mock := model.NewMockModel("mock-1", "mock")
	mock.AddToolCalls("weather in berlin", model.FunctionCall{
		ID:        "call-1",
		Name:      "get_weather",
		Arguments: `{"city": "Berlin"}`,
	})
	// After the tool turn the mock sees a tool-role content whose text is empty.
	mock.AddResponse("", "It is sunny in Berlin.")

	var gotCity string
	weather := tool.NewFunctionTool("get_weather", "Returns the weather for a city",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []string{"city"},
		},
		func(rc *core.RunContext, args map[string]any) (any, error) {
			gotCity, _ = args["city"].(string)
			return "sunny", nil
		},
	)

	agent := NewAgentExecutor("assistant", mock, func(o *AgentExecutorOptions) {
		o.Tools = []tool.Tool{weather}
	})
	require.True(t, agent.HasTool("get_weather"))

	outputs, err := agent.Execute(newTestRunContext(t, nil), core.NewMessage("weather in berlin"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "It is sunny in Berlin.", outputs[0].Payload)
	assert.Equal(t, "Berlin", gotCity)
}

func TestAgentExecutorRepairsToolArguments(t *testing.T) {
	mock := model.NewMockModel("mock-1", "mock")
	mock.AddToolCalls("lookup", model.FunctionCall{
		ID:        "call-1",
		Name:      "lookup",
		Arguments: `{"key": "alpha",}`, // trailing comma
	})
	mock.AddResponse("", "done")

	var gotKey string
	lookup := tool.NewFunctionTool("lookup", "Looks up a key",
		map[string]any{"type": "object"},
		func(rc *core.RunContext, args map[string]any) (any, error) {
			gotKey, _ = args["key"].(string)
			return "value", nil
		},
	)

	agent := NewAgentExecutor("assistant", mock, func(o *AgentExecutorOptions) {
		o.Tools = []tool.Tool{lookup}
	})

	_, err := agent.Execute(newTestRunContext(t, nil), core.NewMessage("lookup"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", gotKey)
}

func TestAgentExecutorUnknownToolReportedToModel(t *testing.T) {
	mock := model.NewMockModel("mock-1", "mock")
	mock.AddToolCalls("do it", model.FunctionCall{
		ID:        "call-1",
		Name:      "missing_tool",
		Arguments: `{}`,
	})
	mock.AddResponse("", "I could not run that tool.")

	agent := NewAgentExecutor("assistant", mock)

	outputs, err := agent.Execute(newTestRunContext(t, nil), core.NewMessage("do it"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "I could not run that tool.", outputs[0].Payload)
}

func TestAgentExecutorIterationBound(t *testing.T) {
	mock := model.NewMockModel("mock-1", "mock")
	call := model.FunctionCall{ID: "call-1", Name: "echo", Arguments: `{}`}
	mock.AddToolCalls("loop", call)
	// The tool turn's empty text keeps triggering more tool calls.
	mock.AddToolCalls("", call)

	echo := tool.NewFunctionTool("echo", "Echoes",
		map[string]any{"type": "object"},
		func(rc *core.RunContext, args map[string]any) (any, error) {
			return "again", nil
		},
	)

	agent := NewAgentExecutor("assistant", mock, func(o *AgentExecutorOptions) {
		o.Tools = []tool.Tool{echo}
		o.MaxToolIterations = 3
	})

	_, err := agent.Execute(newTestRunContext(t, nil), core.NewMessage("loop"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool iterations")
}

func TestAgentExecutorModelCallLimit(t *testing.T) {
	mock := model.NewMockModel("mock-1", "mock")
	call := model.FunctionCall{ID: "call-1", Name: "echo", Arguments: `{}`}
	mock.AddToolCalls("loop", call)
	mock.AddToolCalls("", call)

	echo := tool.NewFunctionTool("echo", "Echoes",
		map[string]any{"type": "object"},
		func(rc *core.RunContext, args map[string]any) (any, error) {
			return "again", nil
		},
	)

	agent := NewAgentExecutor("assistant", mock, func(o *AgentExecutorOptions) {
		o.Tools = []tool.Tool{echo}
	})

	rc := newTestRunContext(t, core.NewCallLimiter(2))

	_, err := agent.Execute(rc, core.NewMessage("loop"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max model calls")
}

func TestAgentExecutorStreamingEmitsPartials(t *testing.T) {
	mock := model.NewMockModel("mock-1", "mock")
	mock.AddResponse("hi", "ok")

	agent := NewAgentExecutor("assistant", mock, func(o *AgentExecutorOptions) {
		o.EnableStreaming = true
	})

	emit := make(chan core.Event, 64)
	rc := core.NewRunContext(
		t.Context(),
		"run-test",
		emit,
		core.NewState(),
		core.NewCallLimiter(0),
		nil,
		nil,
		nil,
	)

	outputs, err := agent.Execute(rc, core.NewMessage("hi"))
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	close(emit)
	var partials int
	for ev := range emit {
		if ev.Kind == core.EventCustom && ev.Name == "model.partial" {
			partials++
		}
	}
	assert.Equal(t, 2, partials) // one per char of "ok"
}

func TestAgentExecutorRejectsUnsupportedPayload(t *testing.T) {
	mock := model.NewMockModel("mock-1", "mock")
	agent := NewAgentExecutor("assistant", mock)

	_, err := agent.Execute(newTestRunContext(t, nil), core.NewMessage(42))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported agent input payload")
}

func TestAgentExecutorAcceptsContentPayloads(t *testing.T) {
	mock := model.NewMockModel("mock-1", "mock")
	mock.AddResponse("question", "answer")

	agent := NewAgentExecutor("assistant", mock)

	outputs, err := agent.Execute(
		newTestRunContext(t, nil),
		core.NewMessage(model.NewUserContent("question")),
	)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "answer", outputs[0].Payload)

	history := []model.Content{
		model.NewUserContent("earlier"),
		model.NewAssistantContent("noted"),
		model.NewUserContent("question"),
	}
	outputs, err = agent.Execute(newTestRunContext(t, nil), core.NewMessage(history))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "answer", outputs[0].Payload)
}
