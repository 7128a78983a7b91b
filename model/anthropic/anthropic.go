// Package anthropic adapts the Anthropic Messages API to the model.Model
// interface.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/flowmesh/flowmesh/model"
)

// Options configure the Anthropic adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model implements model.Model on top of the official Anthropic client.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewModel creates an adapter with its own client. An empty APIKey defers to
// the environment (ANTHROPIC_API_KEY).
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates an adapter around an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

// Info returns metadata describing this adapter.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}

// Generate converts the normalized request into Messages API parameters and
// issues a single completion. Responses and errors are delivered on the
// returned channels; both close when generation ends.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if req.Stream {
			// TODO: implement streaming via anthropic.MessageStreamEvent
			// accumulation (partial text + tool_use deltas)
			errCh <- fmt.Errorf("streaming not yet implemented for Anthropic model")
			return
		}

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    conversationMessages(req.Contents),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if system := systemBlocks(req); len(system) > 0 {
			params.System = system
		}
		if len(req.Tools) > 0 {
			params.Tools = toolParams(req.Tools)
		}

		resp, err := m.client.Messages.New(ctx, params)
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		out <- responseFromMessage(resp)
	}()

	return out, errCh
}

func responseFromMessage(resp *anthropic.Message) model.Response {
	var parts []model.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			tb := block.AsText()
			if tb.Text != "" {
				parts = append(parts, model.TextPart{Text: tb.Text})
			}
		case "tool_use":
			tu := block.AsToolUse()
			args := ""
			if tu.Input != nil {
				if raw, err := json.Marshal(tu.Input); err == nil {
					args = string(raw)
				}
			}
			parts = append(parts, model.FunctionCallPart{FunctionCall: model.FunctionCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			}})
		}
	}

	finish := "stop"
	if resp.StopReason != "" {
		finish = string(resp.StopReason)
	}

	return model.Response{
		Content:      model.Content{Role: "assistant", Parts: parts},
		FinishReason: finish,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

// systemBlocks merges request instructions and system-role contents. The
// Messages API carries system text in a dedicated parameter instead of the
// conversation.
func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam

	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, c := range req.Contents {
		if c.Role != "system" {
			continue
		}
		if text := c.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}

	return blocks
}

// conversationMessages converts normalized contents to Messages API turns.
// Tool results are embedded into the assistant turn that requested them, as
// tool_result blocks following the tool_use blocks.
func conversationMessages(contents []model.Content) []anthropic.MessageParam {
	results := toolResultIndex(contents)

	var msgs []anthropic.MessageParam

	for _, c := range contents {
		switch c.Role {
		case "system", "tool":
			// System text travels as a parameter; tool results are embedded
			// into assistant turns via the index.
		case "assistant":
			if blocks := assistantBlocks(c, results); len(blocks) > 0 {
				msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			if text := c.Text(); text != "" {
				msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}

	return msgs
}

// toolResultIndex maps tool call IDs to rendered result bodies. Failed calls
// render as an error line so the model sees the failure.
func toolResultIndex(contents []model.Content) map[string]string {
	results := map[string]string{}

	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, fr := range c.FunctionResponses() {
			if fr.ID == "" {
				continue
			}

			body := fmt.Sprintf("%v", fr.Response)
			if s, ok := fr.Response.(string); ok {
				body = s
			}
			if fr.Error != "" {
				body = fmt.Sprintf("error: %s", fr.Error)
			}

			results[fr.ID] = body
		}
	}

	return results
}

// assistantBlocks renders one assistant turn: text, tool_use blocks and the
// matching tool_result blocks, in that order.
func assistantBlocks(c model.Content, results map[string]string) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	var callIDs []string

	for _, p := range c.Parts {
		switch part := p.(type) {
		case model.TextPart:
			if part.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(part.Text))
			}
		case model.FunctionCallPart:
			var input any
			if part.FunctionCall.Arguments != "" {
				if err := json.Unmarshal([]byte(part.FunctionCall.Arguments), &input); err != nil {
					input = part.FunctionCall.Arguments
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(
				part.FunctionCall.ID,
				input,
				part.FunctionCall.Name,
			))
			callIDs = append(callIDs, part.FunctionCall.ID)
		}
	}

	for _, id := range callIDs {
		if body, ok := results[id]; ok {
			blocks = append(blocks, anthropic.NewToolResultBlock(id, body, false))
			delete(results, id)
		}
	}

	return blocks
}

// toolParams converts normalized tool definitions to Messages API tool
// parameters. The normalized parameter schema is already JSON-Schema shaped,
// so properties and required pass through.
func toolParams(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	params := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}

		if p := t.Function.Parameters; p != nil {
			if props, ok := p["properties"]; ok {
				schema.Properties = props
			}
			switch req := p["required"].(type) {
			case []string:
				schema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}

		params[i] = anthropic.ToolUnionParamOfTool(schema, t.Function.Name)
	}

	return params
}
