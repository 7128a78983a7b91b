// Package openai adapts the OpenAI Chat Completions API (streaming and
// function/tool calling) to the model.Model interface.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/flowmesh/flowmesh/model"
)

// Options configure the OpenAI adapter. The field set mirrors the Chat
// Completion parameters FlowMesh needs; everything else stays at SDK defaults.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model implements model.Model on top of the official OpenAI client.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates an adapter with a client configured from the environment
// (OPENAI_API_KEY).
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates an adapter around an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

// Info returns metadata describing this adapter.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}

// Generate converts the normalized request into Chat Completion parameters
// and runs either the streaming or the one-shot path. Responses and errors
// are delivered on the returned channels; both close when generation ends.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.requestParams(req)

		if req.Stream {
			m.streamCompletion(ctx, params, out, errCh)
			return
		}
		m.completeOnce(ctx, params, out, errCh)
	}()

	return out, errCh
}

// requestParams assembles the full Chat Completion parameter set: message
// history, sampling options and tool definitions.
func (m *Model) requestParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            chatMessages(req),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}

	if len(req.Tools) > 0 {
		defs := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, t := range req.Tools {
			defs[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        t.Function.Name,
					Description: openai.String(t.Function.Description),
					Parameters:  t.Function.Parameters,
				},
			}
		}
		params.Tools = defs
	}

	return params
}

// chatMessages converts normalized contents into the SDK message union.
// Instructions lead as a system message. Tool results are indexed by call ID
// so each one lands directly after the assistant message that requested it;
// results whose call never appears are appended at the end in first-seen
// order.
func chatMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	results, pending := toolResultIndex(req.Contents)

	var msgs []openai.ChatCompletionMessageParamUnion

	if req.Instructions != "" {
		msgs = append(msgs, openai.SystemMessage(req.Instructions))
	}

	for _, c := range req.Contents {
		switch c.Role {
		case "tool":
			// Indexed above, emitted after the matching assistant turn.
		case "system":
			msgs = append(msgs, openai.SystemMessage(c.Text()))
		case "assistant":
			calls := c.FunctionCalls()
			if len(calls) == 0 {
				msgs = append(msgs, openai.AssistantMessage(c.Text()))
				continue
			}

			sdkCalls := make([]openai.ChatCompletionMessageToolCallParam, len(calls))
			for i, fc := range calls {
				sdkCalls[i] = openai.ChatCompletionMessageToolCallParam{
					ID:   fc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      fc.Name,
						Arguments: fc.Arguments,
					},
				}
			}
			msgs = append(msgs, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: sdkCalls,
				},
			})

			for _, fc := range calls {
				if body, ok := results[fc.ID]; ok {
					msgs = append(msgs, openai.ToolMessage(body, fc.ID))
					delete(results, fc.ID)
				}
			}
		default:
			if text := c.Text(); text != "" {
				msgs = append(msgs, openai.UserMessage(text))
			}
		}
	}

	for _, id := range pending {
		if body, ok := results[id]; ok {
			msgs = append(msgs, openai.ToolMessage(body, id))
		}
	}

	return msgs
}

// toolResultIndex maps tool call IDs to rendered result bodies, keeping
// first-seen order. Failed calls render as an error line so the model sees
// the failure instead of a silent gap.
func toolResultIndex(contents []model.Content) (map[string]string, []string) {
	results := map[string]string{}
	var order []string

	for _, c := range contents {
		if c.Role != "tool" {
			continue
		}
		for _, fr := range c.FunctionResponses() {
			if fr.ID == "" {
				continue
			}
			if _, seen := results[fr.ID]; seen {
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
			order = append(order, fr.ID)
		}
	}

	return results, order
}

// callBuffer accumulates streamed tool call fragments for one call index
// until the finish chunk arrives.
type callBuffer struct {
	id   string
	name string
	args strings.Builder
}

func (b *callBuffer) part() model.FunctionCallPart {
	return model.FunctionCallPart{FunctionCall: model.FunctionCall{
		ID:        b.id,
		Name:      b.name,
		Arguments: b.args.String(),
	}}
}

// streamCompletion consumes the SSE stream, forwarding text deltas and tool
// call fragments as partial responses and a consolidated final response on
// the finish chunk.
func (m *Model) streamCompletion(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response, errCh chan<- error) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)

	var text strings.Builder
	calls := map[int64]*callBuffer{}

	for stream.Next() {
		chunk := stream.Current()

		for _, choice := range chunk.Choices {
			if delta := choice.Delta.Content; delta != "" {
				text.WriteString(delta)
				out <- model.Response{
					Partial: true,
					Content: model.Content{
						Role:  "assistant",
						Parts: []model.Part{model.TextPart{Text: delta}},
					},
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				buf, ok := calls[tc.Index]
				if !ok {
					buf = &callBuffer{}
					calls[tc.Index] = buf
				}
				if tc.ID != "" {
					buf.id = tc.ID
				}
				if tc.Function.Name != "" {
					buf.name = tc.Function.Name
				}
				buf.args.WriteString(tc.Function.Arguments)

				out <- model.Response{
					Partial: true,
					Content: model.Content{
						Role:  "assistant",
						Parts: []model.Part{buf.part()},
					},
				}
			}

			if choice.FinishReason == "" {
				continue
			}

			parts := make([]model.Part, 0, len(calls)+1)
			if text.Len() > 0 {
				parts = append(parts, model.TextPart{Text: text.String()})
			}
			for _, buf := range calls {
				parts = append(parts, buf.part())
			}

			out <- model.Response{
				Content:      model.Content{Role: "assistant", Parts: parts},
				FinishReason: choice.FinishReason,
			}
		}
	}

	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
	}
}

// completeOnce issues a single non-streaming completion.
func (m *Model) completeOnce(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Response, errCh chan<- error) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}

	choice := resp.Choices[0]

	parts := make([]model.Part, 0, len(choice.Message.ToolCalls)+1)
	if choice.Message.Content != "" {
		parts = append(parts, model.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		parts = append(parts, model.FunctionCallPart{FunctionCall: model.FunctionCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}})
	}

	out <- model.Response{
		Content:      model.Content{Role: "assistant", Parts: parts},
		FinishReason: choice.FinishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}
