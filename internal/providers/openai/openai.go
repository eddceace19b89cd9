// Package openai adapts the OpenAI Chat Completions API to
// orchestrator.ContentGenerator, translating model.History into
// openai.ChatCompletionNewParams and tool_calls entries back into
// functioncall.Request values in the OpenAI-style shape spec.md §6
// documents. Grounded on
// _examples/goadesign-goa-ai/features/model/openai/client.go for the
// adapter shape and
// _examples/other_examples/e9ef1f91_NeboLoop-nebo__internal-agent-ai-api_openai.go.go
// for the official github.com/openai/openai-go parameter types.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/fletchway/agentcore/internal/functioncall"
	"github.com/fletchway/agentcore/internal/model"
	"github.com/fletchway/agentcore/internal/orchestrator"
	"github.com/fletchway/agentcore/internal/schema"
)

// ChatClient is the subset of the official SDK used here, satisfied by
// client.Chat.Completions in production and a fake in tests.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the generator.
type Options struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Generator implements orchestrator.ContentGenerator against the OpenAI
// Chat Completions API.
type Generator struct {
	chat  ChatClient
	tools []openai.ChatCompletionToolParam
	opts  Options
}

// New builds a Generator from tool declarations and chat options.
func New(chat ChatClient, declarations []schema.Declaration, opts Options) (*Generator, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("openai: model identifier is required")
	}
	tools, err := encodeTools(declarations)
	if err != nil {
		return nil, err
	}
	return &Generator{chat: chat, tools: tools, opts: opts}, nil
}

var _ orchestrator.ContentGenerator = (*Generator)(nil)

// Generate implements orchestrator.ContentGenerator.
func (g *Generator) Generate(ctx context.Context, history model.History) (orchestrator.Turn, error) {
	messages, err := encodeMessages(history)
	if err != nil {
		return orchestrator.Turn{}, err
	}
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(g.opts.Model),
		Messages: messages,
	}
	if g.opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(g.opts.MaxTokens)
	}
	if g.opts.Temperature > 0 {
		params.Temperature = openai.Float(g.opts.Temperature)
	}
	if len(g.tools) > 0 {
		params.Tools = g.tools
	}

	resp, err := g.chat.New(ctx, params)
	if err != nil {
		return orchestrator.Turn{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateResponse(resp)
}

func encodeTools(decls []schema.Declaration) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(decls))
	for _, d := range decls {
		raw, err := json.Marshal(d.Parameters)
		if err != nil {
			return nil, fmt.Errorf("openai: marshal schema for %q: %w", d.Name, err)
		}
		var params map[string]any
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("openai: decode schema for %q: %w", d.Name, err)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  shared.FunctionParameters(params),
			},
		})
	}
	return out, nil
}

// encodeMessages translates internal history into the official SDK's
// ChatCompletionMessageParamUnion list: user/model text maps to
// user/assistant messages, model-issued FunctionCallPart becomes an
// assistant message's tool_calls, and tool-role FunctionResponsePart becomes
// a role:"tool" message keyed by tool_call_id.
func encodeMessages(history model.History) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range history {
		switch msg.Role {
		case model.RoleUser:
			if text := msg.Text(); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		case model.RoleModel:
			assistantMsgs, err := encodeAssistantMessage(msg)
			if err != nil {
				return nil, err
			}
			out = append(out, assistantMsgs...)
		case model.RoleTool:
			toolMsgs, err := encodeToolMessages(msg)
			if err != nil {
				return nil, err
			}
			out = append(out, toolMsgs...)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func encodeAssistantMessage(msg model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	text := msg.Text()
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, p := range msg.Parts {
		fc, ok := p.(model.FunctionCallPart)
		if !ok {
			continue
		}
		args, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, fmt.Errorf("openai: marshal args for %q: %w", fc.Name, err)
		}
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   fc.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      fc.Name,
				Arguments: string(args),
			},
		})
	}
	if text == "" && len(toolCalls) == 0 {
		return nil, nil
	}
	content := text
	if content == "" && len(toolCalls) > 0 {
		content = " "
	}
	assistantMsg := openai.ChatCompletionAssistantMessageParam{Role: "assistant"}
	if content != "" {
		assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(content)}
	}
	if len(toolCalls) > 0 {
		assistantMsg.ToolCalls = toolCalls
	}
	return []openai.ChatCompletionMessageParamUnion{{OfAssistant: &assistantMsg}}, nil
}

func encodeToolMessages(msg model.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	for _, p := range msg.Parts {
		fr, ok := p.(model.FunctionResponsePart)
		if !ok {
			continue
		}
		content := ""
		if errMsg, ok := fr.Response["error"]; ok {
			content = fmt.Sprint(errMsg)
		} else if out2, ok := fr.Response["output"]; ok {
			if s, ok := out2.(string); ok {
				content = s
			} else {
				b, err := json.Marshal(out2)
				if err != nil {
					return nil, fmt.Errorf("openai: marshal tool result for %q: %w", fr.ID, err)
				}
				content = string(b)
			}
		}
		out = append(out, openai.ToolMessage(content, fr.ID))
	}
	return out, nil
}

// translateResponse converts a ChatCompletion into an orchestrator.Turn,
// parsing tool_calls through functioncall.ParseOpenAI so malformed
// "arguments" JSON is handled per spec.md §9's resolved Open Question.
func translateResponse(resp *openai.ChatCompletion) (orchestrator.Turn, error) {
	if len(resp.Choices) == 0 {
		return orchestrator.Turn{}, errors.New("openai: response contained no choices")
	}
	choice := resp.Choices[0]
	turn := orchestrator.Turn{
		Text:     choice.Message.Content,
		Provider: functioncall.ProviderOpenAI,
	}
	if len(choice.Message.ToolCalls) == 0 {
		turn.FinishedAll = true
		return turn, nil
	}
	raw, err := json.Marshal(choice.Message.ToolCalls)
	if err != nil {
		return orchestrator.Turn{}, fmt.Errorf("openai: marshal tool_calls: %w", err)
	}
	calls, err := functioncall.ParseOpenAIJSON(raw)
	if err != nil {
		return orchestrator.Turn{}, err
	}
	turn.Calls = calls
	return turn, nil
}
