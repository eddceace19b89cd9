// Package anthropic adapts the Anthropic Claude Messages API to
// orchestrator.ContentGenerator, translating model.History into
// sdk.MessageNewParams and tool_use content blocks back into
// functioncall.Request values in the native-structured shape spec.md §6
// documents. Grounded on
// _examples/goadesign-goa-ai/features/model/anthropic/{client.go,stream.go}.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/fletchway/agentcore/internal/functioncall"
	"github.com/fletchway/agentcore/internal/model"
	"github.com/fletchway/agentcore/internal/orchestrator"
	"github.com/fletchway/agentcore/internal/schema"
)

// MessagesClient is the subset of the Anthropic SDK used here, satisfied by
// *sdk.MessageService in production and a fake in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the generator.
type Options struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// Generator implements orchestrator.ContentGenerator against the Anthropic
// Messages API.
type Generator struct {
	msg   MessagesClient
	tools []schema.NativeWrapper
	opts  Options
}

// New builds a Generator. declarations come from schema.FromRegistry as a
// plain slice; New wraps them with schema.WrapNative, and encodeTools turns
// each wrapped declaration into an Anthropic tool param.
func New(msg MessagesClient, declarations []schema.Declaration, opts Options) (*Generator, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("anthropic: model identifier is required")
	}
	if opts.MaxTokens <= 0 {
		return nil, errors.New("anthropic: max tokens must be positive")
	}
	return &Generator{msg: msg, opts: opts, tools: []schema.NativeWrapper{schema.WrapNative(declarations)}}, nil
}

var _ orchestrator.ContentGenerator = (*Generator)(nil)

// Generate implements orchestrator.ContentGenerator.
func (g *Generator) Generate(ctx context.Context, history model.History) (orchestrator.Turn, error) {
	params, err := g.buildParams(history)
	if err != nil {
		return orchestrator.Turn{}, err
	}
	msg, err := g.msg.New(ctx, params)
	if err != nil {
		return orchestrator.Turn{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateMessage(msg), nil
}

func (g *Generator) buildParams(history model.History) (sdk.MessageNewParams, error) {
	msgs, err := encodeMessages(history)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(g.opts.Model),
		MaxTokens: g.opts.MaxTokens,
		Messages:  msgs,
	}
	if g.opts.Temperature > 0 {
		params.Temperature = sdk.Float(g.opts.Temperature)
	}
	if toolParams, err := encodeTools(g.tools); err != nil {
		return sdk.MessageNewParams{}, err
	} else if len(toolParams) > 0 {
		params.Tools = toolParams
	}
	return params, nil
}

func encodeTools(wrappers []schema.NativeWrapper) ([]sdk.ToolUnionParam, error) {
	var out []sdk.ToolUnionParam
	for _, w := range wrappers {
		for _, decl := range w.FunctionDeclarations {
			raw, err := json.Marshal(decl.Parameters)
			if err != nil {
				return nil, fmt.Errorf("anthropic: marshal schema for %q: %w", decl.Name, err)
			}
			var params map[string]any
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("anthropic: decode schema for %q: %w", decl.Name, err)
			}
			u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: params}, decl.Name)
			if u.OfTool != nil {
				u.OfTool.Description = sdk.String(decl.Description)
			}
			out = append(out, u)
		}
	}
	return out, nil
}

// encodeMessages translates internal history into Anthropic MessageParam
// values. User/model text becomes user/assistant text blocks; model-issued
// FunctionCallPart becomes tool_use blocks; tool-role FunctionResponsePart
// becomes tool_result blocks on a user-turn message, matching Anthropic's
// "tool results come back as user content" convention.
func encodeMessages(history model.History) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case model.RoleUser:
			blocks, err := userBlocks(msg)
			if err != nil {
				return nil, err
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewUserMessage(blocks...))
			}
		case model.RoleModel:
			blocks, err := modelBlocks(msg)
			if err != nil {
				return nil, err
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		case model.RoleTool:
			blocks, err := toolResultBlocks(msg)
			if err != nil {
				return nil, err
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewUserMessage(blocks...))
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.New("anthropic: at least one message is required")
	}
	return out, nil
}

func userBlocks(msg model.Message) ([]sdk.ContentBlockParamUnion, error) {
	var blocks []sdk.ContentBlockParamUnion
	for _, p := range msg.Parts {
		if t, ok := p.(model.TextPart); ok && t.Text != "" {
			blocks = append(blocks, sdk.NewTextBlock(t.Text))
		}
	}
	return blocks, nil
}

func modelBlocks(msg model.Message) ([]sdk.ContentBlockParamUnion, error) {
	var blocks []sdk.ContentBlockParamUnion
	for _, p := range msg.Parts {
		switch v := p.(type) {
		case model.TextPart:
			if v.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			}
		case model.FunctionCallPart:
			blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Args, v.Name))
		}
	}
	return blocks, nil
}

func toolResultBlocks(msg model.Message) ([]sdk.ContentBlockParamUnion, error) {
	var blocks []sdk.ContentBlockParamUnion
	for _, p := range msg.Parts {
		fr, ok := p.(model.FunctionResponsePart)
		if !ok {
			continue
		}
		isErr := false
		content := ""
		if errMsg, ok := fr.Response["error"]; ok {
			isErr = true
			content = fmt.Sprint(errMsg)
		} else if out, ok := fr.Response["output"]; ok {
			if s, ok := out.(string); ok {
				content = s
			} else {
				b, err := json.Marshal(out)
				if err != nil {
					return nil, fmt.Errorf("anthropic: marshal tool result for %q: %w", fr.ID, err)
				}
				content = string(b)
			}
		}
		blocks = append(blocks, sdk.NewToolResultBlock(fr.ID, content, isErr))
	}
	return blocks, nil
}

// translateMessage converts an Anthropic response into an orchestrator.Turn,
// synthesizing functioncall.Request values for every tool_use block.
func translateMessage(msg *sdk.Message) orchestrator.Turn {
	var turn orchestrator.Turn
	turn.Provider = functioncall.ProviderNativeStructured
	var text string
	var calls []functioncall.NativeCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			var args map[string]any
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &args)
			}
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, functioncall.NativeCall{Name: block.Name, Args: args})
		}
	}
	turn.Text = text
	// Anthropic supplies tool_use.id, so we reuse native call IDs directly
	// rather than synthesizing them, while still normalizing through
	// functioncall.Request's shape.
	reqs := make([]functioncall.Request, 0, len(calls))
	for i, c := range calls {
		id := msg.Content[indexOfToolUse(msg, i)].ID
		reqs = append(reqs, functioncall.Request{CallID: id, Name: c.Name, Args: c.Args})
	}
	turn.Calls = reqs
	turn.FinishedAll = len(reqs) == 0
	return turn
}

func indexOfToolUse(msg *sdk.Message, nth int) int {
	seen := 0
	for i, block := range msg.Content {
		if block.Type == "tool_use" {
			if seen == nth {
				return i
			}
			seen++
		}
	}
	return 0
}
