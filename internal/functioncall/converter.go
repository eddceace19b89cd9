package functioncall

import (
	"encoding/json"

	"github.com/fletchway/agentcore/internal/model"
	"github.com/fletchway/agentcore/internal/tools"
)

// Completed pairs a Request with the tools.Result produced by executing it,
// the minimal input the converter needs.
type Completed struct {
	Request Request
	Result  tools.Result
	Err     string // set instead of Result when the call never produced a tools.Result
}

func buildResponseMap(c Completed) map[string]any {
	if c.Err != "" {
		return map[string]any{"error": c.Err}
	}
	if !c.Result.Success {
		msg := c.Result.DisplayContent
		if msg == "" {
			if s, ok := c.Result.LLMContent.(string); ok {
				msg = s
			} else {
				msg = "tool call failed"
			}
		}
		return map[string]any{"error": msg}
	}
	return map[string]any{"output": c.Result.LLMContent}
}

// ConvertNative builds the native-structured function_response parts for a
// batch of completed calls, preserving input order (spec.md §4.3, §5).
func ConvertNative(batch []Completed) []model.FunctionResponsePart {
	out := make([]model.FunctionResponsePart, 0, len(batch))
	for _, c := range batch {
		out = append(out, model.FunctionResponsePart{
			ID:       c.Request.CallID,
			Name:     c.Request.Name,
			Response: buildResponseMap(c),
		})
	}
	return out
}

// ConvertNativeMessage wraps ConvertNative's output in a single message, as
// spec.md §4.3 requires ("all responses for a batch ... emitted as one
// message").
func ConvertNativeMessage(role model.Role, batch []Completed) model.Message {
	parts := ConvertNative(batch)
	msg := model.Message{Role: role}
	for _, p := range parts {
		msg.Parts = append(msg.Parts, p)
	}
	return msg
}

// OpenAIToolResultMessage is the wire shape spec.md §6 documents for
// OpenAI-style providers.
type OpenAIToolResultMessage struct {
	Role       string `json:"role"`
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

// ConvertOpenAI builds one OpenAIToolResultMessage per completed call,
// preserving input order.
func ConvertOpenAI(batch []Completed) []OpenAIToolResultMessage {
	out := make([]OpenAIToolResultMessage, 0, len(batch))
	for _, c := range batch {
		content := ""
		if c.Err != "" {
			content = c.Err
		} else if !c.Result.Success {
			if s, ok := c.Result.LLMContent.(string); ok {
				content = s
			} else {
				content = "tool call failed"
			}
		} else if s, ok := c.Result.LLMContent.(string); ok {
			content = s
		} else {
			content = stringifyAny(c.Result.LLMContent)
		}
		out = append(out, OpenAIToolResultMessage{
			Role:       "tool",
			ToolCallID: c.Request.CallID,
			Name:       c.Request.Name,
			Content:    content,
		})
	}
	return out
}

func stringifyAny(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
