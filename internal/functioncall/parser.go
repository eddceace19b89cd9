// Package functioncall normalizes heterogeneous provider response shapes
// into ToolCallRequest values (the parser) and converts ToolResult values
// back into the message part shape a given provider family expects (the
// converter). See spec.md §4.2-§4.3 and §6.
package functioncall

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ProviderKind tags which response-shape family a content generator speaks.
// Generators record it on each orchestrator.Turn; the orchestrator does not
// branch on it and always folds tool results back as native
// function_response parts, which each provider adapter re-encodes in its own
// wire shape.
type ProviderKind string

const (
	// ProviderNativeStructured covers providers that return structured
	// function_call parts inline with content (Anthropic tool_use blocks,
	// Gemini-family function_call parts).
	ProviderNativeStructured ProviderKind = "native_structured"
	// ProviderOpenAI covers providers using the OpenAI Chat Completions
	// tool_calls shape.
	ProviderOpenAI ProviderKind = "openai"
	// ProviderTextMarker covers providers without native tool calling that
	// embed calls as text markers the model was prompted to emit.
	ProviderTextMarker ProviderKind = "text_marker"
)

// Request is a normalized tool invocation request extracted from a
// provider's response, prior to registry resolution.
type Request struct {
	CallID string
	Name   string
	Args   map[string]any

	// ArgsDecodeError is set when Args could not be decoded from the
	// provider's raw payload (OpenAI-style arguments string failed to
	// parse as JSON). Per spec.md §9's resolved Open Question, the request
	// is still produced with an empty Args map rather than dropped, but
	// callers must treat it as invalid rather than silently executing with
	// no arguments.
	ArgsDecodeError error
}

// openAIToolCall mirrors the wire shape in spec.md §6:
// {"id", "type": "function", "function": {"name", "arguments": "<json>"}}.
type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ParseOpenAI extracts Request values from an OpenAI-style tool_calls array.
// Malformed per-call "arguments" JSON does not drop the call: it is kept
// with an empty Args map and ArgsDecodeError set.
func ParseOpenAI(toolCalls []openAIToolCall) []Request {
	out := make([]Request, 0, len(toolCalls))
	for _, tc := range toolCalls {
		req := Request{CallID: tc.ID, Name: tc.Function.Name}
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				req.ArgsDecodeError = fmt.Errorf("decode arguments for %q: %w", tc.Function.Name, err)
				args = map[string]any{}
			}
		}
		req.Args = args
		out = append(out, req)
	}
	return out
}

// ParseOpenAIJSON is a convenience entry point for callers holding the raw
// tool_calls JSON array (e.g. as decoded from choices[0].message.tool_calls).
func ParseOpenAIJSON(raw json.RawMessage) ([]Request, error) {
	var calls []openAIToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, fmt.Errorf("decode openai tool_calls: %w", err)
	}
	return ParseOpenAI(calls), nil
}

// NativeCall is the native-structured shape from spec.md §6:
// {"function_call": {"name", "args"}}. This shape carries no call id, so
// ParseNative synthesizes one. internal/providers/anthropic also collects
// tool_use blocks in this shape but keeps Anthropic's own tool_use ids rather
// than calling ParseNative.
type NativeCall struct {
	Name string
	Args map[string]any
}

// ParseNative builds Request values for native-structured calls, assigning
// each a stable synthesized id of the form call_<timestampNanos>_<hash%10000>.
// timestampNanos is supplied by the caller (rather than read from time.Now)
// so ID generation stays deterministic and testable; production callers pass
// time.Now().UnixNano().
func ParseNative(calls []NativeCall, timestampNanos int64) []Request {
	out := make([]Request, 0, len(calls))
	for _, c := range calls {
		out = append(out, Request{
			CallID: SynthesizeNativeCallID(c.Name, timestampNanos),
			Name:   c.Name,
			Args:   c.Args,
		})
	}
	return out
}

// SynthesizeNativeCallID builds the call_<timestamp>_<hash(name)%10000> id
// format spec.md §4.2 prescribes for native-structured calls.
func SynthesizeNativeCallID(name string, timestampNanos int64) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("call_%d_%d", timestampNanos, h.Sum32()%10000)
}

// Text-embedded marker tokens, per spec.md §6.
const (
	sectionBegin = "<|tool_calls_section_begin|>"
	sectionEnd   = "<|tool_calls_section_end|>"
	callBegin    = "<|tool_call_begin|>"
	callEnd      = "<|tool_call_end|>"
)

var (
	xmlCallRe    = regexp.MustCompile(`(?s)<function_call\s+name="([^"]+)">(.*?)</function_call>`)
	fencedCallRe = regexp.MustCompile("(?s)```function_call\\s*\\nname:\\s*(\\S+)\\s*\\narguments:\\s*(\\{.*?\\})\\s*\\n```")
)

type textMarkerPayload struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ParseTextMarkers scans assistant text for the three text-embedded call
// shapes spec.md §4.2 documents (token-delimited section, XML form, fenced
// block) and returns Request values with sequentially synthesized ids.
func ParseTextMarkers(text string) []Request {
	var out []Request
	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("call_%d", seq)
	}

	for _, section := range extractSections(text) {
		for _, raw := range extractCallBlocks(section) {
			var payload textMarkerPayload
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				continue
			}
			out = append(out, Request{CallID: nextID(), Name: payload.Name, Args: payload.Arguments})
		}
	}

	for _, m := range xmlCallRe.FindAllStringSubmatch(text, -1) {
		var args map[string]any
		if err := json.Unmarshal([]byte(m[2]), &args); err != nil {
			continue
		}
		out = append(out, Request{CallID: nextID(), Name: m[1], Args: args})
	}

	for _, m := range fencedCallRe.FindAllStringSubmatch(text, -1) {
		var args map[string]any
		if err := json.Unmarshal([]byte(m[2]), &args); err != nil {
			continue
		}
		out = append(out, Request{CallID: nextID(), Name: m[1], Args: args})
	}

	return out
}

// extractSections returns the text between each
// tool_calls_section_begin/end pair.
func extractSections(text string) []string {
	var sections []string
	rest := text
	for {
		start := strings.Index(rest, sectionBegin)
		if start < 0 {
			return sections
		}
		rest = rest[start+len(sectionBegin):]
		end := strings.Index(rest, sectionEnd)
		if end < 0 {
			return sections
		}
		sections = append(sections, rest[:end])
		rest = rest[end+len(sectionEnd):]
	}
}

// extractCallBlocks returns the JSON payload between each
// tool_call_begin/end pair within a section.
func extractCallBlocks(section string) []string {
	var blocks []string
	rest := section
	for {
		start := strings.Index(rest, callBegin)
		if start < 0 {
			return blocks
		}
		rest = rest[start+len(callBegin):]
		end := strings.Index(rest, callEnd)
		if end < 0 {
			return blocks
		}
		blocks = append(blocks, strings.TrimSpace(rest[:end]))
		rest = rest[end+len(callEnd):]
	}
}

// NewCallID generates a fresh random call id for synthetic use (e.g. when
// the orchestrator must repair history by inventing a placeholder call
// prior to a synthesized cancellation response).
func NewCallID() string {
	return "call_" + uuid.NewString()
}
