package functioncall

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fletchway/agentcore/internal/tools"
)

func TestParseOpenAI_RoundTrip(t *testing.T) {
	raw := `[{"id":"call_abc123","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Paris\"}"}}]`
	reqs, err := ParseOpenAIJSON(json.RawMessage(raw))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "call_abc123", reqs[0].CallID)
	assert.Equal(t, "get_weather", reqs[0].Name)
	assert.Equal(t, "Paris", reqs[0].Args["city"])
	assert.NoError(t, reqs[0].ArgsDecodeError)

	msgs := ConvertOpenAI([]Completed{{Request: reqs[0], Result: tools.Result{Success: true, LLMContent: "sunny"}}})
	require.Len(t, msgs, 1)
	assert.Equal(t, OpenAIToolResultMessage{Role: "tool", ToolCallID: "call_abc123", Name: "get_weather", Content: "sunny"}, msgs[0])
}

func TestParseOpenAI_MalformedArgumentsKeepsCallWithFlag(t *testing.T) {
	raw := `[{"id":"call_bad","type":"function","function":{"name":"get_weather","arguments":"{not json"}}]`
	reqs, err := ParseOpenAIJSON(json.RawMessage(raw))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "get_weather", reqs[0].Name)
	assert.Empty(t, reqs[0].Args)
	assert.Error(t, reqs[0].ArgsDecodeError)
}

func TestParseOpenAI_EmptyArgumentsIsValid(t *testing.T) {
	raw := `[{"id":"call_x","type":"function","function":{"name":"ping","arguments":""}}]`
	reqs, err := ParseOpenAIJSON(json.RawMessage(raw))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.NoError(t, reqs[0].ArgsDecodeError)
	assert.Empty(t, reqs[0].Args)
}

func TestParseNative_SynthesizesStableCallID(t *testing.T) {
	calls := []NativeCall{{Name: "search", Args: map[string]any{"q": "go"}}}
	reqs1 := ParseNative(calls, 1000)
	reqs2 := ParseNative(calls, 1000)
	require.Len(t, reqs1, 1)
	require.Len(t, reqs2, 1)
	assert.Equal(t, reqs1[0].CallID, reqs2[0].CallID, "same name and timestamp must synthesize the same id")
	assert.Regexp(t, `^call_1000_\d+$`, reqs1[0].CallID)
}

func TestParseNative_DifferentNamesProduceDifferentIDs(t *testing.T) {
	reqs := ParseNative([]NativeCall{
		{Name: "search", Args: map[string]any{}},
		{Name: "edit", Args: map[string]any{}},
	}, 42)
	require.Len(t, reqs, 2)
	assert.NotEqual(t, reqs[0].CallID, reqs[1].CallID)
}

func TestParseTextMarkers_TokenDelimitedSection(t *testing.T) {
	text := `Sure, let me check.
<|tool_calls_section_begin|>
<|tool_call_begin|>
{"name": "get_weather", "arguments": {"city": "Tokyo"}}
<|tool_call_end|>
<|tool_calls_section_end|>`
	reqs := ParseTextMarkers(text)
	require.Len(t, reqs, 1)
	assert.Equal(t, "get_weather", reqs[0].Name)
	assert.Equal(t, "Tokyo", reqs[0].Args["city"])
}

func TestParseTextMarkers_XMLForm(t *testing.T) {
	text := `<function_call name="lookup">{"term": "foo"}</function_call>`
	reqs := ParseTextMarkers(text)
	require.Len(t, reqs, 1)
	assert.Equal(t, "lookup", reqs[0].Name)
	assert.Equal(t, "foo", reqs[0].Args["term"])
}

func TestParseTextMarkers_FencedBlock(t *testing.T) {
	text := "```function_call\nname: lookup\narguments: {\"term\": \"bar\"}\n```"
	reqs := ParseTextMarkers(text)
	require.Len(t, reqs, 1)
	assert.Equal(t, "lookup", reqs[0].Name)
	assert.Equal(t, "bar", reqs[0].Args["term"])
}

func TestParseTextMarkers_NoMarkersReturnsEmpty(t *testing.T) {
	reqs := ParseTextMarkers("just plain text, no tool calls here")
	assert.Empty(t, reqs)
}

func TestParseTextMarkers_MalformedJSONIsSkippedNotFatal(t *testing.T) {
	text := `<|tool_calls_section_begin|><|tool_call_begin|>{not json}<|tool_call_end|><|tool_calls_section_end|>`
	reqs := ParseTextMarkers(text)
	assert.Empty(t, reqs)
}

func TestSynthesizeNativeCallID_Format(t *testing.T) {
	id := SynthesizeNativeCallID("foo", 123456)
	assert.Regexp(t, `^call_123456_\d{1,4}$`, id)
}

func TestNewCallID_UniqueAndPrefixed(t *testing.T) {
	a := NewCallID()
	b := NewCallID()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^call_`, a)
}
