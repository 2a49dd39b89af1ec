package normalizer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/types"
)

func TestFromOpenAIChat_ParsesTextAndToolCalls(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-1",
		"model": "gpt-4o",
		"choices": [{
			"finish_reason": "tool_calls",
			"message": {
				"content": "",
				"tool_calls": [{"id":"call_1","function":{"name":"get_weather","arguments":"{\"city\":\"nyc\"}"}}]
			}
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`)
	resp, err := FromOpenAIChat(body)
	require.NoError(t, err)
	assert.Equal(t, FinishToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "get_weather", resp.ToolCalls[0].Name)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestToAnthropicMessage_MapsToolUseBlock(t *testing.T) {
	resp := &NonStreamingResponse{
		ID:           "msg_1",
		Model:        "claude",
		FinishReason: FinishToolCalls,
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"nyc"}`)},
		},
	}

	out, err := ToAnthropicMessage(resp)
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(out, &parsed))
	assert.Equal(t, "tool_use", parsed["stop_reason"])
}

func TestRewrap_SelectsShapeByProtocol(t *testing.T) {
	resp := &NonStreamingResponse{ID: "x", Content: "hi", FinishReason: FinishStop}

	anthropicOut, err := Rewrap(llmswitch.ProtocolAnthropic, resp)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(anthropicOut), `"role":"assistant"`))

	openaiOut, err := Rewrap(llmswitch.ProtocolOpenAIChat, resp)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(openaiOut), `"choices"`))
}

func TestTranscoder_TextDeltaThenFinish(t *testing.T) {
	tr := NewTranscoder()

	events, err := tr.Feed(`{"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant"}}]}`)
	require.NoError(t, err)
	assert.Equal(t, "message_start", events[0].Event)

	events, err = tr.Feed(`{"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"hi"}}]}`)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "content_block_start", events[0].Event)
	assert.Equal(t, "content_block_delta", events[1].Event)

	events, err = tr.Feed(`{"id":"1","model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "content_block_stop", events[0].Event)
	assert.Equal(t, "message_delta", events[1].Event)

	events, err = tr.Feed("[DONE]")
	require.NoError(t, err)
	assert.Equal(t, "message_stop", events[len(events)-1].Event)
}

func TestTranscoder_MalformedFramePassesThroughSilently(t *testing.T) {
	tr := NewTranscoder()
	events, err := tr.Feed("not json at all")
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestSplitCompleteUTF8_HoldsBackPartialMultiByteRune(t *testing.T) {
	full := "日本語" // each char is 3 bytes in UTF-8
	fullBytes := []byte(full)
	split := fullBytes[:len(fullBytes)-1] // cut last byte of final rune

	complete, pending := splitCompleteUTF8(split)
	assert.Equal(t, []byte(full[:6]), complete) // first two runes complete
	assert.NotEmpty(t, pending)
}

func TestTranscodeStream_WritesTranscodedEvents(t *testing.T) {
	input := strings.NewReader(
		"data: {\"id\":\"1\",\"model\":\"gpt\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n" +
			"data: [DONE]\n\n",
	)
	var out bytes.Buffer
	err := TranscodeStream(input, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "content_block_delta")
	assert.Contains(t, out.String(), "message_stop")
}
