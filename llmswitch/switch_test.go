package llmswitch

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_EndpointRule(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected Protocol
	}{
		{"anthropic endpoint", "/v1/messages", ProtocolAnthropic},
		{"responses endpoint", "/v1/responses", ProtocolOpenAIResp},
		{"chat endpoint", "/v1/chat/completions", ProtocolOpenAIChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(DetectRequest{Path: tt.path}, ProtocolUnknown)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDetect_ExplicitOverrideWins(t *testing.T) {
	got := Detect(DetectRequest{Path: "/v1/chat/completions", TargetProtocol: "anthropic"}, ProtocolUnknown)
	assert.Equal(t, ProtocolAnthropic, got)
}

func TestDetect_ContentHeuristicFallback(t *testing.T) {
	body := json.RawMessage(`{"input":"hello","model":"gpt-5"}`)
	got := Detect(DetectRequest{Path: "/custom", Body: body}, ProtocolUnknown)
	assert.Equal(t, ProtocolOpenAIResp, got)
}

func TestDetect_HeaderHeuristic(t *testing.T) {
	h := http.Header{}
	h.Set("anthropic-version", "2023-06-01")
	got := Detect(DetectRequest{Path: "/custom", Headers: h}, ProtocolUnknown)
	assert.Equal(t, ProtocolAnthropic, got)
}

func TestDetect_DefaultFallback(t *testing.T) {
	got := Detect(DetectRequest{Path: "/custom"}, ProtocolOpenAIChat)
	assert.Equal(t, ProtocolOpenAIChat, got)
}

func TestCanonicalize_OpenAIChatPassthrough(t *testing.T) {
	body := json.RawMessage(`{
		"model": "gpt-4o",
		"messages": [{"role":"user","content":"hi"}],
		"temperature": 0.5,
		"stream": true
	}`)
	req, err := Canonicalize(ProtocolOpenAIChat, body)
	require.NoError(t, err)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "hi", req.Messages[0].Content)
	assert.True(t, req.Parameters.Stream)
	assert.Equal(t, ProtocolOpenAIChat, req.Metadata.OriginalProtocol)
}

func TestCanonicalize_AnthropicSystemAndToolUse(t *testing.T) {
	body := json.RawMessage(`{
		"model": "claude-opus",
		"system": "be terse",
		"max_tokens": 100,
		"messages": [
			{"role":"user","content":"what's the weather"},
			{"role":"assistant","content":[
				{"type":"tool_use","id":"tu_1","name":"get_weather","input":{"city":"nyc"}}
			]},
			{"role":"user","content":[
				{"type":"tool_result","tool_use_id":"tu_1","content":"sunny"}
			]}
		]
	}`)
	req, err := Canonicalize(ProtocolAnthropic, body)
	require.NoError(t, err)
	require.Len(t, req.Messages, 4)
	assert.Equal(t, "be terse", req.Messages[0].Content)
	assert.Equal(t, "get_weather", req.Messages[2].ToolCalls[0].Name)
	assert.Equal(t, "tu_1", req.Messages[3].ToolCallID)
	assert.Equal(t, "sunny", req.Messages[3].Content)
}

func TestCanonicalize_ResponsesStringInput(t *testing.T) {
	body := json.RawMessage(`{"model":"gpt-5","input":"hello there","instructions":"be nice"}`)
	req, err := Canonicalize(ProtocolOpenAIResp, body)
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "be nice", req.Messages[0].Content)
	assert.Equal(t, "hello there", req.Messages[1].Content)
}

func TestMemo_EvictsOldestAtCapacity(t *testing.T) {
	m := NewMemo(2)
	m.Put("a", ProtocolAnthropic)
	m.Put("b", ProtocolOpenAIChat)
	m.Put("c", ProtocolOpenAIResp)

	_, ok := m.Get("a")
	assert.False(t, ok, "oldest entry should have been evicted")

	p, ok := m.Get("c")
	assert.True(t, ok)
	assert.Equal(t, ProtocolOpenAIResp, p)
}
