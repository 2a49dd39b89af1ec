// Package normalizer implements the Response Normalizer stage: it
// rewraps a provider's non-streaming response, or transcodes its SSE
// stream, back into the wire shape the client's original protocol
// expects — the mirror image of llmswitch's canonicalization. Its
// finish_reason/usage field mapping is grounded on the teacher's
// providers.ToLLMChatResponse and the SSE transcoding state machine is
// grounded on the reference envoyproxy/ai-gateway Anthropic<->OpenAI
// translator's streaming approach (buffer partial SSE frames, track
// per-block state, emit a structurally distinct event sequence).
package normalizer

import (
	"encoding/json"

	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/types"
)

// FinishReason is the canonical finish reason vocabulary normalizer maps
// every provider's native reason into before mapping back out.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishContent   FinishReason = "content_filter"
)

// openAIFinishReasons maps OpenAI-chat finish_reason strings to the
// canonical vocabulary.
var openAIFinishReasons = map[string]FinishReason{
	"stop":           FinishStop,
	"length":         FinishLength,
	"tool_calls":     FinishToolCalls,
	"content_filter": FinishContent,
}

// anthropicStopReasons maps the canonical vocabulary to Anthropic's
// stop_reason strings.
var anthropicStopReasons = map[FinishReason]string{
	FinishStop:      "end_turn",
	FinishLength:    "max_tokens",
	FinishToolCalls: "tool_use",
	FinishContent:   "stop_sequence",
}

// NonStreamingResponse is the canonical shape of a completed (non-SSE)
// provider reply, built from whichever upstream shape actually arrived
// (OpenAI chat/responses JSON, or Anthropic JSON) before being rewrapped
// into the client's wire protocol.
type NonStreamingResponse struct {
	ID           string
	Model        string
	Content      string
	ToolCalls    []types.ToolCall
	FinishReason FinishReason
	Usage        types.TokenUsage
}

// FromOpenAIChat parses an OpenAI chat completion body into the
// canonical non-streaming shape.
func FromOpenAIChat(body []byte) (*NonStreamingResponse, error) {
	var raw struct {
		ID      string `json:"id"`
		Model   string `json:"model"`
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Function struct {
						Name      string          `json:"name"`
						Arguments json.RawMessage `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	if len(raw.Choices) == 0 {
		return &NonStreamingResponse{ID: raw.ID, Model: raw.Model}, nil
	}
	choice := raw.Choices[0]
	out := &NonStreamingResponse{
		ID:           raw.ID,
		Model:        raw.Model,
		Content:      choice.Message.Content,
		FinishReason: mapOpenAIFinish(choice.FinishReason),
		Usage: types.TokenUsage{
			PromptTokens:     raw.Usage.PromptTokens,
			CompletionTokens: raw.Usage.CompletionTokens,
			TotalTokens:      raw.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func mapOpenAIFinish(reason string) FinishReason {
	if fr, ok := openAIFinishReasons[reason]; ok {
		return fr
	}
	return FinishStop
}

// ToAnthropicMessage rewraps the canonical non-streaming response into
// an Anthropic Messages API response body.
func ToAnthropicMessage(r *NonStreamingResponse) ([]byte, error) {
	type block struct {
		Type  string          `json:"type"`
		Text  string          `json:"text,omitempty"`
		ID    string          `json:"id,omitempty"`
		Name  string          `json:"name,omitempty"`
		Input json.RawMessage `json:"input,omitempty"`
	}
	var blocks []block
	if r.Content != "" {
		blocks = append(blocks, block{Type: "text", Text: r.Content})
	}
	for _, tc := range r.ToolCalls {
		blocks = append(blocks, block{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
	}

	stopReason := anthropicStopReasons[r.FinishReason]
	if stopReason == "" {
		stopReason = "end_turn"
	}

	resp := map[string]any{
		"id":          r.ID,
		"type":        "message",
		"role":        "assistant",
		"model":       r.Model,
		"content":     blocks,
		"stop_reason": stopReason,
		"usage": map[string]any{
			"input_tokens":  r.Usage.PromptTokens,
			"output_tokens": r.Usage.CompletionTokens,
		},
	}
	return json.Marshal(resp)
}

// ToOpenAIChat rewraps the canonical non-streaming response into an
// OpenAI chat completion response body (used when the request entered
// as one OpenAI-shaped protocol but the provider natively speaks
// another, e.g. gemini).
func ToOpenAIChat(r *NonStreamingResponse) ([]byte, error) {
	type toolCall struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Function struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	}
	tcs := make([]toolCall, 0, len(r.ToolCalls))
	for _, tc := range r.ToolCalls {
		var t toolCall
		t.ID = tc.ID
		t.Type = "function"
		t.Function.Name = tc.Name
		t.Function.Arguments = tc.Arguments
		tcs = append(tcs, t)
	}

	finish := string(r.FinishReason)
	if finish == "" {
		finish = "stop"
	}

	resp := map[string]any{
		"id":    r.ID,
		"model": r.Model,
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": finish,
				"message": map[string]any{
					"role":       "assistant",
					"content":    r.Content,
					"tool_calls": tcs,
				},
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     r.Usage.PromptTokens,
			"completion_tokens": r.Usage.CompletionTokens,
			"total_tokens":      r.Usage.TotalTokens,
		},
	}
	return json.Marshal(resp)
}

// Rewrap picks the outbound JSON shape for the client's original
// protocol, given the provider's canonical non-streaming reply.
// Anthropic clients get the Messages shape; every other protocol,
// openai-responses included, gets the OpenAI chat completion shape.
func Rewrap(protocol llmswitch.Protocol, r *NonStreamingResponse) ([]byte, error) {
	switch protocol {
	case llmswitch.ProtocolAnthropic:
		return ToAnthropicMessage(r)
	default:
		return ToOpenAIChat(r)
	}
}
