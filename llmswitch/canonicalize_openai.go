package llmswitch

import (
	"encoding/json"

	"github.com/routecodex/routecodex/types"
)

type openAIChatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Tools       []openAITool        `json:"tools,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
	Stop        json.RawMessage     `json:"stop,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

// canonicalizeOpenAIChat is close to a passthrough: the OpenAI chat body
// already matches the canonical shape field-for-field, modulo unwrapping
// the {type:"function", function:{...}} tool envelope and the
// string-or-array "content" shape.
func canonicalizeOpenAIChat(body json.RawMessage) (*CanonicalRequest, error) {
	var raw openAIChatRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	msgs := make([]types.Message, 0, len(raw.Messages))
	for _, m := range raw.Messages {
		msg := types.Message{
			Role:       types.Role(m.Role),
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		msg.Content = contentToText(m.Content)
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
		msgs = append(msgs, msg)
	}

	tools := make([]types.ToolSchema, 0, len(raw.Tools))
	for _, t := range raw.Tools {
		tools = append(tools, types.ToolSchema{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	var stop []string
	if len(raw.Stop) > 0 {
		_ = json.Unmarshal(raw.Stop, &stop)
		if stop == nil {
			var single string
			if err := json.Unmarshal(raw.Stop, &single); err == nil && single != "" {
				stop = []string{single}
			}
		}
	}

	return &CanonicalRequest{
		Model:    raw.Model,
		Messages: msgs,
		Tools:    tools,
		Parameters: Parameters{
			Temperature: raw.Temperature,
			TopP:        raw.TopP,
			MaxTokens:   raw.MaxTokens,
			Stop:        stop,
			Stream:      raw.Stream,
		},
		Metadata: Metadata{
			OriginalProtocol: ProtocolOpenAIChat,
			InboundStream:    raw.Stream,
			Raw:              body,
		},
	}, nil
}

// contentToText flattens OpenAI's string-or-content-block-array message
// content into plain text; only "text" blocks are kept and image or other
// blocks are dropped. No canonicalizer fills types.Message.Blocks: the
// Anthropic path also flattens, turning tool_use blocks into ToolCalls
// and tool_result blocks into role "tool" messages.
func contentToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			if b.Type == "text" {
				out += b.Text
			}
		}
		return out
	}
	return ""
}
