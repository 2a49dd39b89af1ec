package llmswitch

import (
	"encoding/json"

	"github.com/routecodex/routecodex/types"
)

type anthropicRequest struct {
	Model       string              `json:"model"`
	System      json.RawMessage     `json:"system,omitempty"`
	Messages    []anthropicMessage  `json:"messages"`
	Tools       []anthropicTool     `json:"tools,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
	StopSeqs    []string            `json:"stop_sequences,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// canonicalizeAnthropic reshapes an Anthropic Messages request into the
// canonical model: the top-level "system" field becomes a leading
// {role:"system"} message, tool_use content blocks become ToolCalls on
// the assistant message that carries them, and tool_result blocks become
// standalone {role:"tool"} messages keyed by tool_use_id.
func canonicalizeAnthropic(body json.RawMessage) (*CanonicalRequest, error) {
	var raw anthropicRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	var msgs []types.Message
	if sysText := systemToText(raw.System); sysText != "" {
		msgs = append(msgs, types.NewSystemMessage(sysText))
	}

	for _, m := range raw.Messages {
		blocks, asText := parseContent(m.Content)
		if asText != "" && len(blocks) == 0 {
			msgs = append(msgs, types.Message{Role: types.Role(m.Role), Content: asText})
			continue
		}

		var toolCalls []types.ToolCall
		var textParts string
		for _, b := range blocks {
			switch b.Type {
			case "text":
				textParts += b.Text
			case "tool_use":
				toolCalls = append(toolCalls, types.ToolCall{
					ID:        b.ID,
					Name:      b.Name,
					Arguments: b.Input,
				})
			case "tool_result":
				content := contentBlockToText(b.Content)
				msgs = append(msgs, types.NewToolResultMessage(b.ToolUseID, content))
			}
		}
		if textParts != "" || len(toolCalls) > 0 {
			msgs = append(msgs, types.Message{
				Role:      types.Role(m.Role),
				Content:   textParts,
				ToolCalls: toolCalls,
			})
		}
	}

	tools := make([]types.ToolSchema, 0, len(raw.Tools))
	for _, t := range raw.Tools {
		tools = append(tools, types.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}

	return &CanonicalRequest{
		Model:    raw.Model,
		Messages: msgs,
		Tools:    tools,
		Parameters: Parameters{
			Temperature: raw.Temperature,
			TopP:        raw.TopP,
			MaxTokens:   raw.MaxTokens,
			Stop:        raw.StopSeqs,
			Stream:      raw.Stream,
		},
		Metadata: Metadata{
			OriginalProtocol: ProtocolAnthropic,
			InboundStream:    raw.Stream,
			Raw:              body,
		},
	}, nil
}

func systemToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			out += b.Text
		}
		return out
	}
	return ""
}

// parseContent returns either plain text (string-shaped content) or the
// parsed content-block list (array-shaped content), never both.
func parseContent(raw json.RawMessage) ([]anthropicContentBlock, string) {
	if len(raw) == 0 {
		return nil, ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return nil, s
	}
	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return blocks, ""
	}
	return nil, ""
}

func contentBlockToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		out := ""
		for _, b := range blocks {
			out += b.Text
		}
		return out
	}
	return ""
}
