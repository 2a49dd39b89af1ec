package llmswitch

import (
	"encoding/json"

	"github.com/routecodex/routecodex/types"
)

type responsesRequest struct {
	Model       string              `json:"model"`
	Input       json.RawMessage     `json:"input"`
	Instructions string             `json:"instructions,omitempty"`
	Tools       []openAITool        `json:"tools,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	MaxTokens   *int                `json:"max_output_tokens,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
}

type responsesInputItem struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Type    string          `json:"type,omitempty"`
}

// canonicalizeResponses reshapes an OpenAI Responses API body: its
// "input" field is either a plain string (a single user turn) or an
// array of role-tagged items, and "instructions" maps to a leading
// system message.
func canonicalizeResponses(body json.RawMessage) (*CanonicalRequest, error) {
	var raw responsesRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	var msgs []types.Message
	if raw.Instructions != "" {
		msgs = append(msgs, types.NewSystemMessage(raw.Instructions))
	}

	var asString string
	if err := json.Unmarshal(raw.Input, &asString); err == nil {
		if asString != "" {
			msgs = append(msgs, types.NewUserMessage(asString))
		}
	} else {
		var items []responsesInputItem
		if err := json.Unmarshal(raw.Input, &items); err == nil {
			for _, it := range items {
				msgs = append(msgs, types.Message{
					Role:    types.Role(it.Role),
					Content: contentToText(it.Content),
				})
			}
		}
	}

	tools := make([]types.ToolSchema, 0, len(raw.Tools))
	for _, t := range raw.Tools {
		tools = append(tools, types.ToolSchema{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
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
			Stream:      raw.Stream,
		},
		Metadata: Metadata{
			OriginalProtocol: ProtocolOpenAIResp,
			InboundStream:    raw.Stream,
			Raw:              body,
		},
	}, nil
}
