package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/normalizer"
	"github.com/routecodex/routecodex/types"
)

// AnthropicProvider dispatches through the official anthropic-sdk-go
// Beta Messages client rather than hand-rolling HTTP, grounded on
// codefionn-scriptschnell's AnthropicClient (anthropic.NewClient(
// option.WithAPIKey(...)), client.Beta.Messages.NewStreaming, draining
// the BetaRawMessageStartEvent/ContentBlockDelta/MessageDelta event
// sequence into one assembled response). Since the canonical request
// already carries system as a leading message, conversion here is a
// direct loop instead of the reference's native-format branch.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates an Anthropic adapter. baseURL overrides
// the SDK's default endpoint for self-hosted/proxy deployments.
func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func buildBetaMessageParams(req *llmswitch.CanonicalRequest) anthropic.BetaMessageNewParams {
	maxTokens := 4096
	if req.Parameters.MaxTokens != nil {
		maxTokens = *req.Parameters.MaxTokens
	}
	params := anthropic.BetaMessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.Parameters.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Parameters.Temperature)
	}
	if req.Parameters.TopP != nil {
		params.TopP = anthropic.Float(*req.Parameters.TopP)
	}
	params.StopSequences = req.Parameters.Stop

	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			if text := strings.TrimSpace(m.Content); text != "" {
				params.System = append(params.System, anthropic.BetaTextBlockParam{Text: text})
			}
			continue
		}

		switch m.Role {
		case types.RoleAssistant:
			blocks := make([]anthropic.BetaContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewBetaTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if len(tc.Arguments) > 0 {
					_ = json.Unmarshal(tc.Arguments, &input)
				}
				blocks = append(blocks, anthropic.NewBetaToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			params.Messages = append(params.Messages, anthropic.BetaMessageParam{
				Role:    anthropic.BetaMessageParamRoleAssistant,
				Content: blocks,
			})
		case types.RoleTool:
			textBlock := anthropic.BetaTextBlockParam{Text: m.Content}
			toolResult := anthropic.BetaToolResultBlockParam{
				ToolUseID: m.ToolCallID,
				Content:   []anthropic.BetaToolResultBlockParamContentUnion{{OfText: &textBlock}},
			}
			params.Messages = append(params.Messages, anthropic.BetaMessageParam{
				Role:    anthropic.BetaMessageParamRoleUser,
				Content: []anthropic.BetaContentBlockParamUnion{{OfToolResult: &toolResult}},
			})
		default:
			if m.Content == "" {
				continue
			}
			params.Messages = append(params.Messages, anthropic.BetaMessageParam{
				Role:    anthropic.BetaMessageParamRoleUser,
				Content: []anthropic.BetaContentBlockParamUnion{anthropic.NewBetaTextBlock(m.Content)},
			})
		}
	}

	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.BetaToolUnionParam{OfTool: buildBetaTool(t)})
	}

	return params
}

// buildBetaTool converts a canonical JSON-schema tool definition into
// the SDK's input-schema param shape, the same properties/required/
// type extraction the reference client's convertAnthropicTools uses.
func buildBetaTool(t types.ToolSchema) *anthropic.BetaToolParam {
	schema := anthropic.BetaToolInputSchemaParam{Type: "object"}
	if len(t.Parameters) > 0 {
		var parsed map[string]any
		if json.Unmarshal(t.Parameters, &parsed) == nil {
			if props, ok := parsed["properties"]; ok {
				schema.Properties = props
			}
			if reqFields, ok := parsed["required"].([]any); ok {
				for _, f := range reqFields {
					if s, ok := f.(string); ok {
						schema.Required = append(schema.Required, s)
					}
				}
			}
		}
	}
	tool := &anthropic.BetaToolParam{Name: t.Name, InputSchema: schema}
	if t.Description != "" {
		tool.Description = anthropic.String(t.Description)
	}
	return tool
}

// Complete drains a Beta streaming response into a single assembled
// result, the same event-collection shape the reference client uses
// for its own non-streaming CompleteWithRequest path.
func (p *AnthropicProvider) Complete(ctx context.Context, req *llmswitch.CanonicalRequest) (*normalizer.NonStreamingResponse, error) {
	params := buildBetaMessageParams(req)

	stream := p.client.Beta.Messages.NewStreaming(ctx, params)
	if stream == nil {
		return nil, fmt.Errorf("anthropic: no stream returned")
	}
	defer stream.Close()

	out := &normalizer.NonStreamingResponse{Model: req.Model, FinishReason: normalizer.FinishStop}
	var (
		contentBuilder   strings.Builder
		currentToolIndex = -1
		currentToolID    string
		currentToolName  string
		currentToolJSON  strings.Builder
	)

	for stream.Next() {
		event := stream.Current()
		switch e := event.AsAny().(type) {
		case anthropic.BetaRawMessageStartEvent:
			out.ID = e.Message.ID
			out.Usage = types.TokenUsage{
				PromptTokens:     int(e.Message.Usage.InputTokens),
				CompletionTokens: int(e.Message.Usage.OutputTokens),
				TotalTokens:      int(e.Message.Usage.InputTokens + e.Message.Usage.OutputTokens),
			}
		case anthropic.BetaRawContentBlockStartEvent:
			if e.ContentBlock.Type == "tool_use" {
				currentToolIndex++
				currentToolJSON.Reset()
				currentToolID = e.ContentBlock.ID
				currentToolName = e.ContentBlock.Name
			}
		case anthropic.BetaRawContentBlockDeltaEvent:
			switch e.Delta.Type {
			case "text_delta":
				contentBuilder.WriteString(e.Delta.Text)
			case "input_json_delta":
				if currentToolIndex >= 0 {
					currentToolJSON.WriteString(e.Delta.PartialJSON)
				}
			}
		case anthropic.BetaRawContentBlockStopEvent:
			if currentToolIndex >= 0 && currentToolName != "" {
				out.ToolCalls = append(out.ToolCalls, types.ToolCall{
					ID:        currentToolID,
					Name:      currentToolName,
					Arguments: []byte(currentToolJSON.String()),
				})
				currentToolName = ""
			}
		case anthropic.BetaRawMessageDeltaEvent:
			if e.Delta.StopReason != "" {
				out.FinishReason = anthropicStopReasonToFinish(string(e.Delta.StopReason))
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: stream: %w", err)
	}
	out.Content = contentBuilder.String()
	return out, nil
}

func anthropicStopReasonToFinish(reason string) normalizer.FinishReason {
	switch reason {
	case "max_tokens":
		return normalizer.FinishLength
	case "tool_use":
		return normalizer.FinishToolCalls
	case "stop_sequence":
		return normalizer.FinishContent
	default:
		return normalizer.FinishStop
	}
}

// Stream returning a raw io.ReadCloser isn't exposed by the SDK's
// typed event iterator, so Stream always returns
// ErrUnsupportedProviderType; a streaming request routed to this adapter
// fails rather than falling back to Complete.
func (p *AnthropicProvider) Stream(ctx context.Context, req *llmswitch.CanonicalRequest) (io.ReadCloser, error) {
	return nil, types.NewError(types.ErrUnsupportedProviderType, "anthropic sdk streaming adapter not wired in this build")
}
