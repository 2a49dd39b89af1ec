package providers

import (
	"context"
	"encoding/json"
	"io"

	"github.com/routecodex/routecodex/compat"
	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/normalizer"
	"github.com/routecodex/routecodex/runtime"
)

// OpenAICompatProvider is the shared adapter for every upstream that
// speaks the OpenAI chat-completions wire shape with only cosmetic
// differences: GLM, Qwen, iFlow, LM Studio, and DeepSeek all embed this
// rather than reimplementing request marshaling, grounded directly on
// the teacher's llm/providers/openaicompat.Provider (same endpoint/
// header/marshal/HTTP flow, generalized to run over runtime.Runtime
// instead of owning its own *http.Client).
type OpenAICompatProvider struct {
	FamilyName   string
	Runtime      *runtime.Runtime
	Profile      *compat.Profile
	RequestHook  func(req *llmswitch.CanonicalRequest, body *openAICompatBody)
}

func NewOpenAICompatProvider(family string, rt *runtime.Runtime, profile *compat.Profile) *OpenAICompatProvider {
	return &OpenAICompatProvider{FamilyName: family, Runtime: rt, Profile: profile}
}

func (p *OpenAICompatProvider) Name() string { return p.FamilyName }

type openAICompatMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []openAICompatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type openAICompatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type openAICompatTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type openAICompatBody struct {
	Model       string                 `json:"model"`
	Messages    []openAICompatMessage  `json:"messages"`
	Tools       []openAICompatTool     `json:"tools,omitempty"`
	Temperature *float64               `json:"temperature,omitempty"`
	TopP        *float64               `json:"top_p,omitempty"`
	MaxTokens   *int                   `json:"max_tokens,omitempty"`
	Stop        []string               `json:"stop,omitempty"`
	Stream      bool                   `json:"stream,omitempty"`
}

func toOpenAICompatBody(req *llmswitch.CanonicalRequest) openAICompatBody {
	body := openAICompatBody{
		Model:       req.Model,
		Temperature: req.Parameters.Temperature,
		TopP:        req.Parameters.TopP,
		MaxTokens:   req.Parameters.MaxTokens,
		Stop:        req.Parameters.Stop,
		Stream:      req.Parameters.Stream,
	}
	for _, m := range req.Messages {
		msg := openAICompatMessage{Role: string(m.Role), Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var oatc openAICompatToolCall
			oatc.ID = tc.ID
			oatc.Type = "function"
			oatc.Function.Name = tc.Name
			oatc.Function.Arguments = tc.Arguments
			msg.ToolCalls = append(msg.ToolCalls, oatc)
		}
		body.Messages = append(body.Messages, msg)
	}
	for _, t := range req.Tools {
		var tool openAICompatTool
		tool.Type = "function"
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.Parameters
		body.Tools = append(body.Tools, tool)
	}
	return body
}

// Complete performs a non-streaming chat completion against an
// OpenAI-compatible upstream.
func (p *OpenAICompatProvider) Complete(ctx context.Context, req *llmswitch.CanonicalRequest) (*normalizer.NonStreamingResponse, error) {
	if p.Profile != nil {
		if err := p.Profile.ApplyIncoming(ctx, req); err != nil {
			return nil, err
		}
	}
	body := toOpenAICompatBody(req)
	if p.RequestHook != nil {
		p.RequestHook(req, &body)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	respBody, err := p.Runtime.Execute(ctx, payload)
	if err != nil {
		return nil, err
	}
	return normalizer.FromOpenAIChat(respBody)
}

// Stream performs a streaming chat completion, returning the raw SSE
// body for normalizer.TranscodeStream (or direct passthrough, if the
// client's original protocol is also OpenAI-chat) to consume.
func (p *OpenAICompatProvider) Stream(ctx context.Context, req *llmswitch.CanonicalRequest) (io.ReadCloser, error) {
	if p.Profile != nil {
		if err := p.Profile.ApplyIncoming(ctx, req); err != nil {
			return nil, err
		}
	}
	body := toOpenAICompatBody(req)
	body.Stream = true
	if p.RequestHook != nil {
		p.RequestHook(req, &body)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return p.Runtime.ExecuteStream(ctx, payload)
}
