package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/normalizer"
	"github.com/routecodex/routecodex/runtime"
	"github.com/routecodex/routecodex/types"
)

// GeminiProvider talks Gemini's native REST shape directly rather than
// going through the openai-compat body, grounded on the teacher's
// independent llm/providers/gemini.GeminiProvider (x-goog-api-key auth
// header, generateContent endpoint, contents/parts request shape). It
// is treated as an opaque family by the virtual router, per spec §9's
// Gemini/Gemini-CLI open question resolution (see DESIGN.md).
type GeminiProvider struct {
	Runtime *runtime.Runtime
}

func NewGeminiProvider(rt *runtime.Runtime) *GeminiProvider {
	return &GeminiProvider{Runtime: rt}
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	GenerationConfig struct {
		Temperature     *float64 `json:"temperature,omitempty"`
		TopP            *float64 `json:"topP,omitempty"`
		MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
		StopSequences   []string `json:"stopSequences,omitempty"`
	} `json:"generationConfig"`
}

func toGeminiRequest(req *llmswitch.CanonicalRequest) geminiRequest {
	var gr geminiRequest
	for _, m := range req.Messages {
		role := "user"
		if m.Role == types.RoleAssistant {
			role = "model"
		}
		if m.Role == types.RoleSystem {
			gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		gr.Contents = append(gr.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	gr.GenerationConfig.Temperature = req.Parameters.Temperature
	gr.GenerationConfig.TopP = req.Parameters.TopP
	gr.GenerationConfig.MaxOutputTokens = req.Parameters.MaxTokens
	gr.GenerationConfig.StopSequences = req.Parameters.Stop
	return gr
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func fromGeminiResponse(body []byte, model string) (*normalizer.NonStreamingResponse, error) {
	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, err
	}
	out := &normalizer.NonStreamingResponse{Model: model, FinishReason: normalizer.FinishStop}
	if len(gr.Candidates) > 0 {
		for _, part := range gr.Candidates[0].Content.Parts {
			out.Content += part.Text
		}
		if gr.Candidates[0].FinishReason == "MAX_TOKENS" {
			out.FinishReason = normalizer.FinishLength
		}
	}
	out.Usage = types.TokenUsage{
		PromptTokens:     gr.UsageMetadata.PromptTokenCount,
		CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      gr.UsageMetadata.TotalTokenCount,
	}
	return out, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, req *llmswitch.CanonicalRequest) (*normalizer.NonStreamingResponse, error) {
	payload, err := json.Marshal(toGeminiRequest(req))
	if err != nil {
		return nil, err
	}
	respBody, err := p.Runtime.Execute(ctx, payload)
	if err != nil {
		return nil, err
	}
	return fromGeminiResponse(respBody, req.Model)
}

func (p *GeminiProvider) Stream(ctx context.Context, req *llmswitch.CanonicalRequest) (io.ReadCloser, error) {
	body := toGeminiRequest(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	stream, err := p.Runtime.ExecuteStream(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("gemini: stream: %w", err)
	}
	return stream, nil
}
