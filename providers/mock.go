package providers

import (
	"context"
	"io"

	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/normalizer"
	"github.com/routecodex/routecodex/types"
)

// MockProvider echoes the last user message back as the completion,
// satisfying providerType "mock" for deployments that wire a route
// target to a canned responder instead of a live upstream (local
// development, integration tests, demo fixtures).
type MockProvider struct {
	FamilyName string
}

func NewMockProvider(family string) *MockProvider {
	return &MockProvider{FamilyName: family}
}

func (p *MockProvider) Name() string { return p.FamilyName }

func (p *MockProvider) Complete(ctx context.Context, req *llmswitch.CanonicalRequest) (*normalizer.NonStreamingResponse, error) {
	content := "mock response"
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == types.RoleUser {
			content = "echo: " + req.Messages[i].Content
			break
		}
	}
	return &normalizer.NonStreamingResponse{
		ID:           "mock-" + req.Metadata.RequestID,
		Model:        req.Model,
		Content:      content,
		FinishReason: normalizer.FinishStop,
	}, nil
}

func (p *MockProvider) Stream(ctx context.Context, req *llmswitch.CanonicalRequest) (io.ReadCloser, error) {
	return nil, types.NewError(types.ErrUnsupportedProviderType, "mock provider does not support streaming")
}
