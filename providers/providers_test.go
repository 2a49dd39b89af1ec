package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/routecodex/routecodex/compat"
	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/types"
)

func TestMockProvider_EchoesLastUserMessage(t *testing.T) {
	p := NewMockProvider("glm")
	req := &llmswitch.CanonicalRequest{
		Model: "glm-4.6",
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "be helpful"},
			{Role: types.RoleUser, Content: "hello"},
			{Role: types.RoleAssistant, Content: "hi there"},
			{Role: types.RoleUser, Content: "what's 2+2"},
		},
		Metadata: llmswitch.Metadata{RequestID: "req-1"},
	}

	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "echo: what's 2+2", resp.Content)
	assert.Equal(t, "glm-4.6", resp.Model)
	assert.Equal(t, "mock-req-1", resp.ID)
}

func TestMockProvider_NoUserMessageFallsBackToCannedResponse(t *testing.T) {
	p := NewMockProvider("glm")
	req := &llmswitch.CanonicalRequest{
		Messages: []types.Message{{Role: types.RoleSystem, Content: "be helpful"}},
	}
	resp, err := p.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
}

func TestMockProvider_StreamUnsupported(t *testing.T) {
	p := NewMockProvider("glm")
	_, err := p.Stream(context.Background(), &llmswitch.CanonicalRequest{})
	assert.Error(t, err)
}

func TestRegistry_Get(t *testing.T) {
	reg := Registry{"glm": NewMockProvider("glm")}

	p, ok := reg.Get("glm")
	assert.True(t, ok)
	assert.Equal(t, "glm", p.Name())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestNewProviderFromConfig_Mock(t *testing.T) {
	p, err := NewProviderFromConfig("glm", "mock", ProviderConfig{}, compat.BuiltinProfiles(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "glm", p.Name())
}

func TestNewProviderFromConfig_UnsupportedType(t *testing.T) {
	_, err := NewProviderFromConfig("glm", "not-a-type", ProviderConfig{}, compat.BuiltinProfiles(), zap.NewNop())
	assert.Error(t, err)
}

func TestNewProviderFromConfig_OpenAICompatFamilies(t *testing.T) {
	for _, family := range []string{"glm", "qwen", "iflow", "lmstudio", "deepseek"} {
		p, err := NewProviderFromConfig(family, "openai", ProviderConfig{APIKey: "k"}, compat.BuiltinProfiles(), zap.NewNop())
		require.NoError(t, err, family)
		assert.Equal(t, family, p.Name())
		_, ok := p.(*OpenAICompatProvider)
		assert.True(t, ok, "family %q should build an OpenAICompatProvider", family)
	}
}

func TestNewFamilyProvider_DeepseekRequestHookPicksReasoner(t *testing.T) {
	p, err := NewFamilyProvider("deepseek", nil, compat.BuiltinProfiles(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, p.RequestHook)

	body := &openAICompatBody{}
	p.RequestHook(&llmswitch.CanonicalRequest{Model: "deepseek-reasoner"}, body)
	assert.Equal(t, "deepseek-reasoner", body.Model)

	body = &openAICompatBody{}
	p.RequestHook(&llmswitch.CanonicalRequest{Model: "deepseek-chat-thinking"}, body)
	assert.Equal(t, "deepseek-reasoner", body.Model)

	body = &openAICompatBody{}
	p.RequestHook(&llmswitch.CanonicalRequest{Model: "deepseek-chat"}, body)
	assert.Equal(t, "deepseek-chat", body.Model)
}
