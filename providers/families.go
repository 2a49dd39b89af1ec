package providers

import (
	"strings"

	"go.uber.org/zap"

	"github.com/routecodex/routecodex/compat"
	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/runtime"
)

// FamilyDefaults holds the per-family base URL/endpoint defaults the
// teacher hardcodes per provider package (deepseek/qwen/glm each set
// their own BaseURL/EndpointPath default in their New constructor).
var FamilyDefaults = map[string]struct {
	BaseURL      string
	EndpointPath string
}{
	"deepseek": {BaseURL: "https://api.deepseek.com", EndpointPath: "/chat/completions"},
	"qwen":     {BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", EndpointPath: "/chat/completions"},
	"glm":      {BaseURL: "https://open.bigmodel.cn/api/paas/v4", EndpointPath: "/chat/completions"},
	"iflow":    {BaseURL: "https://apis.iflow.cn/v1", EndpointPath: "/chat/completions"},
	"lmstudio": {BaseURL: "http://localhost:1234/v1", EndpointPath: "/chat/completions"},
}

// NewFamilyProvider builds one of the five openai-compat-shaped family
// adapters, resolving its compat profile from the registry and applying
// DeepSeek's reasoning-mode model selection hook when the family is
// "deepseek" (the only family with a provider-specific request hook
// in the teacher's source).
func NewFamilyProvider(family string, rt *runtime.Runtime, profiles *compat.Registry, logger *zap.Logger) (*OpenAICompatProvider, error) {
	profile, err := profiles.Resolve("openai-chat:" + family)
	if err != nil {
		return nil, err
	}
	p := NewOpenAICompatProvider(family, rt, profile)
	if family == "deepseek" {
		p.RequestHook = deepseekRequestHook
	}
	return p, nil
}

// deepseekRequestHook mirrors the teacher's deepseek.deepseekRequestHook:
// auto-select deepseek-reasoner when the client asked for it via the
// "deepseek-reasoner" or "-thinking" model alias and no base model was
// pinned by the route target.
func deepseekRequestHook(req *llmswitch.CanonicalRequest, body *openAICompatBody) {
	if body.Model == "" {
		body.Model = "deepseek-chat"
	}
	if req.Model == "deepseek-reasoner" || strings.HasSuffix(req.Model, "-thinking") {
		body.Model = "deepseek-reasoner"
	}
}
