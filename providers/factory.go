package providers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/routecodex/routecodex/compat"
	"github.com/routecodex/routecodex/runtime"
)

// ProviderConfig is the generic per-providerId configuration the
// virtual router's provider pool resolves into a concrete adapter,
// grounded on the teacher's factory.ProviderConfig (flat fields plus
// an Extra escape hatch) but keyed by RouteCodex's providerType
// vocabulary (openai, responses, anthropic, gemini, gemini-cli, mock)
// instead of the teacher's per-vendor name set.
type ProviderConfig struct {
	ProviderType string
	BaseURL      string
	APIKey       string
	APIKeys      []string
	EndpointPath string
	Timeout      int
}

// NewProviderFromConfig builds the adapter for one providerId, mapping
// providerType to a concrete family constructor the same way the
// teacher's NewProviderFromConfig switches on provider name.
func NewProviderFromConfig(family, providerType string, cfg ProviderConfig, profiles *compat.Registry, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch providerType {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil

	case "responses":
		return NewResponsesProvider(cfg.APIKey, cfg.BaseURL), nil

	case "gemini", "gemini-cli":
		rt := buildRuntime(family, providerType, cfg)
		return NewGeminiProvider(rt), nil

	case "openai", "":
		rt := buildRuntime(family, providerType, cfg)
		return NewFamilyProvider(family, rt, profiles, logger)

	case "mock":
		return NewMockProvider(family), nil

	default:
		return nil, fmt.Errorf("unsupported provider type %q for family %q", providerType, family)
	}
}

func buildRuntime(family, providerType string, cfg ProviderConfig) *runtime.Runtime {
	baseURL := cfg.BaseURL
	endpoint := cfg.EndpointPath
	if baseURL == "" {
		if defaults, ok := FamilyDefaults[family]; ok {
			baseURL = defaults.BaseURL
			if endpoint == "" {
				endpoint = defaults.EndpointPath
			}
		}
	}

	var auth runtime.Authenticator
	if len(cfg.APIKeys) > 1 {
		auth = &runtime.APIKeyAuth{Key: cfg.APIKeys[0]}
	} else {
		auth = &runtime.APIKeyAuth{Key: cfg.APIKey}
	}

	return runtime.New(runtime.Config{
		RuntimeKey:   family,
		ProviderType: providerType,
		BaseURL:      baseURL,
		EndpointPath: endpoint,
		Auth:         auth,
	}, nil)
}
