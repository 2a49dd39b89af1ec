package compat

import (
	"context"
	"fmt"

	"github.com/routecodex/routecodex/llmswitch"
)

// Profile bundles the compat hooks and field/shape rules exercised for
// one "<protocol>:<profile>" key (spec §4.3: profiles resolve to either
// a built-in Go module or an external script; RouteCodex only implements
// the built-in form — external JS profiles are a declared Non-goal).
type Profile struct {
	Key              string
	IncomingChain    *Chain
	OutgoingChain    *Chain
	OutgoingFieldMap []FieldRule
}

// Registry resolves "<protocol>:<profile>" keys to a built-in Profile,
// failing fast (returning an error rather than silently falling back)
// when the key names a profile that was never registered — spec §4.3
// explicitly calls for fail-fast behavior here so a config typo doesn't
// silently degrade to passthrough.
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry creates an empty profile registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*Profile)}
}

// Register adds a profile under its own key.
func (r *Registry) Register(p *Profile) {
	r.profiles[p.Key] = p
}

// Resolve looks up a profile by key, returning an error if it was never
// registered.
func (r *Registry) Resolve(key string) (*Profile, error) {
	p, ok := r.profiles[key]
	if !ok {
		return nil, fmt.Errorf("compat: unknown profile %q", key)
	}
	return p, nil
}

// ApplyIncoming runs a profile's incoming stages over a canonical
// request in spec order: preprocessing, validation, postprocessing.
func (p *Profile) ApplyIncoming(ctx context.Context, req *llmswitch.CanonicalRequest) error {
	if err := p.IncomingChain.Run(ctx, StageIncomingPreprocessing, req); err != nil {
		return err
	}
	if err := p.IncomingChain.Run(ctx, StageIncomingValidation, req); err != nil {
		return err
	}
	return p.IncomingChain.Run(ctx, StageIncomingPostprocessing, req)
}

// ApplyOutgoing runs a profile's outgoing stages: preprocessing then
// postprocessing.
func (p *Profile) ApplyOutgoing(ctx context.Context, req *llmswitch.CanonicalRequest) error {
	if err := p.OutgoingChain.Run(ctx, StageOutgoingPreprocessing, req); err != nil {
		return err
	}
	return p.OutgoingChain.Run(ctx, StageOutgoingPostprocessing, req)
}

// BuiltinProfiles constructs the registry of per-family profiles the
// gateway ships with: glm/qwen/iflow/lmstudio/deepseek (all
// openai-chat-shaped upstreams needing tool-schema cleaning),
// responses-c4m (OpenAI Responses API family, with a placeholder
// outgoing hook; see detectRateLimitNotice), gemini (request
// validation only), and anthropic-passthrough
// (no reshaping needed since the client and upstream already agree).
func BuiltinProfiles() *Registry {
	reg := NewRegistry()

	for _, family := range []string{"glm", "qwen", "iflow", "lmstudio", "deepseek"} {
		incoming := NewChain()
		incoming.Use(StageIncomingPreprocessing, CleanToolSchemas)
		incoming.Use(StageIncomingValidation, ValidateRequest)
		reg.Register(&Profile{
			Key:           "openai-chat:" + family,
			IncomingChain: incoming,
			OutgoingChain: NewChain(),
		})
	}

	respIncoming := NewChain()
	respIncoming.Use(StageIncomingPreprocessing, CleanToolSchemas)
	respIncoming.Use(StageIncomingValidation, ValidateRequest)
	respOutgoing := NewChain()
	respOutgoing.Use(StageOutgoingPreprocessing, detectRateLimitNotice)
	reg.Register(&Profile{
		Key:           "openai-responses:c4m",
		IncomingChain: respIncoming,
		OutgoingChain: respOutgoing,
	})

	geminiIncoming := NewChain()
	geminiIncoming.Use(StageIncomingValidation, ValidateRequest)
	reg.Register(&Profile{
		Key:           "gemini:default",
		IncomingChain: geminiIncoming,
		OutgoingChain: NewChain(),
	})

	reg.Register(&Profile{
		Key:           "anthropic-messages:passthrough",
		IncomingChain: NewChain(),
		OutgoingChain: NewChain(),
	})

	return reg
}

// detectRateLimitNotice is the c4m profile's outgoing-preprocessing
// hook. It is a no-op: it receives only the canonical request, so it
// does not inspect response bodies and never turns a rate-limit notice
// embedded in a 200 response into a 429 or a cooldown.
func detectRateLimitNotice(ctx context.Context, req *llmswitch.CanonicalRequest) error {
	return nil
}
