// Package providers implements the per-family upstream adapters the
// Provider Runtime stage dispatches to. Each adapter knows one family's
// wire shape (openai-compat JSON, Gemini REST, Anthropic SDK, OpenAI
// Responses SDK) and converts between it and the canonical request/
// response model. The openai-compat and Gemini adapters send through a
// runtime.Runtime (auth, retries, HTTP transport); the Anthropic and
// Responses adapters call their SDK clients directly.
package providers

import (
	"context"
	"io"

	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/normalizer"
)

// Provider is what every per-family adapter implements. It mirrors the
// teacher's llm.Provider interface shape (Completion/Stream/Name) but
// operates on the gateway's canonical request/response types instead of
// the teacher's llm.ChatRequest/ChatResponse.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *llmswitch.CanonicalRequest) (*normalizer.NonStreamingResponse, error)
	Stream(ctx context.Context, req *llmswitch.CanonicalRequest) (io.ReadCloser, error)
}

// Registry maps a configured providerId to its already-built adapter,
// so only the adapters a deployment configures are constructed.
type Registry map[string]Provider

// Get looks up a configured provider adapter by name, returning the
// spec's ERR_UNSUPPORTED_PROVIDER_TYPE-flavored ok=false instead of
// panicking on an unconfigured type.
func (r Registry) Get(name string) (Provider, bool) {
	p, ok := r[name]
	return p, ok
}
