package compat

import (
	"context"
	"encoding/json"

	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/types"
)

// CleanToolSchemas normalizes every tool's JSON-schema parameters so
// providers with stricter JSON-schema validators (GLM/Qwen-family) don't
// reject an otherwise-valid tool definition. It is the incoming
// tool-cleaning hook referenced in spec §4.3's S1 scenario: a shell
// command tool whose "command" property is declared as a bare string
// gets coerced to accept either a string or an array of strings, which
// is how agent clients sometimes emit it.
func CleanToolSchemas(ctx context.Context, req *llmswitch.CanonicalRequest) error {
	for i := range req.Tools {
		cleaned, err := coerceShellCommandSchema(req.Tools[i].Parameters)
		if err != nil {
			continue // best-effort: leave the schema untouched rather than abort the request
		}
		req.Tools[i].Parameters = cleaned
	}
	return nil
}

// coerceShellCommandSchema widens a tool's "command" property from a
// plain string type to {"anyOf": [string, array-of-string]} when the
// tool looks like a shell-execution tool (name match is left to the
// caller; here we key off the property name itself, matching what
// several agent-framework tool schemas emit for "command"/"cmd").
func coerceShellCommandSchema(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return raw, err
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return raw, nil
	}
	for _, key := range []string{"command", "cmd"} {
		prop, ok := props[key].(map[string]any)
		if !ok {
			continue
		}
		if t, _ := prop["type"].(string); t == "string" {
			props[key] = map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			}
		}
	}
	return json.Marshal(schema)
}

// ValidateRequest rejects canonical requests missing fields every
// downstream provider needs, producing the gateway's own structured
// error rather than letting a malformed request reach an upstream.
func ValidateRequest(ctx context.Context, req *llmswitch.CanonicalRequest) error {
	if req.Model == "" {
		return types.NewError(types.ErrInvalidRequest, "model is required")
	}
	if len(req.Messages) == 0 {
		return types.NewError(types.ErrInvalidRequest, "messages must not be empty")
	}
	for _, t := range req.Tools {
		if t.Name == "" {
			return types.NewError(types.ErrInvalidRequest, "tool name is required")
		}
	}
	return nil
}

// RejectEmptyToolText builds the ERR_COMPAT_TOOL_TEXT_EMPTY error for a
// tool_use/tool_call block whose accompanying text content came back
// empty. It only constructs the error: no hook or profile in this
// package calls it, so empty tool text is not detected by the compat
// chain.
func RejectEmptyToolText(toolName string) error {
	return types.NewError(types.ErrCompatToolTextEmpty, "empty text content alongside tool call for "+toolName)
}
