package llmswitch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/routecodex/routecodex/types"
)

// TestCanonicalize_OpenAIChatPreservesModelAndMessages is a property
// test in the teacher's llm/providers/*_property_test.go style
// (generate random well-formed input, assert an invariant holds for
// every generated case instead of a handful of fixed examples): an
// OpenAI-chat body's model and message role/content survive
// Canonicalize unchanged, since the chat shape already matches the
// canonical one field-for-field.
func TestCanonicalize_OpenAIChatPreservesModelAndMessages(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		model := rapid.StringMatching(`[a-z0-9-]{1,20}`).Draw(rt, "model")
		roles := []types.Role{types.RoleSystem, types.RoleUser, types.RoleAssistant}
		n := rapid.IntRange(1, 5).Draw(rt, "n")

		type wireMessage struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		wire := make([]wireMessage, n)
		for i := range wire {
			role := roles[rapid.IntRange(0, len(roles)-1).Draw(rt, "role")]
			content := rapid.String().Draw(rt, "content")
			wire[i] = wireMessage{Role: string(role), Content: content}
		}

		body, err := json.Marshal(map[string]any{"model": model, "messages": wire})
		require.NoError(rt, err)

		canon, err := Canonicalize(ProtocolOpenAIChat, body)
		require.NoError(rt, err)
		require.Equal(rt, model, canon.Model)
		require.Len(rt, canon.Messages, n)
		for i, m := range canon.Messages {
			require.Equal(rt, wire[i].Role, string(m.Role))
			require.Equal(rt, wire[i].Content, m.Content)
		}
	})
}
