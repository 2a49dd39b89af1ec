package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/routecodex/routecodex/llmswitch"
	"github.com/routecodex/routecodex/types"
)

// detectForError best-effort detects the client's wire protocol from a
// request that has already failed (bad JSON, auth rejection, ...), so
// even an early failure renders in the shape the client expects instead
// of always defaulting to the OpenAI envelope.
func detectForError(r *http.Request) llmswitch.Protocol {
	return llmswitch.Detect(llmswitch.DetectRequest{
		Path:    r.URL.Path,
		Headers: r.Header,
	}, llmswitch.ProtocolOpenAIChat)
}

func unauthorizedError() *types.Error {
	return types.NewError(types.ErrUnauthorized, "invalid or missing API key").
		WithHTTPStatus(http.StatusUnauthorized).
		WithRetryable(false)
}

// newRequestID mints a request id for snapshotting and health
// bookkeeping, honoring a client-supplied X-Request-Id so traces stay
// joinable across a reverse proxy.
func newRequestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// readBody buffers the request body, capping it at 32MiB so a
// malicious or misbehaving client can't exhaust memory before
// detection/canonicalization ever run.
func readBody(r *http.Request) ([]byte, error) {
	const maxBody = 32 << 20
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxBody {
		return nil, types.NewError(types.ErrInvalidRequest, "request body too large").WithHTTPStatus(http.StatusRequestEntityTooLarge)
	}
	return body, nil
}

// isWarmup matches the spec's warm-up short-circuit: a Claude Code
// client probing liveness with a minimal "count tokens" style request
// before it ever sends real work. Those requests skip the pipeline
// entirely and get a canned zero-usage reply.
func isWarmup(r *http.Request, body []byte) bool {
	if !strings.Contains(r.Header.Get("User-Agent"), "claude-code") {
		return false
	}
	lower := bytes.ToLower(body)
	if !bytes.Contains(lower, []byte(`"max_tokens":1`)) {
		return false
	}
	return bytes.Contains(lower, []byte("warmup")) || bytes.Contains(lower, []byte(`"count"`))
}

func writeWarmupReply(w http.ResponseWriter, protocol llmswitch.Protocol) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if protocol == llmswitch.ProtocolAnthropic {
		w.Write([]byte(`{"type":"message","role":"assistant","content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn","usage":{"input_tokens":0,"output_tokens":0}}`))
		return
	}
	w.Write([]byte(`{"id":"warmup","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}],"usage":{"prompt_tokens":0,"completion_tokens":0,"total_tokens":0}}`))
}
