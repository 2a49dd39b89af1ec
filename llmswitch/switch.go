// Package llmswitch implements the entry stage of the gateway pipeline:
// detecting which wire protocol an inbound request arrived in and
// canonicalizing its body into the shared types.Message/types.ToolSchema
// model that every downstream stage (vrouter, compat, runtime, normalizer)
// operates on.
package llmswitch

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/routecodex/routecodex/types"
)

// Protocol identifies one of the wire protocols the gateway accepts or
// talks to upstream.
type Protocol string

const (
	ProtocolOpenAIChat    Protocol = "openai-chat"
	ProtocolOpenAIResp    Protocol = "openai-responses"
	ProtocolAnthropic     Protocol = "anthropic-messages"
	ProtocolUnknown       Protocol = ""
)

// DetectRequest carries the inputs the detection rules need: the inbound
// path, an optional explicit override, headers, and the raw JSON body.
type DetectRequest struct {
	Path            string
	TargetProtocol  string // explicit override, e.g. query param or header
	Headers         http.Header
	Body            json.RawMessage
}

// Detect applies the spec's five detection rules in priority order:
//  1. an explicit targetProtocol override
//  2. the endpoint the request arrived on
//  3. content heuristics (presence of fields unique to one protocol)
//  4. a header heuristic (anthropic-version, openai-beta, ...)
//  5. a configured fallback default
func Detect(req DetectRequest, fallback Protocol) Protocol {
	if p := normalize(req.TargetProtocol); p != ProtocolUnknown {
		return p
	}
	if p := byEndpoint(req.Path); p != ProtocolUnknown {
		return p
	}
	if p := byContent(req.Body); p != ProtocolUnknown {
		return p
	}
	if p := byHeaders(req.Headers); p != ProtocolUnknown {
		return p
	}
	if fallback != ProtocolUnknown {
		return fallback
	}
	return ProtocolOpenAIChat
}

func normalize(s string) Protocol {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai-chat", "openai", "chat":
		return ProtocolOpenAIChat
	case "openai-responses", "responses":
		return ProtocolOpenAIResp
	case "anthropic-messages", "anthropic", "messages":
		return ProtocolAnthropic
	default:
		return ProtocolUnknown
	}
}

func byEndpoint(path string) Protocol {
	switch {
	case strings.HasSuffix(path, "/v1/messages"):
		return ProtocolAnthropic
	case strings.HasSuffix(path, "/v1/responses"):
		return ProtocolOpenAIResp
	case strings.HasSuffix(path, "/v1/chat/completions"):
		return ProtocolOpenAIChat
	default:
		return ProtocolUnknown
	}
}

// byContent inspects field shapes that are unique to one protocol body:
// a body with "input" and no "messages" is a Responses API body, and a
// body with both a top-level "system" and "messages" is Anthropic. Any
// other body, an OpenAI chat body included, is not classified here and
// is left to the later rules.
func byContent(body json.RawMessage) Protocol {
	if len(body) == 0 {
		return ProtocolUnknown
	}
	var probe struct {
		Input    json.RawMessage `json:"input"`
		Messages json.RawMessage `json:"messages"`
		System   json.RawMessage `json:"system"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ProtocolUnknown
	}
	switch {
	case len(probe.Input) > 0 && len(probe.Messages) == 0:
		return ProtocolOpenAIResp
	case len(probe.System) > 0 && len(probe.Messages) > 0:
		return ProtocolAnthropic
	default:
		return ProtocolUnknown
	}
}

func byHeaders(h http.Header) Protocol {
	if h == nil {
		return ProtocolUnknown
	}
	if h.Get("anthropic-version") != "" || h.Get("x-api-key") != "" {
		return ProtocolAnthropic
	}
	if h.Get("openai-beta") != "" {
		return ProtocolOpenAIResp
	}
	return ProtocolUnknown
}

// Memo is a small bounded LRU mapping requestId to the
// protocol a request arrived in, so the outbound leg (normalizer) can
// re-translate the provider's response back into the client's wire shape
// without threading the protocol through every intermediate call.
type Memo struct {
	mu       sync.Mutex
	capacity int
	order    []string
	entries  map[string]Protocol
}

// NewMemo creates a bounded request-id -> protocol memoization map. A
// capacity of 0 defaults to 4096 entries.
func NewMemo(capacity int) *Memo {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Memo{
		capacity: capacity,
		entries:  make(map[string]Protocol, capacity),
	}
}

// Put records the originating protocol for a request id, evicting the
// least recently used entry if the map is at capacity.
func (m *Memo) Put(requestID string, p Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[requestID]; exists {
		m.touch(requestID)
	} else {
		if len(m.order) >= m.capacity {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.entries, oldest)
		}
		m.order = append(m.order, requestID)
	}
	m.entries[requestID] = p
}

// Get returns the protocol recorded for a request id, if any.
func (m *Memo) Get(requestID string) (Protocol, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entries[requestID]
	if ok {
		m.touch(requestID)
	}
	return p, ok
}

// touch moves requestID to the most-recently-used end of the order.
func (m *Memo) touch(requestID string) {
	for i, id := range m.order {
		if id == requestID {
			m.order = append(append(m.order[:i:i], m.order[i+1:]...), requestID)
			return
		}
	}
}

// CanonicalRequest is the gateway-internal, protocol-agnostic request
// produced by canonicalization (spec §3 Canonical Request).
type CanonicalRequest struct {
	Model      string            `json:"model"`
	Messages   []types.Message   `json:"messages"`
	Tools      []types.ToolSchema `json:"tools,omitempty"`
	Parameters Parameters        `json:"parameters"`
	Metadata   Metadata          `json:"metadata"`
}

// Parameters holds the sampling/generation knobs common to all three wire
// protocols.
type Parameters struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

// Metadata carries request provenance that never reaches an upstream
// provider body but is needed by vrouter/compat/runtime/normalizer.
type Metadata struct {
	RequestID        string          `json:"request_id"`
	SessionID        string          `json:"session_id,omitempty"`
	EntryEndpoint    string          `json:"entry_endpoint"`
	ClientHeaders    http.Header     `json:"-"`
	OriginalProtocol Protocol        `json:"original_protocol"`
	InboundStream    bool            `json:"inbound_stream"`
	OutboundStream   bool            `json:"outbound_stream"`
	Raw              json.RawMessage `json:"-"`
}

// Canonicalize converts a raw wire body in the given protocol into the
// canonical request model. OpenAI-chat bodies pass through close to
// verbatim; Anthropic and Responses bodies are reshaped.
func Canonicalize(protocol Protocol, body json.RawMessage) (*CanonicalRequest, error) {
	switch protocol {
	case ProtocolAnthropic:
		return canonicalizeAnthropic(body)
	case ProtocolOpenAIResp:
		return canonicalizeResponses(body)
	default:
		return canonicalizeOpenAIChat(body)
	}
}
