package normalizer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// openAIChunk is one "chat.completion.chunk" SSE frame.
type openAIChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// blockState tracks one Anthropic content block's open/closed lifecycle
// across chunks, keyed by the OpenAI choice/tool-call index that feeds
// it.
type blockState struct {
	anthropicIndex int
	kind           string // "text" | "tool_use"
	toolCallID     string
	toolName       string
	opened         bool
}

// Transcoder converts an OpenAI-chat SSE stream into Anthropic Messages
// SSE events, one chunk at a time. It buffers a trailing partial UTF-8
// sequence across reads so a multi-byte character split across two SSE
// "data:" lines is never emitted as a mangled rune (spec §4.5).
type Transcoder struct {
	nextBlockIndex int
	blocks         map[int]*blockState // keyed by OpenAI choice/tool-call index
	messageStarted bool
	pendingBytes   []byte
}

// NewTranscoder creates an empty OpenAI-chat -> Anthropic SSE transcoder.
func NewTranscoder() *Transcoder {
	return &Transcoder{blocks: make(map[int]*blockState)}
}

// anthropicEvent is one emitted SSE frame: "event: <name>\ndata: <json>\n\n".
type anthropicEvent struct {
	Event string
	Data  []byte
}

func (e anthropicEvent) Render() string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Event, e.Data)
}

// Feed processes one raw "data: {...}" line (without the "data:" prefix)
// and returns the Anthropic SSE events it produces, in order.
func (t *Transcoder) Feed(data string) ([]anthropicEvent, error) {
	if data == "[DONE]" {
		return t.finish(), nil
	}

	var chunk openAIChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Malformed frame: pass through as a best-effort no-op rather
		// than aborting the whole stream.
		return nil, nil
	}

	var events []anthropicEvent
	if !t.messageStarted {
		t.messageStarted = true
		events = append(events, t.messageStart(chunk))
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			events = append(events, t.emitText(choice.Index, choice.Delta.Content)...)
		}
		for _, tc := range choice.Delta.ToolCalls {
			events = append(events, t.emitToolUse(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)...)
		}
		if choice.FinishReason != nil {
			events = append(events, t.closeAllBlocks()...)
			events = append(events, t.messageDelta(*choice.FinishReason, chunk.Usage))
		}
	}
	return events, nil
}

func (t *Transcoder) messageStart(chunk openAIChunk) anthropicEvent {
	payload, _ := json.Marshal(map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":    chunk.ID,
			"type":  "message",
			"role":  "assistant",
			"model": chunk.Model,
			"usage": map[string]any{"input_tokens": 0, "output_tokens": 0},
		},
	})
	return anthropicEvent{Event: "message_start", Data: payload}
}

func (t *Transcoder) emitText(choiceIndex int, text string) []anthropicEvent {
	// Hold back a trailing partial UTF-8 sequence until more bytes
	// arrive, so a multi-byte rune split across chunks never gets
	// emitted as two mangled halves.
	combined := append(t.pendingBytes, []byte(text)...)
	emit, pending := splitCompleteUTF8(combined)
	t.pendingBytes = pending
	if len(emit) == 0 {
		return nil
	}

	var events []anthropicEvent
	b, isNew := t.blockFor(choiceIndex, "text", "", "")
	if isNew {
		events = append(events, t.blockStart(b))
	}
	payload, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": b.anthropicIndex,
		"delta": map[string]any{"type": "text_delta", "text": string(emit)},
	})
	events = append(events, anthropicEvent{Event: "content_block_delta", Data: payload})
	return events
}

func (t *Transcoder) emitToolUse(choiceIndex int, id, name, argsFragment string) []anthropicEvent {
	var events []anthropicEvent
	b, isNew := t.blockFor(choiceIndex, "tool_use", id, name)
	if isNew {
		events = append(events, t.blockStart(b))
	}
	if argsFragment != "" {
		payload, _ := json.Marshal(map[string]any{
			"type":  "content_block_delta",
			"index": b.anthropicIndex,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": argsFragment},
		})
		events = append(events, anthropicEvent{Event: "content_block_delta", Data: payload})
	}
	return events
}

// splitCompleteUTF8 splits b into a prefix containing only complete
// runes and a suffix holding back a trailing incomplete multi-byte
// sequence, if any.
func splitCompleteUTF8(b []byte) (complete, pending []byte) {
	if len(b) == 0 {
		return b, nil
	}
	start := len(b) - utf8.UTFMax
	if start < 0 {
		start = 0
	}
	for i := len(b) - 1; i >= start; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				// the rune starting at i needs more bytes than we have
				return b[:i], append([]byte(nil), b[i:]...)
			}
			return b, nil
		}
	}
	// no rune-start byte found in the lookback window: treat entire
	// trailing window as pending to be safe.
	return b[:start], append([]byte(nil), b[start:]...)
}

func (t *Transcoder) blockFor(choiceIndex int, kind, toolID, toolName string) (*blockState, bool) {
	key := choiceIndex
	if kind == "tool_use" {
		key = choiceIndex<<16 | 1 // disambiguate tool-call blocks from the text block at the same choice index
	}
	if b, ok := t.blocks[key]; ok {
		return b, false
	}
	b := &blockState{anthropicIndex: t.nextBlockIndex, kind: kind, toolCallID: toolID, toolName: toolName}
	t.nextBlockIndex++
	t.blocks[key] = b
	return b, true
}

func (t *Transcoder) blockStart(b *blockState) anthropicEvent {
	b.opened = true
	var contentBlock map[string]any
	if b.kind == "tool_use" {
		contentBlock = map[string]any{"type": "tool_use", "id": b.toolCallID, "name": b.toolName, "input": map[string]any{}}
	} else {
		contentBlock = map[string]any{"type": "text", "text": ""}
	}
	payload, _ := json.Marshal(map[string]any{
		"type":          "content_block_start",
		"index":         b.anthropicIndex,
		"content_block": contentBlock,
	})
	return anthropicEvent{Event: "content_block_start", Data: payload}
}

func (t *Transcoder) closeAllBlocks() []anthropicEvent {
	var events []anthropicEvent
	for _, b := range t.blocks {
		if !b.opened {
			continue
		}
		payload, _ := json.Marshal(map[string]any{"type": "content_block_stop", "index": b.anthropicIndex})
		events = append(events, anthropicEvent{Event: "content_block_stop", Data: payload})
		b.opened = false
	}
	return events
}

func (t *Transcoder) messageDelta(finishReason string, usage *struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}) anthropicEvent {
	stopReason := anthropicStopReasons[mapOpenAIFinish(finishReason)]
	if stopReason == "" {
		stopReason = "end_turn"
	}
	outTokens := 0
	if usage != nil {
		outTokens = usage.CompletionTokens
	}
	payload, _ := json.Marshal(map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stopReason},
		"usage": map[string]any{"output_tokens": outTokens},
	})
	return anthropicEvent{Event: "message_delta", Data: payload}
}

// finish closes any still-open blocks and emits message_stop, handling
// the case where the upstream sends "[DONE]" without ever sending a
// finish_reason (spec §4.5 edge case: synthesize a stop).
func (t *Transcoder) finish() []anthropicEvent {
	events := t.closeAllBlocks()
	payload, _ := json.Marshal(map[string]any{"type": "message_stop"})
	events = append(events, anthropicEvent{Event: "message_stop", Data: payload})
	return events
}

// TranscodeStream reads "data:" lines from an OpenAI-chat SSE body and
// writes the transcoded Anthropic SSE events to w, stopping on [DONE]
// or EOF. It mirrors the teacher's openaicompat.StreamSSE line-reading
// loop shape (bufio line reader, "data:" prefix strip, [DONE] sentinel)
// but drives the Transcoder state machine instead of building
// llm.StreamChunk values.
func TranscodeStream(r io.Reader, w io.Writer) error {
	t := NewTranscoder()
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && strings.HasPrefix(trimmed, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
			events, ferr := t.Feed(data)
			if ferr != nil {
				return ferr
			}
			for _, ev := range events {
				if _, werr := io.WriteString(w, ev.Render()); werr != nil {
					return werr
				}
			}
			if data == "[DONE]" {
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
