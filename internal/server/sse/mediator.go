package sse

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/poemonsense/antigravity-proxy-go/internal/format"
	"github.com/poemonsense/antigravity-proxy-go/internal/orchestrator"
	"github.com/poemonsense/antigravity-proxy-go/pkg/anthropic"
)

const (
	thinkingPrefix = "\n> *Thinking: "
	thinkingSuffix = "\n\n"
)

// mediator drives the Anthropic SSE event grammar (spec §4.7) over one
// streaming request's lifetime: message_start immediately, a status text
// block at index 0 written to while the Fallback Orchestrator (C6) acquires
// an account and waits out rate limits, a transition into the real content
// block once the upstream connection is live, and well-formed block
// open/close pairing around tool-use and mid-stream fallback announcements.
type mediator struct {
	w      *Writer
	index  int
	status struct {
		open bool // block 0 still open for status text
	}
	bodyOpen   bool // some non-status text block is currently open
	inThinking bool
	hasToolUse bool
}

// StreamMessages runs one Anthropic /v1/messages streaming request to
// completion, writing SSE events directly to w. requestedModel is the
// client-supplied model string, used verbatim in message_start (spec §4.7
// invariant 1 fires before account acquisition, so the eventual fallback
// model is not yet known).
func StreamMessages(ctx context.Context, w http.ResponseWriter, in format.AnthropicIn, requestedModel string, orch *orchestrator.Orchestrator) (orchestrator.Outcome, error) {
	writer, err := NewWriter(w)
	if err != nil {
		return orchestrator.Outcome{}, err
	}
	writer.SetHeaders()

	m := &mediator{w: writer}
	m.status.open = true

	msgID := anthropic.GenerateMessageID()
	writer.WriteEvent(anthropic.SSEEventMessageStart, anthropic.SSEEvent{
		Type: anthropic.SSEEventMessageStart,
		Message: &anthropic.MessagesResponse{
			ID:      msgID,
			Type:    "message",
			Role:    "assistant",
			Content: []anthropic.ContentBlock{},
			Model:   requestedModel,
			Usage:   &anthropic.Usage{},
		},
	})
	m.openBlock(0, anthropic.ContentBlock{Type: "text"})

	statusCh := make(chan string, 8)
	done := make(chan struct{})
	defer close(done)
	status := func(s string) {
		select {
		case statusCh <- s:
		case <-done:
		}
	}

	chunks, wait := orch.RunStream(ctx, in, status)

	var final format.StreamChunk
	var ctxErr error

loop:
	for {
		select {
		case s := <-statusCh:
			m.onStatus(s)
		case chunk, ok := <-chunks:
			if !ok {
				break loop
			}
			m.onChunk(chunk)
			if chunk.Done {
				final = chunk
			}
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break loop
		}
	}

	// Best-effort drain: a status sent just before the channel closed.
	for drained := false; !drained; {
		select {
		case s := <-statusCh:
			m.onStatus(s)
		default:
			drained = true
		}
	}

	result := wait()
	if result.Err != nil || ctxErr != nil {
		m.closeOpenBlock()
		info := ErrorShape(result.Err)
		if result.Err == nil && ctxErr != nil {
			info = ErrorShape(ctxErr)
		}
		return result.Outcome, writer.WriteError(info.Type, info.Message)
	}

	m.closeOpenBlock()
	stopReason := "end_turn"
	if m.hasToolUse {
		stopReason = "tool_use"
	}
	writer.WriteEvent(anthropic.SSEEventMessageDelta, anthropic.SSEEvent{
		Type:  anthropic.SSEEventMessageDelta,
		Delta: &anthropic.ContentDelta{StopReason: stopReason},
		Usage: &anthropic.Usage{InputTokens: final.InputTokens, OutputTokens: final.OutputTokens},
	})
	writer.WriteEvent(anthropic.SSEEventMessageStop, anthropic.SSEEvent{Type: anthropic.SSEEventMessageStop})
	return result.Outcome, nil
}

func (m *mediator) openBlock(index int, block anthropic.ContentBlock) {
	m.index = index
	m.w.WriteEvent(anthropic.SSEEventContentBlockStart, anthropic.SSEEvent{
		Type:         anthropic.SSEEventContentBlockStart,
		Index:        index,
		ContentBlock: &block,
	})
}

func (m *mediator) closeBlockAt(index int) {
	m.w.WriteEvent(anthropic.SSEEventContentBlockStop, anthropic.SSEEvent{
		Type:  anthropic.SSEEventContentBlockStop,
		Index: index,
	})
}

func (m *mediator) closeOpenBlock() {
	if m.status.open {
		m.closeBlockAt(0)
		m.status.open = false
		return
	}
	if m.bodyOpen {
		m.closeBlockAt(m.index)
		m.bodyOpen = false
	}
}

func (m *mediator) textDelta(index int, text string) {
	m.w.WriteEvent(anthropic.SSEEventContentBlockDelta, anthropic.SSEEvent{
		Type:  anthropic.SSEEventContentBlockDelta,
		Index: index,
		Delta: &anthropic.ContentDelta{Type: "text_delta", Text: text},
	})
}

// onStatus handles one orchestrator progress/announcement string (spec §4.7
// invariants 2 and 6).
func (m *mediator) onStatus(text string) {
	if m.status.open {
		m.textDelta(0, text)
		return
	}
	// Mid-stream fallback announcement after the status block already
	// closed: open a fresh text block, write the message, close it again —
	// never leave it open, since the next real chunk opens its own block.
	m.index++
	m.openBlock(m.index, anthropic.ContentBlock{Type: "text"})
	m.textDelta(m.index, text)
	m.closeBlockAt(m.index)
}

// onChunk handles one upstream StreamChunk (spec §4.7 invariant 4).
func (m *mediator) onChunk(chunk format.StreamChunk) {
	if chunk.Done {
		return
	}

	if m.status.open {
		m.closeBlockAt(0)
		m.status.open = false
		m.index = 1
		m.openBlock(1, anthropic.ContentBlock{Type: "text"})
		m.bodyOpen = true
	} else if !m.bodyOpen {
		m.index++
		m.openBlock(m.index, anthropic.ContentBlock{Type: "text"})
		m.bodyOpen = true
	}

	switch {
	case chunk.IsToolUse:
		m.closeBlockAt(m.index)
		m.bodyOpen = false
		m.emitToolUse(chunk.Delta)
		m.index++
		m.openBlock(m.index, anthropic.ContentBlock{Type: "text"})
		m.bodyOpen = true
		m.hasToolUse = true
		m.inThinking = false

	case chunk.IsThinking:
		text := chunk.Delta
		if !m.inThinking {
			text = thinkingPrefix + text
			m.inThinking = true
		}
		m.textDelta(m.index, text)

	default:
		text := chunk.Delta
		if m.inThinking {
			text = thinkingSuffix + text
			m.inThinking = false
		}
		m.textDelta(m.index, text)
	}
}

// toolUseFragment mirrors the JSON format.WalkStreamParts serializes for a
// tool_use chunk (spec §4.4 "Streaming").
type toolUseFragment struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// emitToolUse opens, fills, and closes one atomic tool_use block (spec §4.7
// invariant 4: "input:{}" at open, a single input_json_delta carrying the
// full serialized input, then close).
func (m *mediator) emitToolUse(fragment string) {
	var parsed toolUseFragment
	_ = json.Unmarshal([]byte(fragment), &parsed)

	m.index++
	m.openBlock(m.index, anthropic.ContentBlock{
		Type:  "tool_use",
		ID:    parsed.ID,
		Name:  parsed.Name,
		Input: json.RawMessage("{}"),
	})

	input := parsed.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	m.w.WriteEvent(anthropic.SSEEventContentBlockDelta, anthropic.SSEEvent{
		Type:  anthropic.SSEEventContentBlockDelta,
		Index: m.index,
		Delta: &anthropic.ContentDelta{Type: "input_json_delta", PartialJSON: string(input)},
	})
	m.closeBlockAt(m.index)
}
