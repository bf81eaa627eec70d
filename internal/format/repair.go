package format

import (
	"github.com/poemonsense/antigravity-proxy-go/internal/config"
	"github.com/poemonsense/antigravity-proxy-go/pkg/anthropic"
)

// RepairSession applies the two recoverable-corruption fixes spec §4.5
// names, to an Anthropic conversation history, before translation:
//
//  1. Missing tool_result: for every tool_use block in an assistant message
//     not immediately followed by a matching tool_result, synthesize one.
//  2. Malformed thinking block: drop any thinking block lacking a signature
//     or a text payload.
//
// Idempotent (P3): repair(repair(msgs)) == repair(msgs), because once a
// synthetic tool_result is inserted the pairing is satisfied and won't be
// re-inserted, and a dropped thinking block simply isn't there to re-drop.
//
// sigLookup, when non-nil, is consulted for a malformed thinking block that
// has text but no signature: a cache hit substitutes the cached signature
// instead of dropping the block. Pass nil for the plain spec §4.5 behavior.
func RepairSession(messages []anthropic.Message, sigLookup func() (string, bool)) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(messages))

	for i := 0; i < len(messages); i++ {
		msg := anthropic.CloneMessage(messages[i])

		if msg.Role == "assistant" {
			msg.Content = dropMalformedThinking(msg.Content, sigLookup)
		}
		out = append(out, msg)

		if msg.Role != "assistant" {
			continue
		}

		unanswered := unansweredToolUseIDs(msg.Content, messages, i)
		if len(unanswered) == 0 {
			continue
		}

		content := make([]anthropic.ContentBlock, 0, len(unanswered))
		for _, tu := range unanswered {
			content = append(content, anthropic.ContentBlock{
				Type:      "tool_result",
				ToolUseID: tu.id,
				Content:   "Tool '" + tu.name + "' was not executed. The previous operation was interrupted. Please continue with the available information or ask the user to retry.",
			})
		}
		out = append(out, anthropic.Message{Role: "user", Content: content})
	}

	return out
}

type toolUse struct{ id, name string }

// unansweredToolUseIDs returns the tool_use blocks in msg.Content that are
// not satisfied by a matching tool_result in the very next message of the
// original sequence.
func unansweredToolUseIDs(content []anthropic.ContentBlock, all []anthropic.Message, idx int) []toolUse {
	var pending []toolUse
	for _, cb := range content {
		if cb.IsToolUse() {
			pending = append(pending, toolUse{id: cb.ID, name: cb.Name})
		}
	}
	if len(pending) == 0 {
		return nil
	}

	answered := make(map[string]bool)
	if idx+1 < len(all) && all[idx+1].Role == "user" {
		for _, cb := range all[idx+1].Content {
			if cb.IsToolResult() && cb.ToolUseID != "" {
				answered[cb.ToolUseID] = true
			}
		}
	}

	var missing []toolUse
	for _, tu := range pending {
		if !answered[tu.id] {
			missing = append(missing, tu)
		}
	}
	return missing
}

// dropMalformedThinking removes thinking blocks lacking either a
// minimum-length signature or a thinking/text payload. A block with text but
// no valid signature is spared if sigLookup produces a cached one for this
// account/model family.
func dropMalformedThinking(blocks []anthropic.ContentBlock, sigLookup func() (string, bool)) []anthropic.ContentBlock {
	out := blocks[:0:0]
	for _, cb := range blocks {
		if cb.IsThinking() {
			if !hasValidSignature(cb) && cb.Thinking != "" && sigLookup != nil {
				if sig, ok := sigLookup(); ok {
					cb.Signature = sig
					out = append(out, cb)
					continue
				}
			}
			if !hasValidSignature(cb) || cb.Thinking == "" {
				continue
			}
		}
		out = append(out, cb)
	}
	return out
}

// hasValidSignature reports whether a thinking block's signature meets the
// minimum length the upstream will accept.
func hasValidSignature(cb anthropic.ContentBlock) bool {
	return cb.IsThinking() && len(cb.Signature) >= config.MinSignatureLength
}
