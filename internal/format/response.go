package format

import (
	"encoding/hex"
	"encoding/json"
	"math/rand"

	"github.com/poemonsense/antigravity-proxy-go/pkg/anthropic"
)

// StreamChunk is the ephemeral, per-upstream-SSE-event unit the Fallback
// Orchestrator and SSE Mediator consume (spec §3).
type StreamChunk struct {
	Delta        string
	Signature    string
	IsThinking   bool
	IsToolUse    bool
	Done         bool
	InputTokens  int
	OutputTokens int
}

// UnaryResult is the parsed, already-family-separated result of a
// non-streaming CCA response (spec §4.4 "Unary parse").
type UnaryResult struct {
	Thinking     string
	Signature    string
	Content      string
	ToolUses     []anthropic.ContentBlock
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// ParseUnary walks candidates[0].content.parts[], separating thought parts
// from content parts per spec §4.4.
func ParseUnary(resp *GoogleResponse) UnaryResult {
	var out UnaryResult
	if resp == nil || len(resp.Candidates) == 0 {
		return out
	}
	cand := resp.Candidates[0]
	out.FinishReason = cand.FinishReason

	for _, part := range cand.Content.Parts {
		switch {
		case part.Thought:
			out.Thinking += part.Text
			if part.ThoughtSignature != "" {
				out.Signature = part.ThoughtSignature
			}
		case part.FunctionCall != nil:
			input, _ := json.Marshal(part.FunctionCall.Args)
			out.ToolUses = append(out.ToolUses, anthropic.ContentBlock{
				Type:  "tool_use",
				ID:    toolUseID(),
				Name:  part.FunctionCall.Name,
				Input: input,
			})
		default:
			out.Content += part.Text
		}
	}

	if resp.UsageMetadata != nil {
		out.InputTokens = resp.UsageMetadata.PromptTokenCount
		out.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return out
}

func toolUseID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return "call_" + hex.EncodeToString(b)
}

// ToAnthropicResponse builds the Anthropic-out unary body (spec §4.5
// "CCA-out -> Anthropic-out (unary)"): an optional thinking block followed
// by a text block, stop_reason carried through, usage rewritten.
func ToAnthropicResponse(u UnaryResult, model string) *anthropic.MessagesResponse {
	var content []anthropic.ContentBlock
	if u.Thinking != "" {
		content = append(content, anthropic.ContentBlock{Type: "thinking", Thinking: u.Thinking, Signature: u.Signature})
	}
	if u.Content != "" {
		content = append(content, anthropic.ContentBlock{Type: "text", Text: u.Content})
	}
	content = append(content, u.ToolUses...)

	stopReason := "end_turn"
	if len(u.ToolUses) > 0 {
		stopReason = "tool_use"
	} else if u.FinishReason != "" {
		stopReason = u.FinishReason
	}

	return anthropic.NewMessagesResponse(
		anthropic.GenerateMessageID(), model, content, stopReason,
		&anthropic.Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens},
	)
}

// OpenAIResponse is the "CCA-out -> OpenAI-out" shape (spec §4.5).
type OpenAIResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []OpenAIChoice     `json:"choices"`
	Usage   OpenAIUsage        `json:"usage"`
}

type OpenAIChoice struct {
	Index        int                `json:"index"`
	Message      OpenAIChoiceMsg    `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

type OpenAIChoiceMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func ToOpenAIResponse(u UnaryResult, model string, createdUnix int64) *OpenAIResponse {
	finish := "stop"
	if len(u.ToolUses) > 0 {
		finish = "tool_calls"
	}
	return &OpenAIResponse{
		ID:      "chatcmpl-" + toolUseID(),
		Object:  "chat.completion",
		Created: createdUnix,
		Model:   model,
		Choices: []OpenAIChoice{{
			Index:        0,
			Message:      OpenAIChoiceMsg{Role: "assistant", Content: u.Content},
			FinishReason: finish,
		}},
		Usage: OpenAIUsage{
			PromptTokens:     u.InputTokens,
			CompletionTokens: u.OutputTokens,
			TotalTokens:      u.InputTokens + u.OutputTokens,
		},
	}
}

// WalkStreamParts converts one CCA SSE event's parts into StreamChunks, in
// wire order, per spec §4.4 "Streaming".
func WalkStreamParts(resp *GoogleResponse) []StreamChunk {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	chunks := make([]StreamChunk, 0, len(cand.Content.Parts))
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			input, _ := json.Marshal(part.FunctionCall.Args)
			frag, _ := json.Marshal(map[string]interface{}{
				"type":  "tool_use",
				"id":    toolUseID(),
				"name":  part.FunctionCall.Name,
				"input": rawOrEmpty(input),
			})
			chunks = append(chunks, StreamChunk{Delta: string(frag), IsToolUse: true})
		case part.Thought:
			chunks = append(chunks, StreamChunk{Delta: part.Text, Signature: part.ThoughtSignature, IsThinking: true})
		default:
			if part.Text != "" {
				chunks = append(chunks, StreamChunk{Delta: part.Text})
			}
		}
	}
	return chunks
}

func rawOrEmpty(b []byte) interface{} {
	if len(b) == 0 {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return map[string]interface{}{}
	}
	return v
}
