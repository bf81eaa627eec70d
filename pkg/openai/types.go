// Package openai provides the inbound wire types for the
// OpenAI-compatible /v1/chat/completions endpoint (spec §6; non-streaming
// only).
package openai

// ChatMessage is one OpenAI chat message. Content is almost always a plain
// string for this endpoint's supported subset; the multi-part content-block
// array OpenAI also allows is not translated (no vision/audio support here).
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the POST /v1/chat/completions body.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}
