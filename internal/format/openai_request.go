package format

import (
	"strings"

	"github.com/poemonsense/antigravity-proxy-go/internal/models"
	"github.com/poemonsense/antigravity-proxy-go/pkg/anthropic"
	"github.com/poemonsense/antigravity-proxy-go/pkg/openai"
)

// ConvertOpenAIIn translates an OpenAI chat-completions request into the same
// internal representation ConvertAnthropicIn produces, so BuildGoogleRequest
// and the rest of the pipeline run unchanged regardless of inbound dialect
// (spec §6, POST /v1/chat/completions). System/developer messages are
// hoisted out of the message list and joined, mirroring flattenSystem's
// handling of an Anthropic system block.
func ConvertOpenAIIn(req openai.ChatCompletionRequest) AnthropicIn {
	var system []string
	messages := make([]anthropic.Message, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system", "developer":
			if msg.Content != "" {
				system = append(system, msg.Content)
			}
		case "assistant":
			messages = append(messages, anthropic.Message{
				Role:    "assistant",
				Content: []anthropic.ContentBlock{{Type: "text", Text: msg.Content}},
			})
		default:
			messages = append(messages, anthropic.Message{
				Role:    "user",
				Content: []anthropic.ContentBlock{{Type: "text", Text: msg.Content}},
			})
		}
	}

	return AnthropicIn{
		Model:       models.FromAnthropicID(req.Model),
		Messages:    RepairSession(messages, nil),
		System:      strings.Join(system, "\n"),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopSeqs:    req.Stop,
	}
}
