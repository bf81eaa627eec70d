package format

import (
	"encoding/json"
	"strings"

	"github.com/poemonsense/antigravity-proxy-go/internal/config"
	"github.com/poemonsense/antigravity-proxy-go/internal/models"
	"github.com/poemonsense/antigravity-proxy-go/pkg/anthropic"
)

// ThinkingSpec carries the internal (budget, level) representation derived
// from a request's thinking configuration (spec §3's ThinkingConfig).
type ThinkingSpec struct {
	Enabled bool
	Budget  int
	Level   string
}

// AnthropicIn is the result of translating an inbound Anthropic request into
// our internal shape, ready for CCA body construction.
type AnthropicIn struct {
	Model       models.Model
	Messages    []anthropic.Message
	System      string
	Tools       []anthropic.Tool
	Thinking    ThinkingSpec
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	TopK        *int
	StopSeqs    []string
}

// ConvertAnthropicIn translates an Anthropic MessagesRequest into the
// internal representation, applying session repair first (spec §4.5).
func ConvertAnthropicIn(req anthropic.MessagesRequest) AnthropicIn {
	system := flattenSystem(req.System)
	messages := RepairSession(req.Messages, nil)

	thinking := ThinkingSpec{}
	if req.Thinking != nil && req.Thinking.BudgetTokens > 0 {
		thinking.Enabled = true
		thinking.Budget = req.Thinking.BudgetTokens
		thinking.Level = models.ThinkingLevel(thinking.Budget)
	}

	return AnthropicIn{
		Model:       models.FromAnthropicID(req.Model),
		Messages:    messages,
		System:      system,
		Tools:       req.Tools,
		Thinking:    thinking,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		StopSeqs:    req.StopSequences,
	}
}

func flattenSystem(sys anthropic.SystemContent) string {
	switch v := sys.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				if t, _ := m["text"].(string); t != "" {
					parts = append(parts, t)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

// BuildGoogleRequest constructs the CCA wire body from the internal
// representation (spec §4.4).
func BuildGoogleRequest(in AnthropicIn, project string) GoogleRequest {
	contents := make([]GoogleContent, 0, len(in.Messages))
	for _, msg := range in.Messages {
		if msg.Role == "system" {
			continue
		}
		contents = append(contents, convertMessage(msg, in.Model.IsClaude()))
	}

	systemText := config.AntigravitySystemInstruction
	if in.System != "" {
		systemText += "\n\n" + in.System
	}

	maxTokens := in.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	genConfig := &GenerationConfig{
		MaxOutputTokens: maxTokens,
		Temperature:     in.Temperature,
		TopP:            in.TopP,
		TopK:            in.TopK,
		StopSequences:   in.StopSeqs,
	}

	if in.Thinking.Enabled && in.Model.SupportsThinking() {
		tc := &ThinkingConfig{IncludeThoughts: true}
		if in.Model.IsClaude() {
			budget := in.Thinking.Budget
			if budget >= maxTokens {
				genConfig.MaxOutputTokens = budget + 8192
			}
			tc.ThinkingBudget = budget
		} else {
			tc.ThinkingLevel = models.AdaptedThinkingLevel(in.Model, in.Thinking.Level)
		}
		genConfig.ThinkingConfig = tc
	}

	var tools []GoogleTool
	if len(in.Tools) > 0 {
		decls := make([]GoogleFunctionDeclaration, 0, len(in.Tools))
		for _, t := range in.Tools {
			decls = append(decls, GoogleFunctionDeclaration{
				Name:        CleanToolName(t.Name),
				Description: t.Description,
				Parameters:  sanitizeRawSchema(t.InputSchema),
			})
		}
		tools = []GoogleTool{{FunctionDeclarations: decls}}
	}

	level := ""
	if in.Thinking.Enabled {
		level = models.AdaptedThinkingLevel(in.Model, in.Thinking.Level)
	}

	return GoogleRequest{
		Project: project,
		Model:   in.Model.APIID(level),
		Request: InnerRequest{
			Contents:          contents,
			SystemInstruction: &GoogleContent{Role: "user", Parts: []GooglePart{{Text: systemText}}},
			GenerationConfig:  genConfig,
			Tools:             tools,
		},
	}
}

func sanitizeRawSchema(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil
	}
	sanitized := SanitizeSchema(decoded)
	m, _ := sanitized.(map[string]interface{})
	return m
}

func convertRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return "user"
}

func convertMessage(msg anthropic.Message, isClaude bool) GoogleContent {
	parts := make([]GooglePart, 0, len(msg.Content))
	for _, cb := range msg.Content {
		switch {
		case cb.IsText():
			text := cb.Text
			if msg.Role == "assistant" {
				text = StripThinkingMarkers(text)
			}
			if text != "" {
				parts = append(parts, GooglePart{Text: text})
			}
		case cb.IsThinking():
			// Stale thinking is never resent upstream; the upstream
			// regenerates it. Dropped here rather than transmitted.
		case cb.IsToolUse():
			var args map[string]interface{}
			if len(cb.Input) > 0 {
				_ = json.Unmarshal(cb.Input, &args)
			}
			parts = append(parts, GooglePart{
				FunctionCall:     &GoogleFunctionCall{ID: cb.ID, Name: cb.Name, Args: args},
				ThoughtSignature: cb.ThoughtSignature,
			})
		case cb.IsToolResult():
			parts = append(parts, GooglePart{
				FunctionResponse: &GoogleFunctionResult{
					ID:       cb.ToolUseID,
					Name:     cb.ToolUseID,
					Response: map[string]interface{}{"output": contentToText(cb.Content)},
				},
			})
		}
	}
	if len(parts) == 0 {
		parts = append(parts, GooglePart{Text: "."})
	}
	return GoogleContent{Role: convertRole(msg.Role), Parts: parts}
}

func contentToText(content interface{}) string {
	switch v := content.(type) {
	case string:
		return v
	case []anthropic.ContentBlock:
		var parts []string
		for _, cb := range v {
			if cb.IsText() {
				parts = append(parts, cb.Text)
			}
		}
		return strings.Join(parts, "\n")
	case []interface{}:
		var parts []string
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				if t, _ := m["text"].(string); t != "" {
					parts = append(parts, t)
				}
			}
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}
