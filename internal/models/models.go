// Package models defines the closed model enumeration the rest of the proxy
// branches on. String model IDs only appear at the HTTP boundary (request-in,
// response-out) and in the upstream CCA wire body; everywhere else code holds
// a Model value.
package models

import "strings"

// Model is a closed tagged variant over the seven models this proxy knows
// how to speak to CCA about.
type Model int

const (
	Unknown Model = iota
	ClaudeOpus45Thinking
	ClaudeSonnet45
	ClaudeSonnet45Thinking
	Gemini3Pro
	Gemini3Flash
	Gemini25Pro
	Gemini25Flash
)

// Family is the rate-limit accounting grouping.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyClaude
	FamilyGemini
)

type info struct {
	apiID                 string
	displayName            string
	isClaude               bool
	supportsThinking       bool
	defaultThinkingBudget  int // 0 = none
}

var catalog = map[Model]info{
	ClaudeOpus45Thinking:   {"claude-opus-4-6-thinking", "Claude Opus 4.6 (Thinking)", true, true, 32000},
	ClaudeSonnet45:         {"claude-sonnet-4-5", "Claude Sonnet 4.5", true, false, 0},
	ClaudeSonnet45Thinking: {"claude-sonnet-4-5-thinking", "Claude Sonnet 4.5 (Thinking)", true, true, 16000},
	Gemini3Pro:             {"gemini-3-pro", "Gemini 3 Pro", false, true, 16000},
	Gemini3Flash:           {"gemini-3-flash", "Gemini 3 Flash", false, true, 8000},
	Gemini25Pro:            {"gemini-2.5-pro", "Gemini 2.5 Pro", false, true, 16000},
	Gemini25Flash:          {"gemini-2.5-flash", "Gemini 2.5 Flash", false, true, 8000},
}

// All returns the fixed catalog in a stable order, for /v1/models.
func All() []Model {
	return []Model{
		ClaudeOpus45Thinking, ClaudeSonnet45, ClaudeSonnet45Thinking,
		Gemini3Pro, Gemini3Flash, Gemini25Pro, Gemini25Flash,
	}
}

// APIID returns the wire model string. Gemini-Pro requires the chosen
// thinking level appended ("-low"/"-high"); callers pass level == "" for no
// suffix (used for catalog listing).
func (m Model) APIID(level string) string {
	c, ok := catalog[m]
	if !ok {
		return ""
	}
	if m == Gemini3Pro && level != "" {
		return c.apiID + "-" + level
	}
	return c.apiID
}

func (m Model) DisplayName() string { return catalog[m].displayName }
func (m Model) IsClaude() bool      { return catalog[m].isClaude }
func (m Model) SupportsThinking() bool { return catalog[m].supportsThinking }
func (m Model) DefaultThinkingBudget() int { return catalog[m].defaultThinkingBudget }

func (m Model) Family() Family {
	if catalog[m].isClaude {
		return FamilyClaude
	}
	return FamilyGemini
}

// FamilyFromModelID classifies a raw wire model string into a Family, the
// way the upstream rate limiter accounts for it: anything containing
// "claude" is Claude, everything else defaults to Gemini.
func FamilyFromModelID(modelID string) Family {
	if strings.Contains(strings.ToLower(modelID), "claude") {
		return FamilyClaude
	}
	return FamilyGemini
}

// FromAnthropicID maps a client-supplied Anthropic model string onto our
// closed enum using the substring rules spec.md fixes.
func FromAnthropicID(id string) Model {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "opus"):
		return ClaudeOpus45Thinking
	case strings.Contains(lower, "sonnet") && strings.Contains(lower, "think"):
		return ClaudeSonnet45Thinking
	case strings.Contains(lower, "sonnet"):
		return ClaudeSonnet45
	case strings.Contains(lower, "haiku"):
		return Gemini3Flash
	case strings.Contains(lower, "gemini") && strings.Contains(lower, "flash"):
		return Gemini3Flash
	case strings.Contains(lower, "gemini"):
		return Gemini3Pro
	default:
		return ClaudeSonnet45
	}
}

// SpoofMap is the fixed fallback-model substitution table (spec §4.6).
var spoofMap = map[Model]Model{
	ClaudeOpus45Thinking:   Gemini3Pro,
	Gemini3Pro:             ClaudeOpus45Thinking,
	ClaudeSonnet45:         Gemini3Flash,
	ClaudeSonnet45Thinking: Gemini3Flash,
}

// SpoofModel returns the substitute model for m, or (Unknown, false) if none
// is defined.
func SpoofModel(m Model) (Model, bool) {
	s, ok := spoofMap[m]
	return s, ok
}

// ThinkingLevel converts a Claude-dialect token budget into a Gemini-dialect
// discrete level, per spec §3/§4.6: <5000 -> low, <15000 -> medium, else high.
func ThinkingLevel(budget int) string {
	switch {
	case budget < 5000:
		return "low"
	case budget < 15000:
		return "medium"
	default:
		return "high"
	}
}

// AdaptedThinkingLevel clamps a computed level to what the target model
// actually accepts: Gemini3Flash only accepts "medium" (never low/high);
// Gemini3Pro accepts only low/high (no medium), defaulting to "high" when
// unspecified.
func AdaptedThinkingLevel(target Model, level string) string {
	switch target {
	case Gemini3Flash:
		return "medium"
	case Gemini3Pro:
		if level == "" || level == "medium" {
			return "high"
		}
		return level
	default:
		if level == "" {
			return "high"
		}
		return level
	}
}
