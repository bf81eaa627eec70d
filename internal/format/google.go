// Package format implements the Translators (C5): bidirectional, pure
// transforms between OpenAI/Anthropic/CCA request and response shapes,
// JSON-Schema sanitization for tool definitions, and conversation
// session-repair. Grounded on the teacher's internal/format package
// (request_converter.go/content_converter.go/schema_sanitizer.go/
// thinking_utils.go), adapted to spec.md's exact rules.
package format

// GooglePart is one part of a CCA content entry.
type GooglePart struct {
	Text             string                 `json:"text,omitempty"`
	Thought          bool                   `json:"thought,omitempty"`
	ThoughtSignature string                 `json:"thoughtSignature,omitempty"`
	FunctionCall     *GoogleFunctionCall    `json:"functionCall,omitempty"`
	FunctionResponse *GoogleFunctionResult  `json:"functionResponse,omitempty"`
}

type GoogleFunctionCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type GoogleFunctionResult struct {
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response,omitempty"`
}

// GoogleContent is one turn in the CCA contents array.
type GoogleContent struct {
	Role  string       `json:"role"`
	Parts []GooglePart `json:"parts"`
}

// ThinkingConfig is the CCA-dialect thinking configuration. Claude models
// populate ThinkingBudget only; Gemini models populate ThinkingLevel only
// (spec §4.4).
type ThinkingConfig struct {
	IncludeThoughts bool   `json:"includeThoughts,omitempty"`
	ThinkingBudget  int    `json:"thinkingBudget,omitempty"`
	ThinkingLevel   string `json:"thinkingLevel,omitempty"`
}

type GenerationConfig struct {
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"topP,omitempty"`
	TopK            *int            `json:"topK,omitempty"`
	StopSequences   []string        `json:"stopSequences,omitempty"`
	ThinkingConfig  *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

type GoogleFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type GoogleTool struct {
	FunctionDeclarations []GoogleFunctionDeclaration `json:"function_declarations,omitempty"`
}

// InnerRequest is the CCA "request" object.
type InnerRequest struct {
	Contents          []GoogleContent    `json:"contents"`
	SystemInstruction *GoogleContent     `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
	Tools             []GoogleTool       `json:"tools,omitempty"`
}

// GoogleRequest is the full CCA wire body (spec §4.4).
type GoogleRequest struct {
	Project string       `json:"project"`
	Model   string       `json:"model"`
	Request InnerRequest `json:"request"`
}

// GoogleCandidate / GoogleResponse mirror the unary and flattened-SSE
// response shapes; the envelope may or may not be wrapped in a top-level
// "response" key, tolerated by the caller that unmarshals this.
type GoogleUsage struct {
	PromptTokenCount     int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount int `json:"candidatesTokenCount,omitempty"`
}

type GoogleCandidate struct {
	Content      GoogleContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type GoogleResponse struct {
	Candidates    []GoogleCandidate `json:"candidates"`
	UsageMetadata *GoogleUsage      `json:"usageMetadata,omitempty"`
}

// GoogleResponseEnvelope tolerates the upstream's optional outer "response"
// wrapper.
type GoogleResponseEnvelope struct {
	Response *GoogleResponse `json:"response,omitempty"`
	*GoogleResponse
}

// Unwrap returns the effective GoogleResponse regardless of which shape
// arrived on the wire.
func (e *GoogleResponseEnvelope) Unwrap() *GoogleResponse {
	if e.Response != nil {
		return e.Response
	}
	return e.GoogleResponse
}
