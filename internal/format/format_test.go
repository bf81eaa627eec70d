package format

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/poemonsense/antigravity-proxy-go/pkg/anthropic"
)

func TestSanitizeSchemaStripsForbiddenKeys(t *testing.T) {
	raw := `{"type":"object","properties":{"x":{"const":"y"}},"$schema":"https://json-schema.org/draft/2020-12/schema","additionalProperties":false}`
	var decoded interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	sanitized := SanitizeSchema(decoded).(map[string]interface{})
	if _, ok := sanitized["$schema"]; ok {
		t.Fatalf("expected $schema stripped")
	}
	if _, ok := sanitized["additionalProperties"]; ok {
		t.Fatalf("expected additionalProperties stripped")
	}
	props := sanitized["properties"].(map[string]interface{})
	x := props["x"].(map[string]interface{})
	if _, ok := x["const"]; ok {
		t.Fatalf("expected const removed")
	}
	enum, ok := x["enum"].([]interface{})
	if !ok || len(enum) != 1 || enum[0] != "y" {
		t.Fatalf("expected const converted to enum:[y], got %v", x["enum"])
	}
}

func TestSanitizeSchemaRecursesIntoNestedObjects(t *testing.T) {
	raw := `{"type":"object","properties":{"a":{"type":"object","properties":{"b":{"pattern":"^x$"}}}}}`
	var decoded interface{}
	_ = json.Unmarshal([]byte(raw), &decoded)

	sanitized := SanitizeSchema(decoded).(map[string]interface{})
	a := sanitized["properties"].(map[string]interface{})["a"].(map[string]interface{})
	b := a["properties"].(map[string]interface{})["b"].(map[string]interface{})
	if _, ok := b["pattern"]; ok {
		t.Fatalf("expected nested pattern stripped")
	}
}

func TestCleanToolName(t *testing.T) {
	cases := map[string]string{
		"read/file":  "read_file",
		"do thing":   "do_thing",
		"123start":   "_123start",
		"ok.Name-1":  "ok.Name-1",
		"bad*chars!": "badchars",
	}
	for in, want := range cases {
		if got := CleanToolName(in); got != want {
			t.Errorf("CleanToolName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripThinkingMarkers(t *testing.T) {
	in := "before <thinking>secret reasoning</thinking> middle [Thinking: more] after\n> *Thinking: trailing*\nkeep"
	out := StripThinkingMarkers(in)
	for _, bad := range []string{"<thinking>", "[Thinking:", "> *Thinking:"} {
		if contains(out, bad) {
			t.Fatalf("expected marker %q stripped, got %q", bad, out)
		}
	}
	if !contains(out, "keep") {
		t.Fatalf("expected surrounding text preserved, got %q", out)
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}

func TestRepairSessionInsertsToolResult(t *testing.T) {
	input, _ := json.Marshal(map[string]string{"path": "a.txt"})
	messages := []anthropic.Message{
		{Role: "user", Content: []anthropic.ContentBlock{{Type: "text", Text: "read a file"}}},
		{Role: "assistant", Content: []anthropic.ContentBlock{{Type: "tool_use", ID: "t1", Name: "read_file", Input: input}}},
		{Role: "user", Content: []anthropic.ContentBlock{{Type: "text", Text: "continue"}}},
	}

	repaired := RepairSession(messages, nil)
	if len(repaired) != 4 {
		t.Fatalf("expected synthetic tool_result inserted, got %d messages", len(repaired))
	}
	inserted := repaired[2]
	if inserted.Role != "user" || len(inserted.Content) != 1 || inserted.Content[0].ToolUseID != "t1" {
		t.Fatalf("unexpected synthetic message: %+v", inserted)
	}
}

func TestRepairSessionIdempotent(t *testing.T) {
	input, _ := json.Marshal(map[string]string{"path": "a.txt"})
	messages := []anthropic.Message{
		{Role: "assistant", Content: []anthropic.ContentBlock{{Type: "tool_use", ID: "t1", Name: "read_file", Input: input}}},
		{Role: "user", Content: []anthropic.ContentBlock{{Type: "text", Text: "continue"}}},
	}

	once := RepairSession(messages, nil)
	twice := RepairSession(once, nil)

	oneJSON, _ := json.Marshal(once)
	twoJSON, _ := json.Marshal(twice)
	if string(oneJSON) != string(twoJSON) {
		t.Fatalf("expected repair to be idempotent:\n%s\nvs\n%s", oneJSON, twoJSON)
	}
}

func TestRepairSessionDropsMalformedThinking(t *testing.T) {
	messages := []anthropic.Message{
		{Role: "assistant", Content: []anthropic.ContentBlock{
			{Type: "thinking", Thinking: "no sig"},
			{Type: "text", Text: "hello"},
		}},
	}
	repaired := RepairSession(messages, nil)
	for _, cb := range repaired[0].Content {
		if cb.IsThinking() {
			t.Fatalf("expected malformed thinking block dropped")
		}
	}
}

func TestRepairSessionSubstitutesCachedSignature(t *testing.T) {
	messages := []anthropic.Message{
		{Role: "assistant", Content: []anthropic.ContentBlock{
			{Type: "thinking", Thinking: "no sig"},
			{Type: "text", Text: "hello"},
		}},
	}
	lookup := func() (string, bool) { return strings.Repeat("s", 64), true }
	repaired := RepairSession(messages, lookup)

	var found bool
	for _, cb := range repaired[0].Content {
		if cb.IsThinking() {
			found = true
			if cb.Signature == "" {
				t.Fatalf("expected cached signature substituted, got empty")
			}
		}
	}
	if !found {
		t.Fatalf("expected thinking block kept, not dropped")
	}
}

func TestSignatureCacheRememberAndLookup(t *testing.T) {
	cache := NewSignatureCache(nil)
	ctx := context.Background()
	cache.Remember(ctx, "a@example.com", 1, "sig-123")

	lookup := cache.Lookup(ctx, "a@example.com", 1)
	sig, ok := lookup()
	if !ok || sig != "sig-123" {
		t.Fatalf("expected cached signature, got %q ok=%v", sig, ok)
	}

	missLookup := cache.Lookup(ctx, "b@example.com", 1)
	if _, ok := missLookup(); ok {
		t.Fatalf("expected cache miss for different account")
	}
}

func TestParseUnarySeparatesThoughtFromText(t *testing.T) {
	resp := &GoogleResponse{
		Candidates: []GoogleCandidate{{
			Content: GoogleContent{Parts: []GooglePart{
				{Thought: true, Text: "reasoning"},
				{Text: "answer"},
			}},
			FinishReason: "STOP",
		}},
	}
	out := ParseUnary(resp)
	if out.Thinking != "reasoning" || out.Content != "answer" {
		t.Fatalf("unexpected parse: %+v", out)
	}
}
