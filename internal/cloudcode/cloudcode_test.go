package cloudcode

import (
	"net/http"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   Classification
	}{
		{429, "", ClassRateLimited},
		{503, "", ClassCapacityExhausted},
		{529, "", ClassCapacityExhausted},
		{403, `{"error":{"message":"generateChat is not allowed"}}`, ClassGenerateChatForbidden},
		{403, `{"error":{"message":"forbidden"}}`, ClassClientError},
		{500, "", ClassServerError},
		{404, "", ClassClientError},
		{200, "", ClassOther},
	}
	for _, c := range cases {
		if got := classify(c.status, c.body); got != c.want {
			t.Errorf("classify(%d, %q) = %v, want %v", c.status, c.body, got, c.want)
		}
	}
}

func TestUpstreamErrorRetryable(t *testing.T) {
	retryable := []Classification{ClassRateLimited, ClassCapacityExhausted, ClassServerError}
	for _, class := range retryable {
		e := &UpstreamError{Class: class}
		if !e.Retryable() {
			t.Errorf("class %v expected retryable", class)
		}
	}
	notRetryable := []Classification{ClassGenerateChatForbidden, ClassClientError, ClassOther}
	for _, class := range notRetryable {
		e := &UpstreamError{Class: class}
		if e.Retryable() {
			t.Errorf("class %v expected not retryable", class)
		}
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
	got := parseRetryAfter(resp)
	if got != 30*time.Second {
		t.Fatalf("expected 30s, got %v", got)
	}
}

func TestParseRetryAfterAbsent(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	if got := parseRetryAfter(resp); got != 0 {
		t.Fatalf("expected zero duration, got %v", got)
	}
}

func TestPickProjectSingle(t *testing.T) {
	if got := PickProject("my-project"); got != "my-project" {
		t.Fatalf("expected my-project, got %q", got)
	}
}

func TestPickProjectEmpty(t *testing.T) {
	if got := PickProject(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestPickProjectRotatesAmongList(t *testing.T) {
	configured := "proj-a,proj-b,proj-c"
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[PickProject(configured)] = true
	}
	for _, want := range []string{"proj-a", "proj-b", "proj-c"} {
		if !seen[want] {
			t.Errorf("expected %q to appear across 50 draws", want)
		}
	}
}

func TestExtractProjectID(t *testing.T) {
	if got := extractProjectID("discovered-project"); got != "discovered-project" {
		t.Fatalf("unexpected extraction: %q", got)
	}
	if got := extractProjectID(map[string]interface{}{"id": "nested-project"}); got != "nested-project" {
		t.Fatalf("unexpected nested extraction: %q", got)
	}
	if got := extractProjectID(nil); got != "" {
		t.Fatalf("expected empty for nil, got %q", got)
	}
}
