// Package cloudcode implements the Upstream Client (C4): talking to Google's
// Cloud Code Assist API over HTTP, both unary and SSE-streamed, including
// project-ID discovery, endpoint fallback, and upstream error classification.
// Grounded on the teacher's internal/cloudcode package (model_api.go's
// loadCodeAssist walk, streaming_handler.go's retry/backoff shape), rendered
// against internal/account's Pool/Account and internal/format's wire types
// instead of the teacher's account.Manager/CloudCodePayload.
package cloudcode

import (
	"fmt"
	"strings"
	"time"
)

// Classification is the spec §4.6 upstream error taxonomy: what kind of
// failure occurred and how the Fallback Orchestrator (C6) should react.
type Classification int

const (
	ClassOther Classification = iota
	ClassRateLimited              // 429
	ClassCapacityExhausted        // 503 / 529
	ClassGenerateChatForbidden    // 403 on generateContent specifically
	ClassServerError              // other 5xx
	ClassClientError               // other 4xx
)

// UpstreamError wraps a classified failure from a CCA call, carrying any
// retry-after hint the response supplied.
type UpstreamError struct {
	Class      Classification
	StatusCode int
	Message    string
	RetryAfter time.Duration // zero if the upstream supplied none
	Endpoint   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("cloudcode: %s (status %d, endpoint %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Retryable reports whether the Fallback Orchestrator should consider this
// failure recoverable by retrying (possibly against another account or
// endpoint) rather than surfacing it to the caller immediately.
func (e *UpstreamError) Retryable() bool {
	switch e.Class {
	case ClassRateLimited, ClassCapacityExhausted, ClassServerError:
		return true
	default:
		return false
	}
}

// classify maps an HTTP status code and response body onto a Classification,
// per spec §4.4's table. A 403 is only IAM_DENIED-class when its body names
// the generateChat call specifically; any other 403/4xx is a plain client
// error.
func classify(statusCode int, bodyText string) Classification {
	switch {
	case statusCode == 429:
		return ClassRateLimited
	case statusCode == 503 || statusCode == 529:
		return ClassCapacityExhausted
	case statusCode == 403 && strings.Contains(bodyText, "generateChat"):
		return ClassGenerateChatForbidden
	case statusCode >= 500:
		return ClassServerError
	case statusCode >= 400:
		return ClassClientError
	default:
		return ClassOther
	}
}
