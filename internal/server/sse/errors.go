package sse

import (
	"context"
	"time"

	agerrors "github.com/poemonsense/antigravity-proxy-go/internal/errors"
)

// ErrorInfo is the HTTP/body-shape mapping for one propagated error, per
// spec §7's taxonomy. RetryAfterSeconds is 0 when not applicable.
type ErrorInfo struct {
	Type              string
	Status            int
	Message           string
	RetryAfterSeconds int
}

// ErrorShape classifies a terminal error from the Fallback Orchestrator (C6)
// into the HTTP status / Anthropic error-type shape spec §7 fixes. Unlike
// C4's UpstreamError classification (upstream HTTP status -> retry
// decision), this is the outward-facing mapping: what the *client* sees
// once every retry strategy has been exhausted.
func ErrorShape(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Type: "api_error", Status: 500, Message: "unknown error"}
	}

	switch e := err.(type) {
	case *agerrors.NoAccountsError:
		if e.AllRateLimited {
			return ErrorInfo{Type: "rate_limit_error", Status: 429, Message: e.Message}
		}
		return ErrorInfo{Type: "authentication_error", Status: 401, Message: e.Message}

	case *agerrors.RateLimitError:
		retryAfter := 0
		if e.ResetMs != nil {
			if secs := (*e.ResetMs - time.Now().UnixMilli()) / 1000; secs > 0 {
				retryAfter = int(secs)
			}
		}
		return ErrorInfo{Type: "rate_limit_error", Status: 429, Message: e.Message, RetryAfterSeconds: retryAfter}

	case *agerrors.MaxRetriesError:
		// Reached only once every S0-S2 strategy has been exhausted on a
		// capacity (503/529) or rate-limit condition spanning every account.
		return ErrorInfo{
			Type:    "capacity_error",
			Status:  429,
			Message: "Upstream capacity exhausted after exhausting every fallback strategy. Please retry shortly.",
		}

	case *agerrors.AntigravityError:
		if e.Code == "IAM_DENIED" {
			return ErrorInfo{Type: "api_error", Status: 500, Message: "Access denied by upstream IAM policy: " + e.Message}
		}
		return ErrorInfo{Type: "api_error", Status: agerrors.HTTPStatusFromError(err), Message: e.Message}

	case *agerrors.ApiError:
		return ErrorInfo{Type: "api_error", Status: e.StatusCode, Message: e.Message}

	default:
		if err == context.Canceled {
			return ErrorInfo{Type: "api_error", Status: 499, Message: "client disconnected"}
		}
		return ErrorInfo{Type: "api_error", Status: 500, Message: err.Error()}
	}
}
