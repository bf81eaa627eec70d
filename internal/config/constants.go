// Package config provides the fixed configuration constants for the proxy:
// upstream endpoints, OAuth client config, timing/retry budgets, and the
// system instruction injected on every CCA request.
package config

import (
	"os"
	"strconv"
)

const Version = "1.0.0"

// Cloud Code Assist endpoints, in discovery/fallback order.
const (
	EndpointDailySandbox    = "https://daily-cloudcode-pa.googleapis.com"
	EndpointAutopushSandbox = "https://autopush-cloudcode-pa.googleapis.com"
	EndpointProduction      = "https://cloudcode-pa.googleapis.com"
)

// EndpointFallbacks is the generateContent/streamGenerateContent endpoint
// order: daily-sandbox, autopush-sandbox, production.
var EndpointFallbacks = []string{
	EndpointDailySandbox,
	EndpointAutopushSandbox,
	EndpointProduction,
}

// LoadCodeAssistEndpoints is the discovery-call endpoint order. Production
// first: loadCodeAssist resolves project provisioning more reliably there for
// freshly onboarded accounts.
var LoadCodeAssistEndpoints = []string{
	EndpointProduction,
	EndpointDailySandbox,
	EndpointAutopushSandbox,
}

// Pinned client version string. Drifting this triggers "unsupported client"
// errors upstream — it must match a known-accepted release.
const PinnedIDEVersion = "1.16.5"

// Timing and retry budgets.
const (
	AccessTokenStaleness   = 5 * 60 // seconds; refresh once within this of expiry
	UpstreamRequestTimeout = 3600   // seconds; long thinking budgets
	OAuthCallbackWait      = 300    // seconds
	MaxJitterMs            = 500    // pre-send jitter, uniform 0..MaxJitterMs
	CapacityFloorSeconds   = 45     // floor on 503/529 retry-after
	DefaultRateLimitWaitS  = 60     // default 429 retry-after when absent
	WaitCapSeconds         = 600    // spec §4.6 abort threshold
	MinSignatureLength     = 50
	ModelValidationCacheTTL = 5 * 60 // seconds
)

// RequestBodyLimit caps inbound request bodies at 10MB.
const RequestBodyLimit = 10 << 20

// OAuthConfig is the Google OAuth client configuration used for the
// refresh_token grant (the interactive authorization-code/PKCE loopback flow
// itself is an external collaborator, out of scope per spec §1).
type OAuthConfigType struct {
	ClientID              string
	ClientSecret          string
	AuthURL               string
	TokenURL              string
	UserInfoURL           string
	CallbackPort          int
	CallbackFallbackPorts []int
	Scopes                []string
}

var OAuthConfig = OAuthConfigType{
	ClientID:     envOr("AETHER_OAUTH_CLIENT_ID", "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"),
	ClientSecret: envOr("AETHER_OAUTH_CLIENT_SECRET", "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"),
	AuthURL:      "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:     "https://oauth2.googleapis.com/token",
	UserInfoURL:  "https://www.googleapis.com/oauth2/v1/userinfo",
	CallbackPort: oauthCallbackPort(),
	CallbackFallbackPorts: []int{51122, 51123, 51124, 51125, 51126},
	Scopes: []string{
		"https://www.googleapis.com/auth/cloud-platform",
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	},
}

func oauthCallbackPort() int {
	if v := os.Getenv("AETHER_OAUTH_CALLBACK_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			return p
		}
	}
	return 51121
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// AntigravitySystemInstruction is hoisted into every CCA request's
// systemInstruction, ahead of any caller-supplied system prompt.
const AntigravitySystemInstruction = `You are Antigravity, a powerful agentic AI coding assistant. You are pair programming with a USER to solve their coding task. The task may require creating a new codebase, modifying or debugging an existing codebase, or simply answering a question.`

// DefaultProjectID is used when project-ID discovery fails and no explicit
// project was configured.
const DefaultProjectID = "rising-fact-p41fc"

// AnthropicBetaInterleavedThinking is the beta header sent with Claude
// thinking-model requests.
const AnthropicBetaInterleavedThinking = "interleaved-thinking-2025-05-14"
