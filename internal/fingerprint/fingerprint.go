// Package fingerprint generates and renders the per-process device-identity
// header set sent with every upstream CCA request, grounded on the teacher's
// internal/config.AntigravityHeaders()/Client-Metadata construction.
package fingerprint

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/poemonsense/antigravity-proxy-go/internal/config"
)

// Style selects which of the two header renderings to use. The two styles
// are billed against distinct upstream quota pools (spec §4.2/§4.4).
type Style int

const (
	StylePrimary Style = iota // impersonates the proprietary IDE client
	StyleAlt                  // impersonates a separate first-party CLI client
)

// Fingerprint is created once per process and shared read-only across all
// Upstream Clients. It is immutable after New(); alt-style rendering happens
// per call (Headers(StyleAlt)), never by mutating a shared client — see
// DESIGN.md "Open Question decisions" #1.
type Fingerprint struct {
	DeviceID      string
	SessionToken  string
	QuotaUser     string
	platform      string
	arch          string
	ideUserAgent  string
	cliUserAgent  string
	createdAtUnix int64
}

// New draws the process-wide identifiers once.
func New() *Fingerprint {
	return &Fingerprint{
		DeviceID:     uuid.New().String(),
		SessionToken: uuid.New().String(),
		QuotaUser:    "device-" + randomHex(16),
		platform:     runtime.GOOS,
		arch:         runtime.GOARCH,
		ideUserAgent: fmt.Sprintf("antigravity/%s %s/%s", config.PinnedIDEVersion, runtime.GOOS, runtime.GOARCH),
		cliUserAgent: fmt.Sprintf("gemini-cli/%s %s/%s", config.PinnedIDEVersion, runtime.GOOS, runtime.GOARCH),
	}
}

func randomHex(n int) string {
	b := make([]byte, n/2)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (f *Fingerprint) platformEnum() int {
	switch f.platform {
	case "darwin":
		return 3
	case "windows":
		return 1
	case "linux":
		return 2
	default:
		return 0
	}
}

// clientMetadata renders the numeric IdeType/Platform/PluginType JSON object
// the Cloud Code API expects (ideType 6 = Antigravity, 5 = CLI-style client).
func (f *Fingerprint) clientMetadata(style Style) string {
	ideType := 6
	pluginType := 2
	if style == StyleAlt {
		ideType = 5
	}
	data, _ := json.Marshal(map[string]int{
		"ideType":    ideType,
		"platform":   f.platformEnum(),
		"pluginType": pluginType,
	})
	return string(data)
}

// Headers renders the full header set for the given style. Both styles
// always set X-Goog-QuotaUser, X-Client-Device-Id, X-Goog-Session-Id,
// Content-Type, and the interleaved-thinking beta header; they differ in
// User-Agent, X-Goog-Api-Client, and Client-Metadata.
func (f *Fingerprint) Headers(style Style) map[string]string {
	h := map[string]string{
		"X-Goog-QuotaUser":    f.QuotaUser,
		"X-Client-Device-Id":  f.DeviceID,
		"X-Goog-Session-Id":   f.SessionToken,
		"Content-Type":        "application/json",
		"anthropic-beta":      config.AnthropicBetaInterleavedThinking,
		"Client-Metadata":     f.clientMetadata(style),
	}
	switch style {
	case StyleAlt:
		h["User-Agent"] = f.cliUserAgent
		h["X-Goog-Api-Client"] = "gl-go/cli gemini-cli/" + config.PinnedIDEVersion
	default:
		h["User-Agent"] = f.ideUserAgent
		h["X-Goog-Api-Client"] = "google-cloud-sdk vscode_cloudshelleditor/0.1"
	}
	return h
}
