package cloudcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/poemonsense/antigravity-proxy-go/internal/config"
	"github.com/poemonsense/antigravity-proxy-go/internal/fingerprint"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
)

type loadCodeAssistRequest struct {
	Metadata loadCodeAssistMetadata `json:"metadata"`
}

type loadCodeAssistMetadata struct {
	IDEType     string `json:"ideType"`
	Platform    string `json:"platform"`
	PluginType  string `json:"pluginType"`
	DuetProject string `json:"duetProject,omitempty"`
}

type loadCodeAssistResponse struct {
	CloudAICompanionProject interface{} `json:"cloudaicompanionProject,omitempty"`
}

// DiscoverProject implements loadCodeAssist project-ID discovery (spec §4.2):
// walk config.LoadCodeAssistEndpoints (production first), POST
// /v1internal:loadCodeAssist, and extract the provisioned project ID. Falls
// back to config.DefaultProjectID if every endpoint fails.
func (c *Client) DiscoverProject(ctx context.Context, accessToken string) (string, error) {
	body, _ := json.Marshal(loadCodeAssistRequest{
		Metadata: loadCodeAssistMetadata{
			IDEType:    "IDE_UNSPECIFIED",
			Platform:   "PLATFORM_UNSPECIFIED",
			PluginType: "GEMINI",
		},
	})

	var lastErr error
	for _, endpoint := range config.LoadCodeAssistEndpoints {
		url := endpoint + "/v1internal:loadCodeAssist"

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		for k, v := range c.fp.Headers(fingerprint.StylePrimary) {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			utils.Warn("[cloudcode] loadCodeAssist failed at %s: %v", endpoint, err)
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			utils.Warn("[cloudcode] loadCodeAssist error at %s: %d", endpoint, resp.StatusCode)
			lastErr = fmt.Errorf("loadCodeAssist: status %d from %s", resp.StatusCode, endpoint)
			continue
		}

		var data loadCodeAssistResponse
		err = json.NewDecoder(resp.Body).Decode(&data)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if id := extractProjectID(data.CloudAICompanionProject); id != "" {
			return id, nil
		}
	}

	utils.Warn("[cloudcode] project discovery exhausted all endpoints (%v), defaulting", lastErr)
	return config.DefaultProjectID, nil
}

func extractProjectID(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		if id, ok := t["id"].(string); ok {
			return id
		}
	}
	return ""
}

// PickProject implements project-ID rotation: GOOGLE_CLOUD_PROJECT may carry
// a comma-separated list; callers pick uniformly at random on every request
// rather than sticking to one entry (spec §4.2).
func PickProject(configured string) string {
	ids := strings.Split(configured, ",")
	clean := ids[:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return ""
	}
	if len(clean) == 1 {
		return clean[0]
	}
	return clean[rand.Intn(len(clean))]
}

// Jitter sleeps a uniform random duration in [0, config.MaxJitterMs) before a
// send, to avoid a thundering herd of simultaneously-scheduled retries (spec
// §4.6).
func Jitter(ctx context.Context) {
	d := time.Duration(rand.Intn(config.MaxJitterMs)) * time.Millisecond
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
