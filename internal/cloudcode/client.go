package cloudcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/poemonsense/antigravity-proxy-go/internal/config"
	"github.com/poemonsense/antigravity-proxy-go/internal/fingerprint"
	"github.com/poemonsense/antigravity-proxy-go/internal/format"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
)

var retryAfterBodyPattern = regexp.MustCompile(`retry[- ]?after[^0-9]{0,10}(\d+)`)

// Client is the Upstream Client (C4): a thin, stateless-per-call wrapper
// around an *http.Client and the process's Fingerprint, sending one CCA
// request at a time. Retry, account rotation, and fallback-model selection
// all live one layer up, in the Fallback Orchestrator (C6).
type Client struct {
	http *http.Client
	fp   *fingerprint.Fingerprint
}

// NewClient constructs an Upstream Client around a shared Fingerprint. The
// timeout is spec §4.2's 3600s budget for long thinking generations.
func NewClient(fp *fingerprint.Fingerprint) *Client {
	return &Client{
		http: &http.Client{Timeout: time.Duration(config.UpstreamRequestTimeout) * time.Second},
		fp:   fp,
	}
}

func (c *Client) headers(accessToken string, style fingerprint.Style) map[string]string {
	h := c.fp.Headers(style)
	h["Authorization"] = "Bearer " + accessToken
	return h
}

// SendUnary sends one non-streaming generateContent call, walking
// config.EndpointFallbacks in order and returning on the first endpoint that
// responds with anything other than a connection failure (HTTP-level
// failures are classified and returned as *UpstreamError, not retried here).
func (c *Client) SendUnary(ctx context.Context, accessToken string, style fingerprint.Style, req format.GoogleRequest) (*format.GoogleResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("cloudcode: marshal request: %w", err)
	}

	var lastErr error
	for _, endpoint := range config.EndpointFallbacks {
		url := endpoint + "/v1internal:generateContent"

		resp, err := c.post(ctx, url, body, c.headers(accessToken, style))
		if err != nil {
			utils.Warn("[cloudcode] unary send failed at %s: %v", endpoint, err)
			lastErr = err
			continue
		}

		envelope, upErr := decodeUnary(resp, endpoint)
		if upErr != nil {
			if !upErr.Retryable() {
				return nil, upErr
			}
			lastErr = upErr
			continue
		}
		return envelope.Unwrap(), nil
	}

	return nil, lastErr
}

// SendStream sends one streaming generateContent call and returns the raw
// response; the caller (C6/C7) drives ReadStream over its body so the
// channel lifetime is tied to the request context, not this call.
func (c *Client) SendStream(ctx context.Context, accessToken string, style fingerprint.Style, req format.GoogleRequest) (*http.Response, *UpstreamError, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("cloudcode: marshal request: %w", err)
	}

	headers := c.headers(accessToken, style)
	headers["Accept"] = "text/event-stream"

	var lastErr error
	var lastUpErr *UpstreamError
	for _, endpoint := range config.EndpointFallbacks {
		url := endpoint + "/v1internal:streamGenerateContent?alt=sse"

		resp, err := c.post(ctx, url, body, headers)
		if err != nil {
			utils.Warn("[cloudcode] stream send failed at %s: %v", endpoint, err)
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			upErr := classifyResponse(resp, endpoint)
			resp.Body.Close()
			if !upErr.Retryable() {
				return nil, upErr, nil
			}
			lastUpErr = upErr
			continue
		}
		return resp, nil, nil
	}

	if lastUpErr != nil {
		return nil, lastUpErr, nil
	}
	return nil, nil, lastErr
}

func (c *Client) post(ctx context.Context, url string, body []byte, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.http.Do(req)
}

func decodeUnary(resp *http.Response, endpoint string) (*format.GoogleResponseEnvelope, *UpstreamError) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyResponse(resp, endpoint)
	}
	var envelope format.GoogleResponseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &UpstreamError{Class: ClassServerError, StatusCode: resp.StatusCode, Message: "decode: " + err.Error(), Endpoint: endpoint}
	}
	return &envelope, nil
}

func classifyResponse(resp *http.Response, endpoint string) *UpstreamError {
	retryAfter := parseRetryAfter(resp)

	bodyText := ""
	if resp.Body != nil {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		bodyText = string(b)
	}
	class := classify(resp.StatusCode, bodyText)
	if retryAfter == 0 {
		retryAfter = extractRetryAfterFromBody(bodyText)
	}

	message := bodyText
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &UpstreamError{
		Class:      class,
		StatusCode: resp.StatusCode,
		Message:    message,
		RetryAfter: retryAfter,
		Endpoint:   endpoint,
	}
}

// extractRetryAfterFromBody regex-extracts a "retry in N seconds"-shaped hint
// from an upstream error body when no Retry-After header was present (spec
// §4.4's "else regex-extract from body" fallback).
func extractRetryAfterFromBody(body string) time.Duration {
	loc := retryAfterBodyPattern.FindStringSubmatch(body)
	if loc == nil {
		return 0
	}
	secs, err := strconv.Atoi(loc[1])
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// parseRetryAfter extracts a Retry-After header, in either delta-seconds or
// HTTP-date form; zero if absent or unparsable.
func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
