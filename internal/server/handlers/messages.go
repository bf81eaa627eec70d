// Package handlers provides HTTP request handlers for the server.
// This file handles the Anthropic-compatible /v1/messages endpoint.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/poemonsense/antigravity-proxy-go/internal/format"
	"github.com/poemonsense/antigravity-proxy-go/internal/modules"
	"github.com/poemonsense/antigravity-proxy-go/internal/orchestrator"
	"github.com/poemonsense/antigravity-proxy-go/internal/server/sse"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
	"github.com/poemonsense/antigravity-proxy-go/pkg/anthropic"
)

// MessagesHandler handles the /v1/messages endpoint.
type MessagesHandler struct {
	orch  *orchestrator.Orchestrator
	usage *modules.UsageStats // nil when usage tracking is disabled
}

func NewMessagesHandler(orch *orchestrator.Orchestrator, usage *modules.UsageStats) *MessagesHandler {
	return &MessagesHandler{orch: orch, usage: usage}
}

func (h *MessagesHandler) track(outcome orchestrator.Outcome, ok bool) {
	if h.usage == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	h.usage.Track(outcome.Account.Email, outcome.Model, status)
}

// Messages handles POST /v1/messages.
func (h *MessagesHandler) Messages(c *gin.Context) {
	var req anthropic.MessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendAnthropicError(c, http.StatusBadRequest, "invalid_request_error", "Invalid request body: "+err.Error())
		return
	}

	if len(req.Messages) == 0 {
		sendAnthropicError(c, http.StatusBadRequest, "invalid_request_error", "messages is required and must be an array")
		return
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}

	utils.Info("[API] Request for model: %s, stream: %t", req.Model, req.Stream)

	in := format.ConvertAnthropicIn(req)

	if req.Stream {
		h.handleStreaming(c, in, req.Model)
		return
	}
	h.handleUnary(c, in, req.Model)
}

func (h *MessagesHandler) handleStreaming(c *gin.Context, in format.AnthropicIn, requestedModel string) {
	ctx := c.Request.Context()
	outcome, err := sse.StreamMessages(ctx, c.Writer, in, requestedModel, h.orch)
	if err != nil {
		utils.Error("[API] streaming failed: %v", err)
	}
	h.track(outcome, err == nil)
}

func (h *MessagesHandler) handleUnary(c *gin.Context, in format.AnthropicIn, requestedModel string) {
	ctx := c.Request.Context()
	result, outcome, err := h.orch.RunUnary(ctx, in, nil)
	if err != nil {
		utils.Error("[API] Error: %v", err)
		h.track(outcome, false)
		info := sse.ErrorShape(err)
		sendAnthropicError(c, info.Status, info.Type, info.Message)
		return
	}
	h.track(outcome, true)

	c.JSON(http.StatusOK, format.ToAnthropicResponse(result, requestedModel))
}

// CountTokens handles POST /v1/messages/count_tokens with an approximate
// char/4 estimate (spec §6); no upstream call is made.
func (h *MessagesHandler) CountTokens(c *gin.Context) {
	var req anthropic.MessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendAnthropicError(c, http.StatusBadRequest, "invalid_request_error", "Invalid request body: "+err.Error())
		return
	}

	in := format.ConvertAnthropicIn(req)
	chars := len(in.System)
	for _, msg := range in.Messages {
		for _, cb := range msg.Content {
			chars += len(cb.Text) + len(cb.Thinking)
		}
	}
	for _, t := range in.Tools {
		chars += len(t.Name) + len(t.Description) + len(t.InputSchema)
	}

	tokens := (chars + 3) / 4
	c.JSON(http.StatusOK, gin.H{"input_tokens": tokens})
}

func sendAnthropicError(c *gin.Context, status int, errorType, message string) {
	c.JSON(status, anthropic.NewErrorResponse(errorType, message))
}
