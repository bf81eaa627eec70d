// Package handlers provides HTTP request handlers for the server.
// This file handles the OpenAI-compatible /v1/chat/completions endpoint.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/poemonsense/antigravity-proxy-go/internal/format"
	"github.com/poemonsense/antigravity-proxy-go/internal/modules"
	"github.com/poemonsense/antigravity-proxy-go/internal/orchestrator"
	"github.com/poemonsense/antigravity-proxy-go/internal/server/sse"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
	"github.com/poemonsense/antigravity-proxy-go/pkg/openai"
)

// ChatHandler handles the /v1/chat/completions endpoint, non-streaming only
// (spec §6).
type ChatHandler struct {
	orch  *orchestrator.Orchestrator
	usage *modules.UsageStats
}

func NewChatHandler(orch *orchestrator.Orchestrator, usage *modules.UsageStats) *ChatHandler {
	return &ChatHandler{orch: orch, usage: usage}
}

func (h *ChatHandler) ChatCompletions(c *gin.Context) {
	var req openai.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "Invalid request body: "+err.Error())
		return
	}

	if len(req.Messages) == 0 {
		sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "messages is required and must be an array")
		return
	}
	if req.Stream {
		sendOpenAIError(c, http.StatusBadRequest, "invalid_request_error", "stream is not supported on this endpoint; use /v1/messages")
		return
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}

	utils.Info("[API] chat/completions request for model: %s", req.Model)

	in := format.ConvertOpenAIIn(req)

	ctx := c.Request.Context()
	result, outcome, err := h.orch.RunUnary(ctx, in, nil)
	if err != nil {
		utils.Error("[API] Error: %v", err)
		if h.usage != nil {
			h.usage.Track(outcome.Account.Email, outcome.Model, "error")
		}
		info := sse.ErrorShape(err)
		sendOpenAIError(c, info.Status, info.Type, info.Message)
		return
	}
	if h.usage != nil {
		h.usage.Track(outcome.Account.Email, outcome.Model, "ok")
	}

	c.JSON(http.StatusOK, format.ToOpenAIResponse(result, req.Model, nowUnix()))
}

func sendOpenAIError(c *gin.Context, status int, errorType, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"type":    errorType,
			"message": message,
		},
	})
}
