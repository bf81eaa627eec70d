// Package handlers provides HTTP request handlers for the server.
// This file handles health check endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poemonsense/antigravity-proxy-go/internal/account"
	"github.com/poemonsense/antigravity-proxy-go/internal/config"
	"github.com/poemonsense/antigravity-proxy-go/internal/models"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	pool *account.Pool
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(pool *account.Pool) *HealthHandler {
	return &HealthHandler{pool: pool}
}

// Health handles GET /health - service + account-pool status check
func (h *HealthHandler) Health(c *gin.Context) {
	emails := h.pool.Emails()

	claudeLimited := h.pool.AllRateLimitedFor(models.FamilyClaude)
	geminiLimited := h.pool.AllRateLimitedFor(models.FamilyGemini)

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "aether-bridge",
		"version":   config.Version,
		"timestamp": time.Now().Format(time.RFC3339),
		"accounts": gin.H{
			"total":                 len(emails),
			"emails":                emails,
			"allRateLimitedClaude":  claudeLimited,
			"allRateLimitedGemini":  geminiLimited,
		},
	})
}
