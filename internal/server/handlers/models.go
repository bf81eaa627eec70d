// Package handlers provides HTTP request handlers for the server.
// This file handles model listing endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/poemonsense/antigravity-proxy-go/internal/models"
)

// ListModels handles GET /v1/models - OpenAI-compatible format over the
// fixed seven-model catalog (spec §6); no upstream call, no account needed.
func ListModels(c *gin.Context) {
	all := models.All()
	data := make([]gin.H, 0, len(all))
	for _, m := range all {
		data = append(data, gin.H{
			"id":       m.APIID(""),
			"object":   "model",
			"created":  0,
			"owned_by": "google",
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   data,
	})
}
