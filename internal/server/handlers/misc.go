// Package handlers provides HTTP request handlers for the server.
// This file handles the landing page and the mock organization endpoint.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const landingHTML = `<!DOCTYPE html>
<html>
<head><title>Aether Bridge</title></head>
<body>
<h1>Aether Bridge</h1>
<p>Local reverse proxy translating OpenAI/Anthropic requests onto a Cloud Code Assist backend.</p>
<ul>
<li>GET /health</li>
<li>GET /v1/models</li>
<li>POST /v1/messages</li>
<li>POST /v1/messages/count_tokens</li>
<li>POST /v1/chat/completions</li>
</ul>
</body>
</html>`

// Landing handles GET / with a static status page.
func Landing(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(landingHTML))
}

// Organization handles GET /v1/organizations/:id with a static stub body,
// present only because some Anthropic SDKs probe it on startup; no real
// organization data backs this proxy.
func Organization(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"id":   c.Param("id"),
		"name": "local",
		"type": "organization",
	})
}

func nowUnix() int64 {
	return time.Now().Unix()
}
