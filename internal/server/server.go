// Package server provides the main HTTP server implementation.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poemonsense/antigravity-proxy-go/internal/account"
	"github.com/poemonsense/antigravity-proxy-go/internal/config"
	"github.com/poemonsense/antigravity-proxy-go/internal/modules"
	"github.com/poemonsense/antigravity-proxy-go/internal/orchestrator"
	"github.com/poemonsense/antigravity-proxy-go/internal/server/handlers"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
)

// Server represents the main HTTP server.
type Server struct {
	engine *gin.Engine
	pool   *account.Pool
	orch   *orchestrator.Orchestrator
	cfg    *config.Config
	usage  *modules.UsageStats
}

// New creates a new Server instance and wires its routes. Unlike the
// account-manager-backed predecessor, account-pool initialization happens
// up front via pool.LoadFromStore before New is called, so there is no
// lazy-init-on-first-request path here. usage may be nil to disable the
// SQLite usage log entirely.
func New(cfg *config.Config, pool *account.Pool, orch *orchestrator.Orchestrator, usage *modules.UsageStats) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.SetTrustedProxies(nil)
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, pool: pool, orch: orch, cfg: cfg, usage: usage}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(CORSMiddleware())
	s.engine.Use(SilentHandlerMiddleware())
	s.engine.Use(RequestLoggingMiddleware())

	s.engine.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.RequestBodyLimit)
		c.Next()
	})

	healthHandler := handlers.NewHealthHandler(s.pool)
	messagesHandler := handlers.NewMessagesHandler(s.orch, s.usage)
	chatHandler := handlers.NewChatHandler(s.orch, s.usage)

	s.engine.GET("/", handlers.Landing)
	s.engine.GET("/health", healthHandler.Health)

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/models", handlers.ListModels)
		v1.GET("/organizations/:id", handlers.Organization)
		v1.POST("/messages", messagesHandler.Messages)
		v1.POST("/messages/count_tokens", messagesHandler.CountTokens)
		v1.POST("/chat/completions", chatHandler.ChatCompletions)
		if s.usage != nil {
			s.usage.SetupRoutes(v1)
		}
	}

	s.engine.NoRoute(func(c *gin.Context) {
		if utils.IsDebug() {
			utils.Debug("[API] 404 Not Found: %s %s", c.Request.Method, c.Request.URL.Path)
		}
		c.JSON(http.StatusNotFound, gin.H{
			"type": "error",
			"error": gin.H{
				"type":    "not_found_error",
				"message": fmt.Sprintf("Endpoint %s %s not found", c.Request.Method, c.Request.URL.Path),
			},
		})
	})
}

// Run starts the HTTP server and blocks until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	utils.Info("[Server] Starting on %s", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		utils.Info("[Server] Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// Engine returns the Gin engine for testing or custom configuration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}
