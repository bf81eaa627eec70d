// Package main starts the Aether Bridge server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poemonsense/antigravity-proxy-go/internal/account"
	"github.com/poemonsense/antigravity-proxy-go/internal/cloudcode"
	"github.com/poemonsense/antigravity-proxy-go/internal/config"
	"github.com/poemonsense/antigravity-proxy-go/internal/fingerprint"
	"github.com/poemonsense/antigravity-proxy-go/internal/format"
	"github.com/poemonsense/antigravity-proxy-go/internal/modules"
	"github.com/poemonsense/antigravity-proxy-go/internal/orchestrator"
	"github.com/poemonsense/antigravity-proxy-go/internal/server"
	"github.com/poemonsense/antigravity-proxy-go/internal/tokenstore"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		debugMode bool
		port      int
		host      string
	)

	flag.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	flag.IntVar(&port, "port", 0, "Server port (default: 8080)")
	flag.StringVar(&host, "host", "", "Bind address (default: 0.0.0.0)")
	flag.Parse()

	if os.Getenv("AETHER_DEBUG") == "true" {
		debugMode = true
	}
	utils.SetDebug(debugMode)

	cfg := config.FromEnv(port, host)
	cfg.Debug = debugMode

	store, err := tokenstore.New(utils.Warn)
	if err != nil {
		utils.Error("[Startup] Failed to open account store: %v", err)
		os.Exit(1)
	}

	pool := account.NewPool(store, account.NewOAuth2Refresher(), utils.Warn)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := pool.LoadFromStore(ctx); err != nil {
		utils.Error("[Startup] Failed to load accounts: %v", err)
		cancel()
		os.Exit(1)
	}
	cancel()

	if pool.Count() == 0 {
		utils.Warn("[Startup] No Google accounts configured. Run `aether-accounts add` first.")
	}

	client := cloudcode.NewClient(fingerprint.New())
	orch := orchestrator.New(pool, client, cfg.Project)

	if redisURL := os.Getenv("AETHER_REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			utils.Warn("[Startup] Invalid AETHER_REDIS_URL, falling back to in-process signature cache: %v", err)
		} else {
			orch.WithSignatureStore(format.NewRedisSignatureStore(redis.NewClient(opts)))
			utils.Info("[Startup] Signature cache backed by Redis")
		}
	}

	var usage *modules.UsageStats
	if os.Getenv("AETHER_DISABLE_USAGE_LOG") != "true" {
		if dbPath, err := modules.DefaultUsageDBPath(); err != nil {
			utils.Warn("[Startup] Usage log disabled: %v", err)
		} else if store, err := modules.OpenUsageStore(dbPath); err != nil {
			utils.Warn("[Startup] Usage log disabled: %v", err)
		} else {
			usage = modules.NewUsageStats(store)
			usage.Start()
		}
	}

	srv := server.New(cfg, pool, orch, usage)

	printBanner(cfg, pool)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx, addr); err != nil {
		utils.Error("[Server] %v", err)
		os.Exit(1)
	}

	utils.Success("Server stopped")
}

func printBanner(cfg *config.Config, pool *account.Pool) {
	displayHost := cfg.Host
	if displayHost == "0.0.0.0" {
		displayHost = "localhost"
	}

	fmt.Println()
	fmt.Println("  Aether Bridge v" + config.Version)
	fmt.Printf("  Listening on http://%s:%d\n", displayHost, cfg.Port)
	fmt.Printf("  Accounts loaded: %d\n", pool.Count())
	if cfg.Project != "" {
		fmt.Printf("  Project: %s\n", cfg.Project)
	}
	fmt.Println()
	fmt.Println("  POST /v1/messages            Anthropic Messages API")
	fmt.Println("  POST /v1/chat/completions     OpenAI Chat Completions")
	fmt.Println("  GET  /v1/models               List available models")
	fmt.Println("  GET  /health                  Health check")
	fmt.Println()
	fmt.Println("  Add Google accounts:  aether-accounts add")
	fmt.Println("  Ctrl+C to stop")
	fmt.Println()
}
