// Package main is the entry point for the orchestrator daemon: the single
// process hosting the Workspace Provisioner, Session Supervisor, Event Bus,
// Task Analyzer, Mode Engines, and Orchestrator Registry behind the
// External Command Surface's HTTP+WebSocket API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ait42/orchestrator/internal/analyzer"
	"github.com/ait42/orchestrator/internal/api"
	"github.com/ait42/orchestrator/internal/common/config"
	"github.com/ait42/orchestrator/internal/common/httpmw"
	"github.com/ait42/orchestrator/internal/common/logger"
	"github.com/ait42/orchestrator/internal/dbindex"
	"github.com/ait42/orchestrator/internal/engine"
	"github.com/ait42/orchestrator/internal/eventbus"
	"github.com/ait42/orchestrator/internal/mcptools"
	"github.com/ait42/orchestrator/internal/model"
	"github.com/ait42/orchestrator/internal/registry"
	"github.com/ait42/orchestrator/internal/session"
	"github.com/ait42/orchestrator/internal/workspace"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logCfg := logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	}
	log, err := logger.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting orchestrator daemon")

	// 3. Create a root cancellation signal for background goroutines
	// (event bus reconnect loops, the MCP tool server, future long-lived
	// subscriptions).
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Event Bus (C3) - in-process, optionally mirrored to NATS
	bus, err := eventbus.Provide(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer bus.Close()

	// 5. Workspace Provisioner (C1)
	wsProvisioner := workspace.New(workspace.Config{
		FetchTimeout:  cfg.Workspace.FetchTimeout(),
		SetupScript:   cfg.Workspace.SetupScript,
		CleanupScript: cfg.Workspace.CleanupScript,
	}, log)

	// 6. Session Supervisor (C2) configuration
	sessionCfg := session.Config{
		PollInterval:  cfg.Session.PollInterval(),
		ProductPrefix: cfg.Session.ProductPrefix,
		RuntimeTag:    cfg.Session.RuntimeTag,
	}

	// 7. Mode Engine (C5) dependencies: CLI profile per model tag, plus the
	// Ensemble integrator CLI.
	cliProfiles := engine.CLIProfiles{}
	for tag, profile := range cfg.Engine.ModelTags {
		cliProfiles[model.ModelTag(tag)] = engine.CLITemplate{
			Command: profile.Command,
			Env:     profile.Env,
		}
	}
	var integrator engine.Integrator
	if len(cfg.Engine.Integrator.Command) > 0 {
		integrator = &engine.CLIIntegrator{
			CommandLine: cfg.Engine.Integrator.Command,
			Env:         cfg.Engine.Integrator.Env,
		}
	}

	engineDeps := engine.Deps{
		Workspace:   wsProvisioner,
		SessionCfg:  sessionCfg,
		Bus:         bus.Publisher,
		Logger:      log,
		CLIProfiles: cliProfiles,
		Integrator:  integrator,
	}

	// 8. Task Analyzer (C4)
	var llm analyzer.LLMClient
	if len(cfg.Analyzer.CLI.Command) > 0 {
		llm = &analyzer.CLIClient{
			CommandLine: cfg.Analyzer.CLI.Command,
			Env:         cfg.Analyzer.CLI.Env,
		}
	}
	taskAnalyzer := analyzer.New(analyzer.Config{RequestTimeout: cfg.Analyzer.RequestTimeout()}, llm, log)

	// 8b. Durable run-index (optional) - disabled unless a driver is set
	runIndex, err := dbindex.New(dbindex.Config{
		Driver:      cfg.Database.Driver,
		SQLitePath:  cfg.Database.SQLitePath,
		PostgresDSN: cfg.Database.PostgresDSN,
	})
	if err != nil {
		log.Fatal("failed to initialize durable run-index", zap.Error(err))
	}
	defer runIndex.Close()

	// 9. Orchestrator Registry (C6)
	reg := registry.New(registry.NewOpts{
		Deps:     engineDeps,
		LocalBus: bus.Local,
		Logger:   log,
		IDGen:    func() string { return uuid.New().String() },
		Index:    runIndex,
	})

	// 10. Determine the working directory the Workspace Provisioner and
	// getWorkspace verb both reason about.
	workingDir, err := os.Getwd()
	if err != nil {
		log.Fatal("failed to determine working directory", zap.Error(err))
	}

	// 10b. MCP tool surface: the same verb set as the HTTP API, exposed
	// in-process to MCP-capable agents over SSE and Streamable HTTP.
	var mcpServer *mcptools.Server
	if cfg.MCP.Enabled {
		mcpServer = mcptools.New(mcptools.Config{Port: cfg.MCP.Port, WorkingDir: workingDir}, reg, taskAnalyzer, log)
		if err := mcpServer.Start(ctx); err != nil {
			log.Fatal("failed to start mcp tool server", zap.Error(err))
		}
	}

	// 11. Setup HTTP server with Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(httpmw.RequestLogger(log, "orchestratord"))
	router.Use(httpmw.OtelTracing("orchestratord"))
	router.Use(gin.Recovery())

	// 12. Register External Command Surface routes (C7)
	v1 := router.Group("/api/v1")
	api.SetupRoutes(v1, reg, taskAnalyzer, workingDir, log)

	// 13. Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 14. Create HTTP server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// 15. Start server in goroutine
	go func() {
		log.Info("http server listening", zap.Int("port", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start http server", zap.Error(err))
		}
	}()

	// 16. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down orchestrator daemon")

	// 17. Graceful shutdown
	cancel() // cancel context to stop background goroutines

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	if mcpServer != nil {
		if err := mcpServer.Stop(shutdownCtx); err != nil {
			log.Error("mcp tool server shutdown error", zap.Error(err))
		}
	}

	log.Info("orchestrator daemon stopped")
}
