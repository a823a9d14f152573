package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nomomon/sandbox-api/internal/api"
	"github.com/nomomon/sandbox-api/internal/audit"
	"github.com/nomomon/sandbox-api/internal/auth"
	"github.com/nomomon/sandbox-api/internal/command"
	"github.com/nomomon/sandbox-api/internal/config"
	"github.com/nomomon/sandbox-api/internal/docker"
	"github.com/nomomon/sandbox-api/internal/mcp"
	"github.com/nomomon/sandbox-api/internal/orchestrator"
	"github.com/nomomon/sandbox-api/internal/ratelimit"
	"github.com/nomomon/sandbox-api/internal/reaper"
	"github.com/nomomon/sandbox-api/internal/store"
	"github.com/nomomon/sandbox-api/internal/workspace"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	cfgPath := flag.String("config", "", "path to sandbox.yaml")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if len(cfg.Auth.APIKeys) == 0 && cfg.Auth.JWTSecret == "change-me-in-production" {
		logger.Warn("no API keys and a default JWT secret configured; every request will be rejected or forgeable")
	}

	rdb := store.NewClient(cfg.Redis)
	defer rdb.Close()
	st := store.New(rdb, cfg.SessionTTLSeconds)

	auditLog, err := audit.New(cfg.Audit.DBPath, 0)
	if err != nil {
		logger.Error("open audit log", "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	dc, err := docker.New(cfg.Container)
	if err != nil {
		logger.Error("docker client", "error", err)
		os.Exit(1)
	}
	defer dc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := st.Ping(ctx); err != nil {
		logger.Error("redis ping failed", "addr", cfg.Redis.Addr(), "error", err)
		os.Exit(1)
	}
	if err := dc.Ping(ctx); err != nil {
		logger.Error("docker ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("redis and docker connections OK")

	orc := orchestrator.New(cfg, st, dc, auditLog, logger)
	files := workspace.New(dc, cfg.Workspace.MaxFileSizeBytes)
	authn := auth.New(cfg.Auth)
	limiter := ratelimit.New(rdb, cfg.RateLimit)
	whitelist := command.NewWhitelist(cfg.AllowedCommands)

	rpr := reaper.New(dc, st,
		time.Duration(cfg.Cleanup.IntervalSeconds)*time.Second,
		time.Duration(cfg.Cleanup.MaxContainerAgeSeconds)*time.Second,
		logger)
	rpr.SetAuditLog(auditLog, time.Duration(cfg.Audit.RetentionSeconds)*time.Second)
	go rpr.Run(ctx)

	srv := api.NewServer(cfg, orc, files, authn, limiter, whitelist, logger)
	srv.SetReadyChecks(st, dc)
	srv.SetMCPHandler(mcp.New(version, orc, files, authn, limiter, whitelist, logger).Handler())

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // exec can be long
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-sigCh
		logger.Info("shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Listen, "version", version)
	fmt.Fprintf(os.Stderr, "\n  sandbox api ready at http://%s\n\n", cfg.Listen)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
