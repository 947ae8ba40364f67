package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apresai/roleplay/internal/mcpserver"
	"github.com/apresai/roleplay/internal/observability"
)

// jobGrace is how long shutdown waits for jobs to record their final state.
// Container runtimes typically send SIGKILL about 10s after SIGTERM.
const jobGrace = 8 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	logger := observability.InitLogger()

	logger.Info("Roleplay MCP Server starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := observability.InitTracer(ctx, "roleplay-mcp", mcpserver.Version)
	if err != nil {
		logger.Warn("Failed to init tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := tp.Shutdown(flushCtx); err != nil {
				logger.Error("Tracer shutdown error", "error", err)
			}
		}()
	}

	cfg := mcpserver.DefaultConfig()

	srv, err := mcpserver.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		return 1
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, waiting for active jobs...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), jobGrace)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx, jobGrace)
	logger.Info("Shutdown complete")
	return 0
}
