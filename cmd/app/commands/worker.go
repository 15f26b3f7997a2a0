package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/allisson/helpdesk/internal/app"
	"github.com/allisson/helpdesk/internal/config"
)

// RunWorker starts the outbox worker without the HTTP servers. Useful for
// deployments that scale delivery separately from the ops API. Blocks until
// receiving SIGINT/SIGTERM.
func RunWorker(ctx context.Context) error {
	// Load configuration
	cfg := config.Load()

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting worker")

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	// Get outbox worker from container
	worker, err := container.Worker()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox worker: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	worker.Start(ctx)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	worker.Stop()

	runtime := worker.Runtime()
	logger.Info("worker stopped",
		slog.Int64("ticks", runtime.Ticks),
		slog.Int64("processed", runtime.Processed),
		slog.Int64("succeeded", runtime.Succeeded),
		slog.Int64("retried", runtime.Retried),
		slog.Int64("dead_lettered", runtime.DeadLettered),
	)

	return nil
}
