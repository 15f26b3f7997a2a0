package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/helpdesk/internal/app"
	"github.com/allisson/helpdesk/internal/config"
)

// RunServer starts the ops API server, the metrics server, and the outbox
// worker with graceful shutdown support. Blocks until receiving SIGINT/SIGTERM
// or encountering a fatal server error.
func RunServer(ctx context.Context) error {
	// Load configuration
	cfg := config.Load()

	// Create DI container
	container := app.NewContainer(cfg)

	// Get logger from container
	logger := container.Logger()
	logger.Info("starting server")

	// Ensure cleanup on exit
	defer closeContainer(container, logger)

	// Get HTTP server from container (this initializes all dependencies)
	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	// Get Metrics server from container
	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	// Get outbox worker from container
	worker, err := container.Worker()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox worker: %w", err)
	}

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start the worker poll loop
	worker.Start(ctx)

	// Start servers; a failing server cancels the group context and triggers
	// the same shutdown path as a signal
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})

	if cfg.MetricsEnabled {
		g.Go(func() error {
			if err := metricsServer.Start(gctx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	// Wait for shutdown signal or server error
	<-gctx.Done()
	if ctx.Err() != nil {
		logger.Info("shutdown signal received")
	} else {
		logger.Error("server error, initiating shutdown")
	}

	shutdownErr := shutdownServers(cfg, server, metricsServer, nil)
	if err := g.Wait(); err != nil {
		logger.Error("server terminated with error", slog.Any("error", err))
		return errors.Join(err, shutdownErr)
	}

	return shutdownErr
}

// shutdownServers gracefully stops both HTTP servers within the configured
// timeout, joining any shutdown errors with the triggering error.
func shutdownServers(
	cfg *config.Config,
	server interface{ Shutdown(context.Context) error },
	metricsServer interface{ Shutdown(context.Context) error },
	cause error,
) error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DBConnMaxLifetime)
	defer shutdownCancel()

	var shutdownErrors []error
	if cause != nil {
		shutdownErrors = append(shutdownErrors, cause)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
	}

	if cfg.MetricsEnabled {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return errors.Join(shutdownErrors...)
	}

	return nil
}
