// Package server implements the command running the API server and watcher in one process.
package server

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rudder-cd/rudder/app"
	"github.com/rudder-cd/rudder/config"
	"github.com/rudder-cd/rudder/logging"
	"github.com/rudder-cd/rudder/server"
	"github.com/rudder-cd/rudder/watcher"
)

// NewCmdServer creates a command to run the API server and watcher
func NewCmdServer() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the Rudder server (HTTP API + maintenance watcher)",
		Long:  "Starts the HTTP API and the background maintenance watcher in a single process.",
		// The server configures itself from the environment; skip the CLI
		// initialization the parent runs.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	return cmd
}

func runServer() error {
	cfg, err := config.NewConfigForServer()
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	logging.InitLogging(cfg.LogLevel)

	slog.Info("Starting Rudder server")

	if err := app.InitializeWithConfig(cfg); err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdown(cancel)

	// Maintenance watcher runs alongside the API
	go func() {
		if err := startWatcher(ctx, cfg); err != nil {
			slog.Error("Watcher failed", "error", err)
			cancel()
		}
	}()

	return startAPIServer(ctx, cfg)
}

// startAPIServer runs the HTTP API until the context is cancelled
func startAPIServer(ctx context.Context, cfg *config.Config) error {
	apiServer := server.New(
		cfg,
		app.GetRegistryService(),
		app.GetProtectionService(),
		app.GetSlotManager(),
		app.GetOrchestrator(),
		app.GetSyncer(),
		app.GetBackupRecorder(),
		app.GetMetricsCollector(),
	)

	address := fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:    address,
		Handler: apiServer.Handler(),
	}

	go func() {
		log.Printf("API server listening on http://%s", address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed", "error", err)
		}
	}()

	<-ctx.Done()

	slog.Info("Shutting down API server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}

	slog.Info("API server stopped")
	return nil
}

// startWatcher runs the maintenance sweep loop
func startWatcher(ctx context.Context, cfg *config.Config) error {
	watcherService := watcher.NewService(
		app.GetRegistryService(),
		app.GetProtectionService(),
		app.GetSlotManager(),
		app.GetSyncer(),
		app.GetBus(),
		cfg.PollInterval,
		cfg.CommandTimeout,
	)

	if err := watcherService.Start(ctx); err != nil {
		return fmt.Errorf("watcher failed: %w", err)
	}

	slog.Info("Watcher stopped")
	return nil
}

// handleShutdown handles OS signals for graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("Shutdown signal received")
	cancel()
}
