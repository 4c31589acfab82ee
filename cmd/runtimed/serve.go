package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowlane/flowlane/internal/config"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the runtime server",
		Long: `Start the runtime server.

serve performs, in order:
  1. Loads the runtime config and every workflow manifest under
     workspace.manifest_dir (C1).
  2. Builds the Persistence Layer (C4) against the configured database, or
     an in-memory store if none is configured.
  3. Builds the Transport Hub (C6), the Input/UI-Tool Coordinator (C7), and
     the Resume Coordinator (C9), and wires them together.
  4. Builds the LLM provider(s) from llm.providers and the backend tool set
     from tools/.
  5. Serves the chat session HTTP API and WebSocket endpoint (spec.md §6)
     on server.http_port until SIGINT/SIGTERM.`,
		Example: `  runtimed serve --config runtime.yaml
  runtimed serve -c runtime.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "runtime.yaml", "path to the runtime config file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug-level logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if debug || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building runtime: %w", err)
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go rt.artifactsCleanup.Start(cleanupCtx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	server := &http.Server{
		Addr:    addr,
		Handler: rt.webHandler.Mount(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr, "workflows", rt.workflowNames())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
