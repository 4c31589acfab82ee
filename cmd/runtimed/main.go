// Command runtimed is the server entrypoint for the workflow orchestration
// runtime: it loads a runtime config and a directory of workflow manifests,
// wires the nine components (C1-C9), and serves the chat session HTTP API
// and WebSocket endpoint (spec.md §6) until told to stop.
//
// # Basic usage
//
//	runtimed serve --config runtime.yaml
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "runtimed",
		Short:         "Multi-agent workflow orchestration runtime",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Printf("runtimed %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}
