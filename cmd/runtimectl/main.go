// Command runtimectl is the operator CLI for a running runtimed server: it
// lists/starts chat sessions and reports health and usage metrics over
// runtimed's HTTP API (spec.md §6.1), the way cmd/nexus is the operator CLI
// for a running nexus gateway.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "runtimectl",
		Short: "Operate a runtimed server",
	}
	cmd.PersistentFlags().StringVar(&baseURL, "addr", "http://localhost:8080", "runtimed server base URL")
	cmd.AddCommand(
		buildChatsCmd(&baseURL),
		buildHealthCmd(&baseURL),
		buildMetricsCmd(&baseURL),
	)
	return cmd
}
