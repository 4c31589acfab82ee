package main

import (
	"github.com/spf13/cobra"
)

func buildChatsCmd(baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Start, list, and inspect chat sessions",
	}
	cmd.AddCommand(
		buildChatsStartCmd(baseURL),
		buildChatsListCmd(baseURL),
		buildChatsExistsCmd(baseURL),
		buildChatsMetaCmd(baseURL),
	)
	return cmd
}

func buildChatsStartCmd(baseURL *string) *cobra.Command {
	var chatID, cacheSeed string
	cmd := &cobra.Command{
		Use:   "start <tenant> <workflow>",
		Short: "Start a new chat session, or resume an existing one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsStart(cmd, *baseURL, args[0], args[1], chatID, cacheSeed)
		},
	}
	cmd.Flags().StringVar(&chatID, "chat-id", "", "reuse an existing chat_id instead of allocating one")
	cmd.Flags().StringVar(&cacheSeed, "cache-seed", "", "cache seed for prompt caching (defaults to a random value)")
	return cmd
}

func buildChatsListCmd(baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <tenant> <workflow>",
		Short: "List chat sessions for a tenant/workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsList(cmd, *baseURL, args[0], args[1])
		},
	}
	return cmd
}

func buildChatsExistsCmd(baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exists <tenant> <workflow> <chat_id>",
		Short: "Check whether a chat session exists",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsExists(cmd, *baseURL, args[0], args[1], args[2])
		},
	}
	return cmd
}

func buildChatsMetaCmd(baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta <tenant> <workflow> <chat_id>",
		Short: "Show a chat session's directory and persistence metadata",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsMeta(cmd, *baseURL, args[0], args[1], args[2])
		},
	}
	return cmd
}

func buildHealthCmd(baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report runtimed's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd, *baseURL)
		},
	}
	return cmd
}

func buildMetricsCmd(baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Report usage metrics",
	}
	cmd.AddCommand(buildMetricsAggregateCmd(baseURL), buildMetricsChatsCmd(baseURL))
	return cmd
}

func buildMetricsAggregateCmd(baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Show platform-wide usage totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetricsAggregate(cmd, *baseURL)
		},
	}
	return cmd
}

func buildMetricsChatsCmd(baseURL *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats [chat_id]",
		Short: "Show per-chat usage metrics, or every chat's if chat_id is omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID := ""
			if len(args) == 1 {
				chatID = args[0]
			}
			return runMetricsChats(cmd, *baseURL, chatID)
		},
	}
	return cmd
}
