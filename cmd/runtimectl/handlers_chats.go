package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flowlane/flowlane/internal/web"
)

func runChatsStart(cmd *cobra.Command, baseURL, tenantID, workflowID, chatID, cacheSeed string) error {
	client := newAPIClient(baseURL)
	var resp web.ChatStartResponse
	req := web.ChatStartRequest{ChatID: chatID, CacheSeed: cacheSeed}
	path := fmt.Sprintf("/api/chats/%s/%s/start", tenantID, workflowID)
	if err := client.postJSON(cmd.Context(), path, req, &resp); err != nil {
		return fmt.Errorf("start chat: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "chat_id: %s\ncache_seed: %s\n", resp.ChatID, resp.CacheSeed)
	return nil
}

func runChatsList(cmd *cobra.Command, baseURL, tenantID, workflowID string) error {
	client := newAPIClient(baseURL)
	var resp web.ChatListResponse
	path := fmt.Sprintf("/api/chats/%s/%s", tenantID, workflowID)
	if err := client.getJSON(cmd.Context(), path, &resp); err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	if resp.Total == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No chats found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAT_ID\tCREATED_AT")
	for _, c := range resp.Chats {
		fmt.Fprintf(w, "%s\t%s\n", c.ChatID, c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return w.Flush()
}

func runChatsExists(cmd *cobra.Command, baseURL, tenantID, workflowID, chatID string) error {
	client := newAPIClient(baseURL)
	var resp web.ChatExistsResponse
	path := fmt.Sprintf("/api/chats/exists/%s/%s/%s", tenantID, workflowID, chatID)
	if err := client.getJSON(cmd.Context(), path, &resp); err != nil {
		return fmt.Errorf("check chat: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exists: %t\n", resp.Exists)
	return nil
}

func runChatsMeta(cmd *cobra.Command, baseURL, tenantID, workflowID, chatID string) error {
	client := newAPIClient(baseURL)
	var resp web.ChatMetaResponse
	path := fmt.Sprintf("/api/chats/meta/%s/%s/%s", tenantID, workflowID, chatID)
	if err := client.getJSON(cmd.Context(), path, &resp); err != nil {
		return fmt.Errorf("get chat meta: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "chat_id:      %s\n", resp.ChatID)
	fmt.Fprintf(out, "tenant_id:    %s\n", resp.TenantID)
	fmt.Fprintf(out, "workflow_id:  %s\n", resp.WorkflowID)
	fmt.Fprintf(out, "cache_seed:   %s\n", resp.CacheSeed)
	fmt.Fprintf(out, "created_at:   %s\n", resp.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(out, "highest_seq:  %d\n", resp.HighestSeq)
	fmt.Fprintf(out, "has_usage:    %t\n", resp.HasUsage)
	fmt.Fprintf(out, "has_state:    %t\n", resp.HasState)
	return nil
}

func runHealth(cmd *cobra.Command, baseURL string) error {
	client := newAPIClient(baseURL)
	var resp web.HealthResponse
	if err := client.getJSON(cmd.Context(), "/api/health", &resp); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "status:       %s\n", resp.Status)
	fmt.Fprintf(out, "store_status: %s\n", resp.StoreStatus)
	fmt.Fprintf(out, "uptime:       %s\n", resp.Uptime)
	fmt.Fprintf(out, "active_chats: %d\n", resp.ActiveChats)
	return nil
}

func runMetricsAggregate(cmd *cobra.Command, baseURL string) error {
	client := newAPIClient(baseURL)
	var resp web.AggregateMetrics
	if err := client.getJSON(cmd.Context(), "/metrics/perf/aggregate", &resp); err != nil {
		return fmt.Errorf("get aggregate metrics: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "total_chats:             %d\n", resp.TotalChats)
	fmt.Fprintf(out, "total_prompt_tokens:     %d\n", resp.TotalPromptTokens)
	fmt.Fprintf(out, "total_completion_tokens: %d\n", resp.TotalCompletionTokens)
	fmt.Fprintf(out, "total_cost_micros:       %d\n", resp.TotalCostMicros)
	return nil
}

func runMetricsChats(cmd *cobra.Command, baseURL, chatID string) error {
	client := newAPIClient(baseURL)

	if chatID != "" {
		var m web.ChatMetrics
		if err := client.getJSON(cmd.Context(), "/metrics/perf/chats/"+chatID, &m); err != nil {
			return fmt.Errorf("get chat metrics: %w", err)
		}
		return printChatMetrics(cmd, []web.ChatMetrics{m})
	}

	var list []web.ChatMetrics
	if err := client.getJSON(cmd.Context(), "/metrics/perf/chats", &list); err != nil {
		return fmt.Errorf("list chat metrics: %w", err)
	}
	return printChatMetrics(cmd, list)
}

func printChatMetrics(cmd *cobra.Command, metrics []web.ChatMetrics) error {
	if len(metrics) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No chats found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAT_ID\tPROMPT_TOKENS\tCOMPLETION_TOKENS\tCOST_MICROS\tFINALIZED")
	for _, m := range metrics {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%t\n", m.ChatID, m.PromptTokens, m.CompletionTokens, m.CostMicros, m.Finalized)
	}
	return w.Flush()
}
