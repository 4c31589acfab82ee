package web

import "time"

// ChatStartRequest is the POST .../start request body. ChatID is optional —
// when omitted the server allocates one; when provided and already
// registered, the call is idempotent (spec.md §6.1).
type ChatStartRequest struct {
	ChatID    string `json:"chat_id,omitempty"`
	CacheSeed string `json:"cache_seed,omitempty"`
}

// ChatStartResponse is the POST .../start response.
type ChatStartResponse struct {
	ChatID    string `json:"chat_id"`
	CacheSeed string `json:"cache_seed"`
}

// ChatListResponse is the GET .../{tenant}/{workflow} response.
type ChatListResponse struct {
	Chats []ChatSummary `json:"chats"`
	Total int           `json:"total"`
}

// ChatSummary is one chat's entry in a list response.
type ChatSummary struct {
	ChatID    string    `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatExistsResponse is the GET .../exists/... response.
type ChatExistsResponse struct {
	Exists bool `json:"exists"`
}

// ChatMetaResponse is the GET .../meta/... response: directory metadata
// plus whatever persistence-layer state is available for the chat.
type ChatMetaResponse struct {
	ChatRecord
	HighestSeq uint64 `json:"highest_seq"`
	HasUsage   bool   `json:"has_usage"`
	HasState   bool   `json:"has_state"`
}

// HealthResponse is the GET /api/health response.
type HealthResponse struct {
	Status      string `json:"status"`
	StoreStatus string `json:"store_status"`
	Uptime      string `json:"uptime"`
	ActiveChats int    `json:"active_chats"`
}

// AggregateMetrics is the GET /metrics/perf/aggregate response: platform
// totals summed across every chat the Directory knows about.
type AggregateMetrics struct {
	TotalChats            int   `json:"total_chats"`
	TotalPromptTokens     int64 `json:"total_prompt_tokens"`
	TotalCompletionTokens int64 `json:"total_completion_tokens"`
	TotalCostMicros       int64 `json:"total_cost_micros"`
}

// ChatMetrics is one chat's entry in the GET /metrics/perf/chats response.
type ChatMetrics struct {
	ChatID           string `json:"chat_id"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	CostMicros       int64  `json:"cost_micros"`
	Finalized        bool   `json:"finalized"`
}

// ArtifactResponse is the GET /api/artifacts/{id} metadata response.
type ArtifactResponse struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size"`
}
