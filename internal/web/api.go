package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowlane/flowlane/internal/runlog"
)

// maxAPIRequestBodyBytes bounds a POST .../start body, matching the
// teacher's api.go cap against an oversized or runaway client payload. A
// var, not a const, so tests can shrink it temporarily.
var maxAPIRequestBodyBytes int64 = 1 << 20

func decodeJSONRequest(w http.ResponseWriter, r *http.Request, dst any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAPIRequestBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, err
		}
		return http.StatusBadRequest, err
	}
	return 0, nil
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.config.Logger.Error("json encode error", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.config.Logger.Error("json encode error", "error", err)
	}
}

// apiChats routes POST .../start and GET .../{tenant}/{workflow} — both
// live under the same /api/chats/ prefix once the exists/meta sub-prefixes
// are excluded by ServeMux's longest-match rule.
func (h *Handler) apiChats(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/chats/"))

	switch {
	case len(parts) == 3 && parts[2] == "start" && r.Method == http.MethodPost:
		h.apiChatStart(w, r, parts[0], parts[1])
	case len(parts) == 2 && r.Method == http.MethodGet:
		h.apiChatList(w, r, parts[0], parts[1])
	default:
		h.jsonError(w, "not found", http.StatusNotFound)
	}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func (h *Handler) apiChatStart(w http.ResponseWriter, r *http.Request, tenantID, workflowID string) {
	var req ChatStartRequest
	if r.ContentLength != 0 {
		if status, err := decodeJSONRequest(w, r, &req); err != nil {
			h.jsonError(w, err.Error(), status)
			return
		}
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}
	cacheSeed := req.CacheSeed
	if cacheSeed == "" {
		cacheSeed = uuid.NewString()
	}

	if _, exists := h.config.Directory.Get(chatID); !exists {
		h.config.Directory.Register(ChatRecord{
			TenantID:   tenantID,
			WorkflowID: workflowID,
			ChatID:     chatID,
			CacheSeed:  cacheSeed,
			CreatedAt:  time.Now(),
		})

		if h.config.Starter != nil {
			if err := h.config.Starter.StartSession(r.Context(), tenantID, workflowID, chatID, cacheSeed); err != nil {
				h.config.Logger.Error("failed to start session", "error", err, "tenant_id", tenantID, "workflow_id", workflowID, "chat_id", chatID)
				h.jsonError(w, "failed to start session", http.StatusInternalServerError)
				return
			}
		}
	}

	h.jsonResponse(w, ChatStartResponse{ChatID: chatID, CacheSeed: cacheSeed})
}

func (h *Handler) apiChatList(w http.ResponseWriter, r *http.Request, tenantID, workflowID string) {
	records := h.config.Directory.List(tenantID, workflowID)
	chats := make([]ChatSummary, 0, len(records))
	for _, rec := range records {
		chats = append(chats, ChatSummary{ChatID: rec.ChatID, CreatedAt: rec.CreatedAt})
	}
	h.jsonResponse(w, ChatListResponse{Chats: chats, Total: len(chats)})
}

func (h *Handler) apiChatExists(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/chats/exists/"))
	if len(parts) != 3 {
		h.jsonError(w, "expected /api/chats/exists/{tenant}/{workflow}/{chat_id}", http.StatusBadRequest)
		return
	}
	tenantID, workflowID, chatID := parts[0], parts[1], parts[2]

	rec, ok := h.config.Directory.Get(chatID)
	exists := ok && rec.TenantID == tenantID && rec.WorkflowID == workflowID
	h.jsonResponse(w, ChatExistsResponse{Exists: exists})
}

func (h *Handler) apiChatMeta(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/chats/meta/"))
	if len(parts) != 3 {
		h.jsonError(w, "expected /api/chats/meta/{tenant}/{workflow}/{chat_id}", http.StatusBadRequest)
		return
	}
	tenantID, workflowID, chatID := parts[0], parts[1], parts[2]

	rec, ok := h.config.Directory.Get(chatID)
	if !ok || rec.TenantID != tenantID || rec.WorkflowID != workflowID {
		h.jsonError(w, "chat not found", http.StatusNotFound)
		return
	}

	ctx := r.Context()
	resp := ChatMetaResponse{ChatRecord: rec}
	if h.config.Store != nil {
		if seq, err := h.config.Store.HighestSeq(ctx, tenantID, chatID); err == nil {
			resp.HighestSeq = seq
		}
		if _, err := h.config.Store.UsageSummaryFor(ctx, tenantID, chatID); err == nil {
			resp.HasUsage = true
		}
		if _, err := h.config.Store.LoadState(ctx, tenantID, chatID); err == nil {
			resp.HasState = true
		}
	}
	h.jsonResponse(w, resp)
}

// apiHealth pings the Persistence Layer the same cheap way a health check
// pings a database connection pool: a read against a namespace that need
// not exist. A MemoryStore always answers; a PostgresStore surfaces a
// connectivity failure here as store_status="unreachable".
func (h *Handler) apiHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	storeStatus := "unconfigured"
	if h.config.Store != nil {
		storeStatus = "ok"
		if _, err := h.config.Store.HighestSeq(r.Context(), "__health__", "__health__"); err != nil && !errors.Is(err, runlog.ErrNotFound) {
			storeStatus = "unreachable"
		}
	}

	h.jsonResponse(w, HealthResponse{
		Status:      "ok",
		StoreStatus: storeStatus,
		Uptime:      time.Since(h.config.ServerStartTime).String(),
		ActiveChats: len(h.config.Directory.All()),
	})
}

func (h *Handler) apiMetricsAggregate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var agg AggregateMetrics
	records := h.config.Directory.All()
	agg.TotalChats = len(records)
	if h.config.Store != nil {
		ctx := r.Context()
		for _, rec := range records {
			summary, err := h.config.Store.UsageSummaryFor(ctx, rec.TenantID, rec.ChatID)
			if err != nil {
				continue
			}
			agg.TotalPromptTokens += summary.PromptTokens
			agg.TotalCompletionTokens += summary.CompletionTokens
			agg.TotalCostMicros += summary.CostMicros
		}
	}
	h.jsonResponse(w, agg)
}

func (h *Handler) apiMetricsChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	chatID := strings.TrimPrefix(r.URL.Path, "/metrics/perf/chats")
	chatID = strings.Trim(chatID, "/")

	if chatID != "" {
		h.oneChatMetrics(w, r.Context(), chatID)
		return
	}

	records := h.config.Directory.All()
	out := make([]ChatMetrics, 0, len(records))
	for _, rec := range records {
		out = append(out, h.chatMetricsFor(r.Context(), rec.TenantID, rec.ChatID))
	}
	h.jsonResponse(w, out)
}

func (h *Handler) oneChatMetrics(w http.ResponseWriter, ctx context.Context, chatID string) {
	rec, ok := h.config.Directory.Get(chatID)
	if !ok {
		h.jsonError(w, "chat not found", http.StatusNotFound)
		return
	}
	h.jsonResponse(w, h.chatMetricsFor(ctx, rec.TenantID, chatID))
}

func (h *Handler) chatMetricsFor(ctx context.Context, tenantID, chatID string) ChatMetrics {
	m := ChatMetrics{ChatID: chatID}
	if h.config.Store == nil {
		return m
	}
	summary, err := h.config.Store.UsageSummaryFor(ctx, tenantID, chatID)
	if err != nil {
		return m
	}
	m.PromptTokens = summary.PromptTokens
	m.CompletionTokens = summary.CompletionTokens
	m.CostMicros = summary.CostMicros
	m.Finalized = true
	return m
}
