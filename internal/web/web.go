// Package web implements the chat session HTTP API (spec.md §6.1): session
// creation/listing/existence/metadata and platform/per-chat performance
// metrics. Grounded on the teacher's internal/web/api.go +
// handlers.go + middleware.go idiom: a Handler struct carrying its injected
// dependencies in a Config, manual path parsing instead of a router
// library, and jsonResponse/jsonError/decodeJSONRequest/clampQueryParam
// helpers — narrowed to a pure JSON API (the teacher's htmx page/partial
// rendering has no analogue here; this system has no dashboard UI).
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowlane/flowlane/internal/artifacts"
	"github.com/flowlane/flowlane/internal/auth"
	"github.com/flowlane/flowlane/internal/runlog"
	"github.com/flowlane/flowlane/internal/transport"
)

// SessionStarter begins a new orchestrator run for a chat, the way the
// teacher's web.Config.SessionStore lets handlers reach into a running
// system's state. Implemented by cmd/runtimed's wiring, which has the
// workflow loader, transport.Hub, and orchestrator.Orchestrator in scope;
// kept as an interface here so internal/web stays testable without a real
// LLM provider or manifest directory.
type SessionStarter interface {
	// StartSession loads the named workflow's manifest, registers the chat
	// with Transport (C6) and Resume (C9), and launches the orchestrator
	// run in the background. Returns once the session is registered, not
	// once it completes.
	StartSession(ctx context.Context, tenantID, workflowID, chatID, cacheSeed string) error
}

// Config holds the HTTP API's dependencies.
type Config struct {
	// Store is the Persistence Layer (C4): usage summaries and conversation
	// state backing /api/chats/meta and /metrics/perf.
	Store runlog.Store

	// Directory tracks chat metadata (tenant/workflow/chat_id/created_at)
	// the Store itself has no concept of — see directory.go.
	Directory *Directory

	// Hub is the Transport (C6) connection table, needed so the HTTP API
	// can upgrade the WebSocket endpoint (spec.md §6.2) and EnsureChat
	// ahead of session start.
	Hub *transport.Hub

	// Starter launches new orchestrator sessions on POST .../start.
	Starter SessionStarter

	// Logger for request and handler logging.
	Logger *slog.Logger

	// ServerStartTime for the uptime field in GET /api/health.
	ServerStartTime time.Time

	// Artifacts backs GET /api/artifacts/{id} and its data download. Nil
	// means no repository is configured; the routes then 404.
	Artifacts artifacts.Repository

	// Auth gates every route except /api/health behind bearer-JWT/API-key
	// validation (AuthMiddleware). Nil or a Service with no jwt_secret/
	// api_keys configured disables enforcement entirely.
	Auth *auth.Service
}

// Handler is the chat session HTTP API's http.Handler.
type Handler struct {
	config *Config
	mux    *http.ServeMux
}

// NewHandler builds a Handler and wires its routes.
func NewHandler(cfg *Config) *Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Directory == nil {
		cfg.Directory = NewDirectory()
	}
	if cfg.ServerStartTime.IsZero() {
		cfg.ServerStartTime = time.Now()
	}

	h := &Handler{config: cfg, mux: http.NewServeMux()}
	h.setupRoutes()
	return h
}

func (h *Handler) setupRoutes() {
	h.mux.HandleFunc("/api/health", h.apiHealth)
	h.mux.HandleFunc("/api/chats/exists/", h.apiChatExists)
	h.mux.HandleFunc("/api/chats/meta/", h.apiChatMeta)
	h.mux.HandleFunc("/api/chats/", h.apiChats)
	h.mux.HandleFunc("/metrics/perf/aggregate", h.apiMetricsAggregate)
	h.mux.HandleFunc("/metrics/perf/chats", h.apiMetricsChats)
	h.mux.HandleFunc("/metrics/perf/chats/", h.apiMetricsChats)
	h.mux.HandleFunc("/api/artifacts/", h.apiArtifact)
	h.mux.HandleFunc("/ws/", h.handleWebSocket)
	h.setupOAuthRoutes()
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount wraps the Handler with request-logging middleware, matching the
// teacher's Handler.Mount() convention of layering middleware onto the
// bare ServeHTTP.
func (h *Handler) Mount() http.Handler {
	return LoggingMiddleware(h.config.Logger)(AuthMiddleware(h.config.Auth)(h))
}
