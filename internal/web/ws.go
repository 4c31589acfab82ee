package web

import (
	"net/http"
	"strings"

	"github.com/flowlane/flowlane/internal/transport"
)

// handleWebSocket upgrades spec.md §6.2's endpoint,
// /ws/{workflow}/{tenant}/{chat_id}/{user}, and hands the connection to the
// Transport Hub (C6). Hub.Register already supersedes any prior connection
// for the chat_id and flushes its pre-connect buffer, so this handler's
// only job is the upgrade and running the connection's pumps.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/ws/"))
	if len(parts) != 4 {
		h.jsonError(w, "expected /ws/{workflow}/{tenant}/{chat_id}/{user}", http.StatusBadRequest)
		return
	}
	chatID := parts[2]

	if h.config.Hub == nil {
		h.jsonError(w, "transport not configured", http.StatusInternalServerError)
		return
	}

	upgrader := transport.Upgrader()
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.config.Logger.Error("websocket upgrade failed", "error", err, "chat_id", chatID)
		return
	}

	conn := h.config.Hub.Register(r.Context(), chatID, wsConn)
	conn.Run()
}
