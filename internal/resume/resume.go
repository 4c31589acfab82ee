// Package resume implements the Resume Coordinator (C9): on a new connection
// for an existing chat_id, it diffs persisted events against the client's
// last acknowledged sequence, replays the gap, and hands the chat back to
// live streaming.
//
// Grounded on internal/agent/tape's Recorder/Replayer idiom ("record a
// sequence of turns, later replay a suffix of them"), generalized from
// whole-conversation tape replay to per-chat_id seq-diff replay against C4's
// runlog.Store, and on internal/sessions/expiry.go for the
// stale-client-state rejection idiom (there: reset a session past its idle
// window; here: reject a last_client_seq past the server's high water mark).
package resume

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/flowlane/flowlane/internal/runlog"
	"github.com/flowlane/flowlane/internal/transport"
)

// Transport is the narrow slice of *transport.Hub's API the Resume
// Coordinator drives: streaming replayed envelopes, emitting the boundary
// marker that resets the live sequence counter, and reporting a stale-resume
// error. Kept as an interface (rather than depending on *transport.Hub
// directly) so tests can exercise HandleClientResume without a live
// WebSocket connection, the same way Deps.Asker/Deps.DBFetcher keep C8
// testable without a real LLM or database.
type Transport interface {
	Replay(ctx context.Context, chatID string, events []transport.Envelope)
	SendResumeBoundary(ctx context.Context, chatID string)
	Send(ctx context.Context, chatID string, oe transport.OutboundEvent)
}

// Coordinator implements transport.ResumeCoordinator over a runlog.Store and
// a Transport.
type Coordinator struct {
	store  runlog.Store
	hub    Transport
	logger *slog.Logger

	mu      sync.RWMutex
	tenants map[string]string // chat_id -> tenant_id
}

// New builds a Coordinator.
func New(store runlog.Store, hub Transport, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		hub:     hub,
		logger:  logger,
		tenants: make(map[string]string),
	}
}

// RegisterChat records which tenant a chat_id belongs to, so a later
// client.resume (which carries no tenant_id of its own, per spec.md §6.2's
// wire contract) can be resolved back to the right Persistence namespace.
// Callers register a chat at session start, alongside Hub.EnsureChat.
func (c *Coordinator) RegisterChat(tenantID, chatID string) {
	c.mu.Lock()
	c.tenants[chatID] = tenantID
	c.mu.Unlock()
}

// UnregisterChat drops a chat's tenant mapping once its session ends.
func (c *Coordinator) UnregisterChat(chatID string) {
	c.mu.Lock()
	delete(c.tenants, chatID)
	c.mu.Unlock()
}

func (c *Coordinator) tenantFor(chatID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tenants[chatID]
	return t, ok
}

// HandleClientResume implements transport.ResumeCoordinator: spec.md §4.9
// steps 1-5, plus the stale-seq rejection path.
func (c *Coordinator) HandleClientResume(ctx context.Context, chatID string, lastClientSeq uint64) {
	tenantID, ok := c.tenantFor(chatID)
	if !ok {
		c.logger.Warn("client.resume for unregistered chat", "chat_id", chatID)
		c.failResume(ctx, chatID)
		return
	}

	highest, err := c.store.HighestSeq(ctx, tenantID, chatID)
	if err != nil {
		c.logger.Error("resume: failed to read highest seq", "error", err, "chat_id", chatID)
		c.failResume(ctx, chatID)
		return
	}

	if lastClientSeq > highest {
		c.logger.Warn("client.resume with last_client_seq past server high water mark",
			"chat_id", chatID, "last_client_seq", lastClientSeq, "highest", highest)
		c.failResume(ctx, chatID)
		return
	}

	events, err := c.store.Replay(ctx, tenantID, chatID, lastClientSeq)
	if err != nil {
		c.logger.Error("resume: replay failed", "error", err, "chat_id", chatID)
		c.failResume(ctx, chatID)
		return
	}

	envelopes := make([]transport.Envelope, 0, len(events))
	for _, e := range events {
		if e.Hidden {
			continue
		}
		envelopes = append(envelopes, transport.Envelope{
			Type:   transport.OutboundType(e.Type),
			Data:   json.RawMessage(e.Data),
			Seq:    e.Seq,
			ChatID: chatID,
		})
	}

	c.hub.Replay(ctx, chatID, envelopes)
	c.hub.SendResumeBoundary(ctx, chatID)
}

// failResume emits chat.error with RESUME_FAILED and keeps the connection
// open, per spec.md §4.9's "client may re-handshake with last_client_seq = 0".
func (c *Coordinator) failResume(ctx context.Context, chatID string) {
	c.hub.Send(ctx, chatID, transport.OutboundEvent{
		Type: transport.TypeError,
		Data: transport.ErrorData{
			Message:     "last_client_seq exceeds the server's persisted history",
			ErrorCode:   transport.ErrResumeFailed,
			Recoverable: true,
		},
	})
}

var _ transport.ResumeCoordinator = (*Coordinator)(nil)
var _ Transport = (*transport.Hub)(nil)
