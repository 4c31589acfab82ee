package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/flowlane/flowlane/internal/dispatch"
	"github.com/flowlane/flowlane/internal/ratelimit"
)

// inboundRateLimit bounds how fast a single chat_id's client can push
// messages in (spec.md §5's resource model, §7.3's RATE_LIMIT_EXCEEDED error
// code): generous enough for normal input_request/UI-tool/resume traffic,
// tight enough to stop a misbehaving or malicious client from flooding a
// session's Dispatcher.
var inboundRateLimit = ratelimit.Config{RequestsPerSecond: 20, BurstSize: 40, Enabled: true}

// preConnectBufferBound is the configurable N from spec.md §4.6: the number
// of events queued for a chat_id before any connection exists.
const preConnectBufferBound = 128

// OutboundEvent is the richer event shape the Dispatcher's TransportSink leg
// carries for a chat_id: enough for the Hub to run visibility filtering and
// envelope construction. Orchestrator-produced events (C8) populate this as
// dispatch.Event.Data for runtime and ui_tool classified events.
type OutboundEvent struct {
	Type   OutboundType
	Data   any
	Agent  string
	Hidden bool
	Corr   string

	// Seq, when non-zero, is used as the envelope's sequence number directly
	// instead of drawing the next value from the chat's internal counter.
	// The Orchestrator (C8) sets this so a persisted runlog.Event and its
	// corresponding client envelope share exactly one seq number — see
	// DESIGN.md's C8 section for why seq authority lives there rather than
	// in the Hub for live (non-resume) traffic.
	Seq uint64
}

// Coordinator receives inbound messages Transport routes to it: client
// responses to pending input requests and UI-tool invocations (C7).
type Coordinator interface {
	HandleUserInputSubmit(ctx context.Context, msg UserInputSubmit)
	HandleInlineComponentResult(ctx context.Context, msg InlineComponentResult)
	HandleArtifactPatch(ctx context.Context, msg ArtifactPatch)
}

// ResumeCoordinator receives client.resume messages (C9).
type ResumeCoordinator interface {
	HandleClientResume(ctx context.Context, chatID string, lastClientSeq uint64)
}

type chatState struct {
	mu     sync.Mutex
	conn   *Connection
	seq    seqCounter
	filter *VisibilityFilter
	buffer []Envelope
}

// Hub is the per-runtime registry of transport state keyed by chat_id: the
// active Connection (if any), the sequence counter, the visibility filter,
// and the pre-connect buffer.
type Hub struct {
	mu                sync.RWMutex
	chats             map[string]*chatState
	logger            *slog.Logger
	coordinator       Coordinator
	resumeCoordinator ResumeCoordinator
	dispatchers       *dispatch.Registry
	limiter           *ratelimit.Limiter
}

// NewHub builds an empty Hub. coordinator and resumeCoordinator may be set
// later via SetCoordinators if C7/C9 aren't constructed yet at Hub creation
// time (they both depend on the Hub to emit acks/replays).
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		chats:   make(map[string]*chatState),
		logger:  logger,
		limiter: ratelimit.NewLimiter(inboundRateLimit),
	}
}

// SetCoordinators wires the Coordinator and ResumeCoordinator once they
// exist. Must be called before any inbound message arrives.
func (h *Hub) SetCoordinators(coordinator Coordinator, resumeCoordinator ResumeCoordinator) {
	h.coordinator = coordinator
	h.resumeCoordinator = resumeCoordinator
}

// SetDispatchers wires the chat_id -> Dispatcher registry so the Hub's own
// inbound schema-validation errors can be routed through the owning
// session's Dispatcher (the chat_id's single seq authority and persistence
// path) instead of assigning a seq from the Hub's local counter. Left
// unset, sendError falls back to sending directly, e.g. in tests that
// exercise handleInbound without a running session.
func (h *Hub) SetDispatchers(registry *dispatch.Registry) {
	h.dispatchers = registry
}

func (h *Hub) stateFor(chatID string, visualAgents, autoToolAgents []string) *chatState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.chats[chatID]
	if !ok {
		st = &chatState{filter: NewVisibilityFilter(visualAgents, autoToolAgents)}
		h.chats[chatID] = st
	}
	return st
}

// EnsureChat registers a chat_id's visibility configuration ahead of any
// connection or event, so OrchestratorStart can call this right after
// loading the WorkflowConfig.
func (h *Hub) EnsureChat(chatID string, visualAgents, autoToolAgents []string) {
	h.stateFor(chatID, visualAgents, autoToolAgents)
}

// Register attaches an upgraded connection to chatID, superseding any prior
// connection, and flushes the pre-connect buffer in order.
func (h *Hub) Register(ctx context.Context, chatID string, wsConn *websocket.Conn) *Connection {
	st := h.stateFor(chatID, nil, nil)

	conn := NewConnection(chatID, wsConn, h.logger, func() {
		st.mu.Lock()
		if st.conn != nil {
			st.conn = nil
		}
		st.mu.Unlock()
	})
	conn.setInboundHandler(func(raw []byte) {
		h.handleInbound(ctx, chatID, raw)
	})

	st.mu.Lock()
	if st.conn != nil {
		st.conn.Close()
	}
	st.conn = conn
	buffered := st.buffer
	st.buffer = nil
	st.mu.Unlock()

	for _, env := range buffered {
		h.write(conn, env)
	}

	return conn
}

// Send runs visibility filtering, assigns a sequence number, and either
// writes immediately (a connection is attached) or buffers (none is, up to
// preConnectBufferBound — beyond that, the oldest buffered event is dropped
// and logged, since an unbounded queue would defeat the bound's purpose).
func (h *Hub) Send(ctx context.Context, chatID string, oe OutboundEvent) {
	st := h.stateFor(chatID, nil, nil)

	e := Envelope{Type: oe.Type, Data: oe.Data, ChatID: chatID, Corr: oe.Corr, Agent: oe.Agent, Hidden: oe.Hidden}

	var toSend []Envelope
	if oe.Type == TypeToolCall {
		toSend = st.filter.ApplyToolCall(e)
	} else {
		toSend = st.filter.Apply(e)
	}

	for _, env := range toSend {
		st.mu.Lock()
		if oe.Seq != 0 {
			env.Seq = oe.Seq
		} else {
			env.Seq = st.seq.next()
		}
		conn := st.conn
		if conn == nil {
			st.buffer = append(st.buffer, env)
			if len(st.buffer) > preConnectBufferBound {
				dropped := st.buffer[0]
				st.buffer = st.buffer[1:]
				h.logger.Warn("pre-connect buffer overflow, dropping oldest event",
					"chat_id", chatID, "dropped_type", dropped.Type, "dropped_seq", dropped.Seq)
			}
		}
		st.mu.Unlock()

		if conn != nil {
			h.write(conn, env)
		}
	}
}

// SendResumeBoundary emits chat.resume_boundary and resets the sequence
// counter, per spec.md §4.9 steps 4-5.
func (h *Hub) SendResumeBoundary(ctx context.Context, chatID string) {
	st := h.stateFor(chatID, nil, nil)

	st.mu.Lock()
	env := Envelope{Type: TypeResumeBoundary, ChatID: chatID, Seq: st.seq.next()}
	conn := st.conn
	st.mu.Unlock()

	if conn != nil {
		h.write(conn, env)
	}

	st.mu.Lock()
	st.seq.reset()
	st.mu.Unlock()
}

// Replay streams previously persisted envelopes marked replay=true, in
// order, ahead of resetting the sequence counter (used by C9 before it
// calls SendResumeBoundary).
func (h *Hub) Replay(ctx context.Context, chatID string, events []Envelope) {
	st := h.stateFor(chatID, nil, nil)
	st.mu.Lock()
	conn := st.conn
	st.mu.Unlock()
	if conn == nil {
		return
	}
	for _, env := range events {
		env.Replay = true
		h.write(conn, env)
	}
}

func (h *Hub) write(conn *Connection, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to marshal outbound envelope", "error", err, "chat_id", env.ChatID)
		return
	}
	conn.Enqueue(data)
}

// Transport implements dispatch.TransportSink: the Dispatcher calls this for
// runtime and ui_tool classified events. e.Data is expected to be an
// OutboundEvent; anything else is logged and dropped, since the Hub has no
// way to recover Agent/Hidden/Type information otherwise.
func (h *Hub) Transport(ctx context.Context, e dispatch.Event) {
	oe, ok := e.Data.(OutboundEvent)
	if !ok {
		h.logger.Error("transport received non-OutboundEvent payload", "chat_id", e.ChatID)
		return
	}
	if oe.Corr == "" {
		oe.Corr = e.Corr
	}
	h.Send(ctx, e.ChatID, oe)
}

var _ dispatch.TransportSink = (*Hub)(nil)

func (h *Hub) handleInbound(ctx context.Context, chatID string, raw []byte) {
	if h.limiter != nil && !h.limiter.Allow(chatID) {
		h.sendError(ctx, chatID, ErrRateLimitExceeded, "too many inbound messages", true)
		return
	}

	typ, err := ValidateInbound(raw)
	if err != nil {
		h.sendError(ctx, chatID, ErrSchemaValidationFailed, err.Error(), true)
		return
	}

	switch typ {
	case InboundUserInputSubmit:
		var msg UserInputSubmit
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(ctx, chatID, ErrSchemaValidationFailed, err.Error(), true)
			return
		}
		if h.coordinator != nil {
			h.coordinator.HandleUserInputSubmit(ctx, msg)
		}
	case InboundInlineComponent:
		var msg InlineComponentResult
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(ctx, chatID, ErrSchemaValidationFailed, err.Error(), true)
			return
		}
		if h.coordinator != nil {
			h.coordinator.HandleInlineComponentResult(ctx, msg)
		}
	case InboundArtifactPatch:
		var msg ArtifactPatch
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(ctx, chatID, ErrSchemaValidationFailed, err.Error(), true)
			return
		}
		if h.coordinator != nil {
			h.coordinator.HandleArtifactPatch(ctx, msg)
		}
	case InboundClientResume:
		var msg ClientResume
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(ctx, chatID, ErrSchemaValidationFailed, err.Error(), true)
			return
		}
		if h.resumeCoordinator != nil {
			h.resumeCoordinator.HandleClientResume(ctx, chatID, msg.LastClientIndex)
		}
	}
}

func (h *Hub) sendError(ctx context.Context, chatID string, code ErrorCode, message string, recoverable bool) {
	oe := OutboundEvent{
		Type: TypeError,
		Data: ErrorData{Message: message, ErrorCode: code, Recoverable: recoverable},
	}

	if h.dispatchers != nil {
		if d, ok := h.dispatchers.Get(chatID); ok {
			oe.Seq = d.NextSeq(chatID)
			d.Dispatch(ctx, dispatch.Event{ChatID: chatID, Type: "error", Data: oe}, false)
			return
		}
	}

	h.Send(ctx, chatID, oe)
}

// Unregister forcibly drops the connection for chatID (used on session
// cancellation, spec.md §5).
func (h *Hub) Unregister(chatID string) {
	h.mu.RLock()
	st, ok := h.chats[chatID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	st.mu.Lock()
	conn := st.conn
	st.conn = nil
	st.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
