package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowlane/flowlane/internal/canvas"
	"github.com/flowlane/flowlane/internal/ctxstore"
	"github.com/flowlane/flowlane/internal/transport"
)

// Coordinator is the C7 Input/UI-Tool Coordinator: it holds one pending
// record per in-flight request_id/tool_call_id and resolves, times out, or
// aborts it exactly once.
type Coordinator struct {
	mu       sync.Mutex
	pending  map[string]*pendingRecord
	emitter  Emitter
	ctxStore ContextSetter
	mirror   RemoteMirror
	canvas   ArtifactCanvas
}

// RemoteMirror optionally mirrors pending-record metadata to a shared store
// so other nodes (and operators) can observe in-flight requests across a
// multi-instance deployment. It never holds the respond_callback itself —
// that closure is only ever invoked on the node that registered it.
type RemoteMirror interface {
	Put(ctx context.Context, requestID, chatID, toolName string, ttl time.Duration) error
	Delete(ctx context.Context, requestID string) error
}

// ArtifactCanvas optionally persists display=artifact UI tool state
// (internal/canvas.Manager implements this), so a client joining or
// resuming a chat can fetch the artifact's current rendered state instead
// of only replaying the raw patch event stream from scratch.
type ArtifactCanvas interface {
	Push(ctx context.Context, sessionID string, payload json.RawMessage) (*canvas.StreamMessage, error)
}

// New builds a Coordinator. mirror may be nil (single-node deployments).
func New(emitter Emitter, ctxStore ContextSetter, mirror RemoteMirror) *Coordinator {
	return &Coordinator{
		pending:  make(map[string]*pendingRecord),
		emitter:  emitter,
		ctxStore: ctxStore,
		mirror:   mirror,
	}
}

// SetArtifactCanvas wires an ArtifactCanvas backend for HandleArtifactPatch.
// Nil (the default) skips canvas persistence entirely -- patches still
// resolve their pending UI tool call either way.
func (c *Coordinator) SetArtifactCanvas(canvas ArtifactCanvas) {
	c.canvas = canvas
}

// NewRequestID allocates an opaque request_id/tool_call_id.
func NewRequestID() string {
	return uuid.NewString()
}

// RegisterInputRequest stores a pending record for an engine-issued
// InputRequest (spec.md §4.7 steps 1-2) and arms its deadline timer.
func (c *Coordinator) RegisterInputRequest(ctx context.Context, chatID, requestID string, deadline time.Duration, respond RespondFunc) {
	c.register(ctx, chatID, requestID, "", deadline, respond, false)
}

// RegisterUIToolCall stores a pending record for a UI tool invocation,
// analogous to RegisterInputRequest with corr = tool_call_id.
func (c *Coordinator) RegisterUIToolCall(ctx context.Context, chatID, toolCallID, toolName string, deadline time.Duration, respond RespondFunc) {
	c.register(ctx, chatID, toolCallID, toolName, deadline, respond, true)
}

func (c *Coordinator) register(ctx context.Context, chatID, requestID, toolName string, deadline time.Duration, respond RespondFunc, isUITool bool) {
	rec := &pendingRecord{
		requestID: requestID,
		chatID:    chatID,
		respond:   respond,
		deadline:  time.Now().Add(deadline),
		isUITool:  isUITool,
		toolName:  toolName,
		state:     StatePending,
	}

	c.mu.Lock()
	c.pending[requestID] = rec
	rec.timer = time.AfterFunc(deadline, func() { c.timeout(requestID) })
	c.mu.Unlock()

	if c.mirror != nil {
		_ = c.mirror.Put(ctx, requestID, chatID, toolName, deadline)
	}
}

// HandleUserInputSubmit implements transport.Coordinator: a client replied
// to a pending input_request.
func (c *Coordinator) HandleUserInputSubmit(ctx context.Context, msg transport.UserInputSubmit) {
	rec, ok := c.resolve(msg.RequestID)
	if !ok {
		// Unknown or already-resolved request_id: a protocol violation per
		// spec.md §7.3 — reject with chat.error, the session continues.
		if c.emitter != nil {
			c.emitter.EmitInputRequestNotFound(msg.ChatID, msg.RequestID)
		}
		return
	}
	rec.respond(msg.Text)
	if c.emitter != nil {
		c.emitter.EmitInputAck(rec.chatID, rec.requestID)
	}
	c.unmirror(ctx, rec.requestID)
}

// HandleInlineComponentResult implements transport.Coordinator: a client
// resolved a UI tool's inline component. Per spec.md §4.7, if the tool
// declared ui_response context-variable triggers, those are applied to the
// Context Store before the engine's respond_callback is invoked.
func (c *Coordinator) HandleInlineComponentResult(ctx context.Context, msg transport.InlineComponentResult) {
	rec, ok := c.resolve(msg.Corr)
	if !ok {
		return
	}
	c.applyUIResponseTriggers(rec.toolName, msg.Data)
	rec.respond(encodeUIPayload(msg.Data))
	c.unmirror(ctx, rec.requestID)
}

// HandleArtifactPatch implements transport.Coordinator: a client submitted
// an artifact patch correlated to a pending UI tool call. When an
// ArtifactCanvas is wired, the patch is also persisted against the chat's
// canvas session before the pending tool call resolves, so the artifact's
// rendered state survives past this one response.
func (c *Coordinator) HandleArtifactPatch(ctx context.Context, msg transport.ArtifactPatch) {
	rec, ok := c.resolve(msg.Corr)
	if !ok {
		return
	}
	if c.canvas != nil {
		if payload, err := json.Marshal(msg.Patch); err == nil {
			_, _ = c.canvas.Push(ctx, msg.ChatID, payload)
		}
	}
	rec.respond(encodeUIPayload(map[string]any{"patch": msg.Patch}))
	c.unmirror(ctx, rec.requestID)
}

// Abort transitions every pending record for chatID to [aborted] without
// invoking respond — used on session cancellation (spec.md §5).
func (c *Coordinator) Abort(chatID string) {
	c.mu.Lock()
	var toAbort []*pendingRecord
	for _, rec := range c.pending {
		if rec.chatID == chatID && rec.state == StatePending {
			rec.state = StateAborted
			rec.timer.Stop()
			toAbort = append(toAbort, rec)
			delete(c.pending, rec.requestID)
		}
	}
	c.mu.Unlock()

	for _, rec := range toAbort {
		c.unmirror(context.Background(), rec.requestID)
	}
}

func (c *Coordinator) resolve(requestID string) (*pendingRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.pending[requestID]
	if !ok || rec.state != StatePending {
		return nil, false
	}
	rec.timer.Stop()
	rec.state = StateResolved
	delete(c.pending, requestID)
	return rec, true
}

func (c *Coordinator) timeout(requestID string) {
	c.mu.Lock()
	rec, ok := c.pending[requestID]
	if !ok || rec.state != StatePending {
		c.mu.Unlock()
		return
	}
	rec.state = StateTimedOut
	delete(c.pending, requestID)
	c.mu.Unlock()

	rec.respond(TimeoutSentinel)
	if c.emitter != nil {
		c.emitter.EmitInputTimeout(rec.chatID, rec.requestID, 0)
	}
	c.unmirror(context.Background(), rec.requestID)
}

// StateOf reports a request_id's current state; returns false if it was
// never registered.
func (c *Coordinator) StateOf(requestID string) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.pending[requestID]
	if !ok {
		return 0, false
	}
	return rec.state, true
}

func (c *Coordinator) unmirror(ctx context.Context, requestID string) {
	if c.mirror != nil {
		_ = c.mirror.Delete(ctx, requestID)
	}
}

func (c *Coordinator) applyUIResponseTriggers(toolName string, data map[string]any) {
	if c.ctxStore == nil || toolName == "" {
		return
	}
	c.ctxStore.OnUIResponse(ctxstore.UIResponseEvent{Tool: toolName, Response: data})
}

func encodeUIPayload(data map[string]any) string {
	// The engine's tool-return slot expects a string payload; callers that
	// need structured access can type-assert back via their own schema.
	// A simple flattening is enough here since C8 owns how this is consumed.
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(b)
}
