// Package coordinator implements the Input/UI-Tool Coordinator (C7): the
// rendezvous point between engine-issued input/tool requests and the
// client's eventual response, or a deadline expiring first.
package coordinator

import (
	"errors"
	"time"

	"github.com/flowlane/flowlane/internal/ctxstore"
)

// State is a pending record's position in its state machine:
//
//	[pending] --client reply--> [resolved]
//	          --deadline--> [timed_out]
//	          --session fail--> [aborted]
type State int

const (
	StatePending State = iota
	StateResolved
	StateTimedOut
	StateAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed_out"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ErrNotPending is returned when a caller tries to resolve, time out, or
// abort a request_id that either never existed or already left [pending].
var ErrNotPending = errors.New("coordinator: request is not pending")

// TimeoutSentinel is the fixed string the engine's respond_callback
// receives when a request's deadline elapses with no client response
// (spec.md §4.7).
const TimeoutSentinel = "[TIMEOUT]"

// RespondFunc is the engine-supplied callable that resumes the agent once
// a response (or the timeout sentinel) is available.
type RespondFunc func(response string)

// ContextSetter lets the Coordinator push ui_response-triggered context
// variable values before resolving a UI tool's callback (spec.md §4.7: "if
// a tool declared context-variable triggers of kind ui_response, Coordinator
// calls ContextStore.set with the extracted values before resolving the
// callback"). Satisfied directly by C2's *ctxstore.Store: OnUIResponse both
// extracts and writes the matching variables in one call.
type ContextSetter interface {
	OnUIResponse(evt ctxstore.UIResponseEvent) []string
}

// Emitter delivers the Coordinator's lifecycle events to Transport. Corr is
// always the request_id or tool_call_id the event concerns.
type Emitter interface {
	EmitInputAck(chatID, corr string)
	EmitInputTimeout(chatID, corr string, timeoutSeconds int)
	EmitInputRequestNotFound(chatID, corr string)
}

// pendingRecord is one request_id or tool_call_id awaiting a response.
type pendingRecord struct {
	requestID string
	chatID    string
	respond   RespondFunc
	deadline  time.Time
	isUITool  bool
	toolName  string
	state     State
	timer     *time.Timer
}
