package coordinator

import (
	"context"

	"github.com/flowlane/flowlane/internal/dispatch"
	"github.com/flowlane/flowlane/internal/transport"
)

// DispatchEmitter adapts a *dispatch.Registry to the Emitter interface,
// routing input_ack/input_timeout/schema-error events through the same
// chat_id's Dispatcher every other runtime event uses -- not Hub.Send
// directly -- so they get the chat's single seq authority (dispatch.
// Dispatcher.NextSeq) and reach PersistenceSink like any other runtime
// event, instead of racing a second, Hub-local seq counter and silently
// skipping persistence.
type DispatchEmitter struct {
	Registry *dispatch.Registry
}

func (e *DispatchEmitter) EmitInputAck(chatID, corr string) {
	e.dispatch(chatID, "input_ack", transport.OutboundEvent{
		Type: transport.TypeInputAck,
		Corr: corr,
		Data: struct {
			RequestID string `json:"request_id"`
		}{RequestID: corr},
	})
}

func (e *DispatchEmitter) EmitInputTimeout(chatID, corr string, timeoutSeconds int) {
	e.dispatch(chatID, "input_timeout", transport.OutboundEvent{
		Type: transport.TypeInputTimeout,
		Corr: corr,
		Data: struct {
			RequestID      string `json:"request_id"`
			TimeoutSeconds int    `json:"timeout_seconds"`
		}{RequestID: corr, TimeoutSeconds: timeoutSeconds},
	})
}

func (e *DispatchEmitter) EmitInputRequestNotFound(chatID, corr string) {
	e.dispatch(chatID, "error", transport.OutboundEvent{
		Type: transport.TypeError,
		Corr: corr,
		Data: transport.ErrorData{
			Message:     "no pending input request with that request_id",
			ErrorCode:   transport.ErrInputRequestNotFound,
			Recoverable: true,
		},
	})
}

// dispatch looks up chatID's session-scoped Dispatcher and submits the
// event through it with a seq drawn from that Dispatcher. A miss (the
// session ended between the Coordinator deciding to emit and this call)
// drops the event -- there's no live connection left to reach anyway.
func (e *DispatchEmitter) dispatch(chatID, class string, oe transport.OutboundEvent) {
	d, ok := e.Registry.Get(chatID)
	if !ok {
		return
	}
	oe.Seq = d.NextSeq(chatID)
	d.Dispatch(context.Background(), dispatch.Event{ChatID: chatID, Type: class, Corr: oe.Corr, Data: oe}, false)
}

var _ Emitter = (*DispatchEmitter)(nil)
