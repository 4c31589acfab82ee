package observability

import (
	"context"

	"github.com/flowlane/flowlane/internal/dispatch"
)

// DispatchSink adapts an EventRecorder to dispatch.ObservabilitySink: every
// business-classified event the Unified Event Dispatcher (C5) routes here
// becomes one recorded observability.Event, keyed by the chat_id as
// SessionID so the existing GetBySessionID/Timeline machinery works
// unchanged against the new domain's chat sessions.
type DispatchSink struct {
	recorder *EventRecorder
}

// NewDispatchSink builds a DispatchSink over an EventRecorder.
func NewDispatchSink(recorder *EventRecorder) *DispatchSink {
	return &DispatchSink{recorder: recorder}
}

// Observe implements dispatch.ObservabilitySink.
func (s *DispatchSink) Observe(ctx context.Context, e dispatch.Event) {
	ctx = AddSessionID(ctx, e.ChatID)
	data := map[string]interface{}{"type": e.Type}
	if e.Corr != "" {
		data["corr"] = e.Corr
	}
	if err := s.recorder.Record(ctx, EventTypeCustom, e.Type, data); err != nil && s.recorder.logger != nil {
		s.recorder.logger.Error(ctx, "failed to record business event", "error", err, "chat_id", e.ChatID, "type", e.Type)
	}
}

var _ dispatch.ObservabilitySink = (*DispatchSink)(nil)
