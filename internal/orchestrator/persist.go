package orchestrator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/flowlane/flowlane/internal/dispatch"
	"github.com/flowlane/flowlane/internal/runlog"
	"github.com/flowlane/flowlane/internal/transport"
)

// persistSink adapts a runlog.Store to dispatch.PersistenceSink. It reads
// Seq/Hidden/Type off the same transport.OutboundEvent the orchestrator
// already attached as dispatch.Event.Data for the Transport leg — one Event
// value services both sinks, so persisted Seq and wire Seq never diverge.
// Grounded on internal/sessions/memory.go's append-record idiom, narrowed to
// runlog's four-operation Store contract.
type persistSink struct {
	store    runlog.Store
	tenantID string
	logger   *slog.Logger
}

func newPersistSink(store runlog.Store, tenantID string, logger *slog.Logger) *persistSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &persistSink{store: store, tenantID: tenantID, logger: logger}
}

// NewPersistenceSink exports newPersistSink for callers outside this
// package (cmd/runtimed wires one dispatch.PersistenceSink per session,
// since a session belongs to exactly one tenant).
func NewPersistenceSink(store runlog.Store, tenantID string, logger *slog.Logger) dispatch.PersistenceSink {
	return newPersistSink(store, tenantID, logger)
}

func (p *persistSink) Persist(ctx context.Context, e dispatch.Event) {
	oe, ok := e.Data.(transport.OutboundEvent)
	if !ok {
		p.logger.Error("persist sink received non-OutboundEvent payload", "chat_id", e.ChatID)
		return
	}
	data, err := json.Marshal(oe.Data)
	if err != nil {
		p.logger.Error("failed to marshal event data for persistence", "error", err, "chat_id", e.ChatID)
		return
	}
	err = p.store.Append(ctx, runlog.Event{
		TenantID:  p.tenantID,
		ChatID:    e.ChatID,
		Seq:       oe.Seq,
		Type:      string(oe.Type),
		Data:      data,
		Hidden:    oe.Hidden,
		CreatedAt: time.Now(),
	})
	if err != nil {
		p.logger.Error("failed to append event", "error", err, "chat_id", e.ChatID, "seq", oe.Seq)
	}
}
