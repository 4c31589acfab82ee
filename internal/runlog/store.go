package runlog

import (
	"context"
	"errors"
)

var (
	// ErrSeqOutOfOrder is returned by Append when the caller tries to write
	// a Seq that is not strictly greater than the chat's last persisted Seq.
	// Gaps are expected and allowed: C8 assigns one Seq per emitted event
	// from a single session-wide counter, but ui_tool-classified events are
	// transported without ever reaching Persist, so the persisted sequence
	// legitimately skips those values. C9 Resume's replay-by-Seq-range
	// still holds under gaps — it only needs "greater than", never "next".
	ErrSeqOutOfOrder = errors.New("sequence number out of order")

	// ErrNotFound mirrors internal/storage/interfaces.go's sentinel for a
	// missing conversation-state blob or usage summary.
	ErrNotFound = errors.New("not found")
)

// Store is the Persistence Layer's contract: an append-only event log, usage
// accounting, and conversation-state blob storage, all namespaced by tenant.
type Store interface {
	// Append writes one event to the chat's log. Returns ErrSeqOutOfOrder if
	// event.Seq is not strictly greater than highestSeq for this
	// (TenantID, ChatID); gaps above highestSeq are accepted.
	Append(ctx context.Context, event Event) error

	// Replay returns every event for (tenantID, chatID) with Seq > afterSeq,
	// in ascending Seq order, for C9's resume replay.
	Replay(ctx context.Context, tenantID, chatID string, afterSeq uint64) ([]Event, error)

	// HighestSeq returns the highest Seq persisted for (tenantID, chatID),
	// or 0 if the chat has no events yet.
	HighestSeq(ctx context.Context, tenantID, chatID string) (uint64, error)

	// RecordUsageDelta appends one incremental usage record.
	RecordUsageDelta(ctx context.Context, delta UsageDelta) error

	// FinalizeUsage writes the authoritative usage summary for a completed
	// run, replacing any prior summary for the same (tenantID, chatID).
	FinalizeUsage(ctx context.Context, summary UsageSummary) error

	// UsageSummaryFor returns the finalized usage summary, or ErrNotFound if
	// the run has not been finalized yet.
	UsageSummaryFor(ctx context.Context, tenantID, chatID string) (UsageSummary, error)

	// SaveState upserts the conversation-state blob for (tenantID, chatID).
	SaveState(ctx context.Context, state ConversationState) error

	// LoadState returns the conversation-state blob, or ErrNotFound if none
	// has been saved yet.
	LoadState(ctx context.Context, tenantID, chatID string) (ConversationState, error)
}
