// Package runlog implements the Persistence Layer (C4): an append-only,
// tenant-namespaced event log, incremental and final usage accounting, and
// conversation-state blob storage for crash recovery.
package runlog

import (
	"encoding/json"
	"time"
)

// Event is one persisted record in a session's append-only log. Seq is
// assigned by C6's Transport, not by the persistence layer — runlog only
// stores whatever Seq it's given and enforces that Seq is monotonically
// increasing per (TenantID, ChatID) at Append time.
type Event struct {
	TenantID  string
	ChatID    string
	Seq       uint64
	Type      string
	Data      json.RawMessage
	Hidden    bool
	CreatedAt time.Time
}

// UsageDelta is one incremental token/cost accounting record, emitted as the
// conversation progresses (e.g. after each LLM call).
type UsageDelta struct {
	TenantID         string
	ChatID           string
	Agent            string
	PromptTokens     int64
	CompletionTokens int64
	CostMicros       int64
	RecordedAt       time.Time
}

// UsageSummary is the final, authoritative accounting record for a completed
// run — the sum of its deltas, persisted once at run completion so billing
// can read one row instead of re-summing the delta log.
type UsageSummary struct {
	TenantID         string
	ChatID           string
	PromptTokens     int64
	CompletionTokens int64
	CostMicros       int64
	FinalizedAt      time.Time
}

// ConversationState is the opaque, versioned blob a session's full runtime
// state (Context Store snapshot, agent state, handoff stack) is serialized
// into for crash recovery. The persistence layer treats Blob as opaque; C9
// Resume owns its schema.
type ConversationState struct {
	TenantID  string
	ChatID    string
	Blob      json.RawMessage
	UpdatedAt time.Time
}
