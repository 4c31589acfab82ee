package runlog

import (
	"context"
	"sync"
)

type chatKey struct {
	tenantID string
	chatID   string
}

// MemoryStore is an in-memory Store implementation for testing and local
// runs, grounded on internal/sessions/memory.go's mutex-protected,
// clone-on-read pattern.
type MemoryStore struct {
	mu      sync.RWMutex
	events  map[chatKey][]Event
	deltas  map[chatKey][]UsageDelta
	summary map[chatKey]UsageSummary
	state   map[chatKey]ConversationState
}

// NewMemoryStore creates a new in-memory persistence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  map[chatKey][]Event{},
		deltas:  map[chatKey][]UsageDelta{},
		summary: map[chatKey]UsageSummary{},
		state:   map[chatKey]ConversationState{},
	}
}

func key(tenantID, chatID string) chatKey {
	return chatKey{tenantID: tenantID, chatID: chatID}
}

func (m *MemoryStore) Append(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(event.TenantID, event.ChatID)
	existing := m.events[k]
	var highest uint64
	if len(existing) > 0 {
		highest = existing[len(existing)-1].Seq
	}
	if event.Seq <= highest {
		return ErrSeqOutOfOrder
	}
	m.events[k] = append(existing, event)
	return nil
}

func (m *MemoryStore) Replay(ctx context.Context, tenantID, chatID string, afterSeq uint64) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, e := range m.events[key(tenantID, chatID)] {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) HighestSeq(ctx context.Context, tenantID, chatID string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := m.events[key(tenantID, chatID)]
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].Seq, nil
}

func (m *MemoryStore) RecordUsageDelta(ctx context.Context, delta UsageDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key(delta.TenantID, delta.ChatID)
	m.deltas[k] = append(m.deltas[k], delta)
	return nil
}

func (m *MemoryStore) FinalizeUsage(ctx context.Context, summary UsageSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.summary[key(summary.TenantID, summary.ChatID)] = summary
	return nil
}

func (m *MemoryStore) UsageSummaryFor(ctx context.Context, tenantID, chatID string) (UsageSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.summary[key(tenantID, chatID)]
	if !ok {
		return UsageSummary{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) SaveState(ctx context.Context, state ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state[key(state.TenantID, state.ChatID)] = state
	return nil
}

func (m *MemoryStore) LoadState(ctx context.Context, tenantID, chatID string) (ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.state[key(tenantID, chatID)]
	if !ok {
		return ConversationState{}, ErrNotFound
	}
	return s, nil
}
