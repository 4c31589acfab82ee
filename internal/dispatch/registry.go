package dispatch

import "sync"

// Registry maps a chat_id to its session-scoped Dispatcher. The Dispatcher
// itself is built fresh per chat session (its Persistence leg binds one
// tenant_id), so anything outside the owning Orchestrator that still needs
// to emit onto a chat_id -- the Coordinator's input_ack/input_timeout
// events, the Hub's own inbound schema-validation errors -- has to look up
// the same Dispatcher the Orchestrator is using rather than invent its own
// delivery path, or the chat_id ends up with two independent seq counters.
type Registry struct {
	mu     sync.RWMutex
	byChat map[string]*Dispatcher
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byChat: make(map[string]*Dispatcher)}
}

// Register associates chatID with d, called once the session's Dispatcher
// is built (session_starter.go, alongside Hub.EnsureChat).
func (r *Registry) Register(chatID string, d *Dispatcher) {
	r.mu.Lock()
	r.byChat[chatID] = d
	r.mu.Unlock()
}

// Unregister drops chatID's entry once its session ends.
func (r *Registry) Unregister(chatID string) {
	r.mu.Lock()
	delete(r.byChat, chatID)
	r.mu.Unlock()
}

// Get returns chatID's Dispatcher, if a session currently owns one.
func (r *Registry) Get(chatID string) (*Dispatcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byChat[chatID]
	return d, ok
}
