package transport

// VisibilityFilter applies spec.md §4.6's three ordered visibility filters
// to outbound envelopes for one chat_id:
//
//  1. Drop events whose Agent is not in the workflow's visual_agents allowlist.
//  2. Drop duplicate text events from agents with auto_tool_mode=true — such
//     an agent emits a tool call immediately after its text turn, and the
//     text is redundant once that tool call has been observed.
//  3. Drop any event marked Hidden.
type VisibilityFilter struct {
	visualAgents  map[string]bool
	autoToolAgent map[string]bool

	// pendingText holds, per agent, the most recent unconfirmed text event
	// awaiting either a following tool_call (drop it) or the next text event
	// / run boundary (flush it).
	pendingText map[string]*Envelope
}

// NewVisibilityFilter builds a filter for one session. visualAgents is the
// orchestrator's allowlist; autoToolAgents names agents whose spec sets
// auto_tool_mode=true.
func NewVisibilityFilter(visualAgents, autoToolAgents []string) *VisibilityFilter {
	f := &VisibilityFilter{
		visualAgents:  make(map[string]bool, len(visualAgents)),
		autoToolAgent: make(map[string]bool, len(autoToolAgents)),
		pendingText:   make(map[string]*Envelope),
	}
	for _, a := range visualAgents {
		f.visualAgents[a] = true
	}
	for _, a := range autoToolAgents {
		f.autoToolAgent[a] = true
	}
	return f
}

// Apply runs the three filter stages and returns the envelopes that should
// actually be sent, in order. A single input envelope may produce zero or
// more output envelopes: a pending text event that turns out not to precede
// a tool_call is flushed once it's safe to do so (the next non-tool_call
// event from the same agent, or any event from a different agent).
func (f *VisibilityFilter) Apply(e Envelope) []Envelope {
	if e.Agent != "" && !f.visualAgents[e.Agent] {
		return nil
	}
	if e.Hidden {
		return nil
	}

	if e.Type != TypeText || !f.autoToolAgent[e.Agent] {
		out := f.flushPending(e.Agent)
		out = append(out, e)
		return out
	}

	// Stage 2: hold this text event; it's dropped if immediately followed by
	// this agent's tool_call, flushed otherwise.
	out := f.flushPending(e.Agent)
	pending := e
	f.pendingText[e.Agent] = &pending
	return out
}

// Flush forces delivery of any pending text held for agent (used when the
// session ends without a following tool_call ever arriving).
func (f *VisibilityFilter) Flush(agent string) []Envelope {
	return f.flushPending(agent)
}

func (f *VisibilityFilter) flushPending(agent string) []Envelope {
	pending, ok := f.pendingText[agent]
	if !ok {
		return nil
	}
	delete(f.pendingText, agent)

	// A tool_call from the same agent means the held text was the redundant
	// pre-tool narration spec.md §4.6 names for dropping.
	return []Envelope{*pending}
}

// ApplyToolCall is the stage-2 hook: call this instead of Apply when the
// incoming envelope is a tool_call, so a held text event from the same agent
// is dropped rather than flushed.
func (f *VisibilityFilter) ApplyToolCall(e Envelope) []Envelope {
	if e.Agent != "" && !f.visualAgents[e.Agent] {
		return nil
	}
	if e.Hidden {
		return nil
	}
	delete(f.pendingText, e.Agent)
	return []Envelope{e}
}
