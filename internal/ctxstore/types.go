// Package ctxstore implements the per-session context variable store: typed
// key/value state, populated by triggers firing on agent text or UI tool
// responses, and readable through exposed_to filtering and the handoff
// condition expression evaluator.
package ctxstore

import (
	"time"

	"github.com/flowlane/flowlane/internal/workflow"
)

// Value is one context variable's current, typed value plus the bookkeeping
// needed to report staleness and ownership.
type Value struct {
	Name      string
	Value     any
	Type      workflow.ContextVarType
	UpdatedAt time.Time

	// UpdatedBy names the agent or tool that produced the current value via
	// a trigger match; empty for static/environment/database variables.
	UpdatedBy string
}

// clone returns a value safe to hand to a caller without aliasing the
// store's internal map/slice fields.
func (v Value) clone() Value {
	switch val := v.Value.(type) {
	case map[string]any:
		v.Value = deepCloneMap(val)
	case []any:
		v.Value = append([]any{}, val...)
	}
	return v
}

func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = deepCloneMap(val)
		case []any:
			out[k] = append([]any{}, val...)
		default:
			out[k] = v
		}
	}
	return out
}

// AgentTextEvent is the input to Store.OnAgentText: one agent's completed
// text turn, checked against every agent_text trigger bound to that agent.
type AgentTextEvent struct {
	Agent string
	Text  string
}

// UIResponseEvent is the input to Store.OnUIResponse: a UI tool's resolved
// response payload, checked against every ui_response trigger bound to that
// tool.
type UIResponseEvent struct {
	Tool     string
	Response map[string]any
}
