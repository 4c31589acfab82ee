// Package registry exposes a workflow's declared tools (C3 Tool Registry):
// the backend/UI distinction, auto_invoke resolution, and UI rendering
// metadata, built from a loaded workflow.WorkflowConfig.
package registry

import (
	"errors"
	"sort"

	"github.com/flowlane/flowlane/internal/workflow"
)

// ErrToolNotFound is returned by Lookup for a name not present in the
// workflow's tools.json.
var ErrToolNotFound = errors.New("tool not found")

// Registry is the read-only view of one workflow's declared tools. It is
// built once from a WorkflowConfig and never mutated afterward — tool
// definitions are part of the immutable manifest, not session state.
type Registry struct {
	tools map[string]workflow.ToolSpec
}

// New builds a Registry from a loaded workflow config.
func New(cfg *workflow.WorkflowConfig) *Registry {
	tools := make(map[string]workflow.ToolSpec, len(cfg.Tools))
	for name, t := range cfg.Tools {
		tools[name] = t
	}
	return &Registry{tools: tools}
}

// Lookup returns one tool's spec.
func (r *Registry) Lookup(name string) (workflow.ToolSpec, error) {
	t, ok := r.tools[name]
	if !ok {
		return workflow.ToolSpec{}, ErrToolNotFound
	}
	return t, nil
}

// IsUITool reports whether name is a UI tool (suspends awaiting a client
// response) as opposed to a backend tool (invoked synchronously by the
// engine).
func (r *Registry) IsUITool(name string) bool {
	t, ok := r.tools[name]
	return ok && t.Type == workflow.ToolTypeUI
}

// AutoInvoke resolves whether name should be auto-invoked without an
// explicit agent tool_call — true for UI tools, false for backend tools,
// unless the manifest sets auto_invoke explicitly.
func (r *Registry) AutoInvoke(name string) bool {
	t, ok := r.tools[name]
	if !ok {
		return false
	}
	return t.EffectiveAutoInvoke()
}

// Names returns every registered tool name, sorted for deterministic
// iteration (manifest construction order is a map and therefore
// unspecified).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BoundTo returns the names of every tool an agent may invoke, validated
// against the registry by C1's loader at manifest load time — BoundTo
// assumes agentTools only names tools that exist.
func (r *Registry) BoundTo(agentTools []string) []workflow.ToolSpec {
	out := make([]workflow.ToolSpec, 0, len(agentTools))
	for _, name := range agentTools {
		if t, ok := r.tools[name]; ok {
			out = append(out, t)
		}
	}
	return out
}
