package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowlane/flowlane/internal/agent"
	"github.com/flowlane/flowlane/internal/workflow"
)

// uiToolDescriptor exposes a manifest UI tool's name/description/schema to
// the LLM provider's completion request (agent.Tool's shape) without ever
// being invoked: executeTools routes a UI tool call to the Coordinator (C7)
// before it would reach Execute, by checking the registry's IsUITool first.
// Execute only exists to satisfy the interface and signals a bug if called.
type uiToolDescriptor struct {
	spec workflow.ToolSpec
}

func (d uiToolDescriptor) Name() string        { return d.spec.Name }
func (d uiToolDescriptor) Description() string { return d.spec.Description }
func (d uiToolDescriptor) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (d uiToolDescriptor) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	return nil, fmt.Errorf("ui tool %q must be routed through the coordinator, not executed directly", d.spec.Name)
}

var _ agent.Tool = uiToolDescriptor{}
