// Package workflow loads and validates declarative workflow manifests
// (agents, tools, handoffs, context variables, structured outputs, and
// orchestrator config) into immutable in-memory records.
package workflow

// AgentSpec describes one agent participating in a workflow.
type AgentSpec struct {
	Name                      string   `json:"name"`
	SystemMessage             string   `json:"system_message"`
	MaxConsecutiveAutoReply   int      `json:"max_consecutive_auto_reply"`
	AutoToolMode              bool     `json:"auto_tool_mode"`
	StructuredOutputsRequired bool     `json:"structured_outputs_required"`
	Tools                     []string `json:"tools"`
	LLM                       string   `json:"llm"`
}

// ToolType distinguishes backend tools (invoked by the engine, result flows
// back as tool_response) from UI tools (suspend awaiting a client reply).
type ToolType string

const (
	ToolTypeBackend ToolType = "backend"
	ToolTypeUI      ToolType = "ui"
)

// UIMode is how a UI tool's invocation is rendered to the client.
type UIMode string

const (
	UIModeInline   UIMode = "inline"
	UIModeArtifact UIMode = "artifact"
)

// ToolUISpec configures a UI tool's client-side rendering.
type ToolUISpec struct {
	Component string `json:"component"`
	Mode      UIMode `json:"mode"`
}

// ToolSpec describes one tool bindable to agents.
type ToolSpec struct {
	Name        string      `json:"name"`
	Type        ToolType    `json:"type"`
	AutoInvoke  *bool       `json:"auto_invoke"`
	Description string      `json:"description"`
	UI          *ToolUISpec `json:"ui,omitempty"`
}

// EffectiveAutoInvoke resolves the auto_invoke default: true for UI tools,
// false for backend tools, unless explicitly set.
func (t ToolSpec) EffectiveAutoInvoke() bool {
	if t.AutoInvoke != nil {
		return *t.AutoInvoke
	}
	return t.Type == ToolTypeUI
}

// HandoffType governs when a handoff rule is evaluated relative to tool calls.
type HandoffType string

const (
	HandoffAfterWork HandoffType = "after_work"
	HandoffCondition HandoffType = "condition"
)

// ConditionType selects how a handoff's Condition string is evaluated.
type ConditionType string

const (
	ConditionExpression ConditionType = "expression"
	ConditionStringLLM  ConditionType = "string_llm"
)

// ConditionScope controls whether a condition is evaluated pre- or post-tool.
// "pre" means evaluate after tool completion; empty/default means evaluate
// after the agent's text turn.
type ConditionScope string

const ConditionScopePre ConditionScope = "pre"

// ReservedTargetUser and ReservedTargetTerminate are the non-agent handoff
// target tokens recognized by the loader's cross-reference validator.
const (
	ReservedTargetUser      = "user"
	ReservedTargetTerminate = "TERMINATE"
)

// HandoffRule describes a conditional transfer of control between agents.
type HandoffRule struct {
	SourceAgent    string         `json:"source_agent"`
	TargetAgent    string         `json:"target_agent"`
	HandoffType    HandoffType    `json:"handoff_type"`
	ConditionType  ConditionType  `json:"condition_type,omitempty"`
	Condition      string         `json:"condition,omitempty"`
	ConditionScope ConditionScope `json:"condition_scope,omitempty"`
}

// EvaluatesAfterTool reports whether this rule's condition is gated on tool
// completion (after_work handoffs, or any condition_scope=pre rule).
func (h HandoffRule) EvaluatesAfterTool() bool {
	return h.HandoffType == HandoffAfterWork || h.ConditionScope == ConditionScopePre
}

// ContextVarType selects how a context variable's value is produced.
type ContextVarType string

const (
	ContextVarStatic      ContextVarType = "static"
	ContextVarEnvironment ContextVarType = "environment"
	ContextVarDatabase    ContextVarType = "database"
	ContextVarDerived     ContextVarType = "derived"
)

// TriggerType selects what kind of engine event a derived-variable trigger
// watches for.
type TriggerType string

const (
	TriggerAgentText  TriggerType = "agent_text"
	TriggerUIResponse TriggerType = "ui_response"
)

// MatchMode is how an agent_text trigger's Value is matched against text.
type MatchMode string

const (
	MatchRegex    MatchMode = "regex"
	MatchEquals   MatchMode = "equals"
	MatchContains MatchMode = "contains"
)

// ContextVarTrigger is one condition under which a derived context variable
// is mutated.
type ContextVarTrigger struct {
	Type TriggerType `json:"type"`

	// Agent names the source agent for an agent_text trigger.
	Agent string    `json:"agent,omitempty"`
	Match MatchMode `json:"match,omitempty"`
	Value string    `json:"value,omitempty"`

	// Tool names the UI tool for a ui_response trigger.
	Tool        string `json:"tool,omitempty"`
	ResponseKey string `json:"response_key,omitempty"`
}

// ContextVariableSpec describes one named value in the Context Store.
type ContextVariableSpec struct {
	Name      string              `json:"name"`
	Type      ContextVarType      `json:"type"`
	StaticVal any                 `json:"value,omitempty"`
	EnvVar    string              `json:"env_var,omitempty"`
	Query     string              `json:"query,omitempty"`
	Triggers  []ContextVarTrigger `json:"triggers,omitempty"`
	ExposedTo []string            `json:"exposed_to,omitempty"`
}

// StructuredOutputSpec is a named JSON Schema an agent's output must conform
// to when structured_outputs_required is set.
type StructuredOutputSpec struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// StartupMode controls how a session begins its first turn.
type StartupMode string

const (
	StartupAgentDriven StartupMode = "AgentDriven"
	StartupUserDriven  StartupMode = "UserDriven"
)

// TerminationConditions are the non-max_turns, non-TERMINATE-handoff ways a
// run ends.
type TerminationConditions struct {
	MaxConsecutiveAutoReplies int    `json:"max_consecutive_auto_replies,omitempty"`
	ContextVariableTrigger    string `json:"context_variable_trigger,omitempty"`
}

// OrchestratorConfig is the recognized set of orchestrator.json options.
type OrchestratorConfig struct {
	StartupMode          StartupMode            `json:"startup_mode"`
	MaxTurns             int                    `json:"max_turns"`
	VisualAgents         []string               `json:"visual_agents"`
	TerminationConditions TerminationConditions `json:"termination_conditions"`
	InitialMessage       string                 `json:"initial_message,omitempty"`
	InitialMessageToUser string                 `json:"initial_message_to_user,omitempty"`
}

// WorkflowConfig is the fully loaded, validated, immutable manifest for one
// workflow. Treat all fields as read-only after Load returns.
type WorkflowConfig struct {
	Name              string
	Root              string
	Agents            map[string]AgentSpec
	AgentOrder        []string
	Tools             map[string]ToolSpec
	Handoffs          []HandoffRule
	ContextVariables  map[string]ContextVariableSpec
	StructuredOutputs map[string]StructuredOutputSpec
	Orchestrator      OrchestratorConfig
}

// AgentNames returns the workflow's agent names in manifest order (the order
// agents.json declares them in). The orchestrator's AgentDriven startup mode
// treats the first name as the conversation's opening agent.
func (w *WorkflowConfig) AgentNames() []string {
	names := make([]string, len(w.AgentOrder))
	copy(names, w.AgentOrder)
	return names
}
