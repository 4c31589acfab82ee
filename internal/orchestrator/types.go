// Package orchestrator implements the Orchestrator (C8): the per-session
// control loop that owns a workflow's agents, drives LLM turns, evaluates
// handoff rules, enforces termination conditions, and feeds every runtime
// occurrence through the Unified Event Dispatcher (C5).
//
// Grounded on internal/multiagent/orchestrator.go's handoff-driven control
// flow (Process/selectAgent/processWithAgent/handleHandoff), generalized
// from that package's Go-struct agent definitions and session-metadata
// bookkeeping to SPEC_FULL.md's JSON-manifest-driven semantics: agents,
// tools, and handoffs come from a loaded workflow.WorkflowConfig (C1)
// instead of a hand-registered AgentDefinition map, and conversation state
// lives in a ctxstore.Store (C2) instead of models.Session.Metadata.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/flowlane/flowlane/internal/agent"
	"github.com/flowlane/flowlane/internal/artifacts"
	"github.com/flowlane/flowlane/internal/coordinator"
	"github.com/flowlane/flowlane/internal/ctxstore"
	"github.com/flowlane/flowlane/internal/dispatch"
	"github.com/flowlane/flowlane/internal/runlog"
	"github.com/flowlane/flowlane/internal/tools/registry"
	"github.com/flowlane/flowlane/internal/workflow"
	"github.com/flowlane/flowlane/pkg/models"
)

// ErrNoAgents is returned when a workflow declares no agents at all.
var ErrNoAgents = errors.New("orchestrator: workflow has no agents")

// ErrSessionCanceled is returned from Start when ctx is canceled before the
// run reaches a terminal state.
var ErrSessionCanceled = errors.New("orchestrator: session canceled")

// BackendTool is one manifest-bound backend tool implementation: exactly
// internal/agent/runtime.go's Tool interface. The teacher's kept
// internal/tools/{files,exec,websearch,system} packages already implement
// it unmodified — C1's manifest (not the Go type) is the source of truth
// for which name binds to which agent, so no adapter layer is needed here.
type BackendTool = agent.Tool

// ToolExecutor resolves a manifest tool name to its backend implementation.
type ToolExecutor interface {
	Lookup(name string) (BackendTool, bool)
}

// MapToolExecutor is a ToolExecutor backed by a static name-to-tool map,
// grounded on internal/agent/runtime.go's Runtime.RegisterTool keyed-by-name
// idiom.
type MapToolExecutor map[string]BackendTool

// Lookup implements ToolExecutor.
func (m MapToolExecutor) Lookup(name string) (BackendTool, bool) {
	t, ok := m[name]
	return t, ok
}

// LLMAsker answers a string_llm handoff condition's yes/no question. Kept
// separate from the full agent.LLMProvider so condition evaluation doesn't
// need to thread tool definitions or streaming through a one-shot ask.
type LLMAsker interface {
	Ask(ctx context.Context, question, context string) (bool, error)
}

// Deps bundles every collaborator an Orchestrator session wires together at
// session start. All fields are required except Executor, DBFetcher, and
// Asker, which degrade gracefully (no backend tools, no database context
// variables, string_llm conditions always false) when nil.
type Deps struct {
	Store       runlog.Store
	Dispatcher  *dispatch.Dispatcher
	Coordinator *coordinator.Coordinator
	Provider    agent.LLMProvider
	Executor    ToolExecutor
	Asker       LLMAsker
	Env         func(string) string
	DBFetcher   ctxstore.DatabaseFetcher

	// Artifacts persists files/media a backend tool's result carries. Nil
	// means no repository is configured: executeBackendTool then skips
	// storage and the attachment_uploaded emission entirely rather than
	// erroring, since artifact storage is an optional capability.
	Artifacts artifacts.Repository

	// InputTimeout bounds how long a user.input.submit wait may pend before
	// the Coordinator resolves it with coordinator.TimeoutSentinel.
	InputTimeout time.Duration

	// UIToolTimeout bounds how long a UI tool invocation may pend before the
	// Coordinator times it out the same way.
	UIToolTimeout time.Duration
}

// turnResult is one LLM completion's accumulated output.
type turnResult struct {
	text       string
	toolCalls  []models.ToolCall
	prompt     int64
	completion int64
}

// Session is one running conversation instance: the mutable state an
// Orchestrator's run loop owns exclusively for the session's lifetime, per
// spec.md §5's per-session-task concurrency model (no locks needed within
// one session).
type Session struct {
	TenantID  string
	ChatID    string
	CacheSeed string

	cfg      *workflow.WorkflowConfig
	tools    *registry.Registry
	ctxStore *ctxstore.Store

	currentAgent           string
	consecutiveAutoReplies int
	turns                  int
	handoffTrail           []string

	history []agent.CompletionMessage

	promptTokens     int64
	completionTokens int64

	err error
}
