package orchestrator

import (
	"context"
	"fmt"

	"github.com/flowlane/flowlane/internal/agent"
	"github.com/flowlane/flowlane/internal/ctxstore"
	"github.com/flowlane/flowlane/internal/tools/registry"
	"github.com/flowlane/flowlane/internal/workflow"
	"github.com/flowlane/flowlane/pkg/models"
)

// newSession performs spec.md §4.8's session-start sequence up through
// Context Store initialization and startup-agent selection. It does not
// start the run loop — that's Orchestrator.Start.
func (o *Orchestrator) newSession(ctx context.Context, tenantID, chatID, cacheSeed string, cfg *workflow.WorkflowConfig) (*Session, error) {
	names := cfg.AgentNames()
	if len(names) == 0 {
		return nil, ErrNoAgents
	}

	store, err := ctxstore.NewStore(ctx, cfg, o.deps.Env, o.deps.DBFetcher)
	if err != nil {
		return nil, fmt.Errorf("initializing context store: %w", err)
	}

	return &Session{
		TenantID:     tenantID,
		ChatID:       chatID,
		CacheSeed:    cacheSeed,
		cfg:          cfg,
		tools:        registry.New(cfg),
		ctxStore:     store,
		currentAgent: names[0],
	}, nil
}

// systemMessageFor builds one agent's effective system message for its next
// completion call: the manifest's static system_message plus an interpolated
// view of every context variable exposed to this agent. This is the state-
// update hook spec.md §4.8 requires to run pre-LLM-call and read-only with
// respect to the Context Store — it only reads via ExposeFor, never writes.
func (s *Session) systemMessageFor(agentName string) string {
	spec, ok := s.cfg.Agents[agentName]
	if !ok {
		return ""
	}
	msg := spec.SystemMessage

	exposed := s.ctxStore.ExposeFor(agentName)
	if len(exposed) == 0 {
		return msg
	}
	msg += "\n\nContext:\n"
	for name, val := range exposed {
		msg += fmt.Sprintf("- %s: %v\n", name, val)
	}
	return msg
}

func (s *Session) appendMessage(role, content string) {
	s.history = append(s.history, agent.CompletionMessage{Role: role, Content: content})
}

func (s *Session) appendToolResults(calls []models.ToolCall, results []models.ToolResult) {
	s.history = append(s.history, agent.CompletionMessage{Role: "assistant", ToolCalls: calls})
	s.history = append(s.history, agent.CompletionMessage{Role: "tool", ToolResults: results})
}

// agentSpec returns the manifest spec for the session's current agent.
func (s *Session) agentSpec() workflow.AgentSpec {
	return s.cfg.Agents[s.currentAgent]
}
