package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/flowlane/flowlane/internal/agent"
	"github.com/flowlane/flowlane/internal/artifacts"
	"github.com/flowlane/flowlane/internal/canvas"
	"github.com/flowlane/flowlane/internal/config"
	"github.com/flowlane/flowlane/internal/coordinator"
	"github.com/flowlane/flowlane/internal/dispatch"
	"github.com/flowlane/flowlane/internal/observability"
	"github.com/flowlane/flowlane/internal/orchestrator"
	"github.com/flowlane/flowlane/internal/resume"
	"github.com/flowlane/flowlane/internal/runlog"
	"github.com/flowlane/flowlane/internal/transport"
	"github.com/flowlane/flowlane/internal/workflow"
)

// sessionStarter implements web.SessionStarter. Unlike the shared, process-
// lifetime Hub/Coordinator/Resume Coordinator, the Unified Event Dispatcher
// (C5) and the Orchestrator (C8) that drives it are built fresh per chat
// session: the Persistence Layer sink orchestrator.NewPersistenceSink binds
// a single tenantID at construction, so one Dispatcher cannot safely serve
// two tenants' sessions.
type sessionStarter struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       runlog.Store
	hub         *transport.Hub
	coord       *coordinator.Coordinator
	resume      *resume.Coordinator
	provider    agent.LLMProvider
	executor    orchestrator.ToolExecutor
	asker       orchestrator.LLMAsker
	observe     *observability.DispatchSink
	artifacts   artifacts.Repository
	workflows   map[string]*workflow.WorkflowConfig
	dispatchers *dispatch.Registry
	canvas      *canvas.Manager
}

// StartSession begins one chat session's run: registers the chat with the
// Transport Hub (C6) and Resume Coordinator (C9), builds a session-scoped
// Dispatcher and Orchestrator (C5/C8), and runs the workflow to completion
// on a background goroutine -- the caller (the chat-start HTTP handler)
// does not block on the session's full lifetime.
func (s *sessionStarter) StartSession(ctx context.Context, tenantID, workflowID, chatID, cacheSeed string) error {
	wfCfg, ok := s.workflows[workflowID]
	if !ok {
		return fmt.Errorf("unknown workflow %q", workflowID)
	}

	s.hub.EnsureChat(chatID, wfCfg.Orchestrator.VisualAgents, autoToolAgentNames(wfCfg))
	s.resume.RegisterChat(tenantID, chatID)

	if s.canvas != nil {
		// The canvas store keys events by session ID, so a session must exist
		// before HandleArtifactPatch's first Push call -- ErrAlreadyExists is
		// expected and harmless on a resumed chat_id.
		err := s.canvas.Store().CreateSession(ctx, &canvas.Session{ID: chatID, Key: chatID})
		if err != nil && !errors.Is(err, canvas.ErrAlreadyExists) {
			s.logger.Warn("canvas session create failed", "chat_id", chatID, "error", err)
		}
	}

	persist := orchestrator.NewPersistenceSink(s.store, tenantID, s.logger)
	dispatcher := dispatch.New(persist, s.observe, s.hub, nil)
	s.dispatchers.Register(chatID, dispatcher)

	orch := orchestrator.New(orchestrator.Deps{
		Store:       s.store,
		Dispatcher:  dispatcher,
		Coordinator: s.coord,
		Provider:    s.provider,
		Executor:    s.executor,
		Asker:       s.asker,
		Env:         os.Getenv,
		Artifacts:   s.artifacts,
	})

	go func() {
		defer s.resume.UnregisterChat(chatID)
		defer s.dispatchers.Unregister(chatID)
		defer dispatcher.CloseChat(chatID)
		if err := orch.Start(context.Background(), wfCfg, tenantID, chatID, cacheSeed); err != nil {
			s.logger.Error("session run failed", "tenant_id", tenantID, "chat_id", chatID, "workflow", workflowID, "error", err)
		}
	}()

	return nil
}
