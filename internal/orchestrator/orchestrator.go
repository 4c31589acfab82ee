package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowlane/flowlane/internal/agent"
	"github.com/flowlane/flowlane/internal/artifacts"
	"github.com/flowlane/flowlane/internal/backoff"
	"github.com/flowlane/flowlane/internal/coordinator"
	"github.com/flowlane/flowlane/internal/ctxstore"
	"github.com/flowlane/flowlane/internal/dispatch"
	"github.com/flowlane/flowlane/internal/runlog"
	"github.com/flowlane/flowlane/internal/transport"
	"github.com/flowlane/flowlane/internal/workflow"
	"github.com/flowlane/flowlane/pkg/models"
)

// maxCompletionAttempts bounds retries of a provider's Complete call when it
// fails before the first chunk is streamed (connection refused, 429, 5xx).
const maxCompletionAttempts = 3

// Orchestrator runs one workflow's sessions. A single Orchestrator value is
// shared across every session of a process (it holds no per-session
// mutable state); each Start call owns its own Session and runs to
// completion on the calling goroutine, matching spec.md §5's one-goroutine-
// per-session model.
type Orchestrator struct {
	deps Deps
}

// New builds an Orchestrator over the given collaborators.
func New(deps Deps) *Orchestrator {
	if deps.InputTimeout == 0 {
		deps.InputTimeout = 10 * time.Minute
	}
	if deps.UIToolTimeout == 0 {
		deps.UIToolTimeout = 5 * time.Minute
	}
	return &Orchestrator{deps: deps}
}

// Start runs one workflow session to completion: session-start sequence,
// startup-mode branching, the event loop, and final usage/state recording.
// Returns once the session reaches a terminal state (run_complete, a
// terminal error, or ctx cancellation).
func (o *Orchestrator) Start(ctx context.Context, cfg *workflow.WorkflowConfig, tenantID, chatID, cacheSeed string) error {
	sess, err := o.newSession(ctx, tenantID, chatID, cacheSeed, cfg)
	if err != nil {
		return err
	}
	return o.run(ctx, sess)
}

func (o *Orchestrator) run(ctx context.Context, sess *Session) error {
	defer o.finish(ctx, sess)

	var userText string
	haveUserText := false
	switch sess.cfg.Orchestrator.StartupMode {
	case workflow.StartupAgentDriven:
		userText = sess.cfg.Orchestrator.InitialMessage
		haveUserText = true
		o.emitHidden(ctx, sess, transport.TypeText, map[string]string{"text": userText})
	default:
		text, ok := o.awaitUserInput(ctx, sess)
		if !ok {
			return sess.err
		}
		userText = text
		haveUserText = true
	}

	for {
		if err := ctx.Err(); err != nil {
			sess.err = ErrSessionCanceled
			return sess.err
		}

		sess.turns++
		if haveUserText {
			sess.appendMessage("user", userText)
			haveUserText = false
		}
		o.emitSelectSpeaker(ctx, sess)

		tr, err := o.runAgentTurn(ctx, sess)
		if err != nil {
			o.emitError(ctx, sess, transport.ErrAgentInitializationErr, err.Error())
			sess.err = err
			return sess.err
		}
		o.recordUsage(ctx, sess, tr)

		if tr.text != "" {
			sess.appendMessage("assistant", tr.text)
			sess.ctxStore.OnAgentText(ctxstore.AgentTextEvent{Agent: sess.currentAgent, Text: tr.text})
		}

		// condition handoffs at the default scope fire immediately after the
		// text turn, before this turn's tool calls (if any) execute.
		if done, terminate := o.evaluateHandoffs(ctx, sess, false); done {
			if terminate {
				o.emitRunComplete(ctx, sess, "handoff_terminate")
				return nil
			}
			sess.consecutiveAutoReplies++
			if reason, stop := o.checkTermination(sess); stop {
				o.emitRunComplete(ctx, sess, reason)
				return nil
			}
			continue
		}

		if len(tr.toolCalls) > 0 {
			results := o.executeTools(ctx, sess, tr.toolCalls)
			sess.appendToolResults(tr.toolCalls, results)
		}

		// after_work handoffs (and condition_scope=pre) fire once per turn
		// after tool calls have fully completed, per spec.md's after_work
		// ordering rule — evaluated even when the turn had no tool calls,
		// since there's nothing to wait on in that case.
		if done, terminate := o.evaluateHandoffs(ctx, sess, true); done {
			if terminate {
				o.emitRunComplete(ctx, sess, "handoff_terminate")
				return nil
			}
			sess.consecutiveAutoReplies++
			if reason, stop := o.checkTermination(sess); stop {
				o.emitRunComplete(ctx, sess, reason)
				return nil
			}
			continue
		}

		if len(tr.toolCalls) > 0 {
			sess.consecutiveAutoReplies++
			if reason, stop := o.checkTermination(sess); stop {
				o.emitRunComplete(ctx, sess, reason)
				return nil
			}
			// Tool results feed back into the same agent's next completion
			// without consuming a new user turn.
			continue
		}

		if reason, stop := o.checkTermination(sess); stop {
			o.emitRunComplete(ctx, sess, reason)
			return nil
		}

		next, ok := o.awaitUserInput(ctx, sess)
		if !ok {
			return sess.err
		}
		sess.consecutiveAutoReplies = 0
		userText = next
		haveUserText = true
	}
}

// runAgentTurn sends the session's history plus the current agent's
// effective system message to the provider, streaming text chunks to the
// client as they arrive and collecting any tool calls.
func (o *Orchestrator) runAgentTurn(ctx context.Context, sess *Session) (turnResult, error) {
	spec := sess.agentSpec()
	tools := o.bindTools(sess, spec)

	req := &agent.CompletionRequest{
		Model:    spec.LLM,
		System:   sess.systemMessageFor(sess.currentAgent),
		Messages: sess.history,
		Tools:    tools,
	}

	// Only the request's setup (establishing the stream) is retried --
	// retrying mid-stream would replay chunks already emitted to the client.
	chunks, err := backoff.RetryFunc(ctx, maxCompletionAttempts, func(int) (<-chan *agent.CompletionChunk, error) {
		return o.deps.Provider.Complete(ctx, req)
	})
	if err != nil {
		return turnResult{}, fmt.Errorf("agent %q: completion request failed: %w", sess.currentAgent, err)
	}

	var tr turnResult
	for chunk := range chunks {
		if chunk.Error != nil {
			return turnResult{}, fmt.Errorf("agent %q: %w", sess.currentAgent, chunk.Error)
		}
		if chunk.Text != "" {
			tr.text += chunk.Text
			o.emit(ctx, sess, "text", transport.TypeText, map[string]string{"text": chunk.Text}, false, false, "")
		}
		if chunk.ToolCall != nil {
			tr.toolCalls = append(tr.toolCalls, *chunk.ToolCall)
		}
		if chunk.Done {
			tr.prompt = int64(chunk.InputTokens)
			tr.completion = int64(chunk.OutputTokens)
		}
	}
	return tr, nil
}

// bindTools resolves an agent's bound tool names into agent.Tool
// descriptions for the completion request. UI tools are described but never
// directly executed by the Executor — executeTools routes them to the
// Coordinator instead.
func (o *Orchestrator) bindTools(sess *Session, spec workflow.AgentSpec) []agent.Tool {
	var out []agent.Tool
	for _, toolSpec := range sess.tools.BoundTo(spec.Tools) {
		if toolSpec.Type == workflow.ToolTypeUI {
			out = append(out, uiToolDescriptor{spec: toolSpec})
			continue
		}
		if o.deps.Executor != nil {
			if tool, ok := o.deps.Executor.Lookup(toolSpec.Name); ok {
				out = append(out, tool)
				continue
			}
		}
	}
	return out
}

func (o *Orchestrator) executeTools(ctx context.Context, sess *Session, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, 0, len(calls))
	for _, tc := range calls {
		spec, lookupErr := sess.tools.Lookup(tc.Name)
		switch {
		case lookupErr != nil:
			o.emit(ctx, sess, "tool_call", transport.TypeToolCall, map[string]any{"id": tc.ID, "name": tc.Name, "input": tc.Input}, false, false, tc.ID)
			results = append(results, models.ToolResult{ToolCallID: tc.ID, Content: "unknown tool: " + tc.Name, IsError: true})
		case spec.Type == workflow.ToolTypeUI:
			results = append(results, o.executeUITool(ctx, sess, tc))
		default:
			results = append(results, o.executeBackendTool(ctx, sess, tc))
		}
	}
	return results
}

func (o *Orchestrator) executeUITool(ctx context.Context, sess *Session, tc models.ToolCall) models.ToolResult {
	o.emit(ctx, sess, "tool_call", transport.TypeToolCall, map[string]any{"id": tc.ID, "name": tc.Name, "input": tc.Input}, false, true, tc.ID)

	respCh := make(chan string, 1)
	o.deps.Coordinator.RegisterUIToolCall(ctx, sess.ChatID, tc.ID, tc.Name, o.deps.UIToolTimeout, func(resp string) {
		select {
		case respCh <- resp:
		default:
		}
	})

	select {
	case resp := <-respCh:
		return models.ToolResult{ToolCallID: tc.ID, Content: resp, IsError: resp == coordinator.TimeoutSentinel}
	case <-ctx.Done():
		return models.ToolResult{ToolCallID: tc.ID, Content: coordinator.TimeoutSentinel, IsError: true}
	}
}

func (o *Orchestrator) executeBackendTool(ctx context.Context, sess *Session, tc models.ToolCall) models.ToolResult {
	o.emit(ctx, sess, "tool_call", transport.TypeToolCall, map[string]any{"id": tc.ID, "name": tc.Name, "input": tc.Input}, false, false, tc.ID)

	if o.deps.Executor == nil {
		return models.ToolResult{ToolCallID: tc.ID, Content: "no backend tool executor configured", IsError: true}
	}
	tool, ok := o.deps.Executor.Lookup(tc.Name)
	if !ok {
		return models.ToolResult{ToolCallID: tc.ID, Content: "backend tool not registered: " + tc.Name, IsError: true}
	}
	out, err := tool.Execute(ctx, tc.Input)
	if err != nil {
		o.emitError(ctx, sess, transport.ErrToolExecutionError, err.Error())
		return models.ToolResult{ToolCallID: tc.ID, Content: err.Error(), IsError: true}
	}
	o.emit(ctx, sess, "tool_call", transport.TypeToolResponse, map[string]any{"id": tc.ID, "content": out.Content, "is_error": out.IsError}, false, false, tc.ID)
	o.storeArtifacts(ctx, sess, tc, out.Artifacts)
	return models.ToolResult{ToolCallID: tc.ID, Content: out.Content, IsError: out.IsError}
}

// storeArtifacts persists any files/media a backend tool's result carried
// and emits an attachment_uploaded event per artifact, so a client sees the
// upload the same way it sees any other tool-driven occurrence. A nil
// Artifacts repository (the default when artifact storage isn't configured)
// makes this a no-op.
func (o *Orchestrator) storeArtifacts(ctx context.Context, sess *Session, tc models.ToolCall, arts []agent.Artifact) {
	if o.deps.Artifacts == nil || len(arts) == 0 {
		return
	}
	for _, a := range arts {
		art := &artifacts.Artifact{
			Id:       a.ID,
			Type:     a.Type,
			MimeType: a.MimeType,
			Filename: a.Filename,
			Size:     int64(len(a.Data)),
		}
		if err := o.deps.Artifacts.StoreArtifact(ctx, art, bytes.NewReader(a.Data)); err != nil {
			o.emitError(ctx, sess, transport.ErrToolExecutionError, fmt.Sprintf("store artifact: %v", err))
			continue
		}
		o.emit(ctx, sess, "attachment_uploaded", transport.TypeAttachmentUploaded, map[string]any{
			"id":        art.Id,
			"type":      art.Type,
			"mime_type": art.MimeType,
			"filename":  art.Filename,
			"size":      art.Size,
			"reference": art.Reference,
		}, false, false, tc.ID)
	}
}

// awaitUserInput pauses the session on a new input_request, delivered
// through the Coordinator (C7) exactly like a UI tool pend — the same
// deadline/timeout-sentinel policy applies to a plain conversational turn
// as to a structured tool response.
func (o *Orchestrator) awaitUserInput(ctx context.Context, sess *Session) (string, bool) {
	requestID := coordinator.NewRequestID()
	o.emit(ctx, sess, "input_request", transport.TypeInputRequest, map[string]string{"request_id": requestID}, false, false, requestID)

	respCh := make(chan string, 1)
	o.deps.Coordinator.RegisterInputRequest(ctx, sess.ChatID, requestID, o.deps.InputTimeout, func(resp string) {
		select {
		case respCh <- resp:
		default:
		}
	})

	select {
	case resp := <-respCh:
		return resp, true
	case <-ctx.Done():
		sess.err = ErrSessionCanceled
		return "", false
	}
}

func (o *Orchestrator) emit(ctx context.Context, sess *Session, class string, outType transport.OutboundType, data any, hidden, isUITool bool, corr string) {
	// The Dispatcher, not the Session, owns the seq counter: it's the one
	// component every chat_id's events -- Orchestrator-originated or not --
	// pass through, so it's the only place a single counter can be shared.
	seq := o.deps.Dispatcher.NextSeq(sess.ChatID)
	oe := transport.OutboundEvent{Type: outType, Data: data, Agent: sess.currentAgent, Hidden: hidden, Corr: corr, Seq: seq}
	o.deps.Dispatcher.Dispatch(ctx, dispatch.Event{ChatID: sess.ChatID, Type: class, Corr: corr, Data: oe}, isUITool)
}

func (o *Orchestrator) emitHidden(ctx context.Context, sess *Session, outType transport.OutboundType, data any) {
	o.emit(ctx, sess, "text", outType, data, true, false, "")
}

func (o *Orchestrator) emitSelectSpeaker(ctx context.Context, sess *Session) {
	o.emit(ctx, sess, "select_speaker", transport.TypeSelectSpeaker, map[string]string{"agent": sess.currentAgent}, false, false, "")
}

func (o *Orchestrator) emitError(ctx context.Context, sess *Session, code transport.ErrorCode, message string) {
	o.emit(ctx, sess, "error", transport.TypeError, transport.ErrorData{Message: message, ErrorCode: code, Recoverable: false}, false, false, "")
}

func (o *Orchestrator) emitRunComplete(ctx context.Context, sess *Session, reason string) {
	o.emitUsageSummary(ctx, sess)
	o.emit(ctx, sess, "run_complete", transport.TypeRunComplete, map[string]string{"reason": reason}, false, false, "")
}

// emitUsageSummary sends the session's cumulative token usage as the final
// chat.usage_summary event, immediately preceding run_complete per spec.md
// §8 Scenario E1.
func (o *Orchestrator) emitUsageSummary(ctx context.Context, sess *Session) {
	o.emit(ctx, sess, "usage_summary", transport.TypeUsageSummary, map[string]int64{
		"prompt_tokens":     sess.promptTokens,
		"completion_tokens": sess.completionTokens,
	}, false, false, "")
}

func (o *Orchestrator) recordUsage(ctx context.Context, sess *Session, tr turnResult) {
	if tr.prompt == 0 && tr.completion == 0 {
		return
	}
	sess.promptTokens += tr.prompt
	sess.completionTokens += tr.completion

	o.emit(ctx, sess, "usage", transport.TypeUsageDelta, map[string]int64{"prompt_tokens": tr.prompt, "completion_tokens": tr.completion}, false, false, "")

	if o.deps.Store != nil {
		_ = o.deps.Store.RecordUsageDelta(ctx, runlog.UsageDelta{
			TenantID:         sess.TenantID,
			ChatID:           sess.ChatID,
			Agent:            sess.currentAgent,
			PromptTokens:     tr.prompt,
			CompletionTokens: tr.completion,
			RecordedAt:       time.Now(),
		})
	}
}

// finish persists the final usage summary and conversation-state snapshot
// regardless of how the run loop exited (success, error, or cancellation) —
// spec.md §4.8's "on exit" step.
func (o *Orchestrator) finish(ctx context.Context, sess *Session) {
	if o.deps.Store == nil {
		return
	}
	_ = o.deps.Store.FinalizeUsage(ctx, runlog.UsageSummary{
		TenantID:         sess.TenantID,
		ChatID:           sess.ChatID,
		PromptTokens:     sess.promptTokens,
		CompletionTokens: sess.completionTokens,
		FinalizedAt:      time.Now(),
	})

	blob, err := json.Marshal(stateBlob{
		CurrentAgent: sess.currentAgent,
		Turns:        sess.turns,
		History:      sess.history,
		ContextVars:  sess.ctxStore.Snapshot(),
	})
	if err != nil {
		return
	}
	_ = o.deps.Store.SaveState(ctx, runlog.ConversationState{
		TenantID:  sess.TenantID,
		ChatID:    sess.ChatID,
		Blob:      blob,
		UpdatedAt: time.Now(),
	})
}

// stateBlob is C8's conversation-state schema, opaque to C4 and owned by C9
// Resume for reconstruction after a crash or reconnect.
type stateBlob struct {
	CurrentAgent string                     `json:"current_agent"`
	Turns        int                        `json:"turns"`
	History      []agent.CompletionMessage  `json:"history"`
	ContextVars  map[string]ctxstore.Value  `json:"context_vars"`
}
