package orchestrator

import (
	"context"
	"log/slog"

	"github.com/flowlane/flowlane/internal/transport"
	"github.com/flowlane/flowlane/internal/workflow"
)

// evaluateHandoffs checks every handoff rule sourced from the session's
// current agent whose scope matches afterTool (EvaluatesAfterTool's pre-tool
// vs. post-text split) and applies the first one whose condition holds.
// Grounded on internal/multiagent/orchestrator.go's handleHandoff, generalized
// from that package's single handoff-tool-result trigger to SPEC_FULL.md's
// declarative per-agent rule list evaluated after every qualifying turn.
//
// done reports whether a handoff fired (the caller should not also await
// fresh user input this iteration); terminate reports whether the fired
// handoff's target was the reserved TERMINATE token.
func (o *Orchestrator) evaluateHandoffs(ctx context.Context, sess *Session, afterTool bool) (done, terminate bool) {
	for _, rule := range sess.cfg.Handoffs {
		if rule.SourceAgent != sess.currentAgent {
			continue
		}
		if rule.EvaluatesAfterTool() != afterTool {
			continue
		}
		if !o.handoffConditionHolds(ctx, sess, rule) {
			continue
		}
		return o.applyHandoff(ctx, sess, rule), o.isTerminate(rule)
	}
	return false, false
}

func (o *Orchestrator) isTerminate(rule workflow.HandoffRule) bool {
	return rule.TargetAgent == workflow.ReservedTargetTerminate
}

// handoffConditionHolds reports whether rule should fire. An after_work rule
// with no condition_type always holds; a condition rule defers to the
// expression evaluator or the LLM asker depending on condition_type.
func (o *Orchestrator) handoffConditionHolds(ctx context.Context, sess *Session, rule workflow.HandoffRule) bool {
	if rule.HandoffType == workflow.HandoffAfterWork && rule.ConditionType == "" {
		return true
	}

	switch rule.ConditionType {
	case workflow.ConditionExpression:
		ok, err := sess.ctxStore.Eval(rule.Condition)
		if err != nil {
			slog.Default().Error("handoff condition evaluation failed", "source", rule.SourceAgent, "target", rule.TargetAgent, "condition", rule.Condition, "error", err)
			return false
		}
		return ok
	case workflow.ConditionStringLLM:
		if o.deps.Asker == nil {
			return false
		}
		ok, err := o.deps.Asker.Ask(ctx, rule.Condition, lastAgentText(sess))
		if err != nil {
			slog.Default().Error("handoff string_llm condition failed", "source", rule.SourceAgent, "target", rule.TargetAgent, "error", err)
			return false
		}
		return ok
	default:
		return false
	}
}

func lastAgentText(sess *Session) string {
	for i := len(sess.history) - 1; i >= 0; i-- {
		if sess.history[i].Role == "assistant" && sess.history[i].Content != "" {
			return sess.history[i].Content
		}
	}
	return ""
}

// applyHandoff switches the session's current agent (or leaves it unchanged
// for the reserved "user" target, which just ends the auto-reply chain and
// falls through to awaitUserInput) and emits a select_speaker event so
// clients can follow the active agent. Grounded on
// internal/multiagent/orchestrator.go's buildHandoffMessage/handleHandoff
// agent-switch idiom.
func (o *Orchestrator) applyHandoff(ctx context.Context, sess *Session, rule workflow.HandoffRule) bool {
	sess.handoffTrail = append(sess.handoffTrail, sess.currentAgent+"->"+rule.TargetAgent)

	switch rule.TargetAgent {
	case workflow.ReservedTargetTerminate:
		return true
	case workflow.ReservedTargetUser:
		sess.consecutiveAutoReplies = 0
		return true
	default:
		sess.currentAgent = rule.TargetAgent
		o.emitSelectSpeaker(ctx, sess)
		o.emitHidden(ctx, sess, transport.TypeText, map[string]string{"text": buildHandoffMessage(rule)})
		return true
	}
}

// buildHandoffMessage produces the hidden seed text the target agent sees as
// its next turn's trigger, analogous to internal/multiagent/orchestrator.go's
// buildHandoffMessage but without that package's AgentDefinition-keyed
// session metadata — everything it needs is already in rule.
func buildHandoffMessage(rule workflow.HandoffRule) string {
	if rule.ConditionType == workflow.ConditionExpression || rule.ConditionType == workflow.ConditionStringLLM {
		return "Handoff from " + rule.SourceAgent + ": condition \"" + rule.Condition + "\" matched."
	}
	return "Handoff from " + rule.SourceAgent + " after completing its work."
}
