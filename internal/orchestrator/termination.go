package orchestrator

// checkTermination evaluates spec.md §4.8's non-handoff ways a run ends:
// max_turns, the configured context-variable truthiness trigger, and
// max_consecutive_auto_replies (orchestrator-wide, falling back to the
// current agent's own limit when the workflow sets no orchestrator-wide
// one). Grounded on internal/multiagent/orchestrator.go's per-session
// MaxConsecutiveAutoReply bookkeeping, generalized to read limits from the
// loaded manifest instead of a hand-registered AgentDefinition.
func (o *Orchestrator) checkTermination(sess *Session) (reason string, stop bool) {
	oc := sess.cfg.Orchestrator

	if oc.MaxTurns > 0 && sess.turns >= oc.MaxTurns {
		return "max_turns", true
	}

	if name := oc.TerminationConditions.ContextVariableTrigger; name != "" {
		if v, ok := sess.ctxStore.Get(name); ok && truthyValue(v.Value) {
			return "context_variable_trigger", true
		}
	}

	if limit := oc.TerminationConditions.MaxConsecutiveAutoReplies; limit > 0 && sess.consecutiveAutoReplies >= limit {
		return "max_consecutive_auto_replies", true
	}

	if limit := sess.agentSpec().MaxConsecutiveAutoReply; limit > 0 && sess.consecutiveAutoReplies >= limit {
		return "agent_max_consecutive_auto_replies", true
	}

	return "", false
}

// truthyValue mirrors ctxstore/expr.go's truthy rules for the handful of
// JSON-decoded shapes a context variable's value can take.
func truthyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
