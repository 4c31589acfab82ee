package workflow

import (
	"fmt"
	"regexp"
)

// validateCrossReferences checks that every handoff names a known agent (or
// a reserved token), every tool an agent binds exists, and every context
// variable referenced in a handoff condition exists. All violations are
// accumulated into invalid rather than stopping at the first. Returns the
// non-fatal warnings produced along the way (see spec.md §9's resolved open
// question on UI-tool-fed condition handoffs).
func validateCrossReferences(cfg *WorkflowConfig, invalid *ConfigInvalid) []Warning {
	var warnings []Warning

	for agentName, agent := range cfg.Agents {
		for _, toolName := range agent.Tools {
			if _, ok := cfg.Tools[toolName]; !ok {
				invalid.add("agent %q references unknown tool %q", agentName, toolName)
			}
		}
	}

	for i, h := range cfg.Handoffs {
		if h.SourceAgent == "" {
			invalid.add("handoffs[%d]: source_agent is required", i)
		} else if _, ok := cfg.Agents[h.SourceAgent]; !ok {
			invalid.add("handoffs[%d]: source_agent %q is not a known agent", i, h.SourceAgent)
		}

		if !isReservedTarget(h.TargetAgent) {
			if _, ok := cfg.Agents[h.TargetAgent]; !ok {
				invalid.add("handoffs[%d]: target_agent %q is not a known agent, \"user\", or \"TERMINATE\"", i, h.TargetAgent)
			}
		}

		switch h.HandoffType {
		case HandoffAfterWork, HandoffCondition:
		default:
			invalid.add("handoffs[%d]: handoff_type must be %q or %q, got %q", i, HandoffAfterWork, HandoffCondition, h.HandoffType)
		}

		if h.HandoffType == HandoffCondition {
			switch h.ConditionType {
			case ConditionExpression, ConditionStringLLM:
			default:
				invalid.add("handoffs[%d]: condition handoff requires condition_type %q or %q", i, ConditionExpression, ConditionStringLLM)
			}
			for _, ref := range referencedContextVars(h.Condition) {
				if _, ok := cfg.ContextVariables[ref]; !ok {
					invalid.add("handoffs[%d]: condition references unknown context variable %q", i, ref)
					continue
				}
				if w := warnIfUIFedBySameAgent(cfg, h, ref); w != nil {
					warnings = append(warnings, *w)
				}
			}
		}
	}

	for varName, v := range cfg.ContextVariables {
		switch v.Type {
		case ContextVarStatic, ContextVarEnvironment, ContextVarDatabase, ContextVarDerived:
		default:
			invalid.add("context_variables[%s]: invalid type %q", varName, v.Type)
		}
		if v.Type == ContextVarDerived {
			for ti, trig := range v.Triggers {
				switch trig.Type {
				case TriggerAgentText:
					if _, ok := cfg.Agents[trig.Agent]; !ok {
						invalid.add("context_variables[%s].triggers[%d]: agent_text trigger references unknown agent %q", varName, ti, trig.Agent)
					}
				case TriggerUIResponse:
					if _, ok := cfg.Tools[trig.Tool]; !ok {
						invalid.add("context_variables[%s].triggers[%d]: ui_response trigger references unknown tool %q", varName, ti, trig.Tool)
					}
				default:
					invalid.add("context_variables[%s].triggers[%d]: invalid trigger type %q", varName, ti, trig.Type)
				}
			}
		}
		for _, agentName := range v.ExposedTo {
			if _, ok := cfg.Agents[agentName]; !ok {
				invalid.add("context_variables[%s]: exposed_to references unknown agent %q", varName, agentName)
			}
		}
	}

	for _, agentName := range cfg.Orchestrator.VisualAgents {
		if _, ok := cfg.Agents[agentName]; !ok {
			invalid.add("orchestrator: visual_agents references unknown agent %q", agentName)
		}
	}
	if cfg.Orchestrator.StartupMode != StartupAgentDriven && cfg.Orchestrator.StartupMode != StartupUserDriven {
		invalid.add("orchestrator: startup_mode must be %q or %q", StartupAgentDriven, StartupUserDriven)
	}
	if trig := cfg.Orchestrator.TerminationConditions.ContextVariableTrigger; trig != "" {
		for _, ref := range referencedContextVars(trig) {
			if _, ok := cfg.ContextVariables[ref]; !ok {
				invalid.add("orchestrator: termination_conditions.context_variable_trigger references unknown context variable %q", ref)
			}
		}
	}

	return warnings
}

func isReservedTarget(target string) bool {
	return target == ReservedTargetUser || target == ReservedTargetTerminate
}

var contextVarRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// referencedContextVars extracts every ${name} reference from an expression
// or string_llm prompt template.
func referencedContextVars(expr string) []string {
	matches := contextVarRefPattern.FindAllStringSubmatch(expr, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// warnIfUIFedBySameAgent implements spec.md §9's resolved open question: a
// condition handoff (evaluated after the source agent's text turn, i.e. not
// condition_scope=pre) whose referenced context variable's only triggers are
// ui_response triggers is suspicious — the variable can't have been updated
// yet at text-turn time — but spec.md resolves this as a Warning, not a load
// error.
func warnIfUIFedBySameAgent(cfg *WorkflowConfig, h HandoffRule, varName string) *Warning {
	if h.EvaluatesAfterTool() {
		return nil
	}
	v, ok := cfg.ContextVariables[varName]
	if !ok || v.Type != ContextVarDerived || len(v.Triggers) == 0 {
		return nil
	}
	for _, trig := range v.Triggers {
		if trig.Type != TriggerUIResponse {
			return nil
		}
	}
	return &Warning{
		Path: fmt.Sprintf("handoffs[source=%s,target=%s]", h.SourceAgent, h.TargetAgent),
		Message: fmt.Sprintf(
			"condition references %q, which is fed only by ui_response triggers; "+
				"this handoff evaluates after the agent's text turn, before any UI tool "+
				"response could have arrived — consider condition_scope: pre",
			varName,
		),
	}
}
