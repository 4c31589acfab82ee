package ctxstore

import (
	"strings"

	"github.com/flowlane/flowlane/internal/workflow"
)

// OnAgentText evaluates every agent_text trigger bound to evt.Agent against
// evt.Text, writing matches into the store. Returns the names of variables
// that changed, in trigger-declaration order, for the caller (C5 Dispatcher)
// to fold into its turn-advancement bookkeeping — see spec.md §4.2's
// synchronous-with-dispatcher-turn-advancement requirement.
func (s *Store) OnAgentText(evt AgentTextEvent) []string {
	var changed []string
	for _, ct := range s.triggers {
		if ct.trigger.Type != workflow.TriggerAgentText || ct.trigger.Agent != evt.Agent {
			continue
		}
		val, matched := matchAgentText(ct, evt.Text)
		if !matched {
			continue
		}
		existing := s.values[ct.varName]
		existing.Value = val
		existing.UpdatedBy = evt.Agent
		s.values[ct.varName] = existing
		changed = append(changed, ct.varName)
	}
	return changed
}

// OnUIResponse evaluates every ui_response trigger bound to evt.Tool,
// extracting evt.Response[response_key] into the matching variable. Returns
// the names of variables that changed.
func (s *Store) OnUIResponse(evt UIResponseEvent) []string {
	var changed []string
	for _, ct := range s.triggers {
		if ct.trigger.Type != workflow.TriggerUIResponse || ct.trigger.Tool != evt.Tool {
			continue
		}
		val, ok := evt.Response[ct.trigger.ResponseKey]
		if !ok {
			continue
		}
		existing := s.values[ct.varName]
		existing.Value = val
		existing.UpdatedBy = evt.Tool
		s.values[ct.varName] = existing
		changed = append(changed, ct.varName)
	}
	return changed
}

// matchAgentText applies one agent_text trigger's match mode. regex matches
// return the first capture group if the pattern declares one, else the full
// match; equals/contains matches return the trigger's declared Value (a
// constant assignment) on success.
func matchAgentText(ct compiledTrigger, text string) (any, bool) {
	switch ct.trigger.Match {
	case workflow.MatchRegex:
		if ct.re == nil {
			return nil, false
		}
		groups := ct.re.FindStringSubmatch(text)
		if groups == nil {
			return nil, false
		}
		if len(groups) > 1 {
			return groups[1], true
		}
		return groups[0], true
	case workflow.MatchEquals:
		if strings.TrimSpace(text) != ct.trigger.Value {
			return nil, false
		}
		return ct.trigger.Value, true
	case workflow.MatchContains:
		if !strings.Contains(text, ct.trigger.Value) {
			return nil, false
		}
		return ct.trigger.Value, true
	default:
		return nil, false
	}
}
