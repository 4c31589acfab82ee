package workflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeWorkflow(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	defaults := map[string]string{
		fileAgents:            `{"agents": []}`,
		fileTools:             `{"tools": []}`,
		fileHandoffs:          `{"handoffs": []}`,
		fileContextVariables:  `{"context_variables": []}`,
		fileStructuredOutputs: `{"structured_outputs": []}`,
		fileOrchestrator:      `{"startup_mode": "UserDriven"}`,
	}
	for name, contents := range files {
		defaults[name] = contents
	}
	for name, contents := range defaults {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}
	return dir
}

func TestLoadMinimalWorkflow(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents: `{"agents": [{"name": "triage", "system_message": "route requests"}]}`,
	})

	cfg, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if _, ok := cfg.Agents["triage"]; !ok {
		t.Fatalf("expected agent %q to be loaded", "triage")
	}
	if cfg.Orchestrator.StartupMode != StartupUserDriven {
		t.Fatalf("StartupMode = %q, want %q", cfg.Orchestrator.StartupMode, StartupUserDriven)
	}
}

func TestLoadDefaultsStartupMode(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileOrchestrator: `{}`,
	})

	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Orchestrator.StartupMode != StartupUserDriven {
		t.Fatalf("StartupMode = %q, want default %q", cfg.Orchestrator.StartupMode, StartupUserDriven)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents: `{"agents": [], "bogus_field": true}`,
	})

	if _, _, err := Load(dir); err == nil {
		t.Fatalf("expected error for unknown field in %s", fileAgents)
	}
}

func TestLoadRejectsDuplicateAgentName(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents: `{"agents": [{"name": "triage"}, {"name": "triage"}]}`,
	})

	_, _, err := Load(dir)
	if err == nil {
		t.Fatalf("expected error for duplicate agent name")
	}
	if !strings.Contains(err.Error(), "duplicate agent name") {
		t.Fatalf("expected duplicate agent name error, got %v", err)
	}
}

func TestLoadRejectsUnknownToolReference(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents: `{"agents": [{"name": "triage", "tools": ["lookup"]}]}`,
	})

	_, _, err := Load(dir)
	if err == nil {
		t.Fatalf("expected error for unknown tool reference")
	}
	if !strings.Contains(err.Error(), `unknown tool "lookup"`) {
		t.Fatalf("expected unknown tool error, got %v", err)
	}
}

func TestLoadRejectsUnknownHandoffTarget(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents:   `{"agents": [{"name": "triage"}]}`,
		fileHandoffs: `{"handoffs": [{"source_agent": "triage", "target_agent": "ghost", "handoff_type": "after_work"}]}`,
	})

	_, _, err := Load(dir)
	if err == nil {
		t.Fatalf("expected error for unknown handoff target")
	}
	if !strings.Contains(err.Error(), "target_agent") {
		t.Fatalf("expected target_agent error, got %v", err)
	}
}

func TestLoadAcceptsReservedHandoffTargets(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents: `{"agents": [{"name": "triage"}]}`,
		fileHandoffs: `{"handoffs": [
			{"source_agent": "triage", "target_agent": "user", "handoff_type": "after_work"},
			{"source_agent": "triage", "target_agent": "TERMINATE", "handoff_type": "after_work"}
		]}`,
	})

	if _, _, err := Load(dir); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadRejectsConditionHandoffWithoutConditionType(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents:   `{"agents": [{"name": "triage"}, {"name": "closer"}]}`,
		fileHandoffs: `{"handoffs": [{"source_agent": "triage", "target_agent": "closer", "handoff_type": "condition"}]}`,
	})

	_, _, err := Load(dir)
	if err == nil {
		t.Fatalf("expected error for missing condition_type")
	}
	if !strings.Contains(err.Error(), "condition_type") {
		t.Fatalf("expected condition_type error, got %v", err)
	}
}

func TestLoadRejectsConditionReferencingUnknownContextVariable(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents: `{"agents": [{"name": "triage"}, {"name": "closer"}]}`,
		fileHandoffs: `{"handoffs": [{
			"source_agent": "triage", "target_agent": "closer", "handoff_type": "condition",
			"condition_type": "expression", "condition": "${ghost} == true"
		}]}`,
	})

	_, _, err := Load(dir)
	if err == nil {
		t.Fatalf("expected error for unknown context variable reference")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("expected ghost reference error, got %v", err)
	}
}

func TestLoadWarnsWhenConditionOnlyFedByUIResponse(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents: `{"agents": [{"name": "triage"}, {"name": "closer"}]}`,
		fileTools:  `{"tools": [{"name": "confirm_dialog", "type": "ui"}]}`,
		fileContextVariables: `{"context_variables": [{
			"name": "confirmed",
			"type": "derived",
			"triggers": [{"type": "ui_response", "tool": "confirm_dialog", "response_key": "ok"}]
		}]}`,
		fileHandoffs: `{"handoffs": [{
			"source_agent": "triage", "target_agent": "closer", "handoff_type": "condition",
			"condition_type": "expression", "condition": "${confirmed} == true"
		}]}`,
	})

	cfg, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg == nil {
		t.Fatalf("expected non-nil config")
	}
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0].Message, "confirmed") {
		t.Fatalf("expected warning about %q, got %q", "confirmed", warnings[0].Message)
	}
}

func TestLoadAcceptsPreScopedConditionOnUIFedVariable(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents: `{"agents": [{"name": "triage"}, {"name": "closer"}]}`,
		fileTools:  `{"tools": [{"name": "confirm_dialog", "type": "ui"}]}`,
		fileContextVariables: `{"context_variables": [{
			"name": "confirmed",
			"type": "derived",
			"triggers": [{"type": "ui_response", "tool": "confirm_dialog", "response_key": "ok"}]
		}]}`,
		fileHandoffs: `{"handoffs": [{
			"source_agent": "triage", "target_agent": "closer", "handoff_type": "condition",
			"condition_type": "expression", "condition": "${confirmed} == true", "condition_scope": "pre"
		}]}`,
	})

	_, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings for condition_scope=pre, got %v", warnings)
	}
}

func TestAgentNamesReturnsAllAgents(t *testing.T) {
	dir := writeWorkflow(t, map[string]string{
		fileAgents: `{"agents": [{"name": "triage"}, {"name": "closer"}]}`,
	})

	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	names := cfg.AgentNames()
	if len(names) != 2 {
		t.Fatalf("AgentNames() = %v, want 2 entries", names)
	}
}
