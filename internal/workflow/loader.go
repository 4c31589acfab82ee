package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

const (
	fileAgents            = "agents.json"
	fileTools             = "tools.json"
	fileHandoffs          = "handoffs.json"
	fileContextVariables  = "context_variables.json"
	fileStructuredOutputs = "structured_outputs.json"
	fileOrchestrator      = "orchestrator.json"
)

// Load reads a workflow directory, validates its six manifest files, and
// returns the resulting WorkflowConfig plus any non-fatal warnings. Unknown
// top-level fields in any file are rejected. Discovery is load-once: callers
// that want hot-reload must call Load again (out of scope per SPEC_FULL.md's
// ambient-stack note — manifests are loaded at startup only).
func Load(root string) (*WorkflowConfig, []Warning, error) {
	name := filepath.Base(filepath.Clean(root))
	cfg := &WorkflowConfig{
		Name:              name,
		Root:              root,
		Agents:            map[string]AgentSpec{},
		Tools:             map[string]ToolSpec{},
		ContextVariables:  map[string]ContextVariableSpec{},
		StructuredOutputs: map[string]StructuredOutputSpec{},
	}
	invalid := &ConfigInvalid{}

	var agentsDoc struct {
		Agents []AgentSpec `json:"agents"`
	}
	if err := readManifest(root, fileAgents, &agentsDoc); err != nil {
		invalid.add("%s: %v", fileAgents, err)
	}
	for _, a := range agentsDoc.Agents {
		if a.Name == "" {
			invalid.add("%s: agent entry missing name", fileAgents)
			continue
		}
		if _, dup := cfg.Agents[a.Name]; dup {
			invalid.add("%s: duplicate agent name %q", fileAgents, a.Name)
			continue
		}
		cfg.Agents[a.Name] = a
		cfg.AgentOrder = append(cfg.AgentOrder, a.Name)
	}

	var toolsDoc struct {
		Tools []ToolSpec `json:"tools"`
	}
	if err := readManifest(root, fileTools, &toolsDoc); err != nil {
		invalid.add("%s: %v", fileTools, err)
	}
	for _, t := range toolsDoc.Tools {
		if t.Name == "" {
			invalid.add("%s: tool entry missing name", fileTools)
			continue
		}
		if t.Type != ToolTypeBackend && t.Type != ToolTypeUI {
			invalid.add("%s: tool %q has invalid type %q (want %q or %q)", fileTools, t.Name, t.Type, ToolTypeBackend, ToolTypeUI)
		}
		if t.Type == ToolTypeUI && t.UI != nil {
			if t.UI.Mode != UIModeInline && t.UI.Mode != UIModeArtifact {
				invalid.add("%s: tool %q has invalid ui.mode %q", fileTools, t.Name, t.UI.Mode)
			}
		}
		if _, dup := cfg.Tools[t.Name]; dup {
			invalid.add("%s: duplicate tool name %q", fileTools, t.Name)
			continue
		}
		cfg.Tools[t.Name] = t
	}

	var handoffsDoc struct {
		Handoffs []HandoffRule `json:"handoffs"`
	}
	if err := readManifest(root, fileHandoffs, &handoffsDoc); err != nil {
		invalid.add("%s: %v", fileHandoffs, err)
	}
	cfg.Handoffs = handoffsDoc.Handoffs

	var ctxDoc struct {
		ContextVariables []ContextVariableSpec `json:"context_variables"`
	}
	if err := readManifest(root, fileContextVariables, &ctxDoc); err != nil {
		invalid.add("%s: %v", fileContextVariables, err)
	}
	for _, v := range ctxDoc.ContextVariables {
		if v.Name == "" {
			invalid.add("%s: context variable entry missing name", fileContextVariables)
			continue
		}
		if _, dup := cfg.ContextVariables[v.Name]; dup {
			invalid.add("%s: duplicate context variable name %q", fileContextVariables, v.Name)
			continue
		}
		cfg.ContextVariables[v.Name] = v
	}

	var structDoc struct {
		StructuredOutputs []StructuredOutputSpec `json:"structured_outputs"`
	}
	if err := readManifest(root, fileStructuredOutputs, &structDoc); err != nil {
		invalid.add("%s: %v", fileStructuredOutputs, err)
	}
	for _, s := range structDoc.StructuredOutputs {
		if s.Name == "" {
			invalid.add("%s: structured output entry missing name", fileStructuredOutputs)
			continue
		}
		cfg.StructuredOutputs[s.Name] = s
	}

	var orchDoc OrchestratorConfig
	if err := readManifest(root, fileOrchestrator, &orchDoc); err != nil {
		invalid.add("%s: %v", fileOrchestrator, err)
	}
	if orchDoc.StartupMode == "" {
		orchDoc.StartupMode = StartupUserDriven
	}
	cfg.Orchestrator = orchDoc

	if invalid.failed() {
		return nil, nil, invalid
	}

	warnings := validateCrossReferences(cfg, invalid)
	if invalid.failed() {
		return nil, nil, invalid
	}

	return cfg, warnings, nil
}

// readManifest decodes one manifest file with JSON5 tolerance (comments,
// trailing commas) and environment-variable expansion, matching
// internal/config/loader.go's raw-load idiom. Unknown fields are rejected by
// round-tripping through a strict json.Decoder after JSON5 normalizes to
// standard JSON.
func readManifest(root, filename string, out any) error {
	path := filepath.Join(root, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var raw any
	if err := json5.Unmarshal([]byte(expanded), &raw); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to normalize %s: %w", path, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(normalized))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
