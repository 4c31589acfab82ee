package main

import (
	"time"

	"github.com/flowlane/flowlane/internal/config"
	"github.com/flowlane/flowlane/internal/orchestrator"
	"github.com/flowlane/flowlane/internal/tools/exec"
	"github.com/flowlane/flowlane/internal/tools/files"
	"github.com/flowlane/flowlane/internal/tools/system"
	"github.com/flowlane/flowlane/internal/tools/websearch"
	"github.com/flowlane/flowlane/internal/usage"
)

// buildToolExecutor assembles the backend tool set (spec.md §6.3's
// "interface: invoke(name, args, session_context) -> value | ui_event")
// from the sandboxed filesystem, shell, and web-search tools already built
// out under internal/tools. A manifest's tools.json binds agents to these
// names; anything not in this map falls through ToolExecutor.Lookup's
// ok=false path, which the orchestrator treats as a configuration error.
func buildToolExecutor(cfg *config.Config) orchestrator.MapToolExecutor {
	workspace := cfg.Workspace.Path
	if workspace == "" {
		workspace = "."
	}

	filesCfg := files.Config{Workspace: workspace}
	execManager := exec.NewManager(workspace)

	m := orchestrator.MapToolExecutor{
		"read":        files.NewReadTool(filesCfg),
		"write":       files.NewWriteTool(filesCfg),
		"edit":        files.NewEditTool(filesCfg),
		"apply_patch": files.NewApplyPatchTool(filesCfg),
		"exec":        exec.NewExecTool("exec", execManager),
		"process":     exec.NewProcessTool(execManager),
	}

	// No fetchers are registered up front (spec.md's manifest format has no
	// per-provider usage-fetcher config); the tool still answers truthfully
	// with "provider not configured" per provider rather than failing.
	usageCache := usage.NewUsageCache(usage.NewUsageFetcherRegistry(), 5*time.Minute)
	m["provider_usage"] = system.NewUsageTool(usageCache)

	if cfg.Tools.WebSearch.Enabled {
		m["web_search"] = websearch.NewWebSearchTool(&websearch.Config{
			SearXNGURL:  cfg.Tools.WebSearch.URL,
			BraveAPIKey: cfg.Tools.WebSearch.BraveAPIKey,
		})
		m["web_fetch"] = websearch.NewWebFetchTool(nil)
	}

	return m
}
