package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flowlane/flowlane/internal/workflow"
)

// loadWorkflows loads every workflow manifest directory (spec.md §6.3)
// found immediately under root, keyed by directory name -- the same name
// workflow.Load derives as WorkflowConfig.Name.
func loadWorkflows(root string) (map[string]*workflow.WorkflowConfig, error) {
	workflows := make(map[string]*workflow.WorkflowConfig)
	if root == "" {
		return workflows, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return workflows, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		cfg, warnings, err := workflow.Load(dir)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", entry.Name(), err)
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "workflow %q: warning: %s\n", entry.Name(), w)
		}
		workflows[cfg.Name] = cfg
	}
	return workflows, nil
}
