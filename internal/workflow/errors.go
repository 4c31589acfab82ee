package workflow

import (
	"fmt"
	"strings"
)

// Warning is a non-fatal manifest issue. The loader's resolved open question
// (spec §9) is that a condition handoff reading a context variable whose only
// trigger is a UI-tool response from the source agent is a warning, not a
// load error.
type Warning struct {
	Path    string
	Message string
}

func (w Warning) String() string {
	if w.Path == "" {
		return w.Message
	}
	return w.Path + ": " + w.Message
}

// ConfigInvalid aggregates every manifest validation failure found during
// Load. The loader never stops at the first error, matching
// internal/config's merge-conflict accumulation idiom.
type ConfigInvalid struct {
	Issues []string
}

func (e *ConfigInvalid) Error() string {
	return "workflow manifest invalid:\n- " + strings.Join(e.Issues, "\n- ")
}

func (e *ConfigInvalid) add(format string, args ...any) {
	e.Issues = append(e.Issues, fmt.Sprintf(format, args...))
}

func (e *ConfigInvalid) failed() bool {
	return e != nil && len(e.Issues) > 0
}
