package ctxstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/flowlane/flowlane/internal/workflow"
)

var (
	// ErrUnknownVariable is returned by Set/Get for a name not declared in
	// the workflow's context_variables.json.
	ErrUnknownVariable = errors.New("unknown context variable")
)

// DatabaseFetcher resolves a "database"-sourced context variable's query at
// session-start time. Implementations are injected by the caller (C4's
// persistence layer owns the actual DB driver); ctxstore stays driver-free.
type DatabaseFetcher interface {
	Fetch(ctx context.Context, query string) (any, error)
}

// Store is one session's context variable store. Per spec.md §5's
// per-session-task model, a Store is owned exclusively by its session's
// goroutine and is not safe for concurrent use from multiple goroutines —
// this mirrors the runtime's "no locks needed within one session" design
// rather than the teacher's MemoryStore, which is shared across callers and
// therefore mutex-protected.
type Store struct {
	values    map[string]Value
	exposedTo map[string][]string
	triggers  []compiledTrigger
}

type compiledTrigger struct {
	varName string
	trigger workflow.ContextVarTrigger
	re      *regexp.Regexp
}

// NewStore initializes a Store from a loaded workflow's context variable
// declarations. Static and environment-sourced variables are resolved
// immediately; database-sourced variables are resolved via fetcher; derived
// variables start unset until a trigger fires.
func NewStore(ctx context.Context, cfg *workflow.WorkflowConfig, env func(string) string, fetcher DatabaseFetcher) (*Store, error) {
	s := &Store{
		values:    make(map[string]Value, len(cfg.ContextVariables)),
		exposedTo: make(map[string][]string, len(cfg.ContextVariables)),
	}

	for name, v := range cfg.ContextVariables {
		s.exposedTo[name] = v.ExposedTo

		switch v.Type {
		case workflow.ContextVarStatic:
			s.values[name] = Value{Name: name, Value: v.StaticVal, Type: v.Type, UpdatedAt: time.Now()}
		case workflow.ContextVarEnvironment:
			var val any
			if env != nil {
				val = env(v.EnvVar)
			}
			s.values[name] = Value{Name: name, Value: val, Type: v.Type, UpdatedAt: time.Now()}
		case workflow.ContextVarDatabase:
			if fetcher == nil {
				return nil, fmt.Errorf("context variable %q is database-sourced but no DatabaseFetcher was provided", name)
			}
			val, err := fetcher.Fetch(ctx, v.Query)
			if err != nil {
				return nil, fmt.Errorf("context variable %q: fetch query %q: %w", name, v.Query, err)
			}
			s.values[name] = Value{Name: name, Value: val, Type: v.Type, UpdatedAt: time.Now()}
		case workflow.ContextVarDerived:
			s.values[name] = Value{Name: name, Type: v.Type}
			for _, trig := range v.Triggers {
				ct := compiledTrigger{varName: name, trigger: trig}
				if trig.Type == workflow.TriggerAgentText && trig.Match == workflow.MatchRegex {
					re, err := regexp.Compile(trig.Value)
					if err != nil {
						return nil, fmt.Errorf("context variable %q: invalid regex %q: %w", name, trig.Value, err)
					}
					ct.re = re
				}
				s.triggers = append(s.triggers, ct)
			}
		}
	}

	return s, nil
}

// Get returns one variable's current value.
func (s *Store) Get(name string) (Value, bool) {
	v, ok := s.values[name]
	if !ok {
		return Value{}, false
	}
	return v.clone(), true
}

// Set writes a variable's value directly, bypassing trigger matching. Used
// by the Coordinator (C7) to apply ui_response extractions and by tests.
func (s *Store) Set(name string, value any, updatedBy string) error {
	if _, ok := s.values[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariable, name)
	}
	existing := s.values[name]
	existing.Value = value
	existing.UpdatedAt = time.Now()
	existing.UpdatedBy = updatedBy
	s.values[name] = existing
	return nil
}

// ExposeFor returns the subset of variables readable by agentName, per each
// variable's exposed_to list. A variable with an empty exposed_to list is
// visible to every agent (the permissive default; see DESIGN.md).
func (s *Store) ExposeFor(agentName string) map[string]any {
	out := make(map[string]any, len(s.values))
	for name, v := range s.values {
		allow := s.exposedTo[name]
		if len(allow) == 0 || containsName(allow, agentName) {
			out[name] = v.clone().Value
		}
	}
	return out
}

// Snapshot returns every variable's current value, for C4 to persist as part
// of a session's conversation-state blob.
func (s *Store) Snapshot() map[string]Value {
	out := make(map[string]Value, len(s.values))
	for name, v := range s.values {
		out[name] = v.clone()
	}
	return out
}

// Restore replaces the store's current values with a previously captured
// snapshot, for C9 resume. Trigger wiring (compiled from the workflow
// config) is unaffected.
func (s *Store) Restore(snapshot map[string]Value) {
	for name, v := range snapshot {
		s.values[name] = v.clone()
	}
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
