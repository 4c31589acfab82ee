package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowlane/flowlane/internal/agent"
)

// providerAsker adapts an agent.LLMProvider to orchestrator.LLMAsker: a
// one-shot yes/no completion for a string_llm handoff condition (spec.md
// §6.4's expression grammar stops short of LLM-evaluated conditions, which
// is exactly the gap this type fills), grounded on
// internal/orchestrator/orchestrator.go's runAgentTurn request shape.
type providerAsker struct {
	provider agent.LLMProvider
}

func (a *providerAsker) Ask(ctx context.Context, question, contextText string) (bool, error) {
	req := &agent.CompletionRequest{
		System: "Answer strictly with \"yes\" or \"no\", nothing else.",
		Messages: []agent.CompletionMessage{
			{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextText, question)},
		},
	}

	chunks, err := a.provider.Complete(ctx, req)
	if err != nil {
		return false, fmt.Errorf("asker: completion request failed: %w", err)
	}

	var answer strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return false, fmt.Errorf("asker: %w", chunk.Error)
		}
		answer.WriteString(chunk.Text)
	}

	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer.String())), "yes"), nil
}
