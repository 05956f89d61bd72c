// Package generator defines the reply-generation capability the coach
// consumes, plus the two built-in implementations: an OpenAI-compatible
// HTTP client for a local inference server and a deterministic
// pattern-based fallback that works fully offline.
package generator

import (
	"context"

	"github.com/mindloop-app/mindloop/pkg/memory"
)

// Request carries everything a generator may use to produce a reply.
type Request struct {
	SystemPrompt string
	// UserContext is the long-term memory digest; may be empty.
	UserContext string
	// Messages is the budget-selected recent history, oldest first,
	// ending with the new user message.
	Messages []memory.Message
}

// Generator produces one assistant reply. Implementations may fail;
// callers must recover to a consistent, non-generating state on error.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// lastUserContent returns the content of the newest user message.
func lastUserContent(msgs []memory.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == memory.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
