// Package llm provides the completion capability behind the pipeline. A
// single Client interface covers one-shot prompts and multi-turn
// continuations; provider selection happens once at construction.
package llm

import "context"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
)

// Turn is one message in a conversation replay.
type Turn struct {
	Role Role
	Text string
}

// Usage reports token consumption for one invocation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the sum of two usage reports.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Client defines the interface for LLM providers.
type Client interface {
	// Complete sends a single prompt and returns the completion.
	Complete(ctx context.Context, prompt string) (string, Usage, error)

	// CompleteConversation replays prior turns verbatim and returns the
	// completion for the whole dialogue.
	CompleteConversation(ctx context.Context, turns []Turn) (string, Usage, error)
}
