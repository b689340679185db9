// Package llm defines the Provider interface for text-completion backends.
//
// The orchestrator uses completions for two narrow jobs: structured field
// extraction from call transcripts, and generating agent replies when no
// live speech model is connected. Both are single-shot request/response
// exchanges, so the interface is deliberately small — no tool calling, no
// streaming.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Message is a single turn in a conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text of the turn.
	Content string
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically the user turn that drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the history. Providers without a dedicated system slot prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the text of the reply.
	Content string

	// Usage contains token accounting for this exchange.
	Usage Usage
}

// Provider is the abstraction over any completion backend.
//
// Complete must propagate context cancellation promptly: when ctx is
// cancelled it must return as soon as possible.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
