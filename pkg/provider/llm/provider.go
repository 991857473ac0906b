// Package llm defines the Provider interface for Large Language Model
// backends used by the Tier-3 fallback analyzer.
//
// A provider wraps a remote or local chat-completion API (OpenAI, Anthropic
// via any-llm, a local Ollama instance) behind a uniform non-streaming
// interface. The router issues exactly one completion per Tier-3 call, so
// streaming and tool calling are deliberately out of this contract.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Message is a single message in a chat-completion conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and feed the cost aggregator.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically the
	// "user" message that drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation. Providers without a dedicated system slot prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests the
	// provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// CompletionResponse is the full model reply.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Complete must propagate context cancellation promptly: when ctx is
// cancelled the call returns as quickly as possible.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens the messages would consume in the
	// model's context window. The result need not be exact but should not
	// undercount.
	CountTokens(messages []Message) (int, error)

	// ModelID returns the backend model identifier, for logging and cost
	// records.
	ModelID() string
}
