// Package llm defines the text-generation client interface and the provider
// registry that dispatches session requests to concrete backends (OpenAI,
// Gemini, DeepSeek). Each backend is a plain HTTP client; no SDK state is
// shared between providers, and clients are constructor-injected wherever
// they are consumed so tests can substitute fakes.
package llm

import (
	"context"
	"time"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a Complete or Stream call.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// CompletionResponse is the result of a non-streaming completion.
// Tokens is zero when the backend does not report usage — callers must
// tolerate undercounting rather than rely on estimates.
type CompletionResponse struct {
	Content  string        `json:"content"`
	Tokens   int           `json:"tokens"`
	Model    string        `json:"model,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// StreamEvent is a chunk from a streaming completion.
type StreamEvent struct {
	Type    string `json:"type"`              // "delta", "done", "error"
	Content string `json:"content,omitempty"` // text delta
	Error   string `json:"error,omitempty"`   // error message (type="error")

	// Final fields (type="done")
	Response *CompletionResponse `json:"response,omitempty"`
}

// Client is the interface all providers implement. Complete blocks until
// the remote call finishes or the context is done; no retries are
// performed, a failed call surfaces as a *ProviderError.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream sends a request and returns a channel of streaming events.
	// The channel is closed after the final "done" or "error" event.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)

	// Name returns the provider name (e.g., "openai", "gemini").
	Name() string
}
