// Package diagnose provides a client for chat-completion style endpoints that
// turns raw build error output into a human-readable diagnosis.
//
// The package is organized into:
// - Request/response types for the chat-completion wire format
// - The Client that sends a single analysis request
// - Prompt construction for NDK/C++ build failures
//
// This file contains the wire types and defaults used throughout the package.
package diagnose

// Default endpoint settings, used when the environment does not override them.
const (
	DefaultURL         = "https://api.shengsuan.cloud/v1/chat/completions"
	DefaultModel       = "deepseek/deepseek-v3.2"
	DefaultTemperature = 0.1
)

// Message is a single conversation turn.
type Message struct {
	// Role is "system", "user" or "assistant"
	Role string `json:"role"`
	// Content is the text of the message
	Content string `json:"content"`
}

// ChatRequest is the body POSTed to the endpoint. It always carries a
// one-message conversation.
type ChatRequest struct {
	// Model is the model identifier
	Model string `json:"model"`
	// Messages is the conversation
	Messages []Message `json:"messages"`
	// Temperature is the sampling temperature
	Temperature float64 `json:"temperature"`
}

// Choice is one completion returned by the endpoint.
type Choice struct {
	Index   int     `json:"index"`
	Message Message `json:"message"`
}

// ChatResponse is the subset of the endpoint response the client reads.
type ChatResponse struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
}
