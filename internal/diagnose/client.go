// Package diagnose provides error analysis through a chat-completion endpoint.
// This file implements the client, including:
// - Building the analysis prompt from captured build output
// - Sending the request with bearer authentication
// - Extracting the first completion's text
//
// The client is advisory: callers are expected to treat any error as "no
// diagnosis available" rather than a build failure.
package diagnose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ndkfix/internal/auth"
)

var (
	// ErrDisabled is returned without any network I/O when no API key is set.
	ErrDisabled = errors.New("error analysis disabled: no API key configured")
	// ErrEmptyResponse is returned when the endpoint answers without choices.
	ErrEmptyResponse = errors.New("analysis response contained no choices")
)

const promptTemplate = `You are an expert in Android NDK and C++ native builds.
Analyze the following build error and suggest how to fix it.

Build error:
%s

Give concrete, step-by-step repair instructions.`

// Client sends build errors to a chat-completion endpoint.
type Client struct {
	creds       *auth.Credentials
	url         string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewClient creates a new Client. Empty url or model fall back to the
// package defaults.
//
// Parameters:
//   - apiKey: Bearer token; an empty key disables the client
//   - url: Endpoint URL
//   - model: Model identifier
//   - temperature: Sampling temperature
//
// Returns:
//   - *Client: A new client instance
func NewClient(apiKey, url, model string, temperature float64) *Client {
	if url == "" {
		url = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		creds:       auth.NewCredentials(apiKey),
		url:         url,
		model:       model,
		temperature: temperature,
		httpClient:  &http.Client{},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.creds.IsSet()
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// URL returns the configured endpoint.
func (c *Client) URL() string {
	return c.url
}

// BuildPrompt wraps the captured error output in the analysis instructions.
func BuildPrompt(errorText string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(errorText))
}

// Analyze sends errorText to the endpoint and returns the text of the first
// completion.
//
// Parameters:
//   - ctx: Request context
//   - errorText: Captured build error output
//
// Returns:
//   - string: The diagnosis
//   - error: ErrDisabled when no API key is set, or any transport/decoding error
func (c *Client) Analyze(ctx context.Context, errorText string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if err := c.creds.ValidateCredentials(); err != nil {
		return "", fmt.Errorf("invalid credentials: %w", err)
	}

	payload, err := json.Marshal(ChatRequest{
		Model:       c.model,
		Messages:    []Message{{Role: "user", Content: BuildPrompt(errorText)}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("error encoding request: %w", err)
	}

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", c.creds.GetAuthHeader())
	req.Header.Set("Content-Type", "application/json")

	// Make request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	// Read response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("request failed with status: %d, body: %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return chatResp.Choices[0].Message.Content, nil
}
