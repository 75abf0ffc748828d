// Package auth provides bearer-token credentials for the diagnostic endpoint.
// It keeps the API key private and masks it whenever credentials are printed.
//
// Example usage:
//
//	creds := auth.NewCredentials(os.Getenv("SHENGSUAN_API_KEY"))
//	if err := creds.ValidateCredentials(); err != nil {
//	    return err
//	}
//	req.Header.Set("Authorization", creds.GetAuthHeader())
package auth

import (
	"fmt"
	"strings"
)

// Credentials holds the API key used to authenticate against a
// chat-completion endpoint.
type Credentials struct {
	// apiKey is the API key for authentication (kept private)
	apiKey string
}

// NewCredentials creates a new Credentials instance for the provided API key.
// Surrounding whitespace is trimmed so keys read from .env files with stray
// spaces still work.
//
// Parameters:
//   - apiKey: The API key for authentication
//
// Returns:
//   - *Credentials: A new credentials instance
func NewCredentials(apiKey string) *Credentials {
	return &Credentials{
		apiKey: strings.TrimSpace(apiKey),
	}
}

// GetAuthHeader generates the Authorization header value for API requests.
//
// Returns:
//   - string: The complete Authorization header value
func (c *Credentials) GetAuthHeader() string {
	return fmt.Sprintf("Bearer %s", c.apiKey)
}

// GetAPIKey returns the API key associated with these credentials.
// This method provides controlled access to the private apiKey field.
//
// Returns:
//   - string: The API key
func (c *Credentials) GetAPIKey() string {
	return c.apiKey
}

// IsSet reports whether an API key is configured at all.
func (c *Credentials) IsSet() bool {
	return c != nil && c.apiKey != ""
}

// ValidateCredentials checks that the API key is present and contains no
// characters that would break the Authorization header.
//
// Returns:
//   - error: An error if validation fails, nil otherwise
func (c *Credentials) ValidateCredentials() error {
	if !c.IsSet() {
		return fmt.Errorf("API key is required")
	}
	if strings.ContainsAny(c.apiKey, " \t\r\n") {
		return fmt.Errorf("invalid API key format (must not contain whitespace)")
	}
	return nil
}

// String provides a safe string representation of the credentials,
// masking the API key to prevent accidental exposure in logs.
//
// Returns:
//   - string: A string representation with masked API key
func (c *Credentials) String() string {
	if !c.IsSet() {
		return "Credentials{APIKey: <unset>}"
	}
	return "Credentials{APIKey: ****}"
}
