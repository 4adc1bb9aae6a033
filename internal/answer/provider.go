// Package answer provides the chat providers that answer user turns.
package answer

import (
	"context"
	"errors"
	"fmt"

	"github.com/normanking/voiceavatar/internal/conversation"
)

// Common errors
var (
	ErrNotConfigured = errors.New("answer provider not configured")
	ErrEmptyAnswer   = errors.New("answer provider returned an empty response")
)

// Provider answers a user's text given the conversation so far.
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// GetAnswer returns the agent reply for text. history holds the turns
	// before text, oldest first.
	GetAnswer(ctx context.Context, text, language string, history []conversation.Turn) (*Answer, error)
}

// Answer is a provider reply.
type Answer struct {
	Response string `json:"response"`
	Model    string `json:"model,omitempty"`
	Tokens   int    `json:"tokens,omitempty"`
}

// ProviderError reports a failed answer retrieval.
type ProviderError struct {
	Provider string
	Status   int // HTTP status when the provider returned one
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s answer failed (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s answer failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
