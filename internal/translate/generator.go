// Package translate batch-translates UI and chat strings with a single
// text-generation request per batch, degrading to the originals on failure.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common errors
var (
	ErrNotConfigured = errors.New("translation provider not configured")
	ErrEmptyResponse = errors.New("translation provider returned no text")
)

// Generator sends one free-text prompt and returns the model's text.
type Generator interface {
	Name() string
	Available() bool
	Generate(ctx context.Context, prompt string) (string, error)
}

// StatusError is a non-success response from a provider.
type StatusError struct {
	Provider string
	Status   int
	Err      error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %v", e.Provider, e.Status, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// StatusOverloaded is the non-standard status some providers use when overloaded.
const StatusOverloaded = 529

// Retryable reports whether the status means rate limited or overloaded.
func (e *StatusError) Retryable() bool {
	switch e.Status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, StatusOverloaded:
		return true
	}
	return false
}
