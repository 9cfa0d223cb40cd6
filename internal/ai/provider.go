// Package ai provides a uniform completion capability over the two supported
// LLM vendors, plus per-user provider resolution and key validation.
package ai

import (
	"context"
	"errors"
	"time"
)

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultMaxTokens        = 1024
	defaultTimeout          = 60 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

var (
	// ErrNoProviderConfigured is returned when neither a stored key nor an
	// environment-level fallback key exists for the user.
	ErrNoProviderConfigured = errors.New("ai: no provider configured")

	// ErrProviderCall wraps any network, auth or rate-limit failure from a
	// vendor. Redelivery is owned by the queue layer, so clients report the
	// failure once instead of retrying internally.
	ErrProviderCall = errors.New("ai: provider call failed")
)

// Options tune a single completion call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Provider is the single capability both vendors implement.
type Provider interface {
	// Complete sends the prompt and returns the generated text.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)

	// Model returns the model the provider is bound to.
	Model() string
}

// retryableError marks a provider failure as transient so the queue worker
// can request redelivery instead of terminating the job.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// NewRetryableError marks err as transient. Exposed so other layers can
// classify their own transient failures the same way the vendor clients do.
func NewRetryableError(err error) error {
	return &retryableError{err: err}
}

// IsRetryable reports whether a provider failure is worth redelivering
// (timeouts, rate limits, server errors) as opposed to terminal ones
// (bad request, invalid key).
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
