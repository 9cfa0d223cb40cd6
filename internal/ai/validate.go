package ai

import (
	"context"
	"time"

	"github.com/LucaBras1/keep-brain/internal/store"
)

// validationMaxTokens keeps the probe completion cheap.
const validationMaxTokens = 10

// ValidationResult reports whether a key passed the probe call.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// Validator checks API keys against the real vendor APIs at registration
// time. Nothing is persisted.
type Validator struct {
	AnthropicBaseURL string
	OpenAIBaseURL    string
	Timeout          time.Duration
	ClaudeModel      string
	OpenAIModel      string
}

// ValidateAPIKey probes a key with default vendor endpoints and models.
func ValidateAPIKey(ctx context.Context, vendor store.Vendor, apiKey string) ValidationResult {
	v := &Validator{}
	return v.Validate(ctx, vendor, apiKey)
}

// Validate performs a minimal completion call with the candidate key.
func (v *Validator) Validate(ctx context.Context, vendor store.Vendor, apiKey string) ValidationResult {
	var (
		provider Provider
		err      error
	)
	switch vendor {
	case store.VendorOpenAI:
		model := v.OpenAIModel
		if model == "" {
			model = store.DefaultOpenAIModel
		}
		provider, err = NewOpenAIClient(ClientConfig{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: v.OpenAIBaseURL,
			Timeout: v.Timeout,
		})
	default:
		model := v.ClaudeModel
		if model == "" {
			model = store.DefaultClaudeModel
		}
		provider, err = NewAnthropicClient(ClientConfig{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: v.AnthropicBaseURL,
			Timeout: v.Timeout,
		})
	}
	if err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}

	if _, err := provider.Complete(ctx, "Hi", Options{MaxTokens: validationMaxTokens}); err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}
	return ValidationResult{Valid: true}
}
