package ai

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LucaBras1/keep-brain/internal/store"
)

// SettingsStore loads a user's AI settings.
type SettingsStore interface {
	GetUserSettings(ctx context.Context, userID string) (*store.UserSettings, error)
}

// Decrypter opens vault-encrypted key material.
type Decrypter interface {
	Decrypt(ciphertext, iv string) (string, error)
}

// ResolverConfig holds process-level provider defaults.
type ResolverConfig struct {
	// DefaultAnthropicKey is the optional environment-level fallback key
	// for the first vendor.
	DefaultAnthropicKey string
	AnthropicBaseURL    string
	OpenAIBaseURL       string
	Timeout             time.Duration
}

// Resolver picks a Provider for a user. Construction is explicit: no hidden
// process-wide client, so a missing key fails visibly at resolution time.
type Resolver struct {
	settings SettingsStore
	vault    Decrypter
	cfg      ResolverConfig
	logger   *zap.Logger
}

// NewResolver creates a Resolver.
func NewResolver(settings SettingsStore, vault Decrypter, cfg ResolverConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{settings: settings, vault: vault, cfg: cfg, logger: logger}
}

// ForUser loads the user's settings and resolves a provider for them.
func (r *Resolver) ForUser(ctx context.Context, userID string) (Provider, error) {
	settings, err := r.settings.GetUserSettings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user settings: %w", err)
	}
	return r.ForSettings(settings)
}

// ForSettings resolves a provider from already-loaded settings.
//
// Resolution order: an explicit OpenAI selection with a stored key wins,
// then a stored Anthropic key, then the environment-level Anthropic fallback.
// A decryption failure is fatal for that credential and never falls through
// to a weaker source.
func (r *Resolver) ForSettings(settings *store.UserSettings) (Provider, error) {
	if settings.Provider == store.VendorOpenAI && settings.OpenAIKey != "" {
		key, err := r.vault.Decrypt(settings.OpenAIKey, settings.OpenAIIV)
		if err != nil {
			return nil, fmt.Errorf("decrypt openai key: %w", err)
		}
		return NewOpenAIClient(ClientConfig{
			APIKey:  key,
			Model:   settings.OpenAIModel,
			BaseURL: r.cfg.OpenAIBaseURL,
			Timeout: r.cfg.Timeout,
		})
	}

	if settings.AnthropicKey != "" {
		key, err := r.vault.Decrypt(settings.AnthropicKey, settings.AnthropicIV)
		if err != nil {
			return nil, fmt.Errorf("decrypt anthropic key: %w", err)
		}
		return NewAnthropicClient(ClientConfig{
			APIKey:  key,
			Model:   settings.ClaudeModel,
			BaseURL: r.cfg.AnthropicBaseURL,
			Timeout: r.cfg.Timeout,
		})
	}

	if r.cfg.DefaultAnthropicKey != "" {
		r.logger.Debug("using environment-level anthropic key",
			zap.String("user_id", settings.UserID))
		return NewAnthropicClient(ClientConfig{
			APIKey:  r.cfg.DefaultAnthropicKey,
			Model:   settings.ClaudeModel,
			BaseURL: r.cfg.AnthropicBaseURL,
			Timeout: r.cfg.Timeout,
		})
	}

	return nil, ErrNoProviderConfigured
}
