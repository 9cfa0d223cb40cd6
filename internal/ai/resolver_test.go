package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaBras1/keep-brain/internal/store"
	"github.com/LucaBras1/keep-brain/internal/vault"
)

type fakeSettingsStore struct {
	settings *store.UserSettings
	err      error
}

func (f *fakeSettingsStore) GetUserSettings(ctx context.Context, userID string) (*store.UserSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.settings, nil
}

// plainDecrypter treats the "ciphertext" as the plaintext; handy when a test
// only cares about resolution order.
type plainDecrypter struct{}

func (plainDecrypter) Decrypt(ciphertext, iv string) (string, error) {
	return ciphertext, nil
}

type failingDecrypter struct{}

func (failingDecrypter) Decrypt(ciphertext, iv string) (string, error) {
	return "", vault.ErrTamperedOrCorruptData
}

func TestResolverPrefersExplicitOpenAISelection(t *testing.T) {
	r := NewResolver(nil, plainDecrypter{}, ResolverConfig{DefaultAnthropicKey: "env-key"}, nil)

	provider, err := r.ForSettings(&store.UserSettings{
		UserID:       "u1",
		Provider:     store.VendorOpenAI,
		OpenAIKey:    "sk-user-openai",
		OpenAIIV:     "iv",
		OpenAIModel:  "gpt-4o",
		AnthropicKey: "sk-user-anthropic",
		AnthropicIV:  "iv",
		ClaudeModel:  store.DefaultClaudeModel,
	})
	require.NoError(t, err)
	require.IsType(t, &OpenAIClient{}, provider)
	assert.Equal(t, "gpt-4o", provider.Model())
}

func TestResolverFallsBackToStoredAnthropicKey(t *testing.T) {
	r := NewResolver(nil, plainDecrypter{}, ResolverConfig{}, nil)

	tests := []struct {
		name     string
		settings *store.UserSettings
	}{
		{
			name: "claude selected with stored key",
			settings: &store.UserSettings{
				Provider:     store.VendorClaude,
				AnthropicKey: "sk-stored",
				AnthropicIV:  "iv",
				ClaudeModel:  store.DefaultClaudeModel,
			},
		},
		{
			name: "openai selected but no openai key stored",
			settings: &store.UserSettings{
				Provider:     store.VendorOpenAI,
				AnthropicKey: "sk-stored",
				AnthropicIV:  "iv",
				ClaudeModel:  store.DefaultClaudeModel,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := r.ForSettings(tt.settings)
			require.NoError(t, err)
			assert.IsType(t, &AnthropicClient{}, provider)
		})
	}
}

func TestResolverUsesEnvironmentFallback(t *testing.T) {
	r := NewResolver(nil, plainDecrypter{}, ResolverConfig{DefaultAnthropicKey: "env-key"}, nil)

	provider, err := r.ForSettings(store.DefaultSettings("u1"))
	require.NoError(t, err)
	require.IsType(t, &AnthropicClient{}, provider)
	assert.Equal(t, store.DefaultClaudeModel, provider.Model())
}

func TestResolverNoProviderConfigured(t *testing.T) {
	r := NewResolver(nil, plainDecrypter{}, ResolverConfig{}, nil)

	_, err := r.ForSettings(store.DefaultSettings("u1"))
	assert.ErrorIs(t, err, ErrNoProviderConfigured)
}

func TestResolverDecryptFailureDoesNotFallThrough(t *testing.T) {
	// A corrupt credential must surface, not silently degrade to the
	// environment key.
	r := NewResolver(nil, failingDecrypter{}, ResolverConfig{DefaultAnthropicKey: "env-key"}, nil)

	_, err := r.ForSettings(&store.UserSettings{
		Provider:     store.VendorClaude,
		AnthropicKey: "garbage",
		AnthropicIV:  "iv",
		ClaudeModel:  store.DefaultClaudeModel,
	})
	assert.ErrorIs(t, err, vault.ErrTamperedOrCorruptData)
}

func TestResolverForUser(t *testing.T) {
	t.Run("settings load error propagates", func(t *testing.T) {
		r := NewResolver(&fakeSettingsStore{err: fmt.Errorf("db down")}, plainDecrypter{}, ResolverConfig{}, nil)
		_, err := r.ForUser(context.Background(), "u1")
		assert.Error(t, err)
	})

	t.Run("resolves from loaded settings", func(t *testing.T) {
		fs := &fakeSettingsStore{settings: &store.UserSettings{
			Provider:     store.VendorClaude,
			AnthropicKey: "sk-stored",
			AnthropicIV:  "iv",
			ClaudeModel:  store.DefaultClaudeModel,
		}}
		r := NewResolver(fs, plainDecrypter{}, ResolverConfig{}, nil)
		provider, err := r.ForUser(context.Background(), "u1")
		require.NoError(t, err)
		assert.IsType(t, &AnthropicClient{}, provider)
	})
}

func TestValidator(t *testing.T) {
	t.Run("valid anthropic key", func(t *testing.T) {
		server := anthropicOK(t, "ok", nil)
		v := &Validator{AnthropicBaseURL: server.URL}

		res := v.Validate(context.Background(), store.VendorClaude, "sk-ant-candidate")
		assert.True(t, res.Valid)
		assert.Empty(t, res.Error)
	})

	t.Run("invalid openai key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided"}}`))
		}))
		defer server.Close()
		v := &Validator{OpenAIBaseURL: server.URL}

		res := v.Validate(context.Background(), store.VendorOpenAI, "sk-bad")
		assert.False(t, res.Valid)
		assert.Contains(t, res.Error, "Incorrect API key")
	})

	t.Run("empty key fails without calling the API", func(t *testing.T) {
		v := &Validator{}
		res := v.Validate(context.Background(), store.VendorClaude, "")
		assert.False(t, res.Valid)
		assert.NotEmpty(t, res.Error)
	})
}
