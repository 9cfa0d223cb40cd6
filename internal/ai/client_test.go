package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anthropicOK(t *testing.T, text string, onRequest func(r *http.Request, body []byte)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(map[string]any{
			"id":   "msg_test",
			"type": "message",
			"role": "assistant",
			"content": []map[string]string{
				{"type": "text", "text": text},
			},
		})
		require.NoError(t, err)
		if onRequest != nil {
			reqBody, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			onRequest(r, reqBody)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewAnthropicClient(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr bool
	}{
		{name: "valid", cfg: ClientConfig{APIKey: "sk-ant-test", Model: "claude-3-5-sonnet-20241022"}, wantErr: false},
		{name: "missing key", cfg: ClientConfig{Model: "claude-3-5-sonnet-20241022"}, wantErr: true},
		{name: "missing model", cfg: ClientConfig{APIKey: "sk-ant-test"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewAnthropicClient(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Model, client.Model())
		})
	}
}

func TestAnthropicComplete(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	server := anthropicOK(t, `{"skip": true}`, func(r *http.Request, body []byte) {
		gotHeaders = r.Header.Clone()
		gotBody = body
	})

	client, err := NewAnthropicClient(ClientConfig{
		APIKey:  "sk-ant-test",
		Model:   "claude-3-5-sonnet-20241022",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "analyze this", Options{Temperature: 0.4, MaxTokens: 2048})
	require.NoError(t, err)
	assert.Equal(t, `{"skip": true}`, text)

	assert.Equal(t, "sk-ant-test", gotHeaders.Get("X-API-Key"))
	assert.Equal(t, "2023-06-01", gotHeaders.Get("Anthropic-Version"))

	var req anthropicRequest
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, 0.4, req.Temperature)
	assert.Equal(t, 2048, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "analyze this", req.Messages[0].Content)
}

func TestAnthropicCompleteErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
	}{
		{name: "auth failure is terminal", status: http.StatusUnauthorized,
			body: `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`, wantRetryable: false},
		{name: "rate limit is retryable", status: http.StatusTooManyRequests, body: `{}`, wantRetryable: true},
		{name: "server error is retryable", status: http.StatusInternalServerError, body: `boom`, wantRetryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewAnthropicClient(ClientConfig{
				APIKey: "sk-ant-test", Model: "claude-3-5-sonnet-20241022", BaseURL: server.URL,
			})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), "prompt", Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProviderCall)
			assert.Equal(t, tt.wantRetryable, IsRetryable(err))
		})
	}
}

func TestAnthropicCompleteNetworkFailureRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	client, err := NewAnthropicClient(ClientConfig{
		APIKey: "sk-ant-test", Model: "claude-3-5-sonnet-20241022", BaseURL: server.URL,
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "prompt", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderCall)
	assert.True(t, IsRetryable(err))
}

func TestOpenAIComplete(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)

		resp := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]string{
						"role":    "assistant",
						"content": `{"skip": false, "title": "X"}`,
					},
					"finish_reason": "stop",
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(ClientConfig{
		APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: server.URL,
	})
	require.NoError(t, err)

	text, err := client.Complete(context.Background(), "analyze", Options{Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, `{"skip": false, "title": "X"}`, text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestOpenAICompleteErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantRetryable bool
	}{
		{name: "invalid key is terminal", status: http.StatusUnauthorized,
			body: `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, wantRetryable: false},
		{name: "rate limit is retryable", status: http.StatusTooManyRequests, body: `{}`, wantRetryable: true},
		{name: "bad gateway is retryable", status: http.StatusBadGateway, body: `upstream`, wantRetryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewOpenAIClient(ClientConfig{
				APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: server.URL,
			})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), "prompt", Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProviderCall)
			assert.Equal(t, tt.wantRetryable, IsRetryable(err))
		})
	}
}

func TestOpenAIEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(ClientConfig{
		APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: server.URL,
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "prompt", Options{})
	assert.ErrorIs(t, err, ErrProviderCall)
}
