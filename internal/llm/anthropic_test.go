package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time check that AnthropicClient implements Client.
var _ Client = (*AnthropicClient)(nil)

func newAnthropicTestClient(t *testing.T, serverURL string, maxRetries int) *AnthropicClient {
	t.Helper()
	cfg := AnthropicConfig{
		APIKey:  "test-api-key",
		Model:   "claude-sonnet-4-20250514",
		BaseURL: serverURL,
	}
	client := NewAnthropicClient(cfg, 4096, 10*time.Second, maxRetries)
	client.retryDelay = 10 * time.Millisecond
	return client
}

func TestAnthropicClient_Complete(t *testing.T) {
	t.Run("successful completion returns first text block and usage", func(t *testing.T) {
		var receivedReq messagesRequest
		var receivedAPIKey string
		var receivedVersion string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedAPIKey = r.Header.Get("x-api-key")
			receivedVersion = r.Header.Get("anthropic-version")

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			defer r.Body.Close()
			require.NoError(t, json.Unmarshal(body, &receivedReq))

			resp := messagesResponse{
				ID:    "msg_abc123",
				Type:  "message",
				Role:  "assistant",
				Model: "claude-sonnet-4-20250514",
				Content: []contentBlock{
					{Type: "text", Text: "```json\n{\"kind\": \"new_method\"}\n```"},
				},
				StopReason: "end_turn",
				Usage: anthropicUsage{
					InputTokens:  1200,
					OutputTokens: 250,
				},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}))
		t.Cleanup(server.Close)

		client := newAnthropicTestClient(t, server.URL, 0)
		req := ChatRequest{
			System:      "You classify research papers.",
			User:        "[S1] A benchmark for long-context retrieval.",
			Temperature: 0,
		}

		result, err := client.Complete(context.Background(), req)

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Contains(t, result.Content, `"kind": "new_method"`)
		assert.Equal(t, "claude-sonnet-4-20250514", result.Model)
		assert.Equal(t, 1200, result.InputTokens)
		assert.Equal(t, 250, result.OutputTokens)

		assert.Equal(t, "test-api-key", receivedAPIKey)
		assert.Equal(t, anthropicAPIVersion, receivedVersion)
		assert.Equal(t, "You classify research papers.", receivedReq.System)
		require.Len(t, receivedReq.Messages, 1)
		assert.Equal(t, "user", receivedReq.Messages[0].Role)
	})

	t.Run("retries transient errors then succeeds", func(t *testing.T) {
		requestCount := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCount++
			if requestCount == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`))
				return
			}
			resp := messagesResponse{
				Content: []contentBlock{{Type: "text", Text: "ok"}},
				Usage:   anthropicUsage{InputTokens: 10, OutputTokens: 1},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}))
		t.Cleanup(server.Close)

		client := newAnthropicTestClient(t, server.URL, 2)
		result, err := client.Complete(context.Background(), ChatRequest{User: "test"})

		require.NoError(t, err)
		assert.Equal(t, "ok", result.Content)
		assert.Equal(t, 2, requestCount)
	})

	t.Run("does not retry non-transient errors", func(t *testing.T) {
		requestCount := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestCount++
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "max_tokens required"}}`))
		}))
		t.Cleanup(server.Close)

		client := newAnthropicTestClient(t, server.URL, 3)
		_, err := client.Complete(context.Background(), ChatRequest{User: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_tokens required")
		assert.Equal(t, 1, requestCount)
	})

	t.Run("errors on response without text blocks", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := messagesResponse{
				Content: []contentBlock{{Type: "tool_use"}},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}))
		t.Cleanup(server.Close)

		client := newAnthropicTestClient(t, server.URL, 0)
		_, err := client.Complete(context.Background(), ChatRequest{User: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no text content blocks")
	})
}

func TestAnthropicClient_Provider(t *testing.T) {
	client := NewAnthropicClient(AnthropicConfig{Model: "claude-sonnet-4-20250514"}, 0, time.Second, 0)
	assert.Equal(t, "anthropic", client.Provider())
	assert.Equal(t, "claude-sonnet-4-20250514", client.Model())
}
