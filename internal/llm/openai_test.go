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

// Compile-time check that OpenAIClient implements Client.
var _ Client = (*OpenAIClient)(nil)

// newOpenAITestServer creates an httptest server that responds with the given handler.
func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// newOpenAITestClient creates an OpenAIClient configured to use the test server.
func newOpenAITestClient(t *testing.T, serverURL string) *OpenAIClient {
	t.Helper()
	cfg := OpenAIConfig{
		APIKey:  "test-api-key",
		Model:   "gpt-4o",
		BaseURL: serverURL,
	}
	return NewOpenAIClient(cfg, 4096, 10*time.Second, 0)
}

func TestOpenAIClient_Complete(t *testing.T) {
	t.Run("successful completion returns content and usage", func(t *testing.T) {
		var receivedReq chatRequest
		var receivedAuthHeader string
		var receivedContentType string

		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			receivedAuthHeader = r.Header.Get("Authorization")
			receivedContentType = r.Header.Get("Content-Type")

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			defer r.Body.Close()

			err = json.Unmarshal(body, &receivedReq)
			require.NoError(t, err)

			resp := chatResponse{
				ID:    "chatcmpl-abc123",
				Model: "gpt-4o",
				Choices: []chatChoice{
					{
						Index: 0,
						Message: chatMessage{
							Role:    "assistant",
							Content: `{"role": "capability", "role_confidence": 0.85}`,
						},
						FinishReason: "stop",
					},
				},
				Usage: chatUsage{
					PromptTokens:     1500,
					CompletionTokens: 320,
					TotalTokens:      1820,
				},
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(resp)
		})

		client := newOpenAITestClient(t, server.URL)
		req := ChatRequest{
			System:      "You analyze research papers and respond with JSON.",
			User:        "[S1] We present a new attention mechanism.",
			Temperature: 0,
			JSONMode:    true,
		}

		result, err := client.Complete(context.Background(), req)

		require.NoError(t, err)
		require.NotNil(t, result)

		assert.Equal(t, `{"role": "capability", "role_confidence": 0.85}`, result.Content)
		assert.Equal(t, "gpt-4o", result.Model)
		assert.Equal(t, 1500, result.InputTokens)
		assert.Equal(t, 320, result.OutputTokens)

		// Verify request was correctly formed.
		assert.Equal(t, "Bearer test-api-key", receivedAuthHeader)
		assert.Equal(t, "application/json", receivedContentType)
		assert.Equal(t, "gpt-4o", receivedReq.Model)
		assert.Equal(t, float64(0), receivedReq.Temperature)
		require.NotNil(t, receivedReq.ResponseFormat)
		assert.Equal(t, "json_object", receivedReq.ResponseFormat.Type)

		require.Len(t, receivedReq.Messages, 2)
		assert.Equal(t, "system", receivedReq.Messages[0].Role)
		assert.Equal(t, "user", receivedReq.Messages[1].Role)
		assert.Contains(t, receivedReq.Messages[1].Content, "[S1]")
	})

	t.Run("omits system message and response format when unset", func(t *testing.T) {
		var receivedReq chatRequest

		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			defer r.Body.Close()
			require.NoError(t, json.Unmarshal(body, &receivedReq))

			resp := chatResponse{
				ID:      "chatcmpl-plain",
				Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "ok"}}},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		})

		client := newOpenAITestClient(t, server.URL)
		_, err := client.Complete(context.Background(), ChatRequest{User: "summarize this"})
		require.NoError(t, err)

		require.Len(t, receivedReq.Messages, 1)
		assert.Equal(t, "user", receivedReq.Messages[0].Role)
		assert.Nil(t, receivedReq.ResponseFormat)
	})

	t.Run("context cancellation stops request", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			// Simulate a slow server that never responds in time.
			time.Sleep(5 * time.Second)
			w.WriteHeader(http.StatusOK)
		})

		client := newOpenAITestClient(t, server.URL)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := client.Complete(ctx, ChatRequest{User: "test"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai")
	})
}

func TestOpenAIClient_Complete_APIError(t *testing.T) {
	tests := []struct {
		name           string
		statusCode     int
		responseBody   string
		wantErrContain string
	}{
		{
			name:       "401 unauthorized with structured error",
			statusCode: http.StatusUnauthorized,
			responseBody: `{
				"error": {
					"message": "Incorrect API key provided: test-a...key.",
					"type": "invalid_request_error",
					"code": "invalid_api_key"
				}
			}`,
			wantErrContain: "Incorrect API key provided",
		},
		{
			name:       "400 bad request",
			statusCode: http.StatusBadRequest,
			responseBody: `{
				"error": {
					"message": "Invalid model specified.",
					"type": "invalid_request_error",
					"code": "model_not_found"
				}
			}`,
			wantErrContain: "Invalid model specified",
		},
		{
			name:           "429 rate limit with retry exhaustion",
			statusCode:     http.StatusTooManyRequests,
			responseBody:   `{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error", "code": "rate_limit_exceeded"}}`,
			wantErrContain: "exhausted",
		},
		{
			name:           "500 internal server error with retry exhaustion",
			statusCode:     http.StatusInternalServerError,
			responseBody:   `{"error": {"message": "Internal server error", "type": "server_error", "code": "server_error"}}`,
			wantErrContain: "exhausted",
		},
		{
			name:           "non-JSON error body",
			statusCode:     http.StatusForbidden,
			responseBody:   "Forbidden: access denied",
			wantErrContain: "Forbidden: access denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requestCount := 0
			server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
				requestCount++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.responseBody))
			})

			cfg := OpenAIConfig{
				APIKey:  "test-api-key",
				Model:   "gpt-4o",
				BaseURL: server.URL,
			}
			retries := 1
			client := NewOpenAIClient(cfg, 4096, 10*time.Second, retries)
			// Reduce retry delay for fast test execution.
			client.retryDelay = 10 * time.Millisecond

			_, err := client.Complete(context.Background(), ChatRequest{User: "test"})

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErrContain)

			// Transient errors should be retried.
			isTransient := tt.statusCode == http.StatusTooManyRequests || tt.statusCode >= 500
			if isTransient {
				assert.Equal(t, retries+1, requestCount, "transient error should trigger retries")
			} else {
				assert.Equal(t, 1, requestCount, "non-transient error should not be retried")
			}
		})
	}
}

func TestOpenAIClient_Complete_MalformedResponse(t *testing.T) {
	t.Run("malformed JSON in response wrapper", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`not valid json at all`))
		})

		client := newOpenAITestClient(t, server.URL)
		_, err := client.Complete(context.Background(), ChatRequest{User: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai: failed to unmarshal response")
	})

	t.Run("empty choices array", func(t *testing.T) {
		server := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			resp := chatResponse{
				ID:      "chatcmpl-nochoices",
				Choices: []chatChoice{},
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(resp)
		})

		client := newOpenAITestClient(t, server.URL)
		_, err := client.Complete(context.Background(), ChatRequest{User: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai: empty choices in response")
	})
}

func TestOpenAIClient_Provider(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{}, 0, 30*time.Second, 3)
	assert.Equal(t, "openai", client.Provider())
}

func TestNewOpenAIClient(t *testing.T) {
	t.Run("applies default values for empty config", func(t *testing.T) {
		client := NewOpenAIClient(OpenAIConfig{}, 0, 0, -1)

		assert.Equal(t, defaultOpenAIBaseURL, client.baseURL)
		assert.Equal(t, defaultOpenAIModel, client.model)
		assert.Equal(t, defaultOpenAIMaxTokens, client.maxTokens)
		assert.Equal(t, 0, client.maxRetries)
		assert.NotNil(t, client.httpClient)
	})

	t.Run("uses provided config values", func(t *testing.T) {
		cfg := OpenAIConfig{
			APIKey:  "sk-test-key",
			Model:   "gpt-4o-mini",
			BaseURL: "https://custom-api.example.com/v1",
		}
		client := NewOpenAIClient(cfg, 2048, 45*time.Second, 5)

		assert.Equal(t, "https://custom-api.example.com/v1", client.baseURL)
		assert.Equal(t, "gpt-4o-mini", client.model)
		assert.Equal(t, "sk-test-key", client.apiKey)
		assert.Equal(t, 2048, client.maxTokens)
		assert.Equal(t, 5, client.maxRetries)
	})
}
