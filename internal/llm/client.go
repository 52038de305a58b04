// Package llm provides chat-completion clients for the analysis pipeline.
//
// The package defines a provider-neutral Client interface over the OpenAI
// Chat Completions API and the Anthropic Messages API. Callers build their
// own prompts; the client handles transport, retries on transient failures,
// and token accounting for budget tracking.
package llm

import (
	"context"
	"strings"
)

// ChatRequest is a single prompted completion call.
type ChatRequest struct {
	// System is the system prompt (may be empty).
	System string

	// User is the user message containing the content to analyze.
	User string

	// Temperature is the sampling temperature. Analysis calls use 0 for
	// reproducibility.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the client default.
	MaxTokens int

	// JSONMode requests structured JSON output where the provider supports
	// it. Providers without a JSON response mode ignore this; callers must
	// still strip markdown fences before parsing (see StripCodeFence).
	JSONMode bool
}

// ChatResult is the completion plus the usage metadata needed for spend
// accounting.
type ChatResult struct {
	// Content is the raw completion text.
	Content string

	// Model is the model that produced the completion.
	Model string

	// InputTokens is the number of prompt tokens consumed.
	InputTokens int

	// OutputTokens is the number of completion tokens produced.
	OutputTokens int
}

// Client is a chat-completion client for one LLM provider.
//
// Implementations handle provider-specific API calls, retry transient
// failures, and return *APIError for API-level failures.
type Client interface {
	// Complete sends a single chat completion request. The context should
	// be used for cancellation and deadline propagation.
	Complete(ctx context.Context, req ChatRequest) (*ChatResult, error)

	// Provider returns the provider name (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// StripCodeFence removes a surrounding markdown code fence from a completion.
// Models without a native JSON response mode often wrap JSON output in
// ```json ... ``` fences; unfenced content is returned trimmed.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		// Drop a language tag (e.g. "json") on the opening fence line, but
		// keep the line when the payload starts immediately after the fence.
		if !strings.ContainsAny(trimmed[:idx], "{[\"") {
			trimmed = trimmed[idx+1:]
		}
	}

	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
