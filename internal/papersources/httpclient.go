package papersources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPClientConfig configures the shared rate-limited HTTP client.
type HTTPClientConfig struct {
	// Timeout bounds each individual request attempt.
	Timeout time.Duration

	// RateLimit is the sustained requests per second.
	RateLimit float64

	// BurstSize is the maximum burst the limiter allows.
	BurstSize int

	// MaxRetries is how many times a failed attempt is retried.
	MaxRetries int

	// RetryDelay is the base wait between retries when the server does not
	// say otherwise via Retry-After.
	RetryDelay time.Duration

	// UserAgent identifies this service to the external API.
	UserAgent string

	// APIKey and APIKeyHeader optionally authenticate every request.
	APIKey       string
	APIKeyHeader string
}

// HTTPClient wraps http.Client with rate limiting and retry on 429 and 5xx.
// It is safe for concurrent use. Requests with bodies must set GetBody so a
// retry can resend them.
type HTTPClient struct {
	client      *http.Client
	rateLimiter *RateLimiter
	config      HTTPClientConfig
}

// NewHTTPClient creates a rate-limited HTTP client.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = 1
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "PaperPulse-AnalysisService/1.0"
	}
	return &HTTPClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		rateLimiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:      cfg,
	}
}

// Do executes the request, waiting on the rate limiter before every attempt.
// 429 responses honor Retry-After; 5xx and network errors use the configured
// delay. Context cancellation aborts immediately.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIKey != "" && c.config.APIKeyHeader != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.config.MaxRetries {
				if err := c.sleep(req.Context(), c.config.RetryDelay); err != nil {
					return nil, err
				}
				if err := c.rewindBody(req); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		if !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		delay := c.retryDelayFor(resp)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if attempt >= c.config.MaxRetries {
			return nil, fmt.Errorf("exhausted %d attempts, last status: %d", c.config.MaxRetries+1, resp.StatusCode)
		}
		if err := c.sleep(req.Context(), delay); err != nil {
			return nil, err
		}
		if err := c.rewindBody(req); err != nil {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("no response received")
}

func retryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode < 600)
}

// retryDelayFor prefers the server's Retry-After header, as seconds or an
// HTTP date, over the configured delay.
func (c *HTTPClient) retryDelayFor(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return c.config.RetryDelay
	}
	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return c.config.RetryDelay
}

func (c *HTTPClient) sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *HTTPClient) rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("cannot retry request: %w", err)
	}
	req.Body = body
	return nil
}
