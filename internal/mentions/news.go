package mentions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/papersources"
)

const (
	// DefaultNewsBaseURL is the NewsAPI base URL.
	DefaultNewsBaseURL = "https://newsapi.org/v2"

	// newsRateLimit keeps the client under NewsAPI's developer-tier quota.
	newsRateLimit = 0.5

	newsPlatform = "news"
)

// NewsConfig configures the news mention searcher.
type NewsConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewsClient searches news coverage via NewsAPI.
type NewsClient struct {
	config     NewsConfig
	httpClient *papersources.HTTPClient
}

var _ Searcher = (*NewsClient)(nil)

// NewNewsClient creates a news mention searcher.
func NewNewsClient(cfg NewsConfig) *NewsClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultNewsBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &NewsClient{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Timeout:      cfg.Timeout,
			RateLimit:    newsRateLimit,
			BurstSize:    1,
			APIKey:       cfg.APIKey,
			APIKeyHeader: "X-Api-Key",
		}),
	}
}

// NewNewsClientWithHTTPClient is used by tests against a local server.
func NewNewsClientWithHTTPClient(cfg NewsConfig, httpClient *papersources.HTTPClient) *NewsClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &NewsClient{config: cfg, httpClient: httpClient}
}

type newsResponse struct {
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Articles []newsArticle `json:"articles"`
}

type newsArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"` // RFC 3339
}

// Search returns news articles mentioning the query.
func (c *NewsClient) Search(ctx context.Context, query string) ([]Mention, error) {
	values := url.Values{}
	values.Set("q", query)
	values.Set("sortBy", "publishedAt")

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/everything?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(newsPlatform, resp.StatusCode, string(body), nil)
	}

	var parsed newsResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Status != "ok" {
		return nil, domain.NewExternalAPIError(newsPlatform, resp.StatusCode, parsed.Message, nil)
	}

	found := make([]Mention, 0, len(parsed.Articles))
	for _, article := range parsed.Articles {
		if article.URL == "" {
			continue
		}
		postedAt := time.Time{}
		if t, err := time.Parse(time.RFC3339, article.PublishedAt); err == nil {
			postedAt = t.UTC()
		}
		found = append(found, Mention{
			Platform: article.Source.Name,
			Title:    strings.TrimSpace(article.Title),
			URL:      article.URL,
			Author:   article.Author,
			PostedAt: postedAt,
		})
	}
	return found, nil
}

// Platform identifies this searcher in reports and metrics.
func (c *NewsClient) Platform() string { return newsPlatform }
