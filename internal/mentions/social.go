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
	// DefaultSocialBaseURL is the Social Searcher API base URL.
	DefaultSocialBaseURL = "https://api.social-searcher.com/v2"

	// socialRateLimit stays under the API's free-tier quota.
	socialRateLimit = 0.5

	socialPlatform = "social"
)

// SocialConfig configures the social mention searcher.
type SocialConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SocialClient searches social networks via the Social Searcher API.
type SocialClient struct {
	config     SocialConfig
	httpClient *papersources.HTTPClient
}

var _ Searcher = (*SocialClient)(nil)

// NewSocialClient creates a social mention searcher.
func NewSocialClient(cfg SocialConfig) *SocialClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSocialBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &SocialClient{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: socialRateLimit,
			BurstSize: 1,
		}),
	}
}

// NewSocialClientWithHTTPClient is used by tests against a local server.
func NewSocialClientWithHTTPClient(cfg SocialConfig, httpClient *papersources.HTTPClient) *SocialClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &SocialClient{config: cfg, httpClient: httpClient}
}

type socialResponse struct {
	Posts []socialPost `json:"posts"`
}

type socialPost struct {
	Network string `json:"network"`
	Posted  string `json:"posted"` // "2024-01-15 18:30:00 +00000"
	Text    string `json:"text"`
	URL     string `json:"url"`
	User    struct {
		Name string `json:"name"`
	} `json:"user"`
}

// Search returns social posts mentioning the query.
func (c *SocialClient) Search(ctx context.Context, query string) ([]Mention, error) {
	values := url.Values{}
	values.Set("q", query)
	values.Set("key", c.config.APIKey)

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/search?" + values.Encode()
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
		return nil, domain.NewExternalAPIError(socialPlatform, resp.StatusCode, string(body), nil)
	}

	var parsed socialResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	found := make([]Mention, 0, len(parsed.Posts))
	for _, post := range parsed.Posts {
		if post.URL == "" {
			continue
		}
		found = append(found, Mention{
			Platform: post.Network,
			Title:    strings.TrimSpace(post.Text),
			URL:      post.URL,
			Author:   post.User.Name,
			PostedAt: parseSocialTime(post.Posted),
		})
	}
	return found, nil
}

// Platform identifies this searcher in reports and metrics.
func (c *SocialClient) Platform() string { return socialPlatform }

// parseSocialTime handles the API's "2024-01-15 18:30:00 +00000" format.
// The zone token is nonstandard, so it is dropped and the time read as UTC.
func parseSocialTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if i := strings.LastIndex(raw, " +"); i > 0 {
		raw = raw[:i]
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
