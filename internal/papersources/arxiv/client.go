// Package arxiv implements the arXiv Atom query API client.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/papersources"
)

const (
	// DefaultBaseURL is the arXiv export API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit honors arXiv's one-request-per-three-seconds etiquette.
	DefaultRateLimit = 1.0 / 3.0

	// DefaultTimeout bounds each fetch; the export API can be slow on large
	// result pages.
	DefaultTimeout = 45 * time.Second

	// DefaultMaxResults is the page size used when the caller does not ask
	// for one.
	DefaultMaxResults = 100

	sourceName = "arXiv"
)

// arxivIDPattern pulls the bare ID out of an abs URL, dropping the version
// suffix: "http://arxiv.org/abs/2401.12345v2" yields "2401.12345".
var arxivIDPattern = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config tunes the arXiv client; zero values fall back to the defaults.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	MaxResults int
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client queries the arXiv Atom API.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates an arXiv client with its own rate-limited HTTP client.
func New(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		config: cfg,
		httpClient: papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: 1,
		}),
	}
}

// NewWithHTTPClient creates a client around an existing HTTP client, used by
// tests against a local server.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{config: cfg, httpClient: httpClient}
}

// FetchRecent returns the newest submissions in a category.
func (c *Client) FetchRecent(ctx context.Context, category string, maxResults int) (*papersources.Page, error) {
	return c.query(ctx, "cat:"+category, 0, maxResults)
}

// FetchRange returns submissions in a category within [from, to], starting
// at offset so a backfill can resume mid-range.
func (c *Client) FetchRange(ctx context.Context, category string, from, to time.Time, offset, maxResults int) (*papersources.Page, error) {
	filter := fmt.Sprintf("submittedDate:[%s0000 TO %s2359]",
		from.UTC().Format("20060102"), to.UTC().Format("20060102"))
	return c.query(ctx, "cat:"+category+" AND "+filter, offset, maxResults)
}

// GetByExternalID retrieves one paper by its arXiv ID.
func (c *Client) GetByExternalID(ctx context.Context, externalID string) (*domain.Paper, error) {
	endpoint, err := c.queryURL(url.Values{"id_list": {externalID}})
	if err != nil {
		return nil, err
	}

	parsed, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if len(parsed.Entries) == 0 {
		return nil, domain.NewNotFoundError("paper", externalID)
	}
	paper := c.entryToPaper(&parsed.Entries[0])
	if paper == nil {
		return nil, domain.NewNotFoundError("paper", externalID)
	}
	return paper, nil
}

// Source identifies this client's papers as arXiv.
func (c *Client) Source() domain.PaperSource {
	return domain.PaperSourceArXiv
}

func (c *Client) query(ctx context.Context, searchQuery string, offset, maxResults int) (*papersources.Page, error) {
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	values := url.Values{}
	values.Set("search_query", searchQuery)
	values.Set("max_results", strconv.Itoa(maxResults))
	if offset > 0 {
		values.Set("start", strconv.Itoa(offset))
	}
	values.Set("sortBy", "submittedDate")
	values.Set("sortOrder", "descending")

	endpoint, err := c.queryURL(values)
	if err != nil {
		return nil, err
	}

	parsed, err := c.fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	papers := make([]*domain.Paper, 0, len(parsed.Entries))
	for i := range parsed.Entries {
		if paper := c.entryToPaper(&parsed.Entries[i]); paper != nil {
			papers = append(papers, paper)
		}
	}

	nextOffset := offset + len(parsed.Entries)
	return &papersources.Page{
		Papers:       papers,
		TotalResults: parsed.TotalResults,
		NextOffset:   nextOffset,
		HasMore:      nextOffset < parsed.TotalResults,
	}, nil
}

func (c *Client) queryURL(values url.Values) (string, error) {
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/query"
	base.RawQuery = values.Encode()
	return base.String(), nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*feed, error) {
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
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var parsed feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &parsed, nil
}

// entryToPaper maps an Atom entry onto a domain paper. Entries without an
// extractable arXiv ID are dropped.
func (c *Client) entryToPaper(e *entry) *domain.Paper {
	externalID := extractArXivID(e.ID)
	if externalID == "" {
		return nil
	}

	var publishedAt time.Time
	if e.Published != "" {
		if t, err := time.Parse(time.RFC3339, e.Published); err == nil {
			publishedAt = t.UTC()
		}
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make([]string, 0, len(e.Categories))
	for _, cat := range e.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}
	primary := e.PrimaryCategory.Term
	if primary == "" && len(categories) > 0 {
		primary = categories[0]
	}

	pdfURL := ""
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			pdfURL = l.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = "http://arxiv.org/pdf/" + externalID
	}

	return &domain.Paper{
		Source:          domain.PaperSourceArXiv,
		ExternalID:      externalID,
		Title:           normalizeWhitespace(e.Title),
		Abstract:        normalizeWhitespace(e.Summary),
		Authors:         authors,
		Categories:      categories,
		PrimaryCategory: primary,
		PDFURL:          pdfURL,
		PublishedAt:     publishedAt,
		FetchedAt:       time.Now().UTC(),
	}
}

func extractArXivID(entryURL string) string {
	matches := arxivIDPattern.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// normalizeWhitespace collapses the newlines and padding arXiv embeds in
// titles and abstracts into single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
