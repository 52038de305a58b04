package mentions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/papersources"
)

type stubSearcher struct {
	platform string
	mentions []Mention
	err      error
}

func (s *stubSearcher) Search(_ context.Context, _ string) ([]Mention, error) {
	return s.mentions, s.err
}

func (s *stubSearcher) Platform() string { return s.platform }

func testHTTPClient() *papersources.HTTPClient {
	return papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:    5 * time.Second,
		RateLimit:  1000,
		BurstSize:  1000,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	})
}

func TestAggregator_SearchAll(t *testing.T) {
	ctx := context.Background()

	t.Run("aggregates per-platform counts", func(t *testing.T) {
		agg := NewAggregator([]Searcher{
			&stubSearcher{platform: "social", mentions: []Mention{{URL: "a"}, {URL: "b"}}},
			&stubSearcher{platform: "news", mentions: []Mention{{URL: "c"}}},
		}, nil, zerolog.Nop())

		report := agg.SearchAll(ctx, "2401.99999")

		assert.Equal(t, 3, report.Total)
		assert.Equal(t, 0, report.Failed)
		require.Len(t, report.Platforms, 2)
		assert.Equal(t, "social", report.Platforms[0].Platform)
		assert.Equal(t, 2, report.Platforms[0].Count)
		assert.Equal(t, 1, report.Platforms[1].Count)
	})

	t.Run("one platform failing does not abort the others", func(t *testing.T) {
		agg := NewAggregator([]Searcher{
			&stubSearcher{platform: "social", err: errors.New("quota exhausted")},
			&stubSearcher{platform: "news", mentions: []Mention{{URL: "c"}}},
		}, nil, zerolog.Nop())

		report := agg.SearchAll(ctx, "2401.99999")

		assert.Equal(t, 1, report.Total)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, "quota exhausted", report.Platforms[0].Err)
		assert.Equal(t, 1, report.Platforms[1].Count)
	})

	t.Run("no searchers yields an empty report", func(t *testing.T) {
		report := NewAggregator(nil, nil, zerolog.Nop()).SearchAll(ctx, "q")
		assert.Zero(t, report.Total)
		assert.Empty(t, report.Platforms)
	})
}

func TestSocialClient_Search(t *testing.T) {
	t.Run("parses posts", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/search", r.URL.Path)
			assert.Equal(t, "2401.99999", r.URL.Query().Get("q"))
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			_, _ = w.Write([]byte(`{"posts": [
				{"network": "twitter", "posted": "2024-01-15 18:30:00 +00000", "text": " Big result ", "url": "https://x.example/1", "user": {"name": "ada"}},
				{"network": "reddit", "posted": "bogus", "text": "no url", "url": ""}
			]}`))
		}))
		defer server.Close()

		client := NewSocialClientWithHTTPClient(SocialConfig{BaseURL: server.URL, APIKey: "test-key"}, testHTTPClient())
		found, err := client.Search(context.Background(), "2401.99999")

		require.NoError(t, err)
		require.Len(t, found, 1, "posts without a URL are dropped")
		assert.Equal(t, "twitter", found[0].Platform)
		assert.Equal(t, "Big result", found[0].Title)
		assert.Equal(t, "ada", found[0].Author)
		assert.Equal(t, time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC), found[0].PostedAt)
	})

	t.Run("non-200 is an external API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid key", http.StatusForbidden)
		}))
		defer server.Close()

		client := NewSocialClientWithHTTPClient(SocialConfig{BaseURL: server.URL}, testHTTPClient())
		_, err := client.Search(context.Background(), "q")

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})
}

func TestNewsClient_Search(t *testing.T) {
	t.Run("parses articles", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/everything", r.URL.Path)
			assert.Equal(t, "linear attention", r.URL.Query().Get("q"))
			_, _ = w.Write([]byte(`{"status": "ok", "articles": [
				{"source": {"name": "TechDaily"}, "author": "g. sample", "title": "Attention gets cheaper", "url": "https://news.example/1", "publishedAt": "2024-01-16T08:00:00Z"}
			]}`))
		}))
		defer server.Close()

		client := NewNewsClientWithHTTPClient(NewsConfig{BaseURL: server.URL}, testHTTPClient())
		found, err := client.Search(context.Background(), "linear attention")

		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "TechDaily", found[0].Platform)
		assert.Equal(t, "Attention gets cheaper", found[0].Title)
		assert.Equal(t, time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC), found[0].PostedAt)
	})

	t.Run("error status in the body is surfaced", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status": "error", "message": "apiKeyInvalid"}`))
		}))
		defer server.Close()

		client := NewNewsClientWithHTTPClient(NewsConfig{BaseURL: server.URL}, testHTTPClient())
		_, err := client.Search(context.Background(), "q")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "apiKeyInvalid")
	})
}
