package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperpulse/analysis-service/internal/domain"
	"github.com/paperpulse/analysis-service/internal/papersources"
)

func newTestClient(serverURL string) *Client {
	cfg := Config{
		BaseURL:    serverURL,
		Timeout:    5 * time.Second,
		RateLimit:  100, // no throttling in tests
		MaxResults: 25,
	}
	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: 100,
	})
	return NewWithHTTPClient(cfg, httpClient)
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <opensearch:totalResults>172</opensearch:totalResults>
  <opensearch:startIndex>0</opensearch:startIndex>
  <opensearch:itemsPerPage>2</opensearch:itemsPerPage>
  <entry>
    <id>http://arxiv.org/abs/2401.99999v2</id>
    <title> Sparse  Mixture
	Routing at Scale </title>
    <summary>
      We study routing.
      It works well.
    </summary>
    <published>2024-01-15T18:30:00Z</published>
    <updated>2024-01-20T09:00:00Z</updated>
    <author><name>Ada Example</name></author>
    <author><name> Grace Sample </name></author>
    <arxiv:primary_category term="cs.LG"/>
    <category term="cs.LG"/>
    <category term="cs.AI"/>
    <link href="http://arxiv.org/abs/2401.99999v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2401.99999v2" rel="related" type="application/pdf" title="pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.11111v1</id>
    <title>A Second Paper</title>
    <summary>Abstract text.</summary>
    <published>2024-01-14T12:00:00Z</published>
    <author><name>Solo Author</name></author>
    <category term="cs.AI"/>
  </entry>
</feed>`

const emptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <opensearch:totalResults>0</opensearch:totalResults>
</feed>`

func TestClient_FetchRecent(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		gotQuery = map[string]string{
			"search_query": r.URL.Query().Get("search_query"),
			"max_results":  r.URL.Query().Get("max_results"),
			"sortBy":       r.URL.Query().Get("sortBy"),
			"sortOrder":    r.URL.Query().Get("sortOrder"),
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	page, err := client.FetchRecent(context.Background(), "cs.LG", 2)
	require.NoError(t, err)

	assert.Equal(t, "cat:cs.LG", gotQuery["search_query"])
	assert.Equal(t, "2", gotQuery["max_results"])
	assert.Equal(t, "submittedDate", gotQuery["sortBy"])
	assert.Equal(t, "descending", gotQuery["sortOrder"])

	require.Len(t, page.Papers, 2)
	assert.Equal(t, 172, page.TotalResults)
	assert.Equal(t, 2, page.NextOffset)
	assert.True(t, page.HasMore)

	first := page.Papers[0]
	assert.Equal(t, domain.PaperSourceArXiv, first.Source)
	assert.Equal(t, "2401.99999", first.ExternalID, "version suffix is stripped")
	assert.Equal(t, "Sparse Mixture Routing at Scale", first.Title, "whitespace is collapsed")
	assert.Equal(t, "We study routing. It works well.", first.Abstract)
	assert.Equal(t, []string{"Ada Example", "Grace Sample"}, first.Authors)
	assert.Equal(t, []string{"cs.LG", "cs.AI"}, first.Categories)
	assert.Equal(t, "cs.LG", first.PrimaryCategory)
	assert.Equal(t, "http://arxiv.org/pdf/2401.99999v2", first.PDFURL)
	assert.Equal(t, time.Date(2024, 1, 15, 18, 30, 0, 0, time.UTC), first.PublishedAt)
	assert.False(t, first.FetchedAt.IsZero())

	second := page.Papers[1]
	assert.Equal(t, "cs.AI", second.PrimaryCategory, "falls back to the first category term")
	assert.Equal(t, "http://arxiv.org/pdf/2401.11111", second.PDFURL, "built from the ID when the feed has no pdf link")
}

func TestClient_FetchRange(t *testing.T) {
	var gotQuery string
	var gotStart string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		gotStart = r.URL.Query().Get("start")
		_, _ = w.Write([]byte(emptyFeed))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	from := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)

	page, err := client.FetchRange(context.Background(), "cs.AI", from, to, 50, 25)
	require.NoError(t, err)

	assert.Equal(t, "cat:cs.AI AND submittedDate:[202401100000 TO 202401122359]", gotQuery)
	assert.Equal(t, "50", gotStart)
	assert.Empty(t, page.Papers)
	assert.False(t, page.HasMore)
}

func TestClient_GetByExternalID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "2401.99999", r.URL.Query().Get("id_list"))
			_, _ = w.Write([]byte(sampleFeed))
		}))
		defer server.Close()

		paper, err := newTestClient(server.URL).GetByExternalID(context.Background(), "2401.99999")
		require.NoError(t, err)
		assert.Equal(t, "2401.99999", paper.ExternalID)
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(emptyFeed))
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).GetByExternalID(context.Background(), "1234.00000")
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad search_query", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchRecent(context.Background(), "cs.AI", 5)
	require.Error(t, err)

	var apiErr *domain.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_MalformedFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not xml"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchRecent(context.Background(), "cs.AI", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response")
}

func TestExtractArXivID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://arxiv.org/abs/2401.12345v1", "2401.12345"},
		{"http://arxiv.org/abs/2401.12345", "2401.12345"},
		{"http://arxiv.org/abs/hep-th/9901001v3", "hep-th/9901001"},
		{"http://example.com/nothing", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArXivID(tt.in), tt.in)
	}
}
