package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/smallnest/reelgraph/content"
)

// BraveSearch searches the web with the Brave Search API.
type BraveSearch struct {
	APIKey     string
	BaseURL    string
	Count      int
	Country    string
	Lang       string
	Freshness  string
	HTTPClient *http.Client
}

type BraveOption func(*BraveSearch)

// WithBraveBaseURL sets the base URL for the Brave Search API.
func WithBraveBaseURL(baseURL string) BraveOption {
	return func(b *BraveSearch) {
		b.BaseURL = baseURL
	}
}

// WithBraveCount sets the default number of results to return (1-20).
func WithBraveCount(count int) BraveOption {
	return func(b *BraveSearch) {
		b.Count = clampCount(count)
	}
}

// WithBraveCountry sets the country code for search results (e.g., "US", "CN").
func WithBraveCountry(country string) BraveOption {
	return func(b *BraveSearch) {
		b.Country = country
	}
}

// WithBraveLang sets the language code for search results (e.g., "en", "zh").
func WithBraveLang(lang string) BraveOption {
	return func(b *BraveSearch) {
		b.Lang = lang
	}
}

// WithBraveFreshness restricts results by age: "pd", "pw", "pm" or "py".
func WithBraveFreshness(freshness string) BraveOption {
	return func(b *BraveSearch) {
		b.Freshness = freshness
	}
}

// WithBraveHTTPClient sets the HTTP client used for requests.
func WithBraveHTTPClient(c *http.Client) BraveOption {
	return func(b *BraveSearch) {
		b.HTTPClient = c
	}
}

// NewBraveSearch creates a new BraveSearch.
// If apiKey is empty, it tries to read from BRAVE_API_KEY environment variable.
func NewBraveSearch(apiKey string, opts ...BraveOption) (*BraveSearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("BRAVE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("BRAVE_API_KEY not set")
	}

	b := &BraveSearch{
		APIKey:    apiKey,
		BaseURL:   "https://api.search.brave.com/res/v1/web/search",
		Count:     10,
		Country:   "US",
		Lang:      "en",
		Freshness: "pw",
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search returns up to limit results ranked by the API. A non-positive limit
// uses the configured count.
func (b *BraveSearch) Search(ctx context.Context, query string, limit int) ([]content.SearchResult, error) {
	count := b.Count
	if limit > 0 {
		count = clampCount(limit)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", fmt.Sprintf("%d", count))
	if b.Country != "" {
		params.Set("country", b.Country)
	}
	if b.Lang != "" {
		params.Set("search_lang", b.Lang)
	}
	if b.Freshness != "" {
		params.Set("freshness", b.Freshness)
	}

	reqURL := fmt.Sprintf("%s?%s", b.BaseURL, params.Encode())
	headers := map[string]string{"X-Subscription-Token": b.APIKey}

	var resp braveResponse
	if err := doJSON(ctx, defaultClient(b.HTTPClient), "brave", http.MethodGet, reqURL, headers, nil, &resp); err != nil {
		return nil, err
	}

	results := make([]content.SearchResult, 0, len(resp.Web.Results))
	for i, r := range resp.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, content.SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: stripTags(r.Description),
			// Brave does not score results; rank order is the signal.
			Score: 1 / float64(i+1),
		})
	}
	return results, nil
}

func clampCount(count int) int {
	if count < 1 {
		return 1
	}
	if count > 20 {
		return 20
	}
	return count
}
