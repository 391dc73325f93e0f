package tool

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/smallnest/reelgraph/content"
)

// TavilySearch searches the web with the Tavily API.
type TavilySearch struct {
	APIKey      string
	BaseURL     string
	MaxResults  int
	SearchDepth string
	Topic       string
	HTTPClient  *http.Client
}

type TavilyOption func(*TavilySearch)

// WithTavilyBaseURL sets the search endpoint.
func WithTavilyBaseURL(baseURL string) TavilyOption {
	return func(t *TavilySearch) { t.BaseURL = baseURL }
}

// WithTavilyDepth sets the search depth ("basic" or "advanced").
func WithTavilyDepth(depth string) TavilyOption {
	return func(t *TavilySearch) { t.SearchDepth = depth }
}

// WithTavilyHTTPClient sets the HTTP client used for requests.
func WithTavilyHTTPClient(c *http.Client) TavilyOption {
	return func(t *TavilySearch) { t.HTTPClient = c }
}

// NewTavilySearch creates a Tavily client.
// If apiKey is empty, it tries to read from TAVILY_API_KEY environment variable.
func NewTavilySearch(apiKey string, opts ...TavilyOption) (*TavilySearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("TAVILY_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY not set")
	}
	t := &TavilySearch{
		APIKey:      apiKey,
		BaseURL:     "https://api.tavily.com/search",
		MaxResults:  20,
		SearchDepth: "advanced",
		Topic:       "news",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type tavilyRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth,omitempty"`
	Topic       string `json:"topic,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search returns results ordered by Tavily's relevance score.
func (t *TavilySearch) Search(ctx context.Context, query string, limit int) ([]content.SearchResult, error) {
	n := t.MaxResults
	if limit > 0 {
		n = limit
	}

	headers := map[string]string{"Authorization": "Bearer " + t.APIKey}
	req := tavilyRequest{Query: query, MaxResults: n, SearchDepth: t.SearchDepth, Topic: t.Topic}

	var resp tavilyResponse
	if err := doJSON(ctx, defaultClient(t.HTTPClient), "tavily", http.MethodPost, t.BaseURL, headers, req, &resp); err != nil {
		return nil, err
	}

	results := make([]content.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, content.SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}
