package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"telecare/pkg"
)

// Service is the web-search collaborator as the pipeline sees it.
type Service interface {
	Search(ctx context.Context, query string, limit int) ([]pkg.SearchResult, error)
}

const serpAPIBaseURL = "https://serpapi.com/search.json"

// SerpAPIClient queries the SerpAPI Google engine and maps organic results
// to {title, snippet, link}.
type SerpAPIClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewSerpAPIClient constructs a search client. baseURL overrides the
// endpoint when non-empty (tests point it at a stub server).
func NewSerpAPIClient(apiKey, baseURL string) *SerpAPIClient {
	if baseURL == "" {
		baseURL = serpAPIBaseURL
	}
	return &SerpAPIClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type organicResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type searchResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
}

// Search returns up to limit organic results for the query.
func (c *SerpAPIClient) Search(ctx context.Context, query string, limit int) ([]pkg.SearchResult, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", c.apiKey)
	params.Set("num", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search service returned status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]pkg.SearchResult, 0, len(body.OrganicResults))
	for _, r := range body.OrganicResults {
		if len(results) == limit {
			break
		}
		results = append(results, pkg.SearchResult{Title: r.Title, Snippet: r.Snippet, Link: r.Link})
	}
	return results, nil
}
