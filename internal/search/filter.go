package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"telecare/pkg"
)

// marketplaceTokens mark links pointing at retail storefronts. Recommendation
// results are meant to surface free resources, so these are always dropped.
// Matching is plain substring, so every amazon link form is caught regardless
// of TLD or path shape.
var marketplaceTokens = []string{"amazon"}

// LinkProber checks whether a video link is still resolvable.
type LinkProber interface {
	VideoExists(ctx context.Context, link string) bool
}

// FilterRecommendations removes marketplace links and dead video links from
// recommendation results. Order of the surviving results is preserved.
func FilterRecommendations(ctx context.Context, results []pkg.SearchResult, prober LinkProber) []pkg.SearchResult {
	kept := make([]pkg.SearchResult, 0, len(results))
	for _, r := range results {
		if isMarketplaceLink(r.Link) {
			continue
		}
		if strings.Contains(r.Link, "youtube.com") && prober != nil && !prober.VideoExists(ctx, r.Link) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

func isMarketplaceLink(link string) bool {
	lower := strings.ToLower(link)
	for _, token := range marketplaceTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

const youtubeOEmbedURL = "https://www.youtube.com/oembed"

// YouTubeProber validates YouTube links through the public oEmbed endpoint:
// a 200 means the video still exists.
type YouTubeProber struct {
	baseURL string
	http    *http.Client
}

// NewYouTubeProber constructs a prober. baseURL overrides the oEmbed endpoint
// when non-empty.
func NewYouTubeProber(baseURL string) *YouTubeProber {
	if baseURL == "" {
		baseURL = youtubeOEmbedURL
	}
	return &YouTubeProber{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// VideoExists reports whether the linked video resolves. Links without a
// parseable video ID are treated as dead.
func (p *YouTubeProber) VideoExists(ctx context.Context, link string) bool {
	videoID := extractVideoID(link)
	if videoID == "" {
		return false
	}
	params := url.Values{}
	params.Set("url", "https://www.youtube.com/watch?v="+videoID)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return false
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	// Drain-and-discard keeps the connection reusable.
	var ignored json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&ignored)
	return true
}

func extractVideoID(link string) string {
	_, after, found := strings.Cut(link, "v=")
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(after, "&")
	return id
}
