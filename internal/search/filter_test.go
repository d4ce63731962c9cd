package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"telecare/pkg"
)

// fakeProber treats every link in alive as resolvable.
type fakeProber struct {
	alive  map[string]bool
	probed []string
}

func (p *fakeProber) VideoExists(_ context.Context, link string) bool {
	p.probed = append(p.probed, link)
	return p.alive[link]
}

func TestFilterRecommendations(t *testing.T) {
	results := []pkg.SearchResult{
		{Title: "book", Link: "https://www.amazon.com/dp/123"},
		{Title: "alive video", Link: "https://www.youtube.com/watch?v=abc"},
		{Title: "dead video", Link: "https://www.youtube.com/watch?v=gone"},
		{Title: "article", Link: "https://example.org/post"},
	}
	prober := &fakeProber{alive: map[string]bool{"https://www.youtube.com/watch?v=abc": true}}

	kept := FilterRecommendations(context.Background(), results, prober)

	want := []string{"alive video", "article"}
	if len(kept) != len(want) {
		t.Fatalf("kept %d results, want %d: %v", len(kept), len(want), kept)
	}
	for i := range want {
		if kept[i].Title != want[i] {
			t.Errorf("kept[%d] = %q, want %q", i, kept[i].Title, want[i])
		}
	}
	if len(prober.probed) != 2 {
		t.Errorf("probed %d links, want only the 2 youtube ones", len(prober.probed))
	}
}

func TestFilterRecommendations_NilProberKeepsVideos(t *testing.T) {
	results := []pkg.SearchResult{
		{Title: "video", Link: "https://www.youtube.com/watch?v=abc"},
	}
	kept := FilterRecommendations(context.Background(), results, nil)
	if len(kept) != 1 {
		t.Errorf("kept %d results, want 1 when no prober is wired", len(kept))
	}
}

func TestIsMarketplaceLink(t *testing.T) {
	cases := []struct {
		link string
		want bool
	}{
		{"https://www.amazon.com/dp/123", true},
		{"https://www.AMAZON.de/dp/123", true},
		{"https://example.org/amazon-book-list", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"https://example.org/post", false},
	}
	for _, tc := range cases {
		if got := isMarketplaceLink(tc.link); got != tc.want {
			t.Errorf("isMarketplaceLink(%q) = %v, want %v", tc.link, got, tc.want)
		}
	}
}

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		link string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc123", "abc123"},
		{"https://www.youtube.com/watch?v=abc123&t=42s", "abc123"},
		{"https://www.youtube.com/channel/xyz", ""},
	}
	for _, tc := range cases {
		if got := extractVideoID(tc.link); got != tc.want {
			t.Errorf("extractVideoID(%q) = %q, want %q", tc.link, got, tc.want)
		}
	}
}

func TestYouTubeProber_VideoExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "https://www.youtube.com/watch?v=alive" {
			w.Write([]byte(`{"title":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	prober := NewYouTubeProber(server.URL)
	ctx := context.Background()

	if !prober.VideoExists(ctx, "https://www.youtube.com/watch?v=alive") {
		t.Error("VideoExists() = false for a resolvable video")
	}
	if prober.VideoExists(ctx, "https://www.youtube.com/watch?v=deleted") {
		t.Error("VideoExists() = true for a 404 video")
	}
	if prober.VideoExists(ctx, "https://www.youtube.com/channel/no-id") {
		t.Error("VideoExists() = true for a link without a video id")
	}
}
