package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const serpAPIFixture = `{
  "organic_results": [
    {"title": "First", "snippet": "first snippet", "link": "https://a.example"},
    {"title": "Second", "snippet": "second snippet", "link": "https://b.example"},
    {"title": "Third", "snippet": "third snippet", "link": "https://c.example"},
    {"title": "Fourth", "snippet": "fourth snippet", "link": "https://d.example"}
  ]
}`

func TestSerpAPIClient_Search(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"engine":  q.Get("engine"),
			"q":       q.Get("q"),
			"api_key": q.Get("api_key"),
			"num":     q.Get("num"),
		}
		w.Write([]byte(serpAPIFixture))
	}))
	defer server.Close()

	client := NewSerpAPIClient("test-key", server.URL)
	results, err := client.Search(context.Background(), "coping with stress", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if gotQuery["engine"] != "google" {
		t.Errorf("engine = %q, want google", gotQuery["engine"])
	}
	if gotQuery["q"] != "coping with stress" {
		t.Errorf("q = %q, want the query", gotQuery["q"])
	}
	if gotQuery["api_key"] != "test-key" {
		t.Errorf("api_key = %q, want test-key", gotQuery["api_key"])
	}
	if gotQuery["num"] != "3" {
		t.Errorf("num = %q, want 3", gotQuery["num"])
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want the limit of 3", len(results))
	}
	if results[0].Title != "First" || results[0].Snippet != "first snippet" || results[0].Link != "https://a.example" {
		t.Errorf("results[0] = %+v, want the first organic result", results[0])
	}
}

func TestSerpAPIClient_SearchUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewSerpAPIClient("test-key", server.URL)
	if _, err := client.Search(context.Background(), "anything", 3); err == nil {
		t.Error("Search() error = nil, want upstream status error")
	}
}

func TestSerpAPIClient_SearchEmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewSerpAPIClient("test-key", server.URL)
	results, err := client.Search(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want none", len(results))
	}
}
