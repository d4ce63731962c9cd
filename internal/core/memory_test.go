package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"telecare/pkg"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"overflowing", 8, "overflow"},
		{"", 5, ""},
		{"héllo wörld", 7, "héllo w"},
	}
	for _, tc := range cases {
		if got := Truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestMemoryStore_AppendTruncates(t *testing.T) {
	repo := newFakeRepo()
	store := NewMemoryStore(repo)

	store.Append("user-1", strings.Repeat("x", SummaryMaxLen+100))

	select {
	case got := <-repo.appended:
		if len([]rune(got)) != SummaryMaxLen {
			t.Errorf("stored summary length = %d, want %d", len([]rune(got)), SummaryMaxLen)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("append never reached the repository")
	}
}

func TestMemoryStore_AppendSwallowsRepoError(t *testing.T) {
	repo := newFakeRepo()
	repo.appendErr = errors.New("db down")
	store := NewMemoryStore(repo)

	// Must not panic and must not block the caller.
	store.Append("user-1", "a summary")
	time.Sleep(50 * time.Millisecond)
}

func TestMemoryStore_FetchKeepsOrder(t *testing.T) {
	repo := newFakeRepo()
	for _, s := range []string{"first", "second", "third"} {
		repo.memories = append(repo.memories, pkg.MemoryEntry{Summary: s})
	}
	store := NewMemoryStore(repo)

	got, err := store.Fetch(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("Fetch() returned %d summaries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("summary[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMemoryStore_FetchError(t *testing.T) {
	store := NewMemoryStore(failingMemoryRepo{})
	if _, err := store.Fetch(context.Background(), "user-1"); err == nil {
		t.Error("Fetch() error = nil, want repository error")
	}
}

type failingMemoryRepo struct{}

func (failingMemoryRepo) AppendMemory(context.Context, string, string) error {
	return errors.New("unavailable")
}

func (failingMemoryRepo) ListMemories(context.Context, string, int) ([]pkg.MemoryEntry, error) {
	return nil, errors.New("unavailable")
}
