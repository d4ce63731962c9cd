package core

import (
	"context"
	"time"

	"telecare/internal/logger"
	"telecare/pkg"
)

// SummaryMaxLen caps stored summaries so the context fed into future
// requests stays bounded.
const SummaryMaxLen = 500

// memoryFetchLimit bounds how many past summaries are loaded per request.
// Storage itself is append-only and unbounded.
const memoryFetchLimit = 50

// MemoryRepo is the slice of the repository the memory store needs.
type MemoryRepo interface {
	AppendMemory(ctx context.Context, userID, summary string) error
	ListMemories(ctx context.Context, userID string, limit int) ([]pkg.MemoryEntry, error)
}

// MemoryStore is the append-only log of summarized prior exchanges.
// Reads feed context into the pipeline; writes are best-effort and never
// block or fail the user-visible answer.
type MemoryStore struct {
	repo MemoryRepo
}

// NewMemoryStore wraps a repository.
func NewMemoryStore(repo MemoryRepo) *MemoryStore {
	return &MemoryStore{repo: repo}
}

// Fetch returns the user's recent summaries in ascending creation order.
func (s *MemoryStore) Fetch(ctx context.Context, userID string) ([]string, error) {
	entries, err := s.repo.ListMemories(ctx, userID, memoryFetchLimit)
	if err != nil {
		return nil, err
	}
	summaries := make([]string, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, e.Summary)
	}
	return summaries, nil
}

// Append stores a summary in a detached background task. The write is
// truncated to SummaryMaxLen first; a failure is logged and otherwise
// swallowed.
func (s *MemoryStore) Append(userID, summary string) {
	summary = Truncate(summary, SummaryMaxLen)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.repo.AppendMemory(ctx, userID, summary); err != nil {
			logger.For("core.memory").WithError(err).WithField("user_id", userID).
				Warn("memory append failed")
		}
	}()
}

// Truncate cuts s to at most max characters.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
