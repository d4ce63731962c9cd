package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"telecare/internal/llm"
	"telecare/pkg"
)

// fakeLLM replays scripted replies and records every request it sees.
type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   [][]llm.Message
}

func (f *fakeLLM) Complete(_ context.Context, _ string, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, messages)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return "", errors.New("fakeLLM: no scripted reply")
}

func (f *fakeLLM) call(i int) []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.calls) {
		return nil
	}
	return f.calls[i]
}

// fakeSearch returns canned results or an error.
type fakeSearch struct {
	results []pkg.SearchResult
	err     error
	queries []string
}

func (f *fakeSearch) Search(_ context.Context, query string, limit int) ([]pkg.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > limit {
		return f.results[:limit], nil
	}
	return f.results, nil
}

// fakeRepo backs the memory store, referral engine and exchange counter.
type fakeRepo struct {
	mu            sync.Mutex
	memories      []pkg.MemoryEntry
	appended      chan string
	appendErr     error
	count         int
	countErr      error
	connectedIDs  []string
	doctorsByID   map[string]pkg.Doctor
	searchMatches []pkg.Doctor
	searchedTerms []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		appended:    make(chan string, 4),
		doctorsByID: make(map[string]pkg.Doctor),
	}
}

func (f *fakeRepo) ListMemories(_ context.Context, _ string, limit int) ([]pkg.MemoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > 0 && len(f.memories) > limit {
		return f.memories[len(f.memories)-limit:], nil
	}
	return f.memories, nil
}

func (f *fakeRepo) AppendMemory(_ context.Context, _ string, summary string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended <- summary
	return nil
}

func (f *fakeRepo) CountExchanges(_ context.Context, _ string) (int, error) {
	return f.count, f.countErr
}

func (f *fakeRepo) ConnectedDoctorIDs(_ context.Context, _ string) ([]string, error) {
	return f.connectedIDs, nil
}

func (f *fakeRepo) GetDoctorsByIDs(_ context.Context, ids []string) ([]pkg.Doctor, error) {
	var out []pkg.Doctor
	for _, id := range ids {
		if d, ok := f.doctorsByID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRepo) SearchDoctorsByProfession(_ context.Context, term string, limit int) ([]pkg.Doctor, error) {
	f.searchedTerms = append(f.searchedTerms, term)
	if len(f.searchMatches) > limit {
		return f.searchMatches[:limit], nil
	}
	return f.searchMatches, nil
}

const analysisPlain = `{"needsSearch":false,"searchQuery":null,"isTherapyRelated":true,"recommendBookOrVideo":false,"recommendationTopic":null}`

func newAssistant(model *fakeLLM, searcher *fakeSearch, repo *fakeRepo) *Assistant {
	return &Assistant{
		LLM:          model,
		Search:       searcher,
		Memory:       NewMemoryStore(repo),
		Referral:     NewReferralEngine(repo),
		Counter:      repo,
		ChatModel:    "test-model",
		SummaryModel: "test-model",
	}
}

func waitForAppend(t *testing.T, repo *fakeRepo) string {
	t.Helper()
	select {
	case s := <-repo.appended:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("memory append never happened")
		return ""
	}
}

func TestRespond_NoSearchScenario(t *testing.T) {
	model := &fakeLLM{replies: []string{analysisPlain, "That sounds stressful. Try paced breathing before the exam.", "User worried about exams; advised breathing."}}
	searcher := &fakeSearch{}
	repo := newFakeRepo()
	assistant := newAssistant(model, searcher, repo)

	answer, err := assistant.Respond(context.Background(), "user-1", "I feel anxious about exams")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if !strings.Contains(answer, "paced breathing") {
		t.Errorf("answer = %q, want the synthesis reply", answer)
	}
	if len(searcher.queries) != 0 {
		t.Errorf("search was called %d times, want 0", len(searcher.queries))
	}

	synthesis := model.call(1)
	userMsg := synthesis[len(synthesis)-1].Content
	if strings.Contains(userMsg, "Relevant search results") {
		t.Error("synthesis prompt contains a search section for a no-search message")
	}

	summary := waitForAppend(t, repo)
	if len([]rune(summary)) > SummaryMaxLen {
		t.Errorf("stored summary is %d chars, want <= %d", len([]rune(summary)), SummaryMaxLen)
	}
}

func TestRespond_MemoryOrderPreserved(t *testing.T) {
	repo := newFakeRepo()
	for i := 1; i <= 3; i++ {
		repo.memories = append(repo.memories, pkg.MemoryEntry{Summary: fmt.Sprintf("summary-%d", i)})
	}
	model := &fakeLLM{replies: []string{analysisPlain, "ok", "sum"}}
	assistant := newAssistant(model, &fakeSearch{}, repo)

	if _, err := assistant.Respond(context.Background(), "user-1", "hello"); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	for call := 0; call < 2; call++ {
		messages := model.call(call)
		if messages == nil {
			t.Fatalf("completion call %d missing", call)
		}
		var memoryMsg string
		for _, m := range messages[:len(messages)-1] {
			if strings.Contains(m.Content, "summary-1") {
				memoryMsg = m.Content
			}
		}
		if memoryMsg == "" {
			t.Fatalf("call %d: no memory context before the user message", call)
		}
		i1 := strings.Index(memoryMsg, "summary-1")
		i2 := strings.Index(memoryMsg, "summary-2")
		i3 := strings.Index(memoryMsg, "summary-3")
		if i2 < i1 || i3 < i2 {
			t.Errorf("call %d: summaries out of chronological order: %d %d %d", call, i1, i2, i3)
		}
		if messages[len(messages)-1].Role != "user" {
			t.Errorf("call %d: last message role = %q, want user", call, messages[len(messages)-1].Role)
		}
	}
}

func TestRespond_ClassificationParseFailureIsHard(t *testing.T) {
	model := &fakeLLM{replies: []string{"no json here at all"}}
	assistant := newAssistant(model, &fakeSearch{}, newFakeRepo())

	_, err := assistant.Respond(context.Background(), "user-1", "hello")
	if !errors.Is(err, ErrAIProcessing) {
		t.Errorf("error = %v, want ErrAIProcessing", err)
	}
}

func TestRespond_SearchFailureDegrades(t *testing.T) {
	analysis := `{"needsSearch":true,"searchQuery":"grounding techniques","isTherapyRelated":false,"recommendBookOrVideo":false,"recommendationTopic":null}`
	model := &fakeLLM{replies: []string{analysis, "here is an answer without sources", "sum"}}
	searcher := &fakeSearch{err: errors.New("search down")}
	repo := newFakeRepo()
	assistant := newAssistant(model, searcher, repo)

	answer, err := assistant.Respond(context.Background(), "user-1", "what is grounding")
	if err != nil {
		t.Fatalf("Respond() error = %v, want graceful degradation", err)
	}
	if answer == "" {
		t.Error("answer is empty")
	}
	synthesis := model.call(1)
	if strings.Contains(synthesis[len(synthesis)-1].Content, "Relevant search results") {
		t.Error("synthesis prompt has a search section despite the search failing")
	}
}

func TestRespond_SearchQueryFallsBackToPrompt(t *testing.T) {
	analysis := `{"needsSearch":true,"searchQuery":null,"isTherapyRelated":false,"recommendBookOrVideo":false,"recommendationTopic":null}`
	model := &fakeLLM{replies: []string{analysis, "ok", "sum"}}
	searcher := &fakeSearch{results: []pkg.SearchResult{{Title: "t", Snippet: "s", Link: "https://example.org"}}}
	assistant := newAssistant(model, searcher, newFakeRepo())

	if _, err := assistant.Respond(context.Background(), "user-1", "what helps with insomnia"); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "what helps with insomnia" {
		t.Errorf("search queries = %v, want the raw prompt as fallback", searcher.queries)
	}
	synthesis := model.call(1)
	if !strings.Contains(synthesis[len(synthesis)-1].Content, "Relevant search results") {
		t.Error("synthesis prompt is missing the search section")
	}
}

func TestRespond_ReferralGating(t *testing.T) {
	cases := []struct {
		name         string
		count        int
		therapy      bool
		wantReferral bool
	}{
		{"below threshold", 2, true, false},
		{"at threshold therapy", 3, true, true},
		{"at threshold not therapy", 3, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			analysis := fmt.Sprintf(
				`{"needsSearch":false,"searchQuery":null,"isTherapyRelated":%v,"recommendBookOrVideo":false,"recommendationTopic":null}`,
				tc.therapy)
			model := &fakeLLM{replies: []string{analysis, "ok", "sum"}}
			repo := newFakeRepo()
			repo.count = tc.count
			repo.searchMatches = []pkg.Doctor{{Name: "Imani Okafor", Profession: "Therapist"}}
			assistant := newAssistant(model, &fakeSearch{}, repo)

			if _, err := assistant.Respond(context.Background(), "user-1", "I keep feeling low"); err != nil {
				t.Fatalf("Respond() error = %v", err)
			}
			synthesis := model.call(1)
			got := strings.Contains(synthesis[len(synthesis)-1].Content, "Doctor referral note")
			if got != tc.wantReferral {
				t.Errorf("referral section present = %v, want %v", got, tc.wantReferral)
			}
		})
	}
}

func TestRespond_SynthesisFailureIsHard(t *testing.T) {
	model := &fakeLLM{
		replies: []string{analysisPlain, "", "sum"},
		errs:    []error{nil, errors.New("completion down")},
	}
	assistant := newAssistant(model, &fakeSearch{}, newFakeRepo())

	_, err := assistant.Respond(context.Background(), "user-1", "hello")
	if !errors.Is(err, ErrAIProcessing) {
		t.Errorf("error = %v, want ErrAIProcessing", err)
	}
}

func TestRespond_SummaryFailureDoesNotAffectAnswer(t *testing.T) {
	model := &fakeLLM{
		replies: []string{analysisPlain, "the answer", ""},
		errs:    []error{nil, nil, errors.New("summary down")},
	}
	repo := newFakeRepo()
	assistant := newAssistant(model, &fakeSearch{}, repo)

	answer, err := assistant.Respond(context.Background(), "user-1", "hello")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if answer != "the answer" {
		t.Errorf("answer = %q, want %q", answer, "the answer")
	}
	select {
	case s := <-repo.appended:
		t.Errorf("memory gained %q despite summarization failing", s)
	case <-time.After(100 * time.Millisecond):
	}
}
