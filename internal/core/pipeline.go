package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telecare/internal/llm"
	"telecare/internal/logger"
	"telecare/internal/search"
	"telecare/pkg"
)

// ErrAIProcessing is the single error surfaced to callers when any pipeline
// stage fails hard. Details stay in the log.
var ErrAIProcessing = errors.New("AI processing failed")

// referralThreshold is the cumulative question count at which the referral
// stage activates.
const referralThreshold = 3

// searchResultLimit caps organic results folded into the prompt.
const searchResultLimit = 3

// ExchangeCounter reports how many assistant turns a user has completed.
type ExchangeCounter interface {
	CountExchanges(ctx context.Context, userID string) (int, error)
}

// Assistant runs the staged decision pipeline for one user message:
// classify, enrich with search, consider a referral, synthesize, remember.
// Stages run strictly in sequence.
type Assistant struct {
	LLM      llm.Client
	Search   search.Service
	Prober   search.LinkProber
	Memory   *MemoryStore
	Referral *ReferralEngine
	Counter  ExchangeCounter

	ChatModel    string
	SummaryModel string
}

// Respond produces the assistant's answer for a user message. Hard failures
// (completion errors, unparseable classification) are logged and collapsed
// into ErrAIProcessing; failed sub-steps that have neutral defaults (search,
// referral, memory) degrade instead of aborting.
func (a *Assistant) Respond(ctx context.Context, userID, prompt string) (string, error) {
	log := logger.For("core.pipeline").WithField("user_id", userID)

	memories, err := a.Memory.Fetch(ctx, userID)
	if err != nil {
		log.WithError(err).Warn("memory fetch failed, continuing without context")
		memories = nil
	}

	analysis, err := a.classify(ctx, memories, prompt)
	if err != nil {
		log.WithError(err).Error("classification failed")
		return "", ErrAIProcessing
	}

	var searchResults, recommendations []pkg.SearchResult
	if analysis.NeedsSearch {
		query := analysis.SearchQuery
		if query == "" {
			query = prompt
		}
		searchResults, err = a.Search.Search(ctx, query, searchResultLimit)
		if err != nil {
			log.WithError(err).Warn("search failed, continuing without results")
			searchResults = nil
		}
	}
	if analysis.RecommendBookOrVideo && analysis.RecommendationTopic != "" {
		found, err := a.Search.Search(ctx, "Best books or videos on "+analysis.RecommendationTopic, searchResultLimit)
		if err != nil {
			log.WithError(err).Warn("recommendation search failed, continuing without results")
		} else {
			recommendations = search.FilterRecommendations(ctx, found, a.Prober)
		}
	}

	referral := ""
	if analysis.IsTherapyRelated {
		count, err := a.Counter.CountExchanges(ctx, userID)
		if err != nil {
			log.WithError(err).Warn("question count lookup failed, skipping referral")
		} else if count >= referralThreshold {
			referral, err = a.Referral.Suggest(ctx, userID, analysis.RecommendationTopic)
			if err != nil {
				log.WithError(err).Warn("referral lookup failed, skipping referral")
				referral = ""
			}
		}
	}

	answer, err := a.synthesize(ctx, memories, prompt, searchResults, recommendations, referral)
	if err != nil {
		log.WithError(err).Error("synthesis failed")
		return "", ErrAIProcessing
	}

	a.remember(ctx, userID, prompt, answer)

	return answer, nil
}

func (a *Assistant) classify(ctx context.Context, memories []string, prompt string) (*pkg.AnalysisResult, error) {
	messages := []llm.Message{{Role: "system", Content: AnalysisPrompt}}
	messages = appendMemoryContext(messages, memories)
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	reply, err := a.LLM.Complete(ctx, a.ChatModel, messages)
	if err != nil {
		return nil, err
	}
	return ExtractAnalysis(reply)
}

func (a *Assistant) synthesize(ctx context.Context, memories []string, prompt string, results, recommendations []pkg.SearchResult, referral string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "User question: %s", prompt)
	if len(results) > 0 {
		b.WriteString("\n\nRelevant search results:\n")
		writeResults(&b, results)
	}
	if len(recommendations) > 0 {
		b.WriteString("\n\nRecommended books or videos:\n")
		writeResults(&b, recommendations)
	}
	if referral != "" {
		b.WriteString("\n\nDoctor referral note: ")
		b.WriteString(referral)
	}

	messages := []llm.Message{{Role: "system", Content: SynthesisPrompt}}
	messages = appendMemoryContext(messages, memories)
	messages = append(messages, llm.Message{Role: "user", Content: b.String()})

	return a.LLM.Complete(ctx, a.ChatModel, messages)
}

// remember summarizes the finished exchange and appends it to the memory
// store. Both steps are best-effort: the answer has already been produced.
func (a *Assistant) remember(ctx context.Context, userID, prompt, answer string) {
	messages := []llm.Message{
		{Role: "system", Content: SummaryInstruction},
		{Role: "user", Content: fmt.Sprintf("User: %s\n\nAssistant: %s", prompt, answer)},
	}
	summary, err := a.LLM.Complete(ctx, a.SummaryModel, messages)
	if err != nil {
		logger.For("core.pipeline").WithError(err).WithField("user_id", userID).
			Warn("exchange summarization failed, skipping memory update")
		return
	}
	a.Memory.Append(userID, summary)
}

func appendMemoryContext(messages []llm.Message, memories []string) []llm.Message {
	if len(memories) == 0 {
		return messages
	}
	var b strings.Builder
	b.WriteString(memoryPreamble)
	for _, m := range memories {
		b.WriteString("\n- ")
		b.WriteString(m)
	}
	return append(messages, llm.Message{Role: "system", Content: b.String()})
}

func writeResults(b *strings.Builder, results []pkg.SearchResult) {
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(b, "- %s\n  %s\n  Link: %s", r.Title, r.Snippet, r.Link)
	}
}
