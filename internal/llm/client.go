package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// Message is a minimal chat message used by the assistant pipeline.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Client is the completion service as the pipeline sees it: one ordered
// message sequence in, one text reply out.
type Client interface {
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterClient calls the OpenRouter completion endpoint. OpenRouter
// speaks the OpenAI wire format, so the OpenAI client is pointed at its
// base URL.
type OpenRouterClient struct {
	client *openai.Client
}

// NewOpenRouterClient constructs a completion client for the given API key.
// baseURL overrides the endpoint when non-empty (tests point it at a stub).
func NewOpenRouterClient(apiKey, baseURL string) *OpenRouterClient {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = openRouterBaseURL
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenRouterClient{client: openai.NewClientWithConfig(cfg)}
}

// Complete sends the message history and returns the first choice's content.
func (c *OpenRouterClient) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	if c.client == nil {
		return "", errors.New("completion client not initialized")
	}
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			// coerce anything unknown to user
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: oaMsgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
