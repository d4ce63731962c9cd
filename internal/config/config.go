package config

import (
	"fmt"
	"os"
)

// Config carries everything the binaries read from the environment.
// Required values are rejected at startup; optional ones fall back to
// defaults so a local run needs only the credentials.
type Config struct {
	DatabaseURL string

	OpenRouterAPIKey string
	ChatModel        string
	SummaryModel     string

	SerpAPIKey string

	RelayAddr string
	AMQPURL   string

	Host     string
	Port     string
	LogLevel string
}

const defaultChatModel = "deepseek/deepseek-r1-distill-llama-70b:free"

// New reads the environment. DATABASE_URL is the only hard requirement
// shared by every binary; callers that need more (API keys, relay address)
// check the relevant fields themselves.
func New() (Config, error) {
	cfg := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		ChatModel:        os.Getenv("AI_MODEL"),
		SummaryModel:     os.Getenv("AI_SUMMARY_MODEL"),
		SerpAPIKey:       os.Getenv("SERPAPI_KEY"),
		RelayAddr:        os.Getenv("RELAY_ADDR"),
		AMQPURL:          os.Getenv("AMQP_URL"),
		Host:             os.Getenv("HOST"),
		Port:             os.Getenv("PORT"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = defaultChatModel
	}
	if cfg.SummaryModel == "" {
		cfg.SummaryModel = cfg.ChatModel
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.RelayAddr == "" {
		cfg.RelayAddr = "ws://localhost:9090/ws"
	}
	return cfg, nil
}

// Addr is the host:port the HTTP server binds to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
