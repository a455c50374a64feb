package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	LogLevel        string
	RubricPath      string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	EmbeddingModel  string
	AnthropicAPIKey string
	AnthropicModel  string
	SlackBotToken   string
	SlackChannel    string
	ChronicleURL    string
	APIToken        string
	BackfillDir     string
}

func Load() Config {
	return Config{
		Port:            envInt("ARBITER_PORT", 8760),
		NatsURL:         envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		RubricPath:      envStr("ARBITER_RUBRIC", "/etc/arbiter/rubric.yaml"),
		OpenAIAPIKey:    envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   envStr("OPENAI_BASE_URL", ""),
		EmbeddingModel:  envStr("ARBITER_EMBEDDING_MODEL", "text-embedding-3-small"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("ARBITER_MODEL", "claude-sonnet-4-20250514"),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_REVIEWS_CHANNEL", ""),
		ChronicleURL:    envStr("CHRONICLE_URL", "http://chronicle:8700"),
		APIToken:        envStr("ARBITER_API_TOKEN", ""),
		BackfillDir:     envStr("ARBITER_BACKFILL_DIR", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
