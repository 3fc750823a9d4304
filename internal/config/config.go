package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	Port        int    `env:"PORT" envDefault:"8000"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	LogFile   string `env:"LOG_FILE"`

	// Provider: OpenAI
	OpenAIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4.1-mini"`

	// Provider: Gemini
	GeminiKey   string `env:"GEMINI_API_KEY"`
	GeminiModel string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	// Provider: OpenRouter
	OpenRouterKey     string `env:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenRouterModel   string `env:"OPENROUTER_MODEL" envDefault:"deepseek/deepseek-chat-v3-0324:free"`
	OpenRouterReferer string `env:"OPENROUTER_REFERER"`
	OpenRouterTitle   string `env:"OPENROUTER_TITLE" envDefault:"chatrelay"`

	ProviderTimeout    time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"90s"`
	ChatRequestTimeout time.Duration `env:"CHAT_REQUEST_TIMEOUT" envDefault:"120s"`

	// HTTP edge
	RedisURL           string   `env:"REDIS_URL"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"100"`
	MaxRequestBytes    int64    `env:"MAX_REQUEST_BYTES" envDefault:"10485760"`
	CORSOrigins        []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
	TrustedProxies     []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Vector store
	QdrantURL              string `env:"QDRANT_URL"`
	QdrantAPIKey           string `env:"QDRANT_API_KEY"`
	QdrantCollectionPrefix string `env:"QDRANT_COLLECTION_PREFIX" envDefault:"session"`
	EmbeddingModel         string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimensions    int    `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`

	// Ops alerts
	BotToken     string `env:"BOT_TOKEN"`
	AlertChatID  int64  `env:"ALERT_CHAT_ID"`
	AlertTopicID int    `env:"ALERT_TOPIC_ID"`
}

func Load() (*Config, error) {
	return load(env.Options{})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.RateLimitPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive"))
	}
	if c.MaxRequestBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_REQUEST_BYTES must be positive"))
	}
	if c.ChatRequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_REQUEST_TIMEOUT must be positive"))
	}
	if c.QdrantURL != "" {
		if _, err := url.Parse(c.QdrantURL); err != nil {
			errs = append(errs, fmt.Errorf("QDRANT_URL: %w", err))
		}
		if c.EmbeddingDimensions <= 0 {
			errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive"))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// AlertsEnabled reports whether failures should also be sent to the ops chat.
func (c *Config) AlertsEnabled() bool {
	return strings.TrimSpace(c.BotToken) != "" && c.AlertChatID != 0
}

// VectorEnabled reports whether the document routes can be served.
func (c *Config) VectorEnabled() bool {
	return strings.TrimSpace(c.QdrantURL) != "" && strings.TrimSpace(c.OpenAIKey) != ""
}
