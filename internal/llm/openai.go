package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/set-night/chatrelay/internal/config"
	"github.com/set-night/chatrelay/internal/domain"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4.1-mini"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIProvider is the only adapter that forwards image attachments.
type OpenAIProvider struct {
	compatProvider
}

func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	return newOpenAIProviderWithHTTPClient(cfg, &http.Client{})
}

func newOpenAIProviderWithHTTPClient(cfg OpenAIConfig, httpClient *http.Client) (*OpenAIProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openAIDefaultModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	slog.Debug("openai_provider_ready", "model", model, "base_url", baseURL)
	return &OpenAIProvider{compatProvider{
		name:               domain.ProviderOpenAI,
		client:             client,
		defaultModel:       model,
		defaultTemperature: config.DefaultTemperature,
		defaultMaxTokens:   config.DefaultMaxTokens,
		images:             true,
		timeout:            cfg.Timeout,
	}}, nil
}

var _ Provider = (*OpenAIProvider)(nil)
