package llm

import (
	"context"
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
	openRouterDefaultBaseURL = "https://openrouter.ai/api/v1"
	openRouterDefaultModel   = "deepseek/deepseek-chat-v3-0324:free"
)

type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Referer string
	Title   string
	Timeout time.Duration
}

// OpenRouterProvider serves chat completions and the OpenRouter model catalog.
type OpenRouterProvider struct {
	compatProvider
	cache *ModelsCache
}

func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	return newOpenRouterProviderWithHTTPClient(cfg, &http.Client{})
}

func newOpenRouterProviderWithHTTPClient(cfg OpenRouterConfig, httpClient *http.Client) (*OpenRouterProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter api key is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = openRouterDefaultBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = openRouterDefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	}
	if referer := strings.TrimSpace(cfg.Referer); referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", referer))
	}
	if title := strings.TrimSpace(cfg.Title); title != "" {
		opts = append(opts, option.WithHeader("X-Title", title))
	}

	slog.Debug("openrouter_provider_ready", "model", model, "base_url", baseURL)
	return &OpenRouterProvider{
		compatProvider: compatProvider{
			name:               domain.ProviderOpenRouter,
			client:             openai.NewClient(opts...),
			defaultModel:       model,
			defaultTemperature: config.DefaultTemperature,
			defaultMaxTokens:   config.DefaultMaxTokens,
			timeout:            cfg.Timeout,
		},
		cache: NewModelsCache(config.ModelCacheDuration),
	}, nil
}

type openRouterModelList struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Pricing     struct {
			Prompt     string `json:"prompt"`
			Completion string `json:"completion"`
		} `json:"pricing"`
		ContextLength int `json:"context_length"`
		TopProvider   struct {
			ContextLength int `json:"context_length"`
		} `json:"top_provider"`
		Architecture struct {
			Modality string `json:"modality"`
		} `json:"architecture"`
	} `json:"data"`
}

// ListModels returns the OpenRouter catalog, served from cache while fresh.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]domain.AIModel, error) {
	if cached := p.cache.Get(); cached != nil {
		return cached, nil
	}

	callCtx, cancel := callContext(ctx, p.timeout)
	defer cancel()

	var result openRouterModelList
	if err := p.client.Get(callCtx, "models", nil, &result); err != nil {
		return nil, fmt.Errorf("fetch models: %w", normalizeError(p.name, err))
	}

	models := make([]domain.AIModel, 0, len(result.Data))
	for _, m := range result.Data {
		var promptPrice, completionPrice float64
		fmt.Sscanf(m.Pricing.Prompt, "%f", &promptPrice)
		fmt.Sscanf(m.Pricing.Completion, "%f", &completionPrice)

		// Prices from OpenRouter are per token, convert to per 1M tokens
		promptPrice *= 1_000_000
		completionPrice *= 1_000_000

		ctxLen := m.ContextLength
		if m.TopProvider.ContextLength > 0 {
			ctxLen = m.TopProvider.ContextLength
		}

		models = append(models, domain.AIModel{
			ID:              m.ID,
			Name:            m.Name,
			Description:     m.Description,
			PromptPrice:     promptPrice,
			CompletionPrice: completionPrice,
			ContextLength:   ctxLen,
			Capabilities:    detectCapabilities(m.ID, m.Architecture.Modality),
		})
	}

	p.cache.Set(models)
	return models, nil
}

func (p *OpenRouterProvider) GetModel(ctx context.Context, modelID string) (*domain.AIModel, error) {
	models, err := p.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		if m.ID == modelID {
			return &m, nil
		}
	}
	return nil, domain.ErrModelNotFound
}

func detectCapabilities(modelID, modality string) domain.ModelCapabilities {
	id := strings.ToLower(modelID)
	caps := domain.ModelCapabilities{}

	if strings.Contains(id, "vision") || strings.Contains(id, "gpt-4o") ||
		strings.Contains(id, "claude-3") || strings.Contains(id, "gemini") ||
		strings.Contains(id, "llava") || strings.Contains(modality, "image") {
		caps.Vision = true
	}

	if strings.Contains(id, "audio") || strings.Contains(modality, "audio") {
		caps.Audio = true
	}

	if strings.Contains(id, "dall-e") || strings.Contains(id, "stable-diffusion") ||
		strings.Contains(id, "flux") || strings.Contains(id, "imagen") {
		caps.ImageGeneration = true
	}

	// vision models accept file uploads too
	if caps.Vision {
		caps.Files = true
	}

	return caps
}

var _ Provider = (*OpenRouterProvider)(nil)
