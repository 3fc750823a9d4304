package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/set-night/chatrelay/internal/config"
	"github.com/set-night/chatrelay/internal/domain"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Embedder turns document chunks and queries into vectors through the
// OpenAI embeddings endpoint.
type Embedder struct {
	client     openai.Client
	model      string
	dimensions int
	timeout    time.Duration
}

func NewEmbedder(cfg OpenAIConfig, model string, dimensions int) (*Embedder, error) {
	return newEmbedderWithHTTPClient(cfg, model, dimensions, &http.Client{})
}

func newEmbedderWithHTTPClient(cfg OpenAIConfig, model string, dimensions int, httpClient *http.Client) (*Embedder, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required for embeddings")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("embedding model is required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}

	return &Embedder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(httpClient),
		),
		model:      model,
		dimensions: dimensions,
		timeout:    cfg.Timeout,
	}, nil
}

func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed returns one vector per input, in input order. Large inputs are sent
// in batches.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += config.MaxEmbeddingBatchSize {
		end := min(start+config.MaxEmbeddingBatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	}
	if e.dimensions > 0 && strings.HasPrefix(e.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	callCtx, cancel := callContext(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embeddings.New(callCtx, params)
	if err != nil {
		return nil, normalizeError(domain.ProviderOpenAI, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: expected %d vectors, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, item := range data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}
