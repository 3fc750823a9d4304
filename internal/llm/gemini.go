package llm

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/set-night/chatrelay/internal/config"
	"github.com/set-night/chatrelay/internal/domain"

	"google.golang.org/genai"
)

const geminiDefaultModel = "gemini-2.0-flash"

type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type geminiModelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

var newGeminiClient = func(ctx context.Context, cfg *genai.ClientConfig) (*genai.Client, error) {
	return genai.NewClient(ctx, cfg)
}

type GeminiProvider struct {
	models             geminiModelsClient
	defaultModel       string
	defaultTemperature float64
	defaultMaxTokens   int
	timeout            time.Duration
}

func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = geminiDefaultModel
	}

	client, err := newGeminiClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	slog.Debug("gemini_provider_ready", "model", model)
	return &GeminiProvider{
		models:             client.Models,
		defaultModel:       model,
		defaultTemperature: config.DefaultTemperature,
		defaultMaxTokens:   config.DefaultMaxTokens,
		timeout:            cfg.Timeout,
	}, nil
}

func (p *GeminiProvider) DefaultModel() string {
	return p.defaultModel
}

func (p *GeminiProvider) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model, contents, cfg, err := p.buildRequest(req)
	if err != nil {
		return ChatResponse{}, err
	}

	callCtx, cancel := callContext(ctx, p.timeout)
	defer cancel()

	resp, err := p.models.GenerateContent(callCtx, model, contents, cfg)
	if err != nil {
		return ChatResponse{}, normalizeError(domain.ProviderGemini, err)
	}

	return ChatResponse{
		Content: strings.TrimSpace(extractVisibleText(resp)),
		Model:   model,
	}, nil
}

func (p *GeminiProvider) CreateChatCompletionStream(ctx context.Context, req ChatRequest) (ChatStream, error) {
	model, contents, cfg, err := p.buildRequest(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := callContext(ctx, p.timeout)
	seq := p.models.GenerateContentStream(callCtx, model, contents, cfg)
	return newGeminiStream(seq, cancel), nil
}

func (p *GeminiProvider) buildRequest(req ChatRequest) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return "", nil, nil, invalidRequest(domain.ProviderGemini, "model is required")
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	var systemParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			if content := strings.TrimSpace(msg.Content); content != "" {
				systemParts = append(systemParts, content)
			}
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case RoleUser:
			if len(msg.Images) > 0 {
				return "", nil, nil, invalidRequest(domain.ProviderGemini, "image attachments are not supported")
			}
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			return "", nil, nil, invalidRequest(domain.ProviderGemini, fmt.Sprintf("unsupported role %q", msg.Role))
		}
	}
	if len(contents) == 0 {
		return "", nil, nil, invalidRequest(domain.ProviderGemini, "messages are required")
	}

	temperature := p.defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	maxTokens := p.defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens <= 0 {
		return "", nil, nil, invalidRequest(domain.ProviderGemini, "max tokens must be positive")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(temperature)),
		MaxOutputTokens: int32(maxTokens),
	}
	if len(systemParts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(systemParts, "\n\n")}}}
	}

	return model, contents, cfg, nil
}

// geminiStream adapts the SDK's response iterator to ChatStream. Each
// response carries only the text generated since the previous one.
type geminiStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	cancel  context.CancelFunc
	current string
	err     error
	done    bool
}

func newGeminiStream(seq iter.Seq2[*genai.GenerateContentResponse, error], cancel context.CancelFunc) *geminiStream {
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop, cancel: cancel}
}

func (s *geminiStream) Next() bool {
	for !s.done {
		resp, err, ok := s.next()
		if !ok {
			s.done = true
			break
		}
		if err != nil {
			s.err = normalizeError(domain.ProviderGemini, err)
			s.done = true
			break
		}

		if delta := extractVisibleText(resp); delta != "" {
			s.current = delta
			return true
		}
	}
	return false
}

func (s *geminiStream) Content() string {
	return s.current
}

func (s *geminiStream) Err() error {
	return s.err
}

func (s *geminiStream) Close() error {
	s.stop()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.done = true
	return nil
}

func extractVisibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

var _ Provider = (*GeminiProvider)(nil)
