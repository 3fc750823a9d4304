package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/set-night/chatrelay/internal/domain"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"
)

// compatProvider talks to any OpenAI-compatible chat completions endpoint.
type compatProvider struct {
	name               domain.ProviderType
	client             openai.Client
	defaultModel       string
	defaultTemperature float64
	defaultMaxTokens   int
	images             bool
	timeout            time.Duration
}

func (p *compatProvider) DefaultModel() string {
	return p.defaultModel
}

func (p *compatProvider) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	params, err := p.buildChatParams(req)
	if err != nil {
		return ChatResponse{}, err
	}

	callCtx, cancel := callContext(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		return ChatResponse{}, normalizeError(p.name, err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return ChatResponse{
		Content: strings.TrimSpace(content),
		Model:   resp.Model,
	}, nil
}

func (p *compatProvider) CreateChatCompletionStream(ctx context.Context, req ChatRequest) (ChatStream, error) {
	params, err := p.buildChatParams(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := callContext(ctx, p.timeout)
	stream := p.client.Chat.Completions.NewStreaming(callCtx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		cancel()
		return nil, normalizeError(p.name, err)
	}

	return &compatStream{name: p.name, stream: stream, cancel: cancel}, nil
}

func (p *compatProvider) buildChatParams(req ChatRequest) (openai.ChatCompletionNewParams, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}
	if model == "" {
		return openai.ChatCompletionNewParams{}, invalidRequest(p.name, "model is required")
	}
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, invalidRequest(p.name, "messages are required")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		param, err := p.toChatMessageParam(msg)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		messages = append(messages, param)
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}

	temperature := p.defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	params.Temperature = openai.Float(temperature)

	maxTokens := p.defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens <= 0 {
		return openai.ChatCompletionNewParams{}, invalidRequest(p.name, "max tokens must be positive")
	}
	params.MaxTokens = openai.Int(int64(maxTokens))

	return params, nil
}

func (p *compatProvider) toChatMessageParam(msg Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case RoleSystem:
		return openai.SystemMessage(msg.Content), nil
	case RoleAssistant:
		return openai.AssistantMessage(msg.Content), nil
	case RoleUser:
		if len(msg.Images) == 0 {
			return openai.UserMessage(msg.Content), nil
		}
		if !p.images {
			return openai.ChatCompletionMessageParamUnion{}, invalidRequest(p.name, "image attachments are not supported")
		}
		parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Images)+1)
		parts = append(parts, openai.TextContentPart(msg.Content))
		for _, img := range msg.Images {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: img.DataURI(),
			}))
		}
		return openai.UserMessage(parts), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, invalidRequest(p.name, fmt.Sprintf("unsupported role %q", msg.Role))
	}
}

type compatStream struct {
	name    domain.ProviderType
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	cancel  context.CancelFunc
	current string
}

func (s *compatStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			s.current = delta
			return true
		}
	}
	return false
}

func (s *compatStream) Content() string {
	return s.current
}

func (s *compatStream) Err() error {
	return normalizeError(s.name, s.stream.Err())
}

func (s *compatStream) Close() error {
	err := s.stream.Close()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return err
}
