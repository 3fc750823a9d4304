package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/chatrelay/internal/config"
	"github.com/set-night/chatrelay/internal/domain"
	"github.com/set-night/chatrelay/internal/llm"
)

// TurnStore persists chat turns. FinalizeTurn must succeed at most once per turn.
type TurnStore interface {
	CreateTurn(ctx context.Context, turn *domain.ChatTurn) error
	FinalizeTurn(ctx context.Context, turnID uuid.UUID, assistantMessage string) error
}

type ProviderSelector interface {
	Select(req *domain.ChatRequest) (llm.Provider, error)
}

// StreamWriter receives a turn's output as it is produced. Begin is called
// once, after validation and before the first fragment.
type StreamWriter interface {
	Begin(turn *domain.ChatTurn) error
	WriteFragment(text string) error
	WriteError(text string) error
}

type Alerter interface {
	LogError(err error, context string)
}

type ChatService struct {
	store     TurnStore
	providers ProviderSelector
	alerts    Alerter
	timeout   time.Duration
	now       func() time.Time
}

func NewChatService(store TurnStore, providers ProviderSelector, alerts Alerter, timeout time.Duration) *ChatService {
	return &ChatService{
		store:     store,
		providers: providers,
		alerts:    alerts,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Stream relays the provider's fragments to w while accumulating them, then
// stores the final text exactly once. Errors are returned only for requests
// rejected before anything was written; after that, failures are reported
// in-band and through the stored assistant message.
func (s *ChatService) Stream(ctx context.Context, req *domain.ChatRequest, w StreamWriter) (*domain.ChatTurn, error) {
	provider, turn, err := s.begin(req)
	if err != nil {
		return nil, err
	}
	persisted := s.createTurn(ctx, turn)

	if err := w.Begin(turn); err != nil {
		turn.AssistantMessage = domain.DisconnectSuffix
		s.finalize(ctx, turn, persisted)
		return turn, nil
	}

	slog.Info("chat_stream_start",
		"turn_id", turn.TurnID,
		"session_id", turn.SessionID,
		"provider", turn.Provider,
		"model", turn.Model,
	)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		acc          strings.Builder
		fault        error
		disconnected bool
	)

	stream, err := provider.CreateChatCompletionStream(callCtx, s.providerRequest(req))
	if err != nil {
		fault = err
	} else {
		for stream.Next() {
			fragment := stream.Content()
			if fragment == "" {
				continue
			}
			acc.WriteString(fragment)
			if err := w.WriteFragment(fragment); err != nil {
				disconnected = true
				break
			}
		}
		if !disconnected {
			fault = stream.Err()
		}
		_ = stream.Close()
	}

	if !disconnected && ctx.Err() != nil {
		disconnected = true
	}

	switch {
	case disconnected:
		turn.AssistantMessage = acc.String() + domain.DisconnectSuffix
		slog.Info("chat_stream_client_disconnected", "turn_id", turn.TurnID, "received", acc.Len())
	case fault != nil:
		errorText := domain.ErrorText(providerFault(fault))
		turn.AssistantMessage = errorText
		s.reportProviderFault(turn, errorText)
		if err := w.WriteError(errorText); err != nil {
			slog.Warn("chat_stream_error_not_delivered", "turn_id", turn.TurnID, "error", err)
		}
	default:
		turn.AssistantMessage = acc.String()
	}

	s.finalize(ctx, turn, persisted)
	return turn, nil
}

// Complete is the buffered counterpart of Stream. A provider failure is
// stored as the assistant message and returned to the caller.
func (s *ChatService) Complete(ctx context.Context, req *domain.ChatRequest) (*domain.ChatTurn, error) {
	provider, turn, err := s.begin(req)
	if err != nil {
		return nil, err
	}
	persisted := s.createTurn(ctx, turn)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, callErr := provider.CreateChatCompletion(callCtx, s.providerRequest(req))
	switch {
	case callErr != nil && ctx.Err() != nil:
		turn.AssistantMessage = domain.DisconnectSuffix
	case callErr != nil:
		callErr = providerFault(callErr)
		turn.AssistantMessage = domain.ErrorText(callErr)
		s.reportProviderFault(turn, turn.AssistantMessage)
	default:
		turn.AssistantMessage = resp.Content
	}

	persistErr := s.finalize(ctx, turn, persisted)
	if callErr != nil {
		return turn, callErr
	}
	if !persisted {
		return turn, &domain.PersistenceError{Op: "create", Err: errors.New("turn was not stored")}
	}
	return turn, persistErr
}

func (s *ChatService) begin(req *domain.ChatRequest) (llm.Provider, *domain.ChatTurn, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, nil, domain.ErrEmptyMessage
	}
	if req.MaxTokens <= 0 {
		return nil, nil, domain.ErrInvalidMaxTokens
	}

	provider, err := s.providers.Select(req)
	if err != nil {
		return nil, nil, err
	}

	if strings.TrimSpace(req.Model) == "" {
		req.Model = provider.DefaultModel()
	}
	if req.SessionID == uuid.Nil {
		req.SessionID = uuid.New()
	}

	turn := &domain.ChatTurn{
		TurnID:      uuid.New(),
		SessionID:   req.SessionID,
		UserID:      req.UserID,
		UserMessage: req.Message,
		Provider:    req.Provider,
		Model:       req.Model,
		Temperature: req.Temperature,
		Timestamp:   s.now().UTC(),
	}
	return provider, turn, nil
}

func (s *ChatService) providerRequest(req *domain.ChatRequest) llm.ChatRequest {
	temperature := req.Temperature
	maxTokens := req.MaxTokens
	return llm.ChatRequest{
		Model:       req.Model,
		Messages:    llm.BuildMessages(req.Prompt, req.Context, req.Message, req.Images),
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	}
}

// createTurn reports whether the row exists. A failure is logged and the
// request is still served; there is nothing to finalize afterwards.
func (s *ChatService) createTurn(ctx context.Context, turn *domain.ChatTurn) bool {
	if err := s.store.CreateTurn(ctx, turn); err != nil {
		s.persistenceFailed(turn, &domain.PersistenceError{Op: "create", Err: err})
		return false
	}
	return true
}

func (s *ChatService) finalize(ctx context.Context, turn *domain.ChatTurn, persisted bool) error {
	if !persisted {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.PersistTimeout)
	defer cancel()

	if err := s.store.FinalizeTurn(writeCtx, turn.TurnID, turn.AssistantMessage); err != nil {
		pe := &domain.PersistenceError{Op: "finalize", Err: err}
		s.persistenceFailed(turn, pe)
		return pe
	}

	now := s.now().UTC()
	turn.CompletedAt = &now
	slog.Info("chat_turn_finalized",
		"turn_id", turn.TurnID,
		"session_id", turn.SessionID,
		"length", len(turn.AssistantMessage),
	)
	return nil
}

func (s *ChatService) persistenceFailed(turn *domain.ChatTurn, err *domain.PersistenceError) {
	slog.Error("chat_turn_persist_failed",
		"kind", "persistence",
		"op", err.Op,
		"turn_id", turn.TurnID,
		"session_id", turn.SessionID,
		"error", err.Err,
	)
	if s.alerts != nil {
		s.alerts.LogError(err, fmt.Sprintf("turn %s (session %s)", turn.TurnID, turn.SessionID))
	}
}

func (s *ChatService) reportProviderFault(turn *domain.ChatTurn, text string) {
	slog.Warn("chat_provider_failed",
		"kind", "provider",
		"turn_id", turn.TurnID,
		"provider", turn.Provider,
		"model", turn.Model,
		"error", strings.TrimPrefix(text, domain.ErrorPrefix),
	)
	if s.alerts != nil {
		s.alerts.LogError(errors.New(strings.TrimPrefix(text, domain.ErrorPrefix)),
			fmt.Sprintf("provider %s, model %q, turn %s", turn.Provider, turn.Model, turn.TurnID))
	}
}

// providerFault makes sure a failure carries provider context before it is
// shown to the client.
func providerFault(err error) error {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.ProviderError{Message: domain.ErrProviderTimeout.Error(), Err: err}
	}
	return &domain.ProviderError{Message: err.Error(), Err: err}
}
