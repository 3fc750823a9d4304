package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/chatrelay/internal/config"
	"github.com/set-night/chatrelay/internal/domain"
	"github.com/set-night/chatrelay/internal/middleware"
)

const ndjsonContentType = "application/x-ndjson"

type contextEntryBody struct {
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
	FileContent      string `json:"file_content,omitempty"`
}

type imageBody struct {
	Base64 string `json:"base64"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

type chatRequestBody struct {
	SessionID   string             `json:"session_id"`
	UserID      string             `json:"user_id"`
	Message     string             `json:"message"`
	Context     []contextEntryBody `json:"context"`
	Model       string             `json:"model"`
	Temperature *float64           `json:"temperature"`
	MaxTokens   *int               `json:"max_tokens"`
	Prompt      string             `json:"prompt"`
	APIType     string             `json:"api_type"`
	Images      []imageBody        `json:"images"`
}

type chatResponse struct {
	TurnID    uuid.UUID `json:"turn_id"`
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
	Provider  string    `json:"api_type"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
	Persisted bool      `json:"persisted"`
}

func (h *Handler) decodeChatRequest(r *http.Request) (*domain.ChatRequest, error) {
	var body chatRequestBody
	if err := decodeJSON(r, &body); err != nil {
		return nil, err
	}

	req := &domain.ChatRequest{
		Message:     body.Message,
		Prompt:      body.Prompt,
		Model:       strings.TrimSpace(body.Model),
		Provider:    domain.ProviderType(strings.ToLower(strings.TrimSpace(body.APIType))),
		Temperature: config.DefaultTemperature,
		MaxTokens:   config.DefaultMaxTokens,
	}
	if req.Provider == "" {
		req.Provider = h.defaultProvider
	}

	if body.SessionID != "" {
		id, err := parseUUID("session_id", body.SessionID)
		if err != nil {
			return nil, err
		}
		req.SessionID = id
	}
	userID, err := parseOptionalUUID("user_id", body.UserID)
	if err != nil {
		return nil, err
	}
	req.UserID = userID

	if body.Temperature != nil {
		if *body.Temperature < 0 || *body.Temperature > 2 {
			return nil, badRequest("temperature must be between 0 and 2")
		}
		req.Temperature = *body.Temperature
	}
	if body.MaxTokens != nil {
		req.MaxTokens = *body.MaxTokens
	}

	for _, c := range body.Context {
		req.Context = append(req.Context, domain.ContextEntry{
			UserMessage:      c.UserMessage,
			AssistantMessage: c.AssistantMessage,
			FileContent:      c.FileContent,
		})
	}
	for _, img := range body.Images {
		if strings.TrimSpace(img.Base64) == "" {
			return nil, badRequest("image %q has no data", img.Name)
		}
		req.Images = append(req.Images, domain.Attachment{
			Base64: img.Base64,
			Name:   img.Name,
			Type:   img.Type,
		})
	}
	return req, nil
}

func (h *Handler) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeChatRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var sw streamWriter
	if strings.Contains(r.Header.Get("Accept"), ndjsonContentType) {
		sw = newNDJSONStream(w)
	} else {
		sw = newTextStream(w)
	}

	turn, err := h.chat.Stream(r.Context(), req, sw)
	if err != nil {
		if !sw.Started() {
			writeError(w, r, err)
			return
		}
		slog.Error("chat stream failed after start", "error", err, "request_id", middleware.GetRequestID(r.Context()))
		return
	}
	if r.Context().Err() != nil {
		return
	}
	if err := sw.Finish(turn); err != nil {
		slog.Debug("chat stream finish not delivered", "turn_id", turn.TurnID, "error", err)
	}
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeChatRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	turn, err := h.chat.Complete(r.Context(), req)
	var persistErr *domain.PersistenceError
	switch {
	case err == nil:
	case errors.As(err, &persistErr) && turn != nil:
		// the reply is still good; the client learns it was not saved
	default:
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		TurnID:    turn.TurnID,
		SessionID: turn.SessionID,
		Message:   turn.AssistantMessage,
		Provider:  string(turn.Provider),
		Model:     turn.Model,
		Timestamp: turn.Timestamp,
		Persisted: turn.Completed(),
	})
}

// streamWriter adapts an http.ResponseWriter to the chat coordinator.
type streamWriter interface {
	Begin(turn *domain.ChatTurn) error
	WriteFragment(text string) error
	WriteError(text string) error
	Started() bool
	Finish(turn *domain.ChatTurn) error
}

type textStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newTextStream(w http.ResponseWriter) *textStream {
	return &textStream{w: w, rc: http.NewResponseController(w)}
}

func (s *textStream) begin(turn *domain.ChatTurn, contentType string) error {
	h := s.w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Session-ID", turn.SessionID.String())
	h.Set("X-Turn-ID", turn.TurnID.String())
	s.w.WriteHeader(http.StatusOK)
	s.started = true
	return s.flush()
}

func (s *textStream) flush() error {
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (s *textStream) Begin(turn *domain.ChatTurn) error {
	return s.begin(turn, "text/plain; charset=utf-8")
}

func (s *textStream) WriteFragment(text string) error {
	if _, err := io.WriteString(s.w, text); err != nil {
		return err
	}
	return s.flush()
}

// WriteError sends the failure in-band as the final fragment.
func (s *textStream) WriteError(text string) error {
	return s.WriteFragment(text)
}

func (s *textStream) Started() bool { return s.started }

func (s *textStream) Finish(*domain.ChatTurn) error { return nil }

type streamEvent struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ndjsonStream frames each fragment as one JSON object per line.
type ndjsonStream struct {
	textStream
	enc *json.Encoder
}

func newNDJSONStream(w http.ResponseWriter) *ndjsonStream {
	return &ndjsonStream{
		textStream: textStream{w: w, rc: http.NewResponseController(w)},
		enc:        json.NewEncoder(w),
	}
}

func (s *ndjsonStream) write(ev streamEvent) error {
	if err := s.enc.Encode(ev); err != nil {
		return err
	}
	return s.flush()
}

func (s *ndjsonStream) Begin(turn *domain.ChatTurn) error {
	return s.begin(turn, ndjsonContentType)
}

func (s *ndjsonStream) WriteFragment(text string) error {
	return s.write(streamEvent{Type: "delta", Text: text})
}

func (s *ndjsonStream) WriteError(text string) error {
	return s.write(streamEvent{Type: "error", Text: text})
}

func (s *ndjsonStream) Finish(turn *domain.ChatTurn) error {
	return s.write(streamEvent{
		Type:      "done",
		TurnID:    turn.TurnID.String(),
		SessionID: turn.SessionID.String(),
	})
}
