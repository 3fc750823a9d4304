package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/chatrelay/internal/domain"
	"github.com/set-night/chatrelay/internal/llm"
	"github.com/set-night/chatrelay/internal/service"
)

type memoryStore struct {
	mu      sync.Mutex
	creates int
	turns   map[uuid.UUID]*domain.ChatTurn
}

func newMemoryStore() *memoryStore {
	return &memoryStore{turns: make(map[uuid.UUID]*domain.ChatTurn)}
}

func (m *memoryStore) CreateTurn(ctx context.Context, turn *domain.ChatTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	cp := *turn
	m.turns[turn.TurnID] = &cp
	return nil
}

func (m *memoryStore) FinalizeTurn(ctx context.Context, turnID uuid.UUID, assistantMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	turn, ok := m.turns[turnID]
	if !ok {
		return domain.ErrTurnNotFound
	}
	if turn.CompletedAt != nil {
		return domain.ErrTurnFinalized
	}
	now := time.Now()
	turn.AssistantMessage = assistantMessage
	turn.CompletedAt = &now
	return nil
}

func (m *memoryStore) only(t *testing.T) *domain.ChatTurn {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turns) != 1 {
		t.Fatalf("Expected exactly one stored turn, got %d", len(m.turns))
	}
	for _, turn := range m.turns {
		return turn
	}
	return nil
}

type fakeStream struct {
	fragments []string
	err       error
	i         int
}

func (s *fakeStream) Next() bool {
	if s.i >= len(s.fragments) {
		return false
	}
	s.i++
	return true
}

func (s *fakeStream) Content() string { return s.fragments[s.i-1] }
func (s *fakeStream) Err() error      { return s.err }
func (s *fakeStream) Close() error    { return nil }

type fakeProvider struct {
	fragments []string
	err       error
	calls     int
	lastReq   llm.ChatRequest
}

func (p *fakeProvider) DefaultModel() string { return "fake-model" }

func (p *fakeProvider) CreateChatCompletion(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.calls++
	p.lastReq = req
	if p.err != nil {
		return llm.ChatResponse{}, p.err
	}
	return llm.ChatResponse{Content: strings.Join(p.fragments, "")}, nil
}

func (p *fakeProvider) CreateChatCompletionStream(ctx context.Context, req llm.ChatRequest) (llm.ChatStream, error) {
	p.calls++
	p.lastReq = req
	return &fakeStream{fragments: p.fragments, err: p.err}, nil
}

type chatFixture struct {
	handler    http.Handler
	store      *memoryStore
	openrouter *fakeProvider
	openai     *fakeProvider
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{
		store:      newMemoryStore(),
		openrouter: &fakeProvider{fragments: []string{"Hel", "lo"}},
		openai:     &fakeProvider{fragments: []string{"a cat"}},
	}

	dispatcher := llm.NewDispatcher()
	dispatcher.Register(domain.ProviderOpenRouter, f.openrouter)
	dispatcher.Register(domain.ProviderOpenAI, f.openai)

	h := New(Deps{
		Chat:            service.NewChatService(f.store, dispatcher, nil, time.Second),
		History:         &fakeHistory{},
		Providers:       dispatcher,
		DefaultProvider: domain.ProviderOpenRouter,
	})
	f.handler = h.Routes()
	return f
}

func (f *chatFixture) post(path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestChatStream_PlainText(t *testing.T) {
	f := newChatFixture(t)
	sessionID := uuid.New()

	rec := f.post("/chat/stream", `{"session_id":"`+sessionID.String()+`","message":"Hi","api_type":"openrouter","temperature":0.3,"max_tokens":50}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "Hello" {
		t.Fatalf("Expected body 'Hello', got %q", rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("Unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("X-Session-ID") != sessionID.String() {
		t.Fatalf("Expected session header %s, got %q", sessionID, rec.Header().Get("X-Session-ID"))
	}

	turn := f.store.only(t)
	if turn.AssistantMessage != "Hello" || turn.SessionID != sessionID {
		t.Fatalf("Unexpected stored turn %+v", turn)
	}
	if rec.Header().Get("X-Turn-ID") != turn.TurnID.String() {
		t.Fatal("Expected turn header to match the stored turn")
	}
	if turn.Model != "fake-model" || turn.Temperature != 0.3 {
		t.Fatalf("Expected default model and given temperature, got %q %v", turn.Model, turn.Temperature)
	}
	if *f.openrouter.lastReq.MaxTokens != 50 {
		t.Fatalf("Expected max tokens forwarded, got %d", *f.openrouter.lastReq.MaxTokens)
	}
}

func TestChatStream_NDJSON(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post("/chat/stream", `{"message":"Hi"}`, "Accept", "application/x-ndjson")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var events []streamEvent
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var ev streamEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("Invalid line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %+v", events)
	}
	if events[0].Type != "delta" || events[0].Text != "Hel" || events[1].Text != "lo" {
		t.Fatalf("Unexpected deltas %+v", events[:2])
	}
	if events[2].Type != "done" || events[2].TurnID != f.store.only(t).TurnID.String() {
		t.Fatalf("Unexpected done event %+v", events[2])
	}
}

func TestChatStream_DefaultsToConfiguredProvider(t *testing.T) {
	f := newChatFixture(t)

	f.post("/chat/stream", `{"message":"Hi"}`)
	if f.openrouter.calls != 1 || f.openai.calls != 0 {
		t.Fatalf("Expected openrouter used by default, got openrouter=%d openai=%d", f.openrouter.calls, f.openai.calls)
	}
}

func TestChatStream_ImagesGoToOpenAI(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post("/chat/stream", `{"message":"what is this?","api_type":"openrouter","images":[{"base64":"aGk=","name":"x.png","type":"image/png"}]}`)
	if rec.Body.String() != "a cat" {
		t.Fatalf("Expected openai reply, got %q", rec.Body.String())
	}
	if f.openrouter.calls != 0 {
		t.Fatal("Expected openrouter not called for an image request")
	}
	if f.store.only(t).Provider != domain.ProviderOpenAI {
		t.Fatal("Expected turn recorded against openai")
	}
}

func TestChatStream_RejectedBeforeWrite(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bogus provider", `{"message":"Hi","api_type":"bogus"}`, http.StatusBadRequest},
		{"unconfigured provider", `{"message":"Hi","api_type":"gemini"}`, http.StatusServiceUnavailable},
		{"empty message", `{"message":""}`, http.StatusBadRequest},
		{"bad json", `{"message":`, http.StatusBadRequest},
		{"bad session id", `{"message":"Hi","session_id":"nope"}`, http.StatusBadRequest},
		{"temperature out of range", `{"message":"Hi","temperature":3}`, http.StatusBadRequest},
		{"zero max tokens", `{"message":"Hi","max_tokens":0}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t)
			rec := f.post("/chat/stream", tt.body)

			if rec.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"detail"`) {
				t.Fatalf("Expected JSON detail, got %q", rec.Body.String())
			}
			if f.store.creates != 0 {
				t.Fatalf("Expected no store writes, got %d", f.store.creates)
			}
			if f.openrouter.calls != 0 {
				t.Fatal("Expected no provider call")
			}
		})
	}
}

func TestChatStream_ProviderFailureInBand(t *testing.T) {
	f := newChatFixture(t)
	f.openrouter.fragments = []string{"Par"}
	f.openrouter.err = &domain.ProviderError{Provider: "openrouter", StatusCode: 500, Message: "upstream exploded"}

	rec := f.post("/chat/stream", `{"message":"Hi"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 once streaming began, got %d", rec.Code)
	}
	want := "Error: openrouter (500): upstream exploded"
	if rec.Body.String() != "Par"+want {
		t.Fatalf("Expected partial text then error, got %q", rec.Body.String())
	}
	if got := f.store.only(t).AssistantMessage; got != want {
		t.Fatalf("Expected persisted %q, got %q", want, got)
	}
}

func TestChat_Buffered(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post("/chat", `{"message":"Hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp.Message != "Hello" || !resp.Persisted {
		t.Fatalf("Unexpected response %+v", resp)
	}
	if resp.TurnID != f.store.only(t).TurnID {
		t.Fatal("Expected response turn to match the stored turn")
	}
}

func TestChat_BufferedProviderError(t *testing.T) {
	f := newChatFixture(t)
	f.openrouter.err = errors.New("quota exceeded")

	rec := f.post("/chat", `{"message":"Hi"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "quota exceeded") {
		t.Fatalf("Expected provider detail, got %q", rec.Body.String())
	}
	if got := f.store.only(t).AssistantMessage; got != "Error: quota exceeded" {
		t.Fatalf("Expected error persisted, got %q", got)
	}
}
