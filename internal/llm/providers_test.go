package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/set-night/chatrelay/internal/domain"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(rt roundTripperFunc) *http.Client {
	return &http.Client{Transport: rt}
}

func newHTTPResponse(req *http.Request, status int, contentType string, body []byte) *http.Response {
	resp := &http.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(body)),
		Request:    req,
	}
	if contentType != "" {
		resp.Header.Set("Content-Type", contentType)
	}
	return resp
}

func newJSONResponse(t *testing.T, req *http.Request, status int, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return newHTTPResponse(req, status, "application/json", data)
}

func completionPayload(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []any{
			map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
}

func sseBody(t *testing.T, deltas ...string) []byte {
	t.Helper()
	var sb strings.Builder
	for i, delta := range deltas {
		chunk := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "test-model",
			"choices": []any{
				map[string]any{
					"index": 0,
					"delta": map[string]any{"content": delta},
				},
			},
		}
		if i == 0 {
			chunk["choices"].([]any)[0].(map[string]any)["delta"].(map[string]any)["role"] = "assistant"
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			t.Fatalf("marshal chunk: %v", err)
		}
		sb.WriteString("data: ")
		sb.Write(data)
		sb.WriteString("\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return []byte(sb.String())
}

func collect(t *testing.T, stream ChatStream) []string {
	t.Helper()
	var out []string
	for stream.Next() {
		out = append(out, stream.Content())
	}
	return out
}

func TestOpenAIProvider_CreateChatCompletion(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any

	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		gotAuth = req.Header.Get("Authorization")
		if err := json.NewDecoder(req.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		return newJSONResponse(t, req, http.StatusOK, completionPayload("  hello there \n")), nil
	})

	provider, err := newOpenAIProviderWithHTTPClient(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: "https://openai.test/v1",
		Model:   "gpt-test",
	}, client)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}

	temp := 0.3
	resp, err := provider.CreateChatCompletion(context.Background(), ChatRequest{
		Messages:    BuildMessages("be brief", nil, "hi", nil),
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion() error: %v", err)
	}

	if resp.Content != "hello there" {
		t.Fatalf("Expected trimmed content, got %q", resp.Content)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("Expected path '/v1/chat/completions', got %q", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("Expected Authorization header, got %q", gotAuth)
	}
	if model, _ := gotPayload["model"].(string); model != "gpt-test" {
		t.Fatalf("Expected default model 'gpt-test', got %q", model)
	}
	if temperature, _ := gotPayload["temperature"].(float64); temperature != 0.3 {
		t.Fatalf("Expected temperature 0.3, got %v", gotPayload["temperature"])
	}
	if maxTokens, _ := gotPayload["max_tokens"].(float64); maxTokens != 1000 {
		t.Fatalf("Expected default max_tokens 1000, got %v", gotPayload["max_tokens"])
	}
	messages, ok := gotPayload["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %v", gotPayload["messages"])
	}
	if role := messages[0].(map[string]any)["role"]; role != "system" {
		t.Fatalf("Expected system message first, got %v", role)
	}
}

func TestOpenAIProvider_ImageParts(t *testing.T) {
	var gotPayload map[string]any
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		return newJSONResponse(t, req, http.StatusOK, completionPayload("a cat")), nil
	})

	provider, err := newOpenAIProviderWithHTTPClient(OpenAIConfig{APIKey: "sk-test", BaseURL: "https://openai.test/v1"}, client)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}

	images := []domain.Attachment{{Base64: "aGVsbG8=", Name: "cat.png", Type: "image/png"}}
	_, err = provider.CreateChatCompletion(context.Background(), ChatRequest{
		Messages: BuildMessages("", nil, "what is this?", images),
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion() error: %v", err)
	}

	messages := gotPayload["messages"].([]any)
	content, ok := messages[0].(map[string]any)["content"].([]any)
	if !ok || len(content) != 2 {
		t.Fatalf("Expected text + image parts, got %v", messages[0])
	}
	imagePart := content[1].(map[string]any)
	if imagePart["type"] != "image_url" {
		t.Fatalf("Expected image_url part, got %v", imagePart)
	}
	url := imagePart["image_url"].(map[string]any)["url"]
	if url != "data:image/png;base64,aGVsbG8=" {
		t.Fatalf("Expected data URI, got %v", url)
	}
}

func TestOpenAIProvider_StreamFragments(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return newHTTPResponse(req, http.StatusOK, "text/event-stream", sseBody(t, "Hel", "", "lo", " world")), nil
	})

	provider, err := newOpenAIProviderWithHTTPClient(OpenAIConfig{APIKey: "sk-test", BaseURL: "https://openai.test/v1"}, client)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}

	stream, err := provider.CreateChatCompletionStream(context.Background(), ChatRequest{
		Messages: BuildMessages("", nil, "hi", nil),
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream() error: %v", err)
	}
	defer stream.Close()

	got := collect(t, stream)
	if strings.Join(got, "|") != "Hel|lo| world" {
		t.Fatalf("Expected non-empty fragments in order, got %q", got)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("Expected clean end of stream, got %v", err)
	}
}

func TestOpenAIProvider_StreamMatchesBuffered(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		var payload map[string]any
		_ = json.NewDecoder(req.Body).Decode(&payload)
		if stream, _ := payload["stream"].(bool); stream {
			return newHTTPResponse(req, http.StatusOK, "text/event-stream", sseBody(t, "The ", "answer ", "is 42.")), nil
		}
		return newJSONResponse(t, req, http.StatusOK, completionPayload("The answer is 42.")), nil
	})

	provider, err := newOpenAIProviderWithHTTPClient(OpenAIConfig{APIKey: "sk-test", BaseURL: "https://openai.test/v1"}, client)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}
	req := ChatRequest{Messages: BuildMessages("", nil, "q", nil)}

	resp, err := provider.CreateChatCompletion(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateChatCompletion() error: %v", err)
	}
	stream, err := provider.CreateChatCompletionStream(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateChatCompletionStream() error: %v", err)
	}
	defer stream.Close()

	if joined := strings.Join(collect(t, stream), ""); joined != resp.Content {
		t.Fatalf("Expected streamed text %q to equal buffered %q", joined, resp.Content)
	}
}

// slowSSEClient serves the given deltas one at a time, pausing between them.
// The body fails with the request's context error once it is cancelled.
func slowSSEClient(t *testing.T, pause time.Duration, deltas ...string) *http.Client {
	t.Helper()
	body := sseBody(t, deltas...)
	events := bytes.SplitAfter(body, []byte("\n\n"))
	return newTestClient(func(req *http.Request) (*http.Response, error) {
		pr, pw := io.Pipe()
		go func() {
			for _, event := range events {
				select {
				case <-req.Context().Done():
					pw.CloseWithError(req.Context().Err())
					return
				case <-time.After(pause):
				}
				if _, err := pw.Write(event); err != nil {
					return
				}
			}
			pw.Close()
		}()
		resp := newHTTPResponse(req, http.StatusOK, "text/event-stream", nil)
		resp.Body = pr
		return resp, nil
	})
}

func TestOpenAIProvider_CallerDeadlineGovernsStream(t *testing.T) {
	client := slowSSEClient(t, 30*time.Millisecond, "t0 ", "t1 ", "t2 ", "t3 ", "t4 ", "t5")

	provider, err := newOpenAIProviderWithHTTPClient(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: "https://openai.test/v1",
		Timeout: 50 * time.Millisecond,
	}, client)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := provider.CreateChatCompletionStream(ctx, ChatRequest{
		Messages: BuildMessages("", nil, "count", nil),
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream() error: %v", err)
	}
	defer stream.Close()

	if joined := strings.Join(collect(t, stream), ""); joined != "t0 t1 t2 t3 t4 t5" {
		t.Fatalf("Expected the full stream, got %q", joined)
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("Expected clean end of stream, got %v", err)
	}
}

func TestOpenAIProvider_OwnTimeoutWithoutCallerDeadline(t *testing.T) {
	client := slowSSEClient(t, 40*time.Millisecond, "t0 ", "t1 ", "t2 ", "t3 ", "t4 ", "t5")

	provider, err := newOpenAIProviderWithHTTPClient(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: "https://openai.test/v1",
		Timeout: 100 * time.Millisecond,
	}, client)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}

	stream, err := provider.CreateChatCompletionStream(context.Background(), ChatRequest{
		Messages: BuildMessages("", nil, "count", nil),
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream() error: %v", err)
	}
	defer stream.Close()

	if joined := strings.Join(collect(t, stream), ""); joined == "t0 t1 t2 t3 t4 t5" {
		t.Fatalf("Expected the stream to be cut short, got %q", joined)
	}
	var pe *domain.ProviderError
	if !errors.As(stream.Err(), &pe) {
		t.Fatalf("Expected *domain.ProviderError, got %v", stream.Err())
	}
	if pe.Message != domain.ErrProviderTimeout.Error() {
		t.Fatalf("Expected timeout message, got %q", pe.Message)
	}
}

func TestCallContext(t *testing.T) {
	ctx, cancel := callContext(context.Background(), time.Minute)
	deadline, ok := ctx.Deadline()
	cancel()
	if !ok || time.Until(deadline) > time.Minute {
		t.Fatalf("Expected own timeout without caller deadline, got %v %v", deadline, ok)
	}

	parent, parentCancel := context.WithTimeout(context.Background(), time.Hour)
	defer parentCancel()
	want, _ := parent.Deadline()

	ctx, cancel = callContext(parent, time.Second)
	defer cancel()
	if got, _ := ctx.Deadline(); !got.Equal(want) {
		t.Fatalf("Expected caller deadline %v to win, got %v", want, got)
	}

	ctx, cancel = callContext(context.Background(), 0)
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("Expected no deadline for zero timeout")
	}
}

func TestOpenAIProvider_StatusErrorNormalized(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return newJSONResponse(t, req, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"message": "invalid api key", "type": "invalid_request_error"},
		}), nil
	})

	provider, err := newOpenAIProviderWithHTTPClient(OpenAIConfig{APIKey: "sk-bad", BaseURL: "https://openai.test/v1"}, client)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}

	_, err = provider.CreateChatCompletionStream(context.Background(), ChatRequest{
		Messages: BuildMessages("", nil, "hi", nil),
	})

	var pe *domain.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected *domain.ProviderError, got %T %v", err, err)
	}
	if pe.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", pe.StatusCode)
	}
	if pe.Provider != "openai" {
		t.Fatalf("Expected provider openai, got %q", pe.Provider)
	}
}

func TestOpenAIProvider_MidStreamFailure(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		body := bytes.TrimSuffix(sseBody(t, "Par"), []byte("data: [DONE]\n\n"))
		body = append(body, []byte("data: {not json\n\n")...)
		return newHTTPResponse(req, http.StatusOK, "text/event-stream", body), nil
	})

	provider, err := newOpenAIProviderWithHTTPClient(OpenAIConfig{APIKey: "sk-test", BaseURL: "https://openai.test/v1"}, client)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}

	stream, err := provider.CreateChatCompletionStream(context.Background(), ChatRequest{
		Messages: BuildMessages("", nil, "hi", nil),
	})
	if err != nil {
		t.Fatalf("CreateChatCompletionStream() error: %v", err)
	}
	defer stream.Close()

	got := collect(t, stream)
	if len(got) != 1 || got[0] != "Par" {
		t.Fatalf("Expected single fragment before failure, got %q", got)
	}
	var pe *domain.ProviderError
	if !errors.As(stream.Err(), &pe) {
		t.Fatalf("Expected *domain.ProviderError from Err(), got %v", stream.Err())
	}
}

func TestOpenAIProvider_RejectsNonPositiveMaxTokens(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return newJSONResponse(t, req, http.StatusOK, completionPayload("x")), nil
	})

	provider, err := newOpenAIProviderWithHTTPClient(OpenAIConfig{APIKey: "sk-test", BaseURL: "https://openai.test/v1"}, client)
	if err != nil {
		t.Fatalf("newOpenAIProvider() error: %v", err)
	}

	zero := 0
	_, err = provider.CreateChatCompletion(context.Background(), ChatRequest{
		Messages:  BuildMessages("", nil, "hi", nil),
		MaxTokens: &zero,
	})
	if err == nil {
		t.Fatal("Expected error for max tokens 0")
	}
	if calls.Load() != 0 {
		t.Fatalf("Expected no upstream call, got %d", calls.Load())
	}
}

func TestNewOpenAIProvider_RequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Fatal("Expected error when OpenAI API key is missing")
	}
}

func TestOpenRouterProvider_HeadersAndNoImages(t *testing.T) {
	var gotReferer, gotTitle, gotPath string
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		gotReferer = req.Header.Get("HTTP-Referer")
		gotTitle = req.Header.Get("X-Title")
		return newJSONResponse(t, req, http.StatusOK, completionPayload("ok")), nil
	})

	provider, err := newOpenRouterProviderWithHTTPClient(OpenRouterConfig{
		APIKey:  "or-key",
		BaseURL: "https://openrouter.test/api/v1",
		Referer: "https://chat.example.com",
		Title:   "chatrelay",
	}, client)
	if err != nil {
		t.Fatalf("newOpenRouterProvider() error: %v", err)
	}

	resp, err := provider.CreateChatCompletion(context.Background(), ChatRequest{
		Messages: BuildMessages("", nil, "hi", nil),
	})
	if err != nil {
		t.Fatalf("CreateChatCompletion() error: %v", err)
	}
	if resp.Content != "ok" {
		t.Fatalf("Expected 'ok', got %q", resp.Content)
	}
	if gotPath != "/api/v1/chat/completions" {
		t.Fatalf("Unexpected path %q", gotPath)
	}
	if gotReferer != "https://chat.example.com" || gotTitle != "chatrelay" {
		t.Fatalf("Expected attribution headers, got referer=%q title=%q", gotReferer, gotTitle)
	}

	_, err = provider.CreateChatCompletion(context.Background(), ChatRequest{
		Messages: BuildMessages("", nil, "hi", []domain.Attachment{{Base64: "aGk="}}),
	})
	if err == nil {
		t.Fatal("Expected OpenRouter adapter to reject image attachments")
	}
}

func TestOpenRouterProvider_ListModelsCached(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		if req.URL.Path != "/api/v1/models" {
			t.Fatalf("Unexpected path %q", req.URL.Path)
		}
		return newJSONResponse(t, req, http.StatusOK, map[string]any{
			"data": []any{
				map[string]any{
					"id":             "google/gemini-flash",
					"name":           "Gemini Flash",
					"pricing":        map[string]any{"prompt": "0.0000001", "completion": "0.0000004"},
					"context_length": 1000,
					"top_provider":   map[string]any{"context_length": 1048576},
					"architecture":   map[string]any{"modality": "text+image->text"},
				},
				map[string]any{
					"id":             "meta/llama:free",
					"name":           "Llama",
					"pricing":        map[string]any{"prompt": "0", "completion": "0"},
					"context_length": 8192,
				},
			},
		}), nil
	})

	provider, err := newOpenRouterProviderWithHTTPClient(OpenRouterConfig{
		APIKey:  "or-key",
		BaseURL: "https://openrouter.test/api/v1",
	}, client)
	if err != nil {
		t.Fatalf("newOpenRouterProvider() error: %v", err)
	}

	models, err := provider.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Expected 2 models, got %d", len(models))
	}
	if models[0].ContextLength != 1048576 {
		t.Fatalf("Expected top provider context length, got %d", models[0].ContextLength)
	}
	if models[0].PromptPrice < 0.099 || models[0].PromptPrice > 0.101 {
		t.Fatalf("Expected prompt price per 1M tokens ~0.1, got %v", models[0].PromptPrice)
	}
	if !models[0].Capabilities.Vision || !models[0].Capabilities.Files {
		t.Fatalf("Expected vision capability, got %+v", models[0].Capabilities)
	}
	if !models[1].IsFree() {
		t.Fatal("Expected free model")
	}

	if _, err := provider.GetModel(context.Background(), "meta/llama:free"); err != nil {
		t.Fatalf("GetModel() error: %v", err)
	}
	if _, err := provider.GetModel(context.Background(), "missing"); !errors.Is(err, domain.ErrModelNotFound) {
		t.Fatalf("Expected ErrModelNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("Expected catalog to be fetched once, got %d", calls.Load())
	}
}

func TestEmbedder_Embed(t *testing.T) {
	var gotPayload map[string]any
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/v1/embeddings" {
			t.Fatalf("Unexpected path %q", req.URL.Path)
		}
		if err := json.NewDecoder(req.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		return newJSONResponse(t, req, http.StatusOK, map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []any{
				map[string]any{"object": "embedding", "index": 1, "embedding": []float64{0, 1}},
				map[string]any{"object": "embedding", "index": 0, "embedding": []float64{1, 0}},
			},
			"usage": map[string]any{"prompt_tokens": 2, "total_tokens": 2},
		}), nil
	})

	embedder, err := newEmbedderWithHTTPClient(OpenAIConfig{APIKey: "sk-test", BaseURL: "https://openai.test/v1"}, "text-embedding-3-small", 2, client)
	if err != nil {
		t.Fatalf("newEmbedder() error: %v", err)
	}

	vectors, err := embedder.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("Expected vectors ordered by index, got %v", vectors)
	}
	if dims, _ := gotPayload["dimensions"].(float64); dims != 2 {
		t.Fatalf("Expected dimensions 2 in request, got %v", gotPayload["dimensions"])
	}
}
