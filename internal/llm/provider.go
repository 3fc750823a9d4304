package llm

import (
	"context"
	"time"

	"github.com/set-night/chatrelay/internal/domain"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of the conversation sent upstream.
type Message struct {
	Role    string
	Content string
	Images  []domain.Attachment
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
}

type ChatResponse struct {
	Content string
	Model   string
}

// ChatStream yields response fragments in arrival order. Err reports the
// failure that ended the sequence, if any.
type ChatStream interface {
	Next() bool
	Content() string
	Err() error
	Close() error
}

// Provider is a single upstream model API.
type Provider interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)
	CreateChatCompletionStream(ctx context.Context, req ChatRequest) (ChatStream, error)
	// DefaultModel is used when a request names no model.
	DefaultModel() string
}

// callContext bounds an upstream call. A deadline already set by the caller
// wins; otherwise the adapter's own timeout applies to the whole call,
// including reading a streamed body.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
