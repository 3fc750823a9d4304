package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderGemini     ProviderType = "gemini"
	ProviderOpenRouter ProviderType = "openrouter"
)

// Providers lists the provider types a request may name.
var Providers = []ProviderType{ProviderOpenAI, ProviderGemini, ProviderOpenRouter}

func (p ProviderType) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderGemini, ProviderOpenRouter:
		return true
	default:
		return false
	}
}

// ChatTurn is one persisted user/assistant exchange.
type ChatTurn struct {
	TurnID           uuid.UUID
	SessionID        uuid.UUID
	UserID           *uuid.UUID
	UserMessage      string
	AssistantMessage string
	Provider         ProviderType
	Model            string
	Temperature      float64
	Timestamp        time.Time
	CompletedAt      *time.Time
}

func (t *ChatTurn) Completed() bool {
	return t.CompletedAt != nil
}

type ContextEntry struct {
	UserMessage      string
	AssistantMessage string
	FileContent      string
}

// Attachment is an inline base64 image sent with the current message.
type Attachment struct {
	Base64 string
	Name   string
	Type   string
}

// DataURI returns the attachment as a data: URI. Payloads that already carry
// the scheme are returned unchanged.
func (a Attachment) DataURI() string {
	if strings.HasPrefix(a.Base64, "data:") {
		return a.Base64
	}
	mime := a.Type
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + a.Base64
}

type ChatRequest struct {
	SessionID   uuid.UUID
	UserID      *uuid.UUID
	Message     string
	Context     []ContextEntry
	Prompt      string
	Provider    ProviderType
	Model       string
	Temperature float64
	MaxTokens   int
	Images      []Attachment
}

func (r *ChatRequest) HasAttachments() bool {
	return len(r.Images) > 0
}
