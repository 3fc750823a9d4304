package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/set-night/chatrelay/internal/domain"
	"github.com/set-night/chatrelay/internal/service"
)

type ChatService interface {
	Stream(ctx context.Context, req *domain.ChatRequest, w service.StreamWriter) (*domain.ChatTurn, error)
	Complete(ctx context.Context, req *domain.ChatRequest) (*domain.ChatTurn, error)
}

type HistoryReader interface {
	GetTurn(ctx context.Context, turnID uuid.UUID) (*domain.ChatTurn, error)
	List(ctx context.Context, filter domain.HistoryFilter) (*domain.HistoryPage, error)
	SessionTurns(ctx context.Context, sessionID uuid.UUID, userID *uuid.UUID) ([]domain.ChatTurn, error)
	RecentConversations(ctx context.Context, userID *uuid.UUID, limit int) ([]domain.ChatTurn, error)
	Search(ctx context.Context, term string, userID *uuid.UUID, limit int) ([]domain.ChatTurn, error)
	UserStats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error)
	Ping(ctx context.Context) error
}

type ModelCatalog interface {
	ListModels(ctx context.Context) ([]domain.AIModel, error)
	GetModel(ctx context.Context, modelID string) (*domain.AIModel, error)
}

type Documents interface {
	InitSession(ctx context.Context, sessionID uuid.UUID) (string, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) error
	AddDocument(ctx context.Context, sessionID uuid.UUID, doc domain.Document) (*domain.IngestResult, error)
	QuerySimilar(ctx context.Context, sessionID uuid.UUID, query string, n int) ([]domain.SimilarChunk, error)
	Retrieve(ctx context.Context, sessionID uuid.UUID, query string, chunksPerDoc, maxDocs int) ([]domain.ReconstructedDocument, error)
}

type ProviderLister interface {
	Available() []domain.ProviderType
}

// Handler holds all dependencies needed by the HTTP routes.
type Handler struct {
	chat            ChatService
	history         HistoryReader
	models          ModelCatalog
	documents       Documents
	providers       ProviderLister
	defaultProvider domain.ProviderType
}

// Deps contains all dependencies required to construct a Handler. Models and
// Documents may be nil when the backing service is not configured.
type Deps struct {
	Chat            ChatService
	History         HistoryReader
	Models          ModelCatalog
	Documents       Documents
	Providers       ProviderLister
	DefaultProvider domain.ProviderType
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		chat:            deps.Chat,
		history:         deps.History,
		models:          deps.Models,
		documents:       deps.Documents,
		providers:       deps.Providers,
		defaultProvider: deps.DefaultProvider,
	}
}
