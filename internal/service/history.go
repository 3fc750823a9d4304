package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/set-night/chatrelay/internal/config"
	"github.com/set-night/chatrelay/internal/domain"
	"github.com/set-night/chatrelay/internal/repository/sqlc"
	"github.com/shopspring/decimal"
)

// HistoryDB is the part of *pgxpool.Pool the history service needs.
type HistoryDB interface {
	sqlc.DBTX
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// HistoryService stores chat turns and answers history queries.
type HistoryService struct {
	db      HistoryDB
	queries *sqlc.Queries
}

func NewHistoryService(db HistoryDB, queries *sqlc.Queries) *HistoryService {
	return &HistoryService{db: db, queries: queries}
}

func (s *HistoryService) CreateTurn(ctx context.Context, turn *domain.ChatTurn) error {
	row, err := s.queries.CreateChatTurn(ctx, sqlc.CreateChatTurnParams{
		SessionID:   turn.SessionID,
		TurnID:      turn.TurnID,
		UserID:      turn.UserID,
		UserMessage: turn.UserMessage,
		Provider:    string(turn.Provider),
		Model:       turn.Model,
		Temperature: decimal.NewFromFloat(turn.Temperature),
		Timestamp:   timeToPgTimestamptz(turn.Timestamp),
	})
	if err != nil {
		return fmt.Errorf("create chat turn: %w", err)
	}
	turn.Timestamp = pgTimestamptzToTime(row.Timestamp)
	return nil
}

func (s *HistoryService) FinalizeTurn(ctx context.Context, turnID uuid.UUID, assistantMessage string) error {
	n, err := s.queries.FinalizeChatTurn(ctx, sqlc.FinalizeChatTurnParams{
		TurnID:           turnID,
		AssistantMessage: assistantMessage,
	})
	if err != nil {
		return fmt.Errorf("finalize chat turn: %w", err)
	}
	if n == 0 {
		return domain.ErrTurnFinalized
	}
	return nil
}

func (s *HistoryService) GetTurn(ctx context.Context, turnID uuid.UUID) (*domain.ChatTurn, error) {
	row, err := s.queries.GetChatTurn(ctx, turnID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTurnNotFound
		}
		return nil, fmt.Errorf("get chat turn: %w", err)
	}
	return rowToTurn(row), nil
}

// List returns one page of turns, newest first, with the total for the filter.
func (s *HistoryService) List(ctx context.Context, filter domain.HistoryFilter) (*domain.HistoryPage, error) {
	skip, limit := pageWindow(filter.Skip, filter.Limit)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin history read: %w", err)
	}
	defer tx.Rollback(ctx)
	q := s.queries.WithTx(tx)

	total, err := q.CountChatTurns(ctx, sqlc.CountChatTurnsParams{
		UserID:    filter.UserID,
		SessionID: filter.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("count chat turns: %w", err)
	}

	rows, err := q.ListChatTurns(ctx, sqlc.ListChatTurnsParams{
		UserID:    filter.UserID,
		SessionID: filter.SessionID,
		RowLimit:  int32(limit),
		RowOffset: int32(skip),
	})
	if err != nil {
		return nil, fmt.Errorf("list chat turns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit history read: %w", err)
	}

	return newHistoryPage(rowsToTurns(rows), total, skip, limit), nil
}

// pageWindow normalizes skip and limit into values the list query accepts.
func pageWindow(skip, limit int) (int, int) {
	limit = clampLimit(limit, config.DefaultHistoryLimit, config.MaxHistoryLimit)
	skip = min(max(skip, 0), math.MaxInt32)
	return skip, limit
}

func newHistoryPage(items []domain.ChatTurn, total int64, skip, limit int) *domain.HistoryPage {
	return &domain.HistoryPage{
		Items:   items,
		Total:   total,
		Page:    skip/limit + 1,
		Limit:   limit,
		HasMore: int64(skip)+int64(len(items)) < total,
	}
}

// SessionTurns returns a session's turns oldest first.
func (s *HistoryService) SessionTurns(ctx context.Context, sessionID uuid.UUID, userID *uuid.UUID) ([]domain.ChatTurn, error) {
	rows, err := s.queries.GetSessionTurns(ctx, sqlc.GetSessionTurnsParams{
		SessionID: sessionID,
		UserID:    userID,
	})
	if err != nil {
		return nil, fmt.Errorf("get session turns: %w", err)
	}
	return rowsToTurns(rows), nil
}

// RecentConversations returns the latest turn of each session, newest first.
func (s *HistoryService) RecentConversations(ctx context.Context, userID *uuid.UUID, limit int) ([]domain.ChatTurn, error) {
	rows, err := s.queries.GetRecentConversations(ctx, sqlc.GetRecentConversationsParams{
		UserID:   userID,
		RowLimit: int32(clampLimit(limit, config.DefaultRecentLimit, config.MaxHistoryLimit)),
	})
	if err != nil {
		return nil, fmt.Errorf("get recent conversations: %w", err)
	}
	return rowsToTurns(rows), nil
}

func (s *HistoryService) Search(ctx context.Context, term string, userID *uuid.UUID, limit int) ([]domain.ChatTurn, error) {
	rows, err := s.queries.SearchChatTurns(ctx, sqlc.SearchChatTurnsParams{
		Term:     escapeLike(term),
		UserID:   userID,
		RowLimit: int32(clampLimit(limit, config.DefaultSearchLimit, config.MaxSearchLimit)),
	})
	if err != nil {
		return nil, fmt.Errorf("search chat turns: %w", err)
	}
	return rowsToTurns(rows), nil
}

func (s *HistoryService) UserStats(ctx context.Context, userID uuid.UUID) (*domain.UserStats, error) {
	row, err := s.queries.GetUserStatistics(ctx, &userID)
	if err != nil {
		return nil, fmt.Errorf("get user statistics: %w", err)
	}
	return &domain.UserStats{
		UserID:         userID,
		TotalMessages:  row.TotalMessages,
		TotalSessions:  row.TotalSessions,
		LatestActivity: pgTimestamptzToTimePtr(row.LatestActivity),
		TodayMessages:  row.TodayMessages,
	}, nil
}

func (s *HistoryService) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func rowToTurn(row sqlc.Chat) *domain.ChatTurn {
	return &domain.ChatTurn{
		TurnID:           row.TurnID,
		SessionID:        row.SessionID,
		UserID:           row.UserID,
		UserMessage:      row.UserMessage,
		AssistantMessage: row.AssistantMessage,
		Provider:         domain.ProviderType(row.Provider),
		Model:            row.Model,
		Temperature:      decimalToFloat(row.Temperature),
		Timestamp:        pgTimestamptzToTime(row.Timestamp),
		CompletedAt:      pgTimestamptzToTimePtr(row.CompletedAt),
	}
}

func rowsToTurns(rows []sqlc.Chat) []domain.ChatTurn {
	turns := make([]domain.ChatTurn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, *rowToTurn(row))
	}
	return turns
}
