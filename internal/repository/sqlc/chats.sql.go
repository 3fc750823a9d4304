// Hand-maintained in sqlc v1.27.0 layout from sqlc.yaml; queries_test.go
// checks the statements against internal/repository/queries/chats.sql.

package sqlc

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const countChatTurns = `-- name: CountChatTurns :one
SELECT count(*)
FROM chats
WHERE ($1::uuid IS NULL OR user_id = $1)
  AND ($2::uuid IS NULL OR session_id = $2)
`

type CountChatTurnsParams struct {
	UserID    *uuid.UUID `json:"user_id"`
	SessionID *uuid.UUID `json:"session_id"`
}

func (q *Queries) CountChatTurns(ctx context.Context, arg CountChatTurnsParams) (int64, error) {
	row := q.db.QueryRow(ctx, countChatTurns, arg.UserID, arg.SessionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createChatTurn = `-- name: CreateChatTurn :one
INSERT INTO chats (session_id, turn_id, user_id, user_message, assistant_message, provider, model, temperature, timestamp)
VALUES ($1, $2, $3, $4, '', $5, $6, $7, $8)
RETURNING turn_id, session_id, user_id, user_message, assistant_message, provider, model, temperature, timestamp, completed_at
`

type CreateChatTurnParams struct {
	SessionID   uuid.UUID          `json:"session_id"`
	TurnID      uuid.UUID          `json:"turn_id"`
	UserID      *uuid.UUID         `json:"user_id"`
	UserMessage string             `json:"user_message"`
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	Temperature decimal.Decimal    `json:"temperature"`
	Timestamp   pgtype.Timestamptz `json:"timestamp"`
}

func (q *Queries) CreateChatTurn(ctx context.Context, arg CreateChatTurnParams) (Chat, error) {
	row := q.db.QueryRow(ctx, createChatTurn,
		arg.SessionID,
		arg.TurnID,
		arg.UserID,
		arg.UserMessage,
		arg.Provider,
		arg.Model,
		arg.Temperature,
		arg.Timestamp,
	)
	var i Chat
	err := row.Scan(
		&i.TurnID,
		&i.SessionID,
		&i.UserID,
		&i.UserMessage,
		&i.AssistantMessage,
		&i.Provider,
		&i.Model,
		&i.Temperature,
		&i.Timestamp,
		&i.CompletedAt,
	)
	return i, err
}

const finalizeChatTurn = `-- name: FinalizeChatTurn :execrows
UPDATE chats
SET assistant_message = $1, completed_at = now()
WHERE turn_id = $2 AND completed_at IS NULL
`

type FinalizeChatTurnParams struct {
	AssistantMessage string    `json:"assistant_message"`
	TurnID           uuid.UUID `json:"turn_id"`
}

func (q *Queries) FinalizeChatTurn(ctx context.Context, arg FinalizeChatTurnParams) (int64, error) {
	result, err := q.db.Exec(ctx, finalizeChatTurn, arg.AssistantMessage, arg.TurnID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getChatTurn = `-- name: GetChatTurn :one
SELECT turn_id, session_id, user_id, user_message, assistant_message, provider, model, temperature, timestamp, completed_at
FROM chats
WHERE turn_id = $1
`

func (q *Queries) GetChatTurn(ctx context.Context, turnID uuid.UUID) (Chat, error) {
	row := q.db.QueryRow(ctx, getChatTurn, turnID)
	var i Chat
	err := row.Scan(
		&i.TurnID,
		&i.SessionID,
		&i.UserID,
		&i.UserMessage,
		&i.AssistantMessage,
		&i.Provider,
		&i.Model,
		&i.Temperature,
		&i.Timestamp,
		&i.CompletedAt,
	)
	return i, err
}

type GetRecentConversationsParams struct {
	UserID   *uuid.UUID `json:"user_id"`
	RowLimit int32      `json:"row_limit"`
}

const getRecentConversations = `-- name: GetRecentConversations :many
SELECT turn_id, session_id, user_id, user_message, assistant_message, provider, model, temperature, timestamp, completed_at
FROM (
    SELECT DISTINCT ON (session_id) turn_id, session_id, user_id, user_message, assistant_message, provider, model, temperature, timestamp, completed_at
    FROM chats
    WHERE ($1::uuid IS NULL OR user_id = $1)
    ORDER BY session_id, timestamp DESC
) latest
ORDER BY timestamp DESC
LIMIT $2
`

func (q *Queries) GetRecentConversations(ctx context.Context, arg GetRecentConversationsParams) ([]Chat, error) {
	rows, err := q.db.Query(ctx, getRecentConversations, arg.UserID, arg.RowLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Chat
	for rows.Next() {
		var i Chat
		if err := rows.Scan(
			&i.TurnID,
			&i.SessionID,
			&i.UserID,
			&i.UserMessage,
			&i.AssistantMessage,
			&i.Provider,
			&i.Model,
			&i.Temperature,
			&i.Timestamp,
			&i.CompletedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type GetSessionTurnsParams struct {
	SessionID uuid.UUID  `json:"session_id"`
	UserID    *uuid.UUID `json:"user_id"`
}

const getSessionTurns = `-- name: GetSessionTurns :many
SELECT turn_id, session_id, user_id, user_message, assistant_message, provider, model, temperature, timestamp, completed_at
FROM chats
WHERE session_id = $1
  AND ($2::uuid IS NULL OR user_id = $2)
ORDER BY timestamp ASC
`

func (q *Queries) GetSessionTurns(ctx context.Context, arg GetSessionTurnsParams) ([]Chat, error) {
	rows, err := q.db.Query(ctx, getSessionTurns, arg.SessionID, arg.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Chat
	for rows.Next() {
		var i Chat
		if err := rows.Scan(
			&i.TurnID,
			&i.SessionID,
			&i.UserID,
			&i.UserMessage,
			&i.AssistantMessage,
			&i.Provider,
			&i.Model,
			&i.Temperature,
			&i.Timestamp,
			&i.CompletedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getUserStatistics = `-- name: GetUserStatistics :one
SELECT count(*) AS total_messages,
       count(DISTINCT session_id) AS total_sessions,
       max(timestamp)::timestamptz AS latest_activity,
       count(*) FILTER (WHERE timestamp >= date_trunc('day', now())) AS today_messages
FROM chats
WHERE user_id = $1
`

type GetUserStatisticsRow struct {
	TotalMessages  int64              `json:"total_messages"`
	TotalSessions  int64              `json:"total_sessions"`
	LatestActivity pgtype.Timestamptz `json:"latest_activity"`
	TodayMessages  int64              `json:"today_messages"`
}

func (q *Queries) GetUserStatistics(ctx context.Context, userID *uuid.UUID) (GetUserStatisticsRow, error) {
	row := q.db.QueryRow(ctx, getUserStatistics, userID)
	var i GetUserStatisticsRow
	err := row.Scan(
		&i.TotalMessages,
		&i.TotalSessions,
		&i.LatestActivity,
		&i.TodayMessages,
	)
	return i, err
}

type ListChatTurnsParams struct {
	UserID    *uuid.UUID `json:"user_id"`
	SessionID *uuid.UUID `json:"session_id"`
	RowLimit  int32      `json:"row_limit"`
	RowOffset int32      `json:"row_offset"`
}

const listChatTurns = `-- name: ListChatTurns :many
SELECT turn_id, session_id, user_id, user_message, assistant_message, provider, model, temperature, timestamp, completed_at
FROM chats
WHERE ($1::uuid IS NULL OR user_id = $1)
  AND ($2::uuid IS NULL OR session_id = $2)
ORDER BY timestamp DESC
LIMIT $3 OFFSET $4
`

func (q *Queries) ListChatTurns(ctx context.Context, arg ListChatTurnsParams) ([]Chat, error) {
	rows, err := q.db.Query(ctx, listChatTurns, arg.UserID, arg.SessionID, arg.RowLimit, arg.RowOffset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Chat
	for rows.Next() {
		var i Chat
		if err := rows.Scan(
			&i.TurnID,
			&i.SessionID,
			&i.UserID,
			&i.UserMessage,
			&i.AssistantMessage,
			&i.Provider,
			&i.Model,
			&i.Temperature,
			&i.Timestamp,
			&i.CompletedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type SearchChatTurnsParams struct {
	Term     string     `json:"term"`
	UserID   *uuid.UUID `json:"user_id"`
	RowLimit int32      `json:"row_limit"`
}

const searchChatTurns = `-- name: SearchChatTurns :many
SELECT turn_id, session_id, user_id, user_message, assistant_message, provider, model, temperature, timestamp, completed_at
FROM chats
WHERE (user_message ILIKE '%' || $1::text || '%' OR assistant_message ILIKE '%' || $1::text || '%')
  AND ($2::uuid IS NULL OR user_id = $2)
ORDER BY timestamp DESC
LIMIT $3
`

func (q *Queries) SearchChatTurns(ctx context.Context, arg SearchChatTurnsParams) ([]Chat, error) {
	rows, err := q.db.Query(ctx, searchChatTurns, arg.Term, arg.UserID, arg.RowLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Chat
	for rows.Next() {
		var i Chat
		if err := rows.Scan(
			&i.TurnID,
			&i.SessionID,
			&i.UserID,
			&i.UserMessage,
			&i.AssistantMessage,
			&i.Provider,
			&i.Model,
			&i.Temperature,
			&i.Timestamp,
			&i.CompletedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
