// Hand-maintained in sqlc v1.27.0 layout from sqlc.yaml; queries_test.go
// checks the statements against internal/repository/queries/chats.sql.

package sqlc

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

type Chat struct {
	TurnID           uuid.UUID          `json:"turn_id"`
	SessionID        uuid.UUID          `json:"session_id"`
	UserID           *uuid.UUID         `json:"user_id"`
	UserMessage      string             `json:"user_message"`
	AssistantMessage string             `json:"assistant_message"`
	Provider         string             `json:"provider"`
	Model            string             `json:"model"`
	Temperature      decimal.Decimal    `json:"temperature"`
	Timestamp        pgtype.Timestamptz `json:"timestamp"`
	CompletedAt      pgtype.Timestamptz `json:"completed_at"`
}
