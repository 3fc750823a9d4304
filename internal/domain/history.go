package domain

import (
	"time"

	"github.com/google/uuid"
)

type HistoryFilter struct {
	UserID    *uuid.UUID
	SessionID *uuid.UUID
	Skip      int
	Limit     int
}

type HistoryPage struct {
	Items   []ChatTurn
	Total   int64
	Page    int
	Limit   int
	HasMore bool
}

type UserStats struct {
	UserID         uuid.UUID
	TotalMessages  int64
	TotalSessions  int64
	LatestActivity *time.Time
	TodayMessages  int64
}
