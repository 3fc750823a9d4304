package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/chatrelay/internal/domain"
)

type turnResponse struct {
	TurnID           uuid.UUID  `json:"turn_id"`
	SessionID        uuid.UUID  `json:"session_id"`
	UserID           *uuid.UUID `json:"user_id,omitempty"`
	UserMessage      string     `json:"user_message"`
	AssistantMessage string     `json:"assistant_message"`
	Provider         string     `json:"api_type"`
	Model            string     `json:"model"`
	Temperature      float64    `json:"temperature"`
	Timestamp        time.Time  `json:"timestamp"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type historyResponse struct {
	Items   []turnResponse `json:"items"`
	Total   int64          `json:"total"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
	HasMore bool           `json:"has_more"`
}

type userStatsResponse struct {
	UserID         uuid.UUID  `json:"user_id"`
	TotalMessages  int64      `json:"total_messages"`
	TotalSessions  int64      `json:"total_sessions"`
	LatestActivity *time.Time `json:"latest_activity"`
	TodayMessages  int64      `json:"today_messages"`
}

func toTurnResponse(t domain.ChatTurn) turnResponse {
	return turnResponse{
		TurnID:           t.TurnID,
		SessionID:        t.SessionID,
		UserID:           t.UserID,
		UserMessage:      t.UserMessage,
		AssistantMessage: t.AssistantMessage,
		Provider:         string(t.Provider),
		Model:            t.Model,
		Temperature:      t.Temperature,
		Timestamp:        t.Timestamp,
		CompletedAt:      t.CompletedAt,
	}
}

func toTurnResponses(turns []domain.ChatTurn) []turnResponse {
	out := make([]turnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, toTurnResponse(t))
	}
	return out
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID, err := parseOptionalUUID("user_id", q.Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sessionID, err := parseOptionalUUID("session_id", q.Get("session_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	skip, err := queryInt(r, "skip")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.history.List(r.Context(), domain.HistoryFilter{
		UserID:    userID,
		SessionID: sessionID,
		Skip:      skip,
		Limit:     limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Items:   toTurnResponses(page.Items),
		Total:   page.Total,
		Page:    page.Page,
		Limit:   page.Limit,
		HasMore: page.HasMore,
	})
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	turnID, err := parseUUID("turn_id", r.PathValue("turn_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	turn, err := h.history.GetTurn(r.Context(), turnID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTurnResponse(*turn))
}

func (h *Handler) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseUUID("session_id", r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := parseOptionalUUID("user_id", r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	turns, err := h.history.SessionTurns(r.Context(), sessionID, userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"items":      toTurnResponses(turns),
	})
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	userID, err := parseOptionalUUID("user_id", r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}

	turns, err := h.history.RecentConversations(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": toTurnResponses(turns)})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		writeError(w, r, badRequest("q is required"))
		return
	}
	userID, err := parseOptionalUUID("user_id", r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}

	turns, err := h.history.Search(r.Context(), term, userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query": term,
		"items": toTurnResponses(turns),
	})
}

func (h *Handler) handleUserStats(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUID("user_id", r.PathValue("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := h.history.UserStats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userStatsResponse{
		UserID:         stats.UserID,
		TotalMessages:  stats.TotalMessages,
		TotalSessions:  stats.TotalSessions,
		LatestActivity: stats.LatestActivity,
		TodayMessages:  stats.TodayMessages,
	})
}
