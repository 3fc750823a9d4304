package handler

import "net/http"

// Register wires every route onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	// Chat
	mux.HandleFunc("POST /chat/stream", h.handleChatStream)
	mux.HandleFunc("POST /chat", h.handleChat)

	// History
	mux.HandleFunc("GET /history", h.handleHistory)
	mux.HandleFunc("GET /history/turns/{turn_id}", h.handleTurn)
	mux.HandleFunc("GET /history/sessions/{session_id}", h.handleSessionHistory)
	mux.HandleFunc("GET /history/recent", h.handleRecent)
	mux.HandleFunc("GET /history/search", h.handleSearch)
	mux.HandleFunc("GET /history/users/{user_id}/stats", h.handleUserStats)

	// Models
	mux.HandleFunc("GET /models", h.handleModels)
	mux.HandleFunc("GET /models/{model_id...}", h.handleModel)

	// Vector documents
	mux.HandleFunc("POST /vectordb/{session_id}/init", h.handleVectorInit)
	mux.HandleFunc("DELETE /vectordb/{session_id}", h.handleVectorDelete)
	mux.HandleFunc("POST /vectordb/{session_id}/documents", h.handleVectorAddDocument)
	mux.HandleFunc("POST /vectordb/{session_id}/query", h.handleVectorQuery)
	mux.HandleFunc("POST /vectordb/{session_id}/retrieve", h.handleVectorRetrieve)

	// Ops
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /db-activity", h.handleDBActivity)
}

// Routes returns a mux with every route registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}
