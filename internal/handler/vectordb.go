package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/set-night/chatrelay/internal/domain"
)

type addDocumentBody struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata"`
}

type queryBody struct {
	Query        string `json:"query"`
	NResults     int    `json:"n_results"`
	ChunksPerDoc int    `json:"chunks_per_doc"`
	MaxDocs      int    `json:"max_docs"`
}

type chunkResponse struct {
	ChunkID        string            `json:"chunk_id"`
	BaseDocumentID string            `json:"base_document_id"`
	ChunkIndex     int               `json:"chunk_index"`
	TotalChunks    int               `json:"total_chunks"`
	Content        string            `json:"content"`
	Score          float32           `json:"score"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type documentResponse struct {
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	Relevance  float32 `json:"relevance"`
	Chunks     int     `json:"chunks"`
}

// vectorSession resolves the session and checks the vector store is configured.
func (h *Handler) vectorSession(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.documents == nil {
		writeError(w, r, domain.ErrVectorUnavailable)
		return uuid.Nil, false
	}
	sessionID, err := parseUUID("session_id", r.PathValue("session_id"))
	if err != nil {
		writeError(w, r, err)
		return uuid.Nil, false
	}
	return sessionID, true
}

func (h *Handler) handleVectorInit(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.vectorSession(w, r)
	if !ok {
		return
	}
	name, err := h.documents.InitSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"collection": name,
	})
}

func (h *Handler) handleVectorDelete(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.vectorSession(w, r)
	if !ok {
		return
	}
	if err := h.documents.DeleteSession(r.Context(), sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVectorAddDocument(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.vectorSession(w, r)
	if !ok {
		return
	}
	var body addDocumentBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.documents.AddDocument(r.Context(), sessionID, domain.Document{
		ID:          body.ID,
		Content:     body.Content,
		ContentType: body.ContentType,
		Metadata:    body.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"document_id": res.DocumentID,
		"chunks":      res.Chunks,
	})
}

func (h *Handler) handleVectorQuery(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.vectorSession(w, r)
	if !ok {
		return
	}
	var body queryBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	chunks, err := h.documents.QuerySimilar(r.Context(), sessionID, body.Query, body.NResults)
	if err != nil {
		writeError(w, r, err)
		return
	}

	results := make([]chunkResponse, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, chunkResponse{
			ChunkID:        c.ChunkID,
			BaseDocumentID: c.BaseDocumentID,
			ChunkIndex:     c.ChunkIndex,
			TotalChunks:    c.TotalChunks,
			Content:        c.Content,
			Score:          c.Score,
			Metadata:       c.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) handleVectorRetrieve(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.vectorSession(w, r)
	if !ok {
		return
	}
	var body queryBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	docs, err := h.documents.Retrieve(r.Context(), sessionID, body.Query, body.ChunksPerDoc, body.MaxDocs)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{
			DocumentID: d.DocumentID,
			Content:    d.Content,
			Relevance:  d.Relevance,
			Chunks:     d.Chunks,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}
