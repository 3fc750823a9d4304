package handler

import (
	"net/http"
	"sort"
	"strings"

	"github.com/set-night/chatrelay/internal/domain"
)

type sortType string

const (
	sortPriceAsc  sortType = "price_asc"
	sortPriceDesc sortType = "price_desc"
	sortContext   sortType = "context"
	sortFreeOnly  sortType = "free"
)

type modelResponse struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Description     string             `json:"description,omitempty"`
	PromptPrice     float64            `json:"prompt_price"`
	CompletionPrice float64            `json:"completion_price"`
	ContextLength   int                `json:"context_length"`
	Free            bool               `json:"free"`
	Capabilities    capabilityResponse `json:"capabilities"`
}

type capabilityResponse struct {
	Vision          bool `json:"vision"`
	Audio           bool `json:"audio"`
	ImageGeneration bool `json:"image_generation"`
	Files           bool `json:"files"`
}

func toModelResponse(m domain.AIModel) modelResponse {
	return modelResponse{
		ID:              m.ID,
		Name:            m.Name,
		Description:     m.Description,
		PromptPrice:     m.PromptPrice,
		CompletionPrice: m.CompletionPrice,
		ContextLength:   m.ContextLength,
		Free:            m.IsFree(),
		Capabilities: capabilityResponse{
			Vision:          m.Capabilities.Vision,
			Audio:           m.Capabilities.Audio,
			ImageGeneration: m.Capabilities.ImageGeneration,
			Files:           m.Capabilities.Files,
		},
	}
}

// handleModels lists the catalog, optionally filtered by q and ordered by sort.
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		writeError(w, r, domain.ErrCatalogUnavailable)
		return
	}

	allModels, err := h.models.ListModels(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	filtered := filterModels(allModels, strings.TrimSpace(r.URL.Query().Get("q")))
	filtered = sortModels(filtered, sortType(r.URL.Query().Get("sort")))

	items := make([]modelResponse, 0, len(filtered))
	for _, m := range filtered {
		items = append(items, toModelResponse(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		writeError(w, r, domain.ErrCatalogUnavailable)
		return
	}

	m, err := h.models.GetModel(r.Context(), r.PathValue("model_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toModelResponse(*m))
}

// filterModels never modifies the cached catalog slice.
func filterModels(aiModels []domain.AIModel, query string) []domain.AIModel {
	query = strings.ToLower(query)
	filtered := make([]domain.AIModel, 0, len(aiModels))
	for _, m := range aiModels {
		if query == "" ||
			strings.Contains(strings.ToLower(m.Name), query) ||
			strings.Contains(strings.ToLower(m.ID), query) ||
			strings.Contains(strings.ToLower(m.Description), query) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func sortModels(aiModels []domain.AIModel, s sortType) []domain.AIModel {
	switch s {
	case sortPriceAsc:
		sort.SliceStable(aiModels, func(i, j int) bool {
			return aiModels[i].PromptPrice+aiModels[i].CompletionPrice < aiModels[j].PromptPrice+aiModels[j].CompletionPrice
		})
	case sortPriceDesc:
		sort.SliceStable(aiModels, func(i, j int) bool {
			return aiModels[i].PromptPrice+aiModels[i].CompletionPrice > aiModels[j].PromptPrice+aiModels[j].CompletionPrice
		})
	case sortContext:
		sort.SliceStable(aiModels, func(i, j int) bool {
			return aiModels[i].ContextLength > aiModels[j].ContextLength
		})
	case sortFreeOnly:
		free := aiModels[:0]
		for _, m := range aiModels {
			if m.IsFree() {
				free = append(free, m)
			}
		}
		return free
	}
	return aiModels
}
