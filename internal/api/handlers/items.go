// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type ItemsHandler struct {
	engine TagEngine
}

func NewItemsHandler(engine TagEngine) *ItemsHandler {
	return &ItemsHandler{engine: engine}
}

func (h *ItemsHandler) Routes(r chi.Router) {
	r.Get("/tags", h.GetTags)
	r.Put("/tags", h.SetTags)
	r.Post("/filter", h.Filter)
	r.Post("/autotag", h.Autotag)
}

// GetTags takes a comma separated ?ids= list.
func (h *ItemsHandler) GetTags(w http.ResponseWriter, r *http.Request) {
	ids := splitIDs(r.URL.Query().Get("ids"))
	if len(ids) == 0 {
		RespondError(w, http.StatusBadRequest, "ids is required")
		return
	}

	tags, err := h.engine.GetItemTags(ids)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, tags)
}

type setItemTagsRequest struct {
	IDs   []string `json:"ids"`
	TagID string   `json:"tagId"`
}

// SetTags labels the listed items. A tagId of "None" clears their label.
func (h *ItemsHandler) SetTags(w http.ResponseWriter, r *http.Request) {
	var req setItemTagsRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(req.IDs) == 0 {
		RespondError(w, http.StatusBadRequest, "ids is required")
		return
	}

	if err := h.engine.SetItemTags(r.Context(), req.IDs, req.TagID); err != nil {
		respondEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type filterItemsRequest struct {
	IDs    []string `json:"ids"`
	TagIDs []string `json:"tagIds"`
}

func (h *ItemsHandler) Filter(w http.ResponseWriter, r *http.Request) {
	var req filterItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	ids, err := h.engine.FilterItems(req.IDs, req.TagIDs)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, ids)
}

type autotagItemsRequest struct {
	IDs []string `json:"ids"`
}

func (h *ItemsHandler) Autotag(w http.ResponseWriter, r *http.Request) {
	var req autotagItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	assigned, err := h.engine.AutotagItems(r.Context(), req.IDs)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if assigned == nil {
		assigned = []string{}
	}
	RespondJSON(w, http.StatusOK, assignedResponse{Assigned: assigned})
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
