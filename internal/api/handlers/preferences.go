// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/qtag/internal/models"
)

type PreferencesHandler struct {
	engine TagEngine
}

func NewPreferencesHandler(engine TagEngine) *PreferencesHandler {
	return &PreferencesHandler{engine: engine}
}

func (h *PreferencesHandler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Update)
	r.Get("/tag-defaults", h.TagDefaults)
}

func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.engine.GetPreferences()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, prefs)
}

// Update merges the posted {options, tag} keys over the current preferences.
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := decodeJSON(r, &raw); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	current, err := h.engine.GetPreferences()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	prefs, err := models.DecodeTagPreferences(raw, current)
	if err != nil {
		RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.SetPreferences(prefs); err != nil {
		respondEngineError(w, err)
		return
	}

	updated, err := h.engine.GetPreferences()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, updated)
}

func (h *PreferencesHandler) TagDefaults(w http.ResponseWriter, r *http.Request) {
	opts, err := h.engine.GetTagDefaults()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, opts)
}
