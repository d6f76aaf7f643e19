// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/services/tagging"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON writes data as JSON with status.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// RespondError writes an ErrorResponse with status.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// respondEngineError maps tagging errors to status codes.
func respondEngineError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("tagging request failed")
		RespondError(w, status, "Internal server error")
		return
	}
	RespondError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, tagging.ErrInvalidTag):
		return http.StatusNotFound
	case errors.Is(err, tagging.ErrInvalidParent),
		errors.Is(err, tagging.ErrInvalidName),
		errors.Is(err, tagging.ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, tagging.ErrNameConflict):
		return http.StatusConflict
	case errors.Is(err, tagging.ErrEngineNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
