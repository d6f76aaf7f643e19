// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
)

type HealthHandler struct {
	client ClientStatus
}

func NewHealthHandler(client ClientStatus) *HealthHandler {
	return &HealthHandler{client: client}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReady fails while the qBittorrent connection is unhealthy.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if h.client != nil && !h.client.IsHealthy() {
		RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "qbittorrent unavailable"})
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
