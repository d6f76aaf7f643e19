// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"time"
)

// ClientStatus is the qBittorrent connection state the API reports.
type ClientStatus interface {
	IsHealthy() bool
	GetWebAPIVersion() string
	SupportsInactiveSeeding() bool
	SupportsTorrentTmpPath() bool
	GetLastSyncUpdate() time.Time
}

// ClientCapabilitiesResponse describes the connected qBittorrent instance.
type ClientCapabilitiesResponse struct {
	Healthy                 bool       `json:"healthy"`
	WebAPIVersion           string     `json:"webAPIVersion,omitempty"`
	SupportsInactiveSeeding bool       `json:"supportsInactiveSeeding"`
	SupportsTorrentTmpPath  bool       `json:"supportsTorrentTmpPath"`
	LastSync                *time.Time `json:"lastSync,omitempty"`
}

// NewClientCapabilitiesResponse creates a response payload from a qBittorrent client.
func NewClientCapabilitiesResponse(client ClientStatus) ClientCapabilitiesResponse {
	resp := ClientCapabilitiesResponse{
		Healthy:                 client.IsHealthy(),
		WebAPIVersion:           client.GetWebAPIVersion(),
		SupportsInactiveSeeding: client.SupportsInactiveSeeding(),
		SupportsTorrentTmpPath:  client.SupportsTorrentTmpPath(),
	}
	if last := client.GetLastSyncUpdate(); !last.IsZero() {
		resp.LastSync = &last
	}
	return resp
}

type ClientHandler struct {
	client ClientStatus
}

func NewClientHandler(client ClientStatus) *ClientHandler {
	return &ClientHandler{client: client}
}

func (h *ClientHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, NewClientCapabilitiesResponse(h.client))
}
