// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/autobrr/qtag/internal/services/tagging"
)

const completionProgressThreshold = 0.9999

func isTorrentComplete(t *qbt.Torrent) bool {
	if t == nil {
		return false
	}

	if t.Progress < completionProgressThreshold {
		return false
	}

	switch t.State {
	case qbt.TorrentStateDownloading,
		qbt.TorrentStateMetaDl,
		qbt.TorrentStatePausedDl,
		qbt.TorrentStateStoppedDl,
		qbt.TorrentStateQueuedDl,
		qbt.TorrentStateStalledDl,
		qbt.TorrentStateCheckingDl,
		qbt.TorrentStateForcedDl,
		qbt.TorrentStateCheckingResumeData,
		qbt.TorrentStateAllocating,
		qbt.TorrentStateMoving,
		qbt.TorrentStateUnknown:
		return false
	default:
		return true
	}
}

// itemState maps qBittorrent's torrent state onto the engine's coarse states.
func itemState(state qbt.TorrentState) tagging.ItemState {
	switch state {
	case qbt.TorrentStateDownloading,
		qbt.TorrentStateForcedDl,
		qbt.TorrentStateStalledDl,
		qbt.TorrentStateMetaDl:
		return tagging.ItemStateDownloading
	case qbt.TorrentStateUploading,
		qbt.TorrentStateForcedUp,
		qbt.TorrentStateStalledUp:
		return tagging.ItemStateSeeding
	case qbt.TorrentStatePausedDl,
		qbt.TorrentStatePausedUp,
		qbt.TorrentStateStoppedDl,
		qbt.TorrentStateStoppedUp:
		return tagging.ItemStatePaused
	case qbt.TorrentStateQueuedDl,
		qbt.TorrentStateQueuedUp:
		return tagging.ItemStateQueued
	case qbt.TorrentStateCheckingDl,
		qbt.TorrentStateCheckingUp,
		qbt.TorrentStateCheckingResumeData,
		qbt.TorrentStateAllocating:
		return tagging.ItemStateChecking
	case qbt.TorrentStateMoving:
		return tagging.ItemStateMoving
	case qbt.TorrentStateError,
		qbt.TorrentStateMissingFiles:
		return tagging.ItemStateError
	}
	return tagging.ItemStateUnknown
}
