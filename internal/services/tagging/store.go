// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"

	"github.com/autobrr/qtag/internal/models"
)

// ItemState is the coarse transfer state of an item.
type ItemState string

const (
	ItemStateDownloading ItemState = "downloading"
	ItemStateSeeding     ItemState = "seeding"
	ItemStatePaused      ItemState = "paused"
	ItemStateQueued      ItemState = "queued"
	ItemStateChecking    ItemState = "checking"
	ItemStateMoving      ItemState = "moving"
	ItemStateError       ItemState = "error"
	ItemStateUnknown     ItemState = "unknown"
)

// Active reports whether the item is transferring data.
func (s ItemState) Active() bool {
	return s == ItemStateDownloading || s == ItemStateSeeding
}

// ItemStatus is the per-item record read from the item store.
// Rates are in KiB/s.
type ItemStatus struct {
	ID           string
	Name         string
	State        ItemState
	DownloadRate float64
	UploadRate   float64
	SavePath     string
	Trackers     []string
	Finished     bool
}

// ItemStore reads and controls items. Implementations must be safe to call
// from the engine while it holds its own lock, so they must not call back
// into the engine synchronously.
type ItemStore interface {
	Exists(ctx context.Context, id string) bool
	IDs(ctx context.Context) []string
	Status(ctx context.Context, id string) (ItemStatus, error)

	SetMoveOnComplete(ctx context.Context, id string, enabled bool) error
	SetMoveOnCompletePath(ctx context.Context, id string, path string) error
	SetPrioritizeFirstLast(ctx context.Context, id string, enabled bool) error
	SetMaxDownloadSpeed(ctx context.Context, id string, kib float64) error
	SetMaxUploadSpeed(ctx context.Context, id string, kib float64) error
	SetMaxConnections(ctx context.Context, id string, n int) error
	SetMaxUploadSlots(ctx context.Context, id string, n int) error
	SetAutoManaged(ctx context.Context, id string, enabled bool) error
	SetStopAtRatio(ctx context.Context, id string, enabled bool, ratio float64) error
	SetRemoveAtRatio(ctx context.Context, id string, enabled bool) error
	MoveStorage(ctx context.Context, id string, path string) error
}

// ItemDefaults is the baseline applied to unlabelled items.
type ItemDefaults struct {
	DownloadLocation    string  `json:"downloadLocation"`
	MoveCompleted       bool    `json:"moveCompleted"`
	MoveCompletedPath   string  `json:"moveCompletedPath"`
	PrioritizeFirstLast bool    `json:"prioritizeFirstLast"`
	MaxDownloadSpeed    float64 `json:"maxDownloadSpeed"`
	MaxUploadSpeed      float64 `json:"maxUploadSpeed"`
	MaxConnections      int     `json:"maxConnections"`
	MaxUploadSlots      int     `json:"maxUploadSlots"`
	AutoManaged         bool    `json:"autoManaged"`
	StopAtRatio         bool    `json:"stopAtRatio"`
	StopRatio           float64 `json:"stopRatio"`
	RemoveAtRatio       bool    `json:"removeAtRatio"`
}

// MovePath is the folder root labels resolve relative paths against.
func (d ItemDefaults) MovePath() string {
	if d.MoveCompletedPath != "" {
		return d.MoveCompletedPath
	}
	return d.DownloadLocation
}

// Defaults lets a fixed ItemDefaults act as a GlobalDefaults.
func (d ItemDefaults) Defaults() ItemDefaults {
	return d
}

// GlobalDefaults supplies the current baseline. It is read on every use so
// configuration reloads take effect without restarting the engine.
type GlobalDefaults interface {
	Defaults() ItemDefaults
}

// Saver persists the engine record.
type Saver interface {
	Save(ctx context.Context, cfg *models.TagConfig) error
}
