// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/models"
)

// MovePathOptions previews the paths a label would get in the derived modes.
type MovePathOptions struct {
	Parent    string `json:"parent"`
	Subfolder string `json:"subfolder"`
}

// applyPolicy pushes a label's option record to an item. Groups whose toggle
// is off fall back to the global baseline.
func (e *Engine) applyPolicy(ctx context.Context, itemID string, opts models.TagOptions) {
	d := e.defaults.Defaults()

	moveCompleted, movePath, firstLast := d.MoveCompleted, d.MovePath(), d.PrioritizeFirstLast
	if opts.DownloadSettings {
		moveCompleted, movePath, firstLast = opts.MoveCompleted, opts.MoveCompletedPath, opts.PrioritizeFirstLast
	}
	e.control("move_on_complete", itemID, func() error {
		return e.store.SetMoveOnComplete(ctx, itemID, moveCompleted)
	})
	if moveCompleted {
		e.control("move_on_complete_path", itemID, func() error {
			return e.store.SetMoveOnCompletePath(ctx, itemID, movePath)
		})
	}
	e.control("prioritize_first_last", itemID, func() error {
		return e.store.SetPrioritizeFirstLast(ctx, itemID, firstLast)
	})

	down, up, conns, slots := d.MaxDownloadSpeed, d.MaxUploadSpeed, d.MaxConnections, d.MaxUploadSlots
	if opts.BandwidthSettings {
		down, up, conns, slots = opts.MaxDownloadSpeed, opts.MaxUploadSpeed, opts.MaxConnections, opts.MaxUploadSlots
	}
	e.control("max_download_speed", itemID, func() error {
		return e.store.SetMaxDownloadSpeed(ctx, itemID, down)
	})
	e.control("max_upload_speed", itemID, func() error {
		return e.store.SetMaxUploadSpeed(ctx, itemID, up)
	})
	e.control("max_connections", itemID, func() error {
		return e.store.SetMaxConnections(ctx, itemID, conns)
	})
	e.control("max_upload_slots", itemID, func() error {
		return e.store.SetMaxUploadSlots(ctx, itemID, slots)
	})

	autoManaged, stopAtRatio, stopRatio, removeAtRatio := d.AutoManaged, d.StopAtRatio, d.StopRatio, d.RemoveAtRatio
	if opts.QueueSettings {
		autoManaged, stopAtRatio, stopRatio, removeAtRatio = opts.AutoManaged, opts.StopAtRatio, opts.StopRatio, opts.RemoveAtRatio
	}
	e.control("auto_managed", itemID, func() error {
		return e.store.SetAutoManaged(ctx, itemID, autoManaged)
	})
	e.control("stop_at_ratio", itemID, func() error {
		return e.store.SetStopAtRatio(ctx, itemID, stopAtRatio, stopRatio)
	})
	e.control("remove_at_ratio", itemID, func() error {
		return e.store.SetRemoveAtRatio(ctx, itemID, removeAtRatio)
	})
}

// resetPolicy restores the global baseline on an unlabelled item.
func (e *Engine) resetPolicy(ctx context.Context, itemID string) {
	e.applyPolicy(ctx, itemID, models.TagOptions{})
}

func (e *Engine) control(op, itemID string, fn func() error) {
	if err := fn(); err != nil {
		e.controlFailed(op, itemID, err)
	}
}

// sanitizeOptions normalizes opts for the label id. Derived modes survive an
// empty path since their path is computed; roots always use an explicit folder.
func (e *Engine) sanitizeOptions(id string, opts models.TagOptions) models.TagOptions {
	mode := opts.MoveCompletedMode
	opts = models.SanitizeTagOptions(opts, e.defaults.Defaults().MovePath())
	switch {
	case ParentID(id) == IDNull:
		opts.MoveCompletedMode = models.MoveCompletedModeFolder
	case mode == models.MoveCompletedModeParent || mode == models.MoveCompletedModeSubfolder:
		opts.MoveCompletedMode = mode
	}
	return opts
}

// resolveMovePath derives a label's move path from its mode.
func (e *Engine) resolveMovePath(id string) string {
	node := e.tags[id]
	mode := node.options.MoveCompletedMode
	if mode == models.MoveCompletedModeFolder {
		return node.options.MoveCompletedPath
	}
	base := e.parentMovePath(id)
	if mode == models.MoveCompletedModeSubfolder {
		return filepath.Join(base, node.name)
	}
	return base
}

func (e *Engine) parentMovePath(id string) string {
	parent := ParentID(id)
	if parent == IDNull {
		return e.defaults.Defaults().MovePath()
	}
	return e.tags[parent].options.MoveCompletedPath
}

// refreshMovePaths recomputes derived move paths below id (and id itself
// with includeSelf). Explicit folders stop the cascade. With push, changed
// paths are sent to the affected items.
func (e *Engine) refreshMovePaths(ctx context.Context, id string, includeSelf, push bool) {
	var work []string
	if includeSelf {
		work = append(work, id)
	} else {
		work = append(work, e.childrenOf(id)...)
	}

	for len(work) > 0 {
		cur := work[0]
		work = work[1:]

		node := e.tags[cur]
		if node.options.MoveCompletedMode != models.MoveCompletedModeFolder {
			path := e.resolveMovePath(cur)
			if path != node.options.MoveCompletedPath {
				node.options.MoveCompletedPath = path
				if push && node.options.MoveCompletedActive() {
					for itemID := range node.items {
						e.control("move_on_complete_path", itemID, func() error {
							return e.store.SetMoveOnCompletePath(ctx, itemID, path)
						})
					}
				}
			}
		} else if cur != id {
			continue
		}
		work = append(work, node.children...)
	}
}

// moveCompleted relocates finished items whose destination differs from
// their current save path. Unlabelled items use the global move path.
func (e *Engine) moveCompleted(ctx context.Context, itemIDs []string) {
	d := e.defaults.Defaults()
	for _, itemID := range itemIDs {
		var dest string
		if tagID, ok := e.mappings[itemID]; ok {
			opts := e.tags[tagID].options
			if !opts.MoveCompletedActive() {
				continue
			}
			dest = opts.MoveCompletedPath
		} else {
			if !d.MoveCompleted {
				continue
			}
			dest = d.MovePath()
		}
		if dest == "" {
			continue
		}

		status, err := e.store.Status(ctx, itemID)
		if err != nil {
			log.Debug().Err(err).Str("itemID", itemID).Msg("tagging: item vanished before move")
			continue
		}
		if !status.Finished || status.SavePath == dest {
			continue
		}
		e.control("move_storage", itemID, func() error {
			return e.store.MoveStorage(ctx, itemID, dest)
		})
	}
}

// GetMovePathOptions previews the parent and subfolder paths for id.
func (e *Engine) GetMovePathOptions(id string) (MovePathOptions, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return MovePathOptions{}, ErrEngineNotInitialized
	}
	node, ok := e.tags[id]
	if !ok {
		return MovePathOptions{}, errors.Wrapf(ErrInvalidTag, "tag %q", id)
	}
	base := e.parentMovePath(id)
	return MovePathOptions{
		Parent:    base,
		Subfolder: filepath.Join(base, node.name),
	}, nil
}
