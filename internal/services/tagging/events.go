// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"

	"github.com/rs/zerolog/log"
)

// OnItemAdded autotags a newly added, unlabelled item.
func (e *Engine) OnItemAdded(ctx context.Context, itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	if _, ok := e.mappings[itemID]; ok {
		return
	}

	item, ok := e.projection(ctx, itemID)
	if !ok || item.Name == "" {
		return
	}
	tagID := e.classify(item)
	if tagID == IDNone {
		return
	}

	e.setItemTag(ctx, itemID, tagID)
	e.metrics.AutotagAssignments.Inc()
	log.Debug().Str("itemID", itemID).Str("tagID", tagID).Msg("tagging: autotagged new item")
}

// OnItemRemoved forgets the item's mapping.
func (e *Engine) OnItemRemoved(_ context.Context, itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.unsetItem(itemID)
}

// OnItemFinished retries move-on-complete for a labelled item when
// MoveAfterRecheck is enabled.
func (e *Engine) OnItemFinished(ctx context.Context, itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active || !e.prefs.Options.MoveAfterRecheck {
		return
	}
	tagID, ok := e.mappings[itemID]
	if !ok || !e.tags[tagID].options.MoveCompletedActive() {
		return
	}
	e.moveCompleted(ctx, []string{itemID})
}
