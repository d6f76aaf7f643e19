// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/models"
)

// GetTagOptions returns a copy of the label's option record.
func (e *Engine) GetTagOptions(id string) (models.TagOptions, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return models.TagOptions{}, ErrEngineNotInitialized
	}
	node, ok := e.tags[id]
	if !ok {
		return models.TagOptions{}, errors.Wrapf(ErrInvalidTag, "tag %q", id)
	}
	return node.options.Clone(), nil
}

// SetTagOptions replaces a label's option record and re-applies it to the
// label's items. A non-nil applyToAll runs bulk autotagging for the label
// afterwards, over every item when true or only unlabelled ones when false.
func (e *Engine) SetTagOptions(ctx context.Context, id string, opts models.TagOptions, applyToAll *bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return ErrEngineNotInitialized
	}
	if IsReserved(id) {
		return errors.Wrapf(ErrInvalidOperation, "cannot set options on %q", id)
	}
	node, ok := e.tags[id]
	if !ok {
		return errors.Wrapf(ErrInvalidTag, "tag %q", id)
	}

	old := node.options
	node.options = e.sanitizeOptions(id, opts)
	if node.options.MoveCompletedMode != models.MoveCompletedModeFolder {
		node.options.MoveCompletedPath = e.resolveMovePath(id)
	}

	if node.options.SharedLimitActive() {
		e.sharedLimits[id] = struct{}{}
	} else {
		delete(e.sharedLimits, id)
	}

	for _, itemID := range e.itemsUnder(id, false) {
		e.applyPolicy(ctx, itemID, node.options)
	}

	pathChanged := node.options.MoveCompletedPath != old.MoveCompletedPath
	if pathChanged {
		e.refreshMovePaths(ctx, id, false, true)
	}

	if e.prefs.Options.MoveOnChanges {
		switch {
		case pathChanged:
			// Descendants in parent or subfolder mode follow the new path.
			e.moveCompleted(ctx, e.itemsUnder(id, true))
		case node.options.MoveCompletedActive() && !old.MoveCompletedActive():
			e.moveCompleted(ctx, e.itemsUnder(id, false))
		}
	}

	e.markTagsChanged()

	if applyToAll != nil && node.options.AutotagActive() {
		e.classifyBulk(ctx, id, *applyToAll)
	}

	log.Debug().Str("tagID", id).Msg("tagging: label options updated")
	return nil
}

// GetPreferences returns the engine preferences.
func (e *Engine) GetPreferences() (models.TagPreferences, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return models.TagPreferences{}, ErrEngineNotInitialized
	}
	return models.TagPreferences{Options: e.prefs.Options, Tag: e.prefs.Tag.Clone()}, nil
}

// SetPreferences replaces the engine preferences. New tag defaults only
// affect labels created afterwards; a new recompute interval restarts the
// shared-limit timer.
func (e *Engine) SetPreferences(prefs models.TagPreferences) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return ErrEngineNotInitialized
	}
	interval := e.prefs.Options.SharedLimitInterval
	e.prefs = models.SanitizeTagPreferences(prefs, e.defaults.Defaults().MovePath())
	e.prefsChanged = e.now()
	if e.prefs.Options.SharedLimitInterval != interval {
		select {
		case e.reschedule <- struct{}{}:
		default:
		}
	}
	return nil
}

// GetTagDefaults returns the record cloned into new labels.
func (e *Engine) GetTagDefaults() (models.TagOptions, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return models.TagOptions{}, ErrEngineNotInitialized
	}
	return e.prefs.Tag.Clone(), nil
}
