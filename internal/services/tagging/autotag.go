// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"cmp"
	"context"
	"slices"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/services/autotag"
)

// sortedTags orders labels for autotagging: longer full names first, ties
// broken by descending full name. The order is cached until labels change.
func (e *Engine) sortedTags() []string {
	if e.sorted != nil {
		return e.sorted
	}
	ids := make([]string, 0, len(e.tags))
	for id := range e.tags {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		fa, fb := e.tags[a].fullName, e.tags[b].fullName
		if c := cmp.Compare(len(fb), len(fa)); c != 0 {
			return c
		}
		if c := cmp.Compare(fb, fa); c != 0 {
			return c
		}
		return compareIDs(a, b)
	})
	e.sorted = ids
	return ids
}

func (e *Engine) projection(ctx context.Context, itemID string) (autotag.Item, bool) {
	status, err := e.store.Status(ctx, itemID)
	if err != nil {
		log.Debug().Err(err).Str("itemID", itemID).Msg("tagging: item unavailable for autotag")
		return autotag.Item{}, false
	}
	return autotag.Item{Name: status.Name, Trackers: status.Trackers}, true
}

// classify returns the first autotag-enabled label whose rules match, or IDNone.
func (e *Engine) classify(item autotag.Item) string {
	for _, id := range e.sortedTags() {
		opts := e.tags[id].options
		if !opts.AutotagActive() {
			continue
		}
		if e.matcher.Match(item, opts.AutotagRules, opts.AutotagMatchAll) {
			return id
		}
	}
	return IDNone
}

// Classify reports which label autotagging would pick for itemID.
func (e *Engine) Classify(ctx context.Context, itemID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return "", ErrEngineNotInitialized
	}
	item, ok := e.projection(ctx, itemID)
	if !ok {
		return IDNone, nil
	}
	return e.classify(item), nil
}

// AutotagItems classifies each item against every label and applies matches.
// Items without a match keep their current label. It returns the items that
// were labelled.
func (e *Engine) AutotagItems(ctx context.Context, itemIDs []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil, ErrEngineNotInitialized
	}

	var assigned []string
	for _, itemID := range itemIDs {
		item, ok := e.projection(ctx, itemID)
		if !ok {
			continue
		}
		if tagID := e.classify(item); tagID != IDNone {
			e.setItemTag(ctx, itemID, tagID)
			e.metrics.AutotagAssignments.Inc()
			assigned = append(assigned, itemID)
		}
	}
	if len(assigned) > 0 && e.prefs.Options.MoveOnChanges {
		e.moveCompleted(ctx, assigned)
	}
	return assigned, nil
}

// ClassifyBulk assigns tagID to every item matching that label's rules.
// With applyToAll every item is considered, otherwise only unlabelled ones.
func (e *Engine) ClassifyBulk(ctx context.Context, tagID string, applyToAll bool) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil, ErrEngineNotInitialized
	}
	if _, ok := e.tags[tagID]; !ok {
		return nil, errors.Wrapf(ErrInvalidTag, "tag %q", tagID)
	}
	return e.classifyBulk(ctx, tagID, applyToAll), nil
}

func (e *Engine) classifyBulk(ctx context.Context, tagID string, applyToAll bool) []string {
	opts := e.tags[tagID].options
	if !opts.AutotagActive() {
		return nil
	}

	var assigned []string
	for _, itemID := range e.store.IDs(ctx) {
		current := e.itemTag(itemID)
		if current == tagID || (!applyToAll && current != IDNone) {
			continue
		}
		item, ok := e.projection(ctx, itemID)
		if !ok {
			continue
		}
		if e.matcher.Match(item, opts.AutotagRules, opts.AutotagMatchAll) {
			e.setItemTag(ctx, itemID, tagID)
			e.metrics.AutotagAssignments.Inc()
			assigned = append(assigned, itemID)
		}
	}

	if len(assigned) > 0 && e.prefs.Options.MoveOnChanges {
		e.moveCompleted(ctx, assigned)
	}
	log.Debug().Str("tagID", tagID).Int("items", len(assigned)).Bool("applyToAll", applyToAll).Msg("tagging: bulk autotag applied")
	return assigned
}
