// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ItemTag is an item's label as shown to a display layer.
type ItemTag struct {
	TagID    string `json:"tagId"`
	FullName string `json:"fullName"`
}

// BandwidthUsage is the summed rate of active items, in KiB/s.
type BandwidthUsage struct {
	Download float64 `json:"download"`
	Upload   float64 `json:"upload"`
}

// SetItemTag labels a single item. IDNone clears the label.
func (e *Engine) SetItemTag(ctx context.Context, itemID, tagID string) error {
	return e.SetItemTags(ctx, []string{itemID}, tagID)
}

// SetItemTags labels every item in itemIDs with tagID and pushes the new
// policy. Items the store no longer knows are skipped.
func (e *Engine) SetItemTags(ctx context.Context, itemIDs []string, tagID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return ErrEngineNotInitialized
	}
	if err := e.checkAssignable(tagID); err != nil {
		return err
	}

	changed := make([]string, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		if !e.store.Exists(ctx, itemID) {
			log.Debug().Str("itemID", itemID).Msg("tagging: skipping unknown item")
			continue
		}
		e.setItemTag(ctx, itemID, tagID)
		changed = append(changed, itemID)
	}

	if len(changed) > 0 && e.prefs.Options.MoveOnChanges {
		e.moveCompleted(ctx, changed)
	}
	return nil
}

func (e *Engine) checkAssignable(tagID string) error {
	if tagID == IDNone {
		return nil
	}
	if _, ok := e.tags[tagID]; !ok || IsReserved(tagID) {
		return errors.Wrapf(ErrInvalidTag, "tag %q", tagID)
	}
	return nil
}

// setItemTag replaces any existing mapping. The mapping timestamp always
// advances, even when the label is unchanged.
func (e *Engine) setItemTag(ctx context.Context, itemID, tagID string) {
	if old, ok := e.mappings[itemID]; ok {
		if node, ok := e.tags[old]; ok {
			delete(node.items, itemID)
		}
		delete(e.mappings, itemID)
	}

	if tagID == IDNone {
		e.resetPolicy(ctx, itemID)
	} else {
		node := e.tags[tagID]
		e.mappings[itemID] = tagID
		node.items[itemID] = struct{}{}
		e.applyPolicy(ctx, itemID, node.options)
	}
	e.markMappingsChanged()
}

// UnsetItem drops an item's mapping without touching its settings.
func (e *Engine) UnsetItem(itemID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return ErrEngineNotInitialized
	}
	e.unsetItem(itemID)
	return nil
}

func (e *Engine) unsetItem(itemID string) {
	old, ok := e.mappings[itemID]
	if !ok {
		return
	}
	if node, ok := e.tags[old]; ok {
		delete(node.items, itemID)
	}
	delete(e.mappings, itemID)
	e.markMappingsChanged()
}

// GetItemTag returns the item's label id, IDNone when unlabelled.
func (e *Engine) GetItemTag(itemID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return "", ErrEngineNotInitialized
	}
	return e.itemTag(itemID), nil
}

func (e *Engine) itemTag(itemID string) string {
	if tagID, ok := e.mappings[itemID]; ok {
		return tagID
	}
	return IDNone
}

// GetItemTagName returns the full name of the item's label, "" when unlabelled.
func (e *Engine) GetItemTagName(itemID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return "", ErrEngineNotInitialized
	}
	if tagID, ok := e.mappings[itemID]; ok {
		return e.tags[tagID].fullName, nil
	}
	return "", nil
}

// GetItemTags returns id and full name for each item.
func (e *Engine) GetItemTags(itemIDs []string) (map[string]ItemTag, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil, ErrEngineNotInitialized
	}

	out := make(map[string]ItemTag, len(itemIDs))
	for _, itemID := range itemIDs {
		tagID := e.itemTag(itemID)
		entry := ItemTag{TagID: tagID}
		if node, ok := e.tags[tagID]; ok {
			entry.FullName = node.fullName
		}
		out[itemID] = entry
	}
	return out, nil
}

// FilterItems keeps the items whose label is in tagIDs, preserving input
// order. IDAll matches every item and IDNone matches unlabelled ones.
func (e *Engine) FilterItems(itemIDs, tagIDs []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil, ErrEngineNotInitialized
	}

	wanted := make(map[string]struct{}, len(tagIDs))
	for _, tagID := range tagIDs {
		if tagID == IDAll {
			return append([]string{}, itemIDs...), nil
		}
		wanted[tagID] = struct{}{}
	}

	out := make([]string, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		if _, ok := wanted[e.itemTag(itemID)]; ok {
			out = append(out, itemID)
		}
	}
	return out, nil
}

// BandwidthUsage sums current rates of seeding or downloading items under
// tagID. IDNone covers unlabelled items and IDAll every item.
func (e *Engine) BandwidthUsage(ctx context.Context, tagID string) (BandwidthUsage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return BandwidthUsage{}, ErrEngineNotInitialized
	}
	return e.bandwidthUsage(ctx, tagID)
}

// GetTagBandwidthUsages is BandwidthUsage for several labels; unknown ids are skipped.
func (e *Engine) GetTagBandwidthUsages(ctx context.Context, tagIDs []string) (map[string]BandwidthUsage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil, ErrEngineNotInitialized
	}

	out := make(map[string]BandwidthUsage, len(tagIDs))
	for _, tagID := range tagIDs {
		usage, err := e.bandwidthUsage(ctx, tagID)
		if err != nil {
			continue
		}
		out[tagID] = usage
	}
	return out, nil
}

func (e *Engine) bandwidthUsage(ctx context.Context, tagID string) (BandwidthUsage, error) {
	var items []string
	switch tagID {
	case IDAll:
		items = e.store.IDs(ctx)
	case IDNone:
		for _, itemID := range e.store.IDs(ctx) {
			if _, ok := e.mappings[itemID]; !ok {
				items = append(items, itemID)
			}
		}
	default:
		node, ok := e.tags[tagID]
		if !ok {
			return BandwidthUsage{}, errors.Wrapf(ErrInvalidTag, "tag %q", tagID)
		}
		for itemID := range node.items {
			items = append(items, itemID)
		}
	}

	var usage BandwidthUsage
	for _, itemID := range items {
		status, err := e.store.Status(ctx, itemID)
		if err != nil || !status.State.Active() {
			continue
		}
		usage.Download += status.DownloadRate
		usage.Upload += status.UploadRate
	}
	return usage, nil
}
