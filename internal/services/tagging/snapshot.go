// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"
	"time"
)

// TagInfo is one entry of a snapshot.
type TagInfo struct {
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	ParentID string `json:"parentId"`
	Count    int    `json:"count"`
}

// TagUpdate is a full namespace export. Tags includes the IDAll and IDNone
// aggregates; label counts are direct items only.
type TagUpdate struct {
	Timestamp time.Time          `json:"timestamp"`
	Tags      map[string]TagInfo `json:"tags"`
}

// Snapshot exports the whole namespace.
func (e *Engine) Snapshot(ctx context.Context) (*TagUpdate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil, ErrEngineNotInitialized
	}
	return e.snapshot(ctx), nil
}

// Updates returns a snapshot when anything changed at or after since.
func (e *Engine) Updates(ctx context.Context, since time.Time) (*TagUpdate, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil, false, ErrEngineNotInitialized
	}
	if !since.IsZero() && since.After(e.lastChangedLocked()) {
		return nil, false, nil
	}
	return e.snapshot(ctx), true, nil
}

// LastChanged reports the latest label or mapping change.
func (e *Engine) LastChanged() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastChangedLocked()
}

func (e *Engine) snapshot(ctx context.Context) *TagUpdate {
	total := len(e.store.IDs(ctx))
	update := &TagUpdate{
		Timestamp: e.now(),
		Tags:      make(map[string]TagInfo, len(e.tags)+2),
	}

	labelled := 0
	for id, node := range e.tags {
		update.Tags[id] = TagInfo{
			Name:     node.name,
			FullName: node.fullName,
			ParentID: ParentID(id),
			Count:    len(node.items),
		}
		labelled += len(node.items)
	}

	update.Tags[IDAll] = TagInfo{Name: IDAll, FullName: IDAll, Count: total}
	update.Tags[IDNone] = TagInfo{Name: IDNone, FullName: IDNone, Count: max(total-labelled, 0)}
	return update
}
