// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"
)

const eventBuffer = 1024

// EventKind identifies an item lifecycle transition.
type EventKind int

const (
	EventAdded EventKind = iota
	EventRemoved
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventFinished:
		return "finished"
	}
	return "unknown"
}

// Event is one observed item transition.
type Event struct {
	Kind EventKind
	Hash string
}

// EventHandler consumes item transitions.
type EventHandler interface {
	OnItemAdded(ctx context.Context, itemID string)
	OnItemRemoved(ctx context.Context, itemID string)
	OnItemFinished(ctx context.Context, itemID string)
}

// Events returns the buffered event stream. It is closed by Close.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Dispatch forwards events to handler until ctx is cancelled or the stream
// closes. Sync callbacks only enqueue, so handlers may call back into the
// client freely.
func (c *Client) Dispatch(ctx context.Context, handler EventHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			switch ev.Kind {
			case EventAdded:
				c.PrefetchTrackers(ctx, []string{ev.Hash})
				handler.OnItemAdded(ctx, ev.Hash)
			case EventRemoved:
				handler.OnItemRemoved(ctx, ev.Hash)
			case EventFinished:
				handler.OnItemFinished(ctx, ev.Hash)
			}
		}
	}
}

// Close stops the event stream.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.stateMu.Lock()
		defer c.stateMu.Unlock()
		c.closed = true
		close(c.events)
	})
}

// handleUpdate diffs a sync update against the known set. The first update
// only seeds state, even when it carries no torrents. Completed items with a
// pending move-on-complete target are relocated here.
func (c *Client) handleUpdate(ctx context.Context, data *qbt.MainData) {
	if data == nil {
		return
	}

	var (
		emitted []Event
		moves   = make(map[string]string)
	)

	c.stateMu.Lock()
	for _, removed := range data.TorrentsRemoved {
		hash := normalizeHash(removed)
		if _, ok := c.known[hash]; ok {
			delete(c.known, hash)
			delete(c.moveOn, hash)
			delete(c.moveTo, hash)
			c.trackerCache.Delete(hash)
			emitted = append(emitted, Event{Kind: EventRemoved, Hash: hash})
		}
	}

	if !c.synced {
		for hash, torrent := range data.Torrents {
			c.known[normalizeHash(hash)] = isTorrentComplete(&torrent)
		}
		c.synced = true
		c.stateMu.Unlock()
		return
	}

	for hash, torrent := range data.Torrents {
		hash = normalizeHash(hash)
		complete := isTorrentComplete(&torrent)
		wasComplete, seen := c.known[hash]
		c.known[hash] = complete

		switch {
		case !seen:
			emitted = append(emitted, Event{Kind: EventAdded, Hash: hash})
		case complete && !wasComplete:
			emitted = append(emitted, Event{Kind: EventFinished, Hash: hash})
			if c.moveOn[hash] && c.moveTo[hash] != "" && c.moveTo[hash] != torrent.SavePath {
				moves[hash] = c.moveTo[hash]
			}
		}
	}

	if !c.closed {
		for _, ev := range emitted {
			select {
			case c.events <- ev:
			default:
				log.Warn().Str("hash", ev.Hash).Stringer("kind", ev.Kind).Msg("qbittorrent: event buffer full, dropping event")
			}
		}
	}
	c.stateMu.Unlock()

	for hash, dest := range moves {
		if err := c.api.SetLocationCtx(ctx, []string{hash}, dest); err != nil {
			log.Warn().Err(err).Str("hash", hash).Str("location", dest).Msg("qbittorrent: move on complete failed")
		}
	}
}

func normalizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
