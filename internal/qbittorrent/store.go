// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"fmt"
	"math"
	"sort"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/services/tagging"
)

const (
	// Share limit sentinels understood by the WebAPI.
	shareLimitGlobal    = -2
	shareLimitUnlimited = -1
)

var _ tagging.ItemStore = (*Client)(nil)

func (c *Client) torrent(hash string) (qbt.Torrent, bool) {
	if c.torrents == nil {
		return qbt.Torrent{}, false
	}
	return c.torrents.GetTorrent(hash)
}

func (c *Client) Exists(_ context.Context, id string) bool {
	_, ok := c.torrent(id)
	return ok
}

func (c *Client) IDs(_ context.Context) []string {
	if c.torrents == nil {
		return nil
	}
	torrents := c.torrents.GetTorrents(qbt.TorrentFilterOptions{})
	ids := make([]string, 0, len(torrents))
	for _, t := range torrents {
		ids = append(ids, normalizeHash(t.Hash))
	}
	sort.Strings(ids)
	return ids
}

// Status reports the item record. Tracker URLs come from the tracker cache,
// falling back to the torrent's current tracker.
func (c *Client) Status(ctx context.Context, id string) (tagging.ItemStatus, error) {
	t, ok := c.torrent(id)
	if !ok {
		return tagging.ItemStatus{}, fmt.Errorf("torrent %s not found", id)
	}
	return tagging.ItemStatus{
		ID:           id,
		Name:         t.Name,
		State:        itemState(t.State),
		DownloadRate: float64(t.DlSpeed) / 1024,
		UploadRate:   float64(t.UpSpeed) / 1024,
		SavePath:     t.SavePath,
		Trackers:     c.trackers(ctx, t),
		Finished:     isTorrentComplete(&t),
	}, nil
}

// SetMoveOnComplete arms or disarms the relocation done on the completion
// transition.
func (c *Client) SetMoveOnComplete(_ context.Context, id string, enabled bool) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if enabled {
		c.moveOn[id] = true
	} else {
		delete(c.moveOn, id)
	}
	return nil
}

func (c *Client) SetMoveOnCompletePath(_ context.Context, id string, path string) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.moveTo[id] = path
	return nil
}

func (c *Client) SetPrioritizeFirstLast(_ context.Context, id string, enabled bool) error {
	logUnsupported("prioritize_first_last", id, enabled)
	return nil
}

func (c *Client) SetMaxDownloadSpeed(ctx context.Context, id string, kib float64) error {
	return c.api.SetTorrentDownloadLimitCtx(ctx, []string{id}, speedLimitBytes(kib))
}

func (c *Client) SetMaxUploadSpeed(ctx context.Context, id string, kib float64) error {
	return c.api.SetTorrentUploadLimitCtx(ctx, []string{id}, speedLimitBytes(kib))
}

func (c *Client) SetMaxConnections(_ context.Context, id string, n int) error {
	logUnsupported("max_connections", id, n)
	return nil
}

func (c *Client) SetMaxUploadSlots(_ context.Context, id string, n int) error {
	logUnsupported("max_upload_slots", id, n)
	return nil
}

func (c *Client) SetAutoManaged(ctx context.Context, id string, enabled bool) error {
	return c.api.SetAutoManagementCtx(ctx, []string{id}, enabled)
}

// SetStopAtRatio sets a per-torrent ratio limit, or hands the torrent back to
// the global share limits when disabled.
func (c *Client) SetStopAtRatio(ctx context.Context, id string, enabled bool, ratio float64) error {
	ratioLimit := float64(shareLimitGlobal)
	if enabled {
		ratioLimit = ratio
	}
	inactive := int64(shareLimitGlobal)
	if !c.SupportsInactiveSeeding() {
		inactive = shareLimitUnlimited
	}
	return c.api.SetTorrentShareLimitCtx(ctx, []string{id}, ratioLimit, shareLimitGlobal, inactive)
}

func (c *Client) SetRemoveAtRatio(_ context.Context, id string, enabled bool) error {
	logUnsupported("remove_at_ratio", id, enabled)
	return nil
}

func (c *Client) MoveStorage(ctx context.Context, id string, path string) error {
	return c.api.SetLocationCtx(ctx, []string{id}, path)
}

// speedLimitBytes converts KiB/s to the WebAPI's bytes/s. Negative means
// unlimited.
func speedLimitBytes(kib float64) int64 {
	if kib < 0 {
		return -1
	}
	return int64(math.Round(kib * 1024))
}

func logUnsupported(op, id string, value any) {
	if value == false || value == -1 {
		return
	}
	log.Debug().Str("hash", id).Str("operation", op).Interface("value", value).Msg("qbittorrent: per-torrent setting not supported, ignoring")
}
