// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	trackerCacheTTL      = 10 * time.Minute
	trackerFetchParallel = 8
)

// trackers returns announce URLs for t without touching the network.
func (c *Client) trackers(_ context.Context, t qbt.Torrent) []string {
	hash := normalizeHash(t.Hash)
	if urls, ok := c.trackerCache.Get(hash); ok {
		return urls
	}

	var urls []string
	for _, tracker := range t.Trackers {
		if isAnnounceURL(tracker.Url) {
			urls = append(urls, tracker.Url)
		}
	}
	if len(urls) == 0 && t.Tracker != "" {
		urls = []string{t.Tracker}
	}
	return urls
}

// PrefetchTrackers loads tracker lists for hashes missing from the cache.
// Failures are logged and leave the torrent's primary tracker in use.
func (c *Client) PrefetchTrackers(ctx context.Context, hashes []string) {
	var missing []string
	for _, hash := range hashes {
		hash = normalizeHash(hash)
		if _, ok := c.trackerCache.Get(hash); !ok {
			missing = append(missing, hash)
		}
	}
	if len(missing) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(trackerFetchParallel)
	for _, hash := range missing {
		g.Go(func() error {
			list, err := c.api.GetTorrentTrackersCtx(gctx, hash)
			if err != nil {
				log.Debug().Err(err).Str("hash", hash).Msg("qbittorrent: failed to fetch trackers")
				return nil
			}
			urls := make([]string, 0, len(list))
			for _, tracker := range list {
				if isAnnounceURL(tracker.Url) {
					urls = append(urls, tracker.Url)
				}
			}
			c.trackerCache.Set(hash, urls, ttlcache.DefaultTTL)
			return nil
		})
	}
	_ = g.Wait()
}

// PrefetchAllTrackers warms the cache for every known torrent.
func (c *Client) PrefetchAllTrackers(ctx context.Context) {
	c.PrefetchTrackers(ctx, c.IDs(ctx))
}

// isAnnounceURL filters out the DHT, PeX and LSD pseudo trackers.
func isAnnounceURL(url string) bool {
	return url != "" && !strings.HasPrefix(url, "** [")
}
