// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"
	"math"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// minSharedLimit keeps a throttled item from stalling outright.
const minSharedLimit = 0.1

// UpdateSharedLimits runs one shared-limit pass over every label in the
// recompute set. It returns false once the engine is stopped.
func (e *Engine) UpdateSharedLimits(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return false
	}

	timer := prometheus.NewTimer(e.metrics.SharedLimitTickDuration)
	defer timer.ObserveDuration()
	e.metrics.SharedLimitTicks.Inc()

	ids := make([]string, 0, len(e.sharedLimits))
	for id := range e.sharedLimits {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)

	for _, id := range ids {
		e.updateSharedLimit(ctx, id)
	}
	return true
}

func (e *Engine) updateSharedLimit(ctx context.Context, id string) {
	node, ok := e.tags[id]
	if !ok {
		return
	}
	downCap, upCap := node.options.MaxDownloadSpeed, node.options.MaxUploadSpeed
	if downCap < 0 && upCap < 0 {
		return
	}

	var (
		active    []string
		downRates []float64
		upRates   []float64
	)
	items := make([]string, 0, len(node.items))
	for itemID := range node.items {
		items = append(items, itemID)
	}
	slices.Sort(items)

	for _, itemID := range items {
		status, err := e.store.Status(ctx, itemID)
		if err != nil {
			log.Debug().Err(err).Str("itemID", itemID).Msg("tagging: skipping item in shared limit pass")
			continue
		}
		if !status.State.Active() {
			continue
		}
		active = append(active, itemID)
		downRates = append(downRates, status.DownloadRate)
		upRates = append(upRates, status.UploadRate)
	}
	if len(active) == 0 {
		return
	}

	downLimits := allocateShare(downRates, downCap)
	upLimits := allocateShare(upRates, upCap)
	for i, itemID := range active {
		e.control("max_download_speed", itemID, func() error {
			return e.store.SetMaxDownloadSpeed(ctx, itemID, downLimits[i])
		})
		e.control("max_upload_speed", itemID, func() error {
			return e.store.SetMaxUploadSpeed(ctx, itemID, upLimits[i])
		})
	}
}

// allocateShare splits limit across items given their current rates.
// A negative limit yields -1 (unlimited) for every item. Over the limit each
// item gives up a share of the excess proportional to its rate; under it,
// busy items split the slack evenly and idle items may use the whole limit.
func allocateShare(rates []float64, limit float64) []float64 {
	out := make([]float64, len(rates))
	if limit < 0 {
		for i := range out {
			out[i] = -1
		}
		return out
	}

	var sum float64
	busy := 0
	for _, r := range rates {
		sum += r
		if r > 0 {
			busy++
		}
	}
	diff := sum - limit

	for i, r := range rates {
		var v float64
		switch {
		case diff >= 0:
			v = r
			if sum > 0 {
				v = r - (r/sum)*diff
			}
		case r > 0:
			v = r + math.Abs(diff)/float64(busy)
		default:
			v = limit
		}
		out[i] = math.Max(v, minSharedLimit)
	}
	return out
}
