// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	healthCheckInterval    = 30 * time.Second
	healthCheckTimeout     = 10 * time.Second
	minHealthCheckInterval = 20 * time.Second

	initialBackoff = 10 * time.Second
	maxBackoff     = 1 * time.Minute

	banInitialBackoff = 5 * time.Minute
	banMaxBackoff     = 1 * time.Hour
)

// healthTracker holds failure state between health checks.
type healthTracker struct {
	attempts  int
	nextRetry time.Time
}

func (h *healthTracker) inBackoff(now time.Time) bool {
	return now.Before(h.nextRetry)
}

func (h *healthTracker) fail(now time.Time, err error) time.Duration {
	h.attempts++
	backoff := calculateBackoff(h.attempts, initialBackoff, maxBackoff)
	if isBanError(err) {
		backoff = calculateBackoff(h.attempts, banInitialBackoff, banMaxBackoff)
	}
	h.nextRetry = now.Add(backoff)
	return backoff
}

func (h *healthTracker) reset() {
	h.attempts = 0
	h.nextRetry = time.Time{}
}

func (c *Client) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	var tracker healthTracker
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			if time.Since(c.GetLastHealthCheck()) < minHealthCheckInterval || tracker.inBackoff(now) {
				continue
			}

			checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := c.HealthCheck(checkCtx)
			cancel()
			if err != nil {
				backoff := tracker.fail(now, err)
				log.Warn().Err(err).Str("host", c.host).Int("attempts", tracker.attempts).Dur("backoff", backoff).Msg("qbittorrent: health check failed")
				continue
			}
			if tracker.attempts > 0 {
				log.Info().Str("host", c.host).Msg("qbittorrent: connection recovered")
			}
			tracker.reset()
		}
	}
}

func calculateBackoff(attempts int, initialDuration, maxDuration time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return min(time.Duration(1<<(attempts-1))*initialDuration, maxDuration)
}

// isBanError reports whether err looks like the WebUI refusing us for too
// many failed logins.
func isBanError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "banned") ||
		strings.Contains(msg, "too many failed login attempts") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "forbidden")
}
