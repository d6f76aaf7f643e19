// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent exposes a qBittorrent instance as the item store and
// event source of the label engine.
package qbittorrent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/autobrr/autobrr/pkg/ttlcache"
	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// Share limits gained the inactive seeding time argument in WebAPI 2.9.2.
	inactiveSeedingMinVersion = semver.MustParse("2.9.2")
	// Per-torrent download paths arrived in WebAPI 2.8.4.
	torrentTmpPathMinVersion = semver.MustParse("2.8.4")
)

// Config describes how to reach the qBittorrent WebUI.
type Config struct {
	Host          string
	Username      string
	Password      string
	BasicUser     string
	BasicPass     string
	TLSSkipVerify bool
	Timeout       time.Duration
	LoginAttempts uint
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:       60 * time.Second,
		LoginAttempts: 5,
	}
}

// webAPI is the subset of the qBittorrent WebUI client the adapter calls.
type webAPI interface {
	SetTorrentDownloadLimitCtx(ctx context.Context, hashes []string, limit int64) error
	SetTorrentUploadLimitCtx(ctx context.Context, hashes []string, limit int64) error
	SetAutoManagementCtx(ctx context.Context, hashes []string, enable bool) error
	SetTorrentShareLimitCtx(ctx context.Context, hashes []string, ratioLimit float64, seedingTimeLimit, inactiveSeedingTimeLimit int64) error
	SetLocationCtx(ctx context.Context, hashes []string, location string) error
	GetTorrentTrackersCtx(ctx context.Context, hash string) ([]qbt.TorrentTracker, error)
}

// torrentSource is the synced torrent view.
type torrentSource interface {
	GetTorrents(options qbt.TorrentFilterOptions) []qbt.Torrent
	GetTorrent(hash string) (qbt.Torrent, bool)
}

// Client adapts one qBittorrent instance.
type Client struct {
	api         webAPI
	qbt         *qbt.Client
	syncManager *qbt.SyncManager
	torrents    torrentSource
	host        string

	mu                      sync.RWMutex
	webAPIVersion           string
	supportsInactiveSeeding bool
	supportsTorrentTmpPath  bool

	healthMu        sync.RWMutex
	isHealthy       bool
	lastHealthCheck time.Time

	trackerCache *ttlcache.Cache[string, []string]

	stateMu   sync.Mutex
	known     map[string]bool // hash -> completed, for diffing sync updates
	synced    bool
	moveOn    map[string]bool
	moveTo    map[string]string
	events    chan Event
	closed    bool
	closeOnce sync.Once
}

// NewClient logs in, retrying with backoff, and prepares the sync manager.
// Call Start to begin syncing.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.LoginAttempts == 0 {
		cfg.LoginAttempts = DefaultConfig().LoginAttempts
	}

	qbtClient := qbt.NewClient(qbt.Config{
		Host:          cfg.Host,
		Username:      cfg.Username,
		Password:      cfg.Password,
		BasicUser:     cfg.BasicUser,
		BasicPass:     cfg.BasicPass,
		Timeout:       int(cfg.Timeout.Seconds()),
		TLSSkipVerify: cfg.TLSSkipVerify,
	})

	err := retry.Do(
		func() error {
			loginCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			return qbtClient.LoginCtx(loginCtx)
		},
		retry.Context(ctx),
		retry.Attempts(cfg.LoginAttempts),
		retry.Delay(2*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n+1).Str("host", cfg.Host).Msg("qbittorrent: login failed, retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qBittorrent instance: %w", err)
	}

	client := newClient(qbtClient, nil)
	client.qbt = qbtClient
	client.host = cfg.Host

	if err := client.RefreshCapabilities(ctx); err != nil {
		log.Warn().Err(err).Str("host", cfg.Host).Msg("qbittorrent: failed to read WebAPI version")
		client.updateHealthStatus(false)
	} else {
		client.updateHealthStatus(true)
	}

	syncOpts := qbt.DefaultSyncOptions()
	syncOpts.DynamicSync = true
	syncOpts.OnUpdate = func(data *qbt.MainData) {
		client.updateHealthStatus(true)
		client.handleUpdate(context.Background(), data)
	}
	syncOpts.OnError = func(err error) {
		client.updateHealthStatus(false)
		log.Warn().Err(err).Str("host", cfg.Host).Msg("qbittorrent: sync failed")
	}
	client.syncManager = qbtClient.NewSyncManager(syncOpts)
	client.torrents = client.syncManager

	log.Debug().
		Str("host", cfg.Host).
		Str("webAPIVersion", client.GetWebAPIVersion()).
		Bool("supportsInactiveSeeding", client.SupportsInactiveSeeding()).
		Bool("tlsSkipVerify", cfg.TLSSkipVerify).
		Msg("qbittorrent: client created")

	return client, nil
}

func newClient(api webAPI, torrents torrentSource) *Client {
	return &Client{
		api:             api,
		torrents:        torrents,
		lastHealthCheck: time.Now(),
		trackerCache:    ttlcache.New(ttlcache.Options[string, []string]{}.SetDefaultTTL(trackerCacheTTL)),
		known:           make(map[string]bool),
		moveOn:          make(map[string]bool),
		moveTo:          make(map[string]string),
		events:          make(chan Event, eventBuffer),
	}
}

// Start runs the sync manager until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	if c.syncManager == nil {
		return errors.New("sync manager not initialized")
	}
	if err := c.syncManager.Start(ctx); err != nil {
		return errors.Wrap(err, "start sync manager")
	}
	go c.healthLoop(ctx)
	return nil
}

// Sync forces a sync round. The first round seeds the known set without
// emitting events.
func (c *Client) Sync(ctx context.Context) error {
	if c.syncManager == nil {
		return errors.New("sync manager not initialized")
	}
	return c.syncManager.Sync(ctx)
}

// RefreshCapabilities reads the WebAPI version and recomputes feature flags.
func (c *Client) RefreshCapabilities(ctx context.Context) error {
	if c.qbt == nil {
		return errors.New("client not connected")
	}
	version, err := c.qbt.GetWebAPIVersionCtx(ctx)
	if err != nil {
		return err
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return fmt.Errorf("web API version is empty")
	}

	c.mu.Lock()
	c.applyCapabilitiesLocked(version)
	c.mu.Unlock()
	return nil
}

func (c *Client) applyCapabilitiesLocked(version string) {
	c.webAPIVersion = version

	v, err := semver.NewVersion(version)
	if err != nil {
		log.Warn().Err(err).Str("webAPIVersion", version).Msg("qbittorrent: unparseable WebAPI version, leaving capability flags unchanged")
		return
	}
	c.supportsInactiveSeeding = !v.LessThan(inactiveSeedingMinVersion)
	c.supportsTorrentTmpPath = !v.LessThan(torrentTmpPathMinVersion)
}

func (c *Client) GetWebAPIVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.webAPIVersion
}

func (c *Client) SupportsInactiveSeeding() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supportsInactiveSeeding
}

func (c *Client) SupportsTorrentTmpPath() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supportsTorrentTmpPath
}

func (c *Client) updateHealthStatus(healthy bool) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()
	c.isHealthy = healthy
	c.lastHealthCheck = time.Now()
}

func (c *Client) IsHealthy() bool {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.isHealthy
}

func (c *Client) GetLastHealthCheck() time.Time {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	return c.lastHealthCheck
}

// GetLastSyncUpdate reports when the sync manager last refreshed.
func (c *Client) GetLastSyncUpdate() time.Time {
	if c.syncManager == nil {
		return time.Time{}
	}
	return c.syncManager.LastSyncTime()
}

// HealthCheck re-reads the WebAPI version unless a recent check succeeded.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.IsHealthy() && time.Since(c.GetLastHealthCheck()) < minHealthCheckInterval {
		return nil
	}
	if err := c.RefreshCapabilities(ctx); err != nil {
		c.updateHealthStatus(false)
		return errors.Wrap(err, "health check failed")
	}
	c.updateHealthStatus(true)
	return nil
}
