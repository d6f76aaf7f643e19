// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tagging implements the label namespace, the item-to-label index,
// autotagging, shared bandwidth limits and per-item policy application.
package tagging

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/models"
	"github.com/autobrr/qtag/internal/services/autotag"
)

// Config controls the engine's periodic tasks.
type Config struct {
	SaveInterval time.Duration
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		SaveInterval: 2 * time.Minute,
	}
}

type tagNode struct {
	name     string
	options  models.TagOptions
	fullName string
	children []string
	items    map[string]struct{}
}

// Engine owns all label state. Every exported method runs as one step under
// a single lock, so no two operations interleave.
type Engine struct {
	cfg      Config
	store    ItemStore
	defaults GlobalDefaults
	saver    Saver
	metrics  *Metrics
	matcher  *autotag.Matcher
	now      func() time.Time

	mu           sync.Mutex
	active       bool
	prefs        models.TagPreferences
	tags         map[string]*tagNode
	roots        []string
	mappings     map[string]string
	sharedLimits map[string]struct{}
	sorted       []string

	tagsChanged     time.Time
	mappingsChanged time.Time
	prefsChanged    time.Time
	lastSaved       time.Time

	reschedule chan struct{}
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewEngine loads record into a ready engine. Dangling labels and mappings
// are dropped and policy is pushed for every surviving mapping.
func NewEngine(ctx context.Context, cfg Config, record *models.TagConfig, store ItemStore, defaults GlobalDefaults, saver Saver, metrics *Metrics) *Engine {
	return newEngine(ctx, cfg, record, store, defaults, saver, metrics, time.Now)
}

func newEngine(ctx context.Context, cfg Config, record *models.TagConfig, store ItemStore, defaults GlobalDefaults, saver Saver, metrics *Metrics, now func() time.Time) *Engine {
	if cfg.SaveInterval <= 0 {
		cfg.SaveInterval = DefaultConfig().SaveInterval
	}
	if record == nil {
		record = models.DefaultTagConfig()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	e := &Engine{
		cfg:          cfg,
		store:        store,
		defaults:     defaults,
		saver:        saver,
		metrics:      metrics,
		matcher:      autotag.NewMatcher(),
		now:          now,
		tags:         make(map[string]*tagNode),
		mappings:     make(map[string]string),
		sharedLimits: make(map[string]struct{}),
		reschedule:   make(chan struct{}, 1),
	}

	e.load(ctx, record.Clone())
	e.active = true
	return e
}

func (e *Engine) load(ctx context.Context, record *models.TagConfig) {
	movePath := e.defaults.Defaults().MovePath()
	e.prefs = models.SanitizeTagPreferences(record.Prefs, movePath)

	ids := make([]string, 0, len(record.Tags))
	for id := range record.Tags {
		if IsReserved(id) || !validID(id) {
			log.Warn().Str("tagID", id).Msg("tagging: dropping label with malformed id")
			continue
		}
		ids = append(ids, id)
	}
	// Parents sort before their children, so one pass drops whole orphaned subtrees.
	slices.SortFunc(ids, compareIDs)

	for _, id := range ids {
		rec := record.Tags[id]
		parent := ParentID(id)
		if parent != IDNull {
			if _, ok := e.tags[parent]; !ok {
				log.Warn().Str("tagID", id).Str("parentID", parent).Msg("tagging: dropping orphaned label")
				continue
			}
		}

		name, err := ValidateName(rec.Name)
		if err != nil {
			log.Warn().Err(err).Str("tagID", id).Msg("tagging: dropping label with invalid name")
			continue
		}

		opts := e.sanitizeOptions(id, rec.Options)

		e.tags[id] = &tagNode{name: name, options: opts, items: make(map[string]struct{})}
		e.appendChild(parent, id)
		e.tags[id].fullName = e.resolveFullName(id)
		if opts.SharedLimitActive() {
			e.sharedLimits[id] = struct{}{}
		}
	}

	for _, root := range e.roots {
		e.refreshMovePaths(ctx, root, true, false)
	}

	for itemID, tagID := range record.Mappings {
		node, ok := e.tags[tagID]
		if !e.store.Exists(ctx, itemID) {
			continue
		}
		if !ok {
			log.Debug().Str("itemID", itemID).Str("tagID", tagID).Msg("tagging: purging mapping to missing label")
			e.resetPolicy(ctx, itemID)
			continue
		}
		e.mappings[itemID] = tagID
		node.items[itemID] = struct{}{}
		e.applyPolicy(ctx, itemID, node.options)
	}

	now := e.now()
	e.tagsChanged = now
	e.mappingsChanged = now
	e.prefsChanged = now
	e.updateGauges()

	log.Info().Int("tags", len(e.tags)).Int("mappings", len(e.mappings)).Msg("tagging: engine loaded")
}

// Start launches the shared-limit and save loops. They stop when ctx is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	if e == nil {
		return
	}

	e.mu.Lock()
	if !e.active || e.cancel != nil {
		e.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.sharedLimitLoop(loopCtx)
	}()
	go func() {
		defer e.wg.Done()
		e.saveLoop(loopCtx)
	}()
}

// Stop disables the engine, waits for the loops to exit and saves once more.
// Every later call returns ErrEngineNotInitialized.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return ErrEngineNotInitialized
	}
	e.active = false
	cancel := e.cancel
	e.cancel = nil
	record := e.configLocked()
	dirty := e.dirtyLocked()
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	if e.saver != nil && dirty {
		if err := e.saver.Save(ctx, record); err != nil {
			return err
		}
	}
	log.Info().Msg("tagging: engine stopped")
	return nil
}

func (e *Engine) sharedLimitLoop(ctx context.Context) {
	timer := time.NewTimer(e.sharedLimitInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.reschedule:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(e.sharedLimitInterval())
		case <-timer.C:
			if !e.UpdateSharedLimits(ctx) {
				return
			}
			timer.Reset(e.sharedLimitInterval())
		}
	}
}

func (e *Engine) sharedLimitInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.prefs.Options.SharedLimitInterval) * time.Second
}

func (e *Engine) saveLoop(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.SaveIfDirty(ctx); err != nil {
				if errors.Is(err, ErrEngineNotInitialized) {
					return
				}
				log.Error().Err(err).Msg("tagging: failed to save config")
			}
		}
	}
}

// SaveIfDirty hands the record to the saver when anything changed since the
// last successful save. It reports whether a save happened.
func (e *Engine) SaveIfDirty(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return false, ErrEngineNotInitialized
	}
	if e.saver == nil || !e.dirtyLocked() {
		e.mu.Unlock()
		return false, nil
	}
	stamp := e.now()
	record := e.configLocked()
	e.mu.Unlock()

	if err := e.saver.Save(ctx, record); err != nil {
		return false, err
	}

	e.mu.Lock()
	e.lastSaved = stamp
	e.mu.Unlock()
	log.Debug().Msg("tagging: config saved")
	return true, nil
}

func (e *Engine) dirtyLocked() bool {
	if e.lastSaved.IsZero() {
		return true
	}
	latest := e.lastChangedLocked()
	if e.prefsChanged.After(latest) {
		latest = e.prefsChanged
	}
	return !latest.Before(e.lastSaved)
}

func (e *Engine) lastChangedLocked() time.Time {
	if e.mappingsChanged.After(e.tagsChanged) {
		return e.mappingsChanged
	}
	return e.tagsChanged
}

// Config returns a deep copy of the engine record.
func (e *Engine) Config() (*models.TagConfig, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return nil, ErrEngineNotInitialized
	}
	return e.configLocked(), nil
}

func (e *Engine) configLocked() *models.TagConfig {
	cfg := &models.TagConfig{
		Prefs: models.TagPreferences{
			Options: e.prefs.Options,
			Tag:     e.prefs.Tag.Clone(),
		},
		Tags:     make(map[string]models.TagRecord, len(e.tags)),
		Mappings: make(map[string]string, len(e.mappings)),
	}
	for id, node := range e.tags {
		cfg.Tags[id] = models.TagRecord{Name: node.name, Options: node.options.Clone()}
	}
	for item, tag := range e.mappings {
		cfg.Mappings[item] = tag
	}
	return cfg
}

func (e *Engine) markTagsChanged() {
	e.tagsChanged = e.now()
	e.sorted = nil
	e.updateGauges()
}

func (e *Engine) markMappingsChanged() {
	e.mappingsChanged = e.now()
	e.updateGauges()
}

func (e *Engine) updateGauges() {
	e.metrics.Tags.Set(float64(len(e.tags)))
	e.metrics.TaggedItems.Set(float64(len(e.mappings)))
}

func (e *Engine) controlFailed(op, itemID string, err error) {
	e.metrics.ItemControlFailures.WithLabelValues(op).Inc()
	log.Warn().Err(err).Str("itemID", itemID).Str("operation", op).Msg("tagging: item control failed")
}
