// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autobrr/qtag/internal/models"
)

type fakeItem struct {
	status ItemStatus

	moveOnComplete     bool
	moveOnCompletePath string
	firstLast          bool
	maxDown            float64
	maxUp              float64
	maxConns           int
	maxSlots           int
	autoManaged        bool
	stopAtRatio        bool
	stopRatio          float64
	removeAtRatio      bool
	moves              []string
}

type fakeStore struct {
	mu      sync.Mutex
	items   map[string]*fakeItem
	failOps map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: make(map[string]*fakeItem), failOps: make(map[string]error)}
}

func (s *fakeStore) add(id, name string) *fakeItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := &fakeItem{status: ItemStatus{ID: id, Name: name, State: ItemStatePaused}}
	s.items[id] = item
	return item
}

func (s *fakeStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

func (s *fakeStore) setStatus(id string, fn func(*ItemStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.items[id].status)
}

func (s *fakeStore) get(id string) fakeItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := *s.items[id]
	item.moves = append([]string(nil), item.moves...)
	return item
}

func (s *fakeStore) with(id, op string, fn func(*fakeItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOps[op]; err != nil {
		return err
	}
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("item %s not found", id)
	}
	fn(item)
	return nil
}

func (s *fakeStore) Exists(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	return ok
}

func (s *fakeStore) IDs(_ context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *fakeStore) Status(_ context.Context, id string) (ItemStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return ItemStatus{}, fmt.Errorf("item %s not found", id)
	}
	return item.status, nil
}

func (s *fakeStore) SetMoveOnComplete(_ context.Context, id string, enabled bool) error {
	return s.with(id, "move_on_complete", func(i *fakeItem) { i.moveOnComplete = enabled })
}

func (s *fakeStore) SetMoveOnCompletePath(_ context.Context, id string, path string) error {
	return s.with(id, "move_on_complete_path", func(i *fakeItem) { i.moveOnCompletePath = path })
}

func (s *fakeStore) SetPrioritizeFirstLast(_ context.Context, id string, enabled bool) error {
	return s.with(id, "prioritize_first_last", func(i *fakeItem) { i.firstLast = enabled })
}

func (s *fakeStore) SetMaxDownloadSpeed(_ context.Context, id string, kib float64) error {
	return s.with(id, "max_download_speed", func(i *fakeItem) { i.maxDown = kib })
}

func (s *fakeStore) SetMaxUploadSpeed(_ context.Context, id string, kib float64) error {
	return s.with(id, "max_upload_speed", func(i *fakeItem) { i.maxUp = kib })
}

func (s *fakeStore) SetMaxConnections(_ context.Context, id string, n int) error {
	return s.with(id, "max_connections", func(i *fakeItem) { i.maxConns = n })
}

func (s *fakeStore) SetMaxUploadSlots(_ context.Context, id string, n int) error {
	return s.with(id, "max_upload_slots", func(i *fakeItem) { i.maxSlots = n })
}

func (s *fakeStore) SetAutoManaged(_ context.Context, id string, enabled bool) error {
	return s.with(id, "auto_managed", func(i *fakeItem) { i.autoManaged = enabled })
}

func (s *fakeStore) SetStopAtRatio(_ context.Context, id string, enabled bool, ratio float64) error {
	return s.with(id, "stop_at_ratio", func(i *fakeItem) { i.stopAtRatio, i.stopRatio = enabled, ratio })
}

func (s *fakeStore) SetRemoveAtRatio(_ context.Context, id string, enabled bool) error {
	return s.with(id, "remove_at_ratio", func(i *fakeItem) { i.removeAtRatio = enabled })
}

func (s *fakeStore) MoveStorage(_ context.Context, id string, path string) error {
	return s.with(id, "move_storage", func(i *fakeItem) {
		i.moves = append(i.moves, path)
		i.status.SavePath = path
	})
}

type fakeSaver struct {
	mu    sync.Mutex
	saves []*models.TagConfig
	err   error
}

func (s *fakeSaver) Save(_ context.Context, cfg *models.TagConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, cfg)
	return nil
}

func (s *fakeSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

// testClock advances one second on every read so consecutive changes get
// distinct timestamps.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

var testDefaults = ItemDefaults{
	DownloadLocation: "/downloads",
	MaxDownloadSpeed: -1,
	MaxUploadSpeed:   -1,
	MaxConnections:   -1,
	MaxUploadSlots:   -1,
	AutoManaged:      true,
	StopRatio:        2,
}

type testEnv struct {
	engine *Engine
	store  *fakeStore
	saver  *fakeSaver
	clock  *testClock
}

func newTestEnv(t *testing.T, record *models.TagConfig, setup func(*fakeStore)) *testEnv {
	t.Helper()

	store := newFakeStore()
	if setup != nil {
		setup(store)
	}
	saver := &fakeSaver{}
	clock := newTestClock()

	e := newEngine(context.Background(), DefaultConfig(), record, store, testDefaults, saver, nil, clock.Now)

	return &testEnv{engine: e, store: store, saver: saver, clock: clock}
}

func mustAdd(t *testing.T, e *Engine, parent, name string) string {
	t.Helper()
	id, err := e.AddTag(context.Background(), parent, name)
	require.NoError(t, err)
	return id
}
