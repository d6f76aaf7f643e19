// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetItemTagIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A")
	})
	e := env.engine
	ctx := context.Background()
	movies := mustAdd(t, e, IDNull, "Movies")

	require.NoError(t, e.SetItemTag(ctx, "a", movies))
	first := e.LastChanged()
	require.NoError(t, e.SetItemTag(ctx, "a", movies))

	e.mu.Lock()
	assert.Len(t, e.tags[movies].items, 1)
	assert.Equal(t, map[string]string{"a": movies}, e.mappings)
	e.mu.Unlock()

	assert.True(t, e.LastChanged().After(first), "mapping timestamp advances on a repeated set")
}

func TestSetItemTagRelabelsAndClears(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A")
	})
	e := env.engine
	ctx := context.Background()
	movies := mustAdd(t, e, IDNull, "Movies")
	tv := mustAdd(t, e, IDNull, "TV")

	require.NoError(t, e.SetItemTag(ctx, "a", movies))
	require.NoError(t, e.SetItemTag(ctx, "a", tv))

	e.mu.Lock()
	assert.Empty(t, e.tags[movies].items)
	assert.Contains(t, e.tags[tv].items, "a")
	e.mu.Unlock()

	require.NoError(t, e.SetItemTag(ctx, "a", IDNone))
	tagID, err := e.GetItemTag("a")
	require.NoError(t, err)
	assert.Equal(t, IDNone, tagID)

	name, err := e.GetItemTagName("a")
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestSetItemTagErrorsAndUnknownItems(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A")
	})
	e := env.engine
	ctx := context.Background()
	movies := mustAdd(t, e, IDNull, "Movies")

	tests := []struct {
		name    string
		tagID   string
		wantErr error
	}{
		{name: "all", tagID: IDAll, wantErr: ErrInvalidTag},
		{name: "null", tagID: IDNull, wantErr: ErrInvalidTag},
		{name: "missing", tagID: "4", wantErr: ErrInvalidTag},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := e.SetItemTag(ctx, "a", tt.tagID)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}

	require.NoError(t, e.SetItemTags(ctx, []string{"a", "ghost"}, movies))
	tags, err := e.GetItemTags([]string{"a", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]ItemTag{
		"a":     {TagID: movies, FullName: "Movies"},
		"ghost": {TagID: IDNone},
	}, tags)
}

func TestUnsetItemKeepsSettings(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A")
	})
	e := env.engine
	ctx := context.Background()
	movies := mustAdd(t, e, IDNull, "Movies")

	opts, err := e.GetTagOptions(movies)
	require.NoError(t, err)
	opts.BandwidthSettings = true
	opts.MaxDownloadSpeed = 200
	require.NoError(t, e.SetTagOptions(ctx, movies, opts, nil))
	require.NoError(t, e.SetItemTag(ctx, "a", movies))

	require.NoError(t, e.UnsetItem("a"))
	tagID, err := e.GetItemTag("a")
	require.NoError(t, err)
	assert.Equal(t, IDNone, tagID)
	assert.Equal(t, 200.0, env.store.get("a").maxDown)
}

func TestFilterItems(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		for _, id := range []string{"a", "b", "c"} {
			s.add(id, id)
		}
	})
	e := env.engine
	ctx := context.Background()
	movies := mustAdd(t, e, IDNull, "Movies")
	tv := mustAdd(t, e, IDNull, "TV")
	require.NoError(t, e.SetItemTag(ctx, "a", movies))
	require.NoError(t, e.SetItemTag(ctx, "b", tv))

	items := []string{"c", "b", "a"}
	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{name: "single label", tags: []string{movies}, want: []string{"a"}},
		{name: "unlabelled", tags: []string{IDNone}, want: []string{"c"}},
		{name: "mixed", tags: []string{tv, IDNone}, want: []string{"c", "b"}},
		{name: "all", tags: []string{IDAll}, want: items},
		{name: "nothing", tags: nil, want: []string{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.FilterItems(items, tt.tags)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBandwidthUsage(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A").status = ItemStatus{ID: "a", State: ItemStateDownloading, DownloadRate: 100, UploadRate: 10}
		s.add("b", "B").status = ItemStatus{ID: "b", State: ItemStateSeeding, UploadRate: 30}
		s.add("c", "C").status = ItemStatus{ID: "c", State: ItemStatePaused, DownloadRate: 999}
		s.add("d", "D").status = ItemStatus{ID: "d", State: ItemStateDownloading, DownloadRate: 5}
	})
	e := env.engine
	ctx := context.Background()
	movies := mustAdd(t, e, IDNull, "Movies")
	require.NoError(t, e.SetItemTags(ctx, []string{"a", "b", "c"}, movies))

	usage, err := e.BandwidthUsage(ctx, movies)
	require.NoError(t, err)
	assert.Equal(t, BandwidthUsage{Download: 100, Upload: 40}, usage)

	usages, err := e.GetTagBandwidthUsages(ctx, []string{IDAll, IDNone, "9"})
	require.NoError(t, err)
	assert.Equal(t, map[string]BandwidthUsage{
		IDAll:  {Download: 105, Upload: 40},
		IDNone: {Download: 5},
	}, usages)

	_, err = e.BandwidthUsage(ctx, "9")
	assert.True(t, errors.Is(err, ErrInvalidTag))
}

func TestSnapshotAndUpdates(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		for _, id := range []string{"a", "b", "c", "d"} {
			s.add(id, id)
		}
	})
	e := env.engine
	ctx := context.Background()
	movies := mustAdd(t, e, IDNull, "Movies")
	hd := mustAdd(t, e, movies, "HD")
	require.NoError(t, e.SetItemTag(ctx, "a", movies))
	require.NoError(t, e.SetItemTags(ctx, []string{"b", "c"}, hd))

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, TagInfo{Name: "HD", FullName: "Movies/HD", ParentID: movies, Count: 2}, snap.Tags[hd])
	assert.Equal(t, 1, snap.Tags[movies].Count)
	assert.Equal(t, 4, snap.Tags[IDAll].Count)
	assert.Equal(t, 1, snap.Tags[IDNone].Count)

	since := env.clock.Now()
	_, ok, err := e.Updates(ctx, since)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, e.SetItemTag(ctx, "d", movies))
	update, ok, err := e.Updates(ctx, since)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, update.Tags[IDNone].Count)

	_, ok, err = e.Updates(ctx, time.Time{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSnapshotNoneCountNeverNegative(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A")
	})
	e := env.engine
	ctx := context.Background()
	movies := mustAdd(t, e, IDNull, "Movies")
	require.NoError(t, e.SetItemTag(ctx, "a", movies))
	env.store.remove("a")

	snap, err := e.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Tags[IDAll].Count)
	assert.Equal(t, 0, snap.Tags[IDNone].Count)
}
