// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/qtag/internal/models"
)

func moveOptions(mode models.MoveCompletedMode, path string) models.TagOptions {
	opts := models.DefaultTagOptions()
	opts.DownloadSettings = true
	opts.MoveCompleted = true
	opts.MoveCompletedMode = mode
	opts.MoveCompletedPath = path
	return opts
}

func TestApplyPolicyTogglesFallBackToDefaults(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A")
	})
	e := env.engine
	ctx := context.Background()
	movies := mustAdd(t, e, IDNull, "Movies")

	opts := models.DefaultTagOptions()
	opts.BandwidthSettings = true
	opts.MaxDownloadSpeed = 500
	opts.MaxUploadSpeed = 50
	opts.MaxConnections = 20
	opts.QueueSettings = true
	opts.AutoManaged = false
	opts.StopAtRatio = true
	opts.StopRatio = 1.5
	require.NoError(t, e.SetTagOptions(ctx, movies, opts, nil))
	require.NoError(t, e.SetItemTag(ctx, "a", movies))

	item := env.store.get("a")
	assert.Equal(t, 500.0, item.maxDown)
	assert.Equal(t, 50.0, item.maxUp)
	assert.Equal(t, 20, item.maxConns)
	assert.False(t, item.autoManaged)
	assert.True(t, item.stopAtRatio)
	assert.Equal(t, 1.5, item.stopRatio)
	assert.False(t, item.moveOnComplete)

	opts.BandwidthSettings = false
	require.NoError(t, e.SetTagOptions(ctx, movies, opts, nil))

	item = env.store.get("a")
	assert.Equal(t, -1.0, item.maxDown)
	assert.Equal(t, -1, item.maxConns)
	assert.True(t, item.stopAtRatio)
}

func TestMovePathModes(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	e := env.engine
	ctx := context.Background()

	movies := mustAdd(t, e, IDNull, "Movies")
	hd := mustAdd(t, e, movies, "HD")
	uhd := mustAdd(t, e, hd, "4K")

	require.NoError(t, e.SetTagOptions(ctx, movies, moveOptions(models.MoveCompletedModeFolder, "/media/movies"), nil))
	require.NoError(t, e.SetTagOptions(ctx, hd, moveOptions(models.MoveCompletedModeSubfolder, ""), nil))
	require.NoError(t, e.SetTagOptions(ctx, uhd, moveOptions(models.MoveCompletedModeParent, ""), nil))

	tests := []struct {
		name string
		id   string
		want string
	}{
		{name: "explicit folder", id: movies, want: "/media/movies"},
		{name: "subfolder of parent", id: hd, want: "/media/movies/HD"},
		{name: "parent folder", id: uhd, want: "/media/movies/HD"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			opts, err := e.GetTagOptions(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, opts.MoveCompletedPath)
		})
	}

	preview, err := e.GetMovePathOptions(hd)
	require.NoError(t, err)
	assert.Equal(t, MovePathOptions{Parent: "/media/movies", Subfolder: "/media/movies/HD"}, preview)
}

func TestMovePathCascadesAndPushes(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A")
	})
	e := env.engine
	ctx := context.Background()

	movies := mustAdd(t, e, IDNull, "Movies")
	hd := mustAdd(t, e, movies, "HD")
	require.NoError(t, e.SetTagOptions(ctx, movies, moveOptions(models.MoveCompletedModeFolder, "/media/movies"), nil))
	require.NoError(t, e.SetTagOptions(ctx, hd, moveOptions(models.MoveCompletedModeSubfolder, ""), nil))
	require.NoError(t, e.SetItemTag(ctx, "a", hd))
	assert.Equal(t, "/media/movies/HD", env.store.get("a").moveOnCompletePath)

	require.NoError(t, e.SetTagOptions(ctx, movies, moveOptions(models.MoveCompletedModeFolder, "/srv/films"), nil))
	assert.Equal(t, "/srv/films/HD", env.store.get("a").moveOnCompletePath)

	require.NoError(t, e.RenameTag(ctx, hd, "1080p"))
	assert.Equal(t, "/srv/films/1080p", env.store.get("a").moveOnCompletePath)
}

func TestRootLabelsStayInFolderMode(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	e := env.engine
	movies := mustAdd(t, e, IDNull, "Movies")

	require.NoError(t, e.SetTagOptions(context.Background(), movies, moveOptions(models.MoveCompletedModeSubfolder, "/media/movies"), nil))

	opts, err := e.GetTagOptions(movies)
	require.NoError(t, err)
	assert.Equal(t, models.MoveCompletedModeFolder, opts.MoveCompletedMode)
	assert.Equal(t, "/media/movies", opts.MoveCompletedPath)
}

func TestMoveOnChangesMovesFinishedItems(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("done", "Done").status.Finished = true
		s.add("partial", "Partial")
	})
	e := env.engine
	ctx := context.Background()
	env.store.setStatus("done", func(st *ItemStatus) { st.SavePath = "/downloads" })

	prefs, err := e.GetPreferences()
	require.NoError(t, err)
	prefs.Options.MoveOnChanges = true
	require.NoError(t, e.SetPreferences(prefs))

	movies := mustAdd(t, e, IDNull, "Movies")
	require.NoError(t, e.SetTagOptions(ctx, movies, moveOptions(models.MoveCompletedModeFolder, "/media/movies"), nil))
	require.NoError(t, e.SetItemTags(ctx, []string{"done", "partial"}, movies))

	assert.Equal(t, []string{"/media/movies"}, env.store.get("done").moves)
	assert.Empty(t, env.store.get("partial").moves)

	// Already in place: no second move.
	require.NoError(t, e.SetItemTag(ctx, "done", movies))
	assert.Len(t, env.store.get("done").moves, 1)

	require.NoError(t, e.SetTagOptions(ctx, movies, moveOptions(models.MoveCompletedModeFolder, "/media/films"), nil))
	assert.Equal(t, []string{"/media/movies", "/media/films"}, env.store.get("done").moves)
}

func TestMoveOnChangesFollowsInheritedPath(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A").status.Finished = true
	})
	e := env.engine
	ctx := context.Background()

	prefs, err := e.GetPreferences()
	require.NoError(t, err)
	prefs.Options.MoveOnChanges = true
	require.NoError(t, e.SetPreferences(prefs))

	movies := mustAdd(t, e, IDNull, "Movies")
	hd := mustAdd(t, e, movies, "HD")
	// The root only supplies a path; its own items are not moved.
	root := models.DefaultTagOptions()
	root.MoveCompletedPath = "/old"
	require.NoError(t, e.SetTagOptions(ctx, movies, root, nil))
	require.NoError(t, e.SetTagOptions(ctx, hd, moveOptions(models.MoveCompletedModeParent, ""), nil))
	env.store.setStatus("a", func(st *ItemStatus) { st.SavePath = "/old" })
	require.NoError(t, e.SetItemTag(ctx, "a", hd))
	require.Empty(t, env.store.get("a").moves)

	root.MoveCompletedPath = "/new"
	require.NoError(t, e.SetTagOptions(ctx, movies, root, nil))
	assert.Equal(t, []string{"/new"}, env.store.get("a").moves)
	assert.Equal(t, "/new", env.store.get("a").moveOnCompletePath)
}

func TestControlFailuresAreCounted(t *testing.T) {
	env := newTestEnv(t, nil, func(s *fakeStore) {
		s.add("a", "A")
	})
	e := env.engine
	env.store.failOps["max_upload_slots"] = errors.New("unsupported")

	movies := mustAdd(t, e, IDNull, "Movies")
	require.NoError(t, e.SetItemTag(context.Background(), "a", movies))

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.ItemControlFailures.WithLabelValues("max_upload_slots")))
	assert.Equal(t, -1.0, env.store.get("a").maxDown)
}
