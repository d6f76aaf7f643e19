// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "qtag.db")

	db, err := New(path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())

	for _, table := range []string{"string_pool", "tag_preferences", "tags", "tag_mappings"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	var version int
	require.NoError(t, db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestNewIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qtag.db")

	first, err := New(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(path)
	require.NoError(t, err)
	defer second.Close()

	var count int
	require.NoError(t, second.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestRetryOnBusy(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{name: "success first try", errs: []error{nil}, wantCalls: 1},
		{name: "busy then success", errs: []error{errors.New("database is locked"), nil}, wantCalls: 2},
		{name: "non busy error stops", errs: []error{errors.New("boom")}, wantCalls: 1, wantErr: true},
		{
			name:      "gives up after attempts",
			errs:      []error{errors.New("SQLITE_BUSY"), errors.New("SQLITE_BUSY"), errors.New("SQLITE_BUSY"), errors.New("SQLITE_BUSY"), errors.New("SQLITE_BUSY")},
			wantCalls: busyRetryAttempts,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryOnBusy(context.Background(), func() error {
				err := tt.errs[calls]
				calls++
				return err
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
