// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/dbinterface"
)

// TagConfigStore persists the label engine record.
type TagConfigStore struct {
	db dbinterface.Querier
}

// NewTagConfigStore creates a new store.
func NewTagConfigStore(db dbinterface.Querier) *TagConfigStore {
	return &TagConfigStore{db: db}
}

// Load reads the full record. Stored option blobs are decoded against the
// current defaults so records written by older builds gain new keys.
func (s *TagConfigStore) Load(ctx context.Context) (*TagConfig, error) {
	cfg := DefaultTagConfig()

	prefs, err := s.loadPreferences(ctx)
	if err != nil {
		return nil, err
	}
	cfg.Prefs = prefs

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, options_json FROM tags`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, optionsJSON string
		if err := rows.Scan(&id, &name, &optionsJSON); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		raw, err := decodeJSONObject(optionsJSON)
		if err != nil {
			log.Warn().Err(err).Str("tagID", id).Msg("tagging: stored options unreadable, using defaults")
			raw = nil
		}
		opts, err := DecodeTagOptions(raw, cfg.Prefs.Tag)
		if err != nil {
			return nil, fmt.Errorf("decode options for tag %s: %w", id, err)
		}
		cfg.Tags[id] = TagRecord{Name: name, Options: opts}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mappingRows, err := s.db.QueryContext(ctx, `SELECT sp.value, m.tag_id
		FROM tag_mappings m
		JOIN string_pool sp ON sp.id = m.item_id`)
	if err != nil {
		return nil, fmt.Errorf("query tag mappings: %w", err)
	}
	defer mappingRows.Close()

	for mappingRows.Next() {
		var itemID, tagID string
		if err := mappingRows.Scan(&itemID, &tagID); err != nil {
			return nil, fmt.Errorf("scan tag mapping: %w", err)
		}
		cfg.Mappings[itemID] = tagID
	}
	if err := mappingRows.Err(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (s *TagConfigStore) loadPreferences(ctx context.Context) (TagPreferences, error) {
	var optionsJSON, tagJSON string
	err := s.db.QueryRowContext(ctx, `SELECT options_json, tag_json FROM tag_preferences WHERE id = 1`).Scan(&optionsJSON, &tagJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultTagPreferences(), nil
		}
		return TagPreferences{}, fmt.Errorf("query tag preferences: %w", err)
	}

	rawOptions, err := decodeJSONObject(optionsJSON)
	if err != nil {
		return TagPreferences{}, fmt.Errorf("decode tag preference options: %w", err)
	}
	rawTag, err := decodeJSONObject(tagJSON)
	if err != nil {
		return TagPreferences{}, fmt.Errorf("decode tag defaults: %w", err)
	}

	return DecodeTagPreferences(map[string]any{"options": rawOptions, "tag": rawTag}, DefaultTagPreferences())
}

// Save replaces the stored record in a single transaction.
func (s *TagConfigStore) Save(ctx context.Context, cfg *TagConfig) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	optionsJSON, err := json.Marshal(cfg.Prefs.Options)
	if err != nil {
		return err
	}
	tagJSON, err := json.Marshal(cfg.Prefs.Tag)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO tag_preferences (id, options_json, tag_json, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			options_json = excluded.options_json,
			tag_json = excluded.tag_json,
			updated_at = excluded.updated_at`, string(optionsJSON), string(tagJSON)); err != nil {
		return fmt.Errorf("save tag preferences: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tags`); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for id, rec := range cfg.Tags {
		payload, err := json.Marshal(rec.Options)
		if err != nil {
			return fmt.Errorf("encode options for tag %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags (id, name, options_json) VALUES (?, ?, ?)`, id, rec.Name, string(payload)); err != nil {
			return fmt.Errorf("save tag %s: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tag_mappings`); err != nil {
		return fmt.Errorf("clear tag mappings: %w", err)
	}
	if len(cfg.Mappings) > 0 {
		items := make([]string, 0, len(cfg.Mappings))
		for itemID := range cfg.Mappings {
			items = append(items, itemID)
		}
		ids, err := dbinterface.InternStrings(ctx, tx, items...)
		if err != nil {
			return fmt.Errorf("intern item ids: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO tag_mappings (item_id, tag_id) VALUES (?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for itemID, tagID := range cfg.Mappings {
			if _, err := stmt.ExecContext(ctx, ids[itemID], tagID); err != nil {
				return fmt.Errorf("save mapping for %s: %w", itemID, err)
			}
		}
	}
	if err := dbinterface.PruneStrings(ctx, tx, "tag_mappings", "item_id"); err != nil {
		return err
	}

	return tx.Commit()
}

func decodeJSONObject(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
