// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTagOptions(t *testing.T) {
	template := DefaultTagOptions()
	template.MoveCompletedPath = "/downloads/done"

	tests := []struct {
		name  string
		raw   map[string]any
		check func(t *testing.T, got TagOptions)
	}{
		{
			name: "missing keys keep template values",
			raw:  map[string]any{"bandwidth_settings": true},
			check: func(t *testing.T, got TagOptions) {
				assert.True(t, got.BandwidthSettings)
				assert.Equal(t, "/downloads/done", got.MoveCompletedPath)
				assert.Equal(t, float64(Unlimited), got.MaxDownloadSpeed)
				assert.True(t, got.AutoManaged)
			},
		},
		{
			name: "unknown keys are dropped",
			raw:  map[string]any{"shared_limit_update_interval": 5, "stop_ratio": 1.5},
			check: func(t *testing.T, got TagOptions) {
				assert.Equal(t, 1.5, got.StopRatio)
			},
		},
		{
			name: "caps are cast to integers",
			raw:  map[string]any{"max_connections": 50.0, "max_upload_slots": "4"},
			check: func(t *testing.T, got TagOptions) {
				assert.Equal(t, 50, got.MaxConnections)
				assert.Equal(t, 4, got.MaxUploadSlots)
			},
		},
		{
			name: "rules decode from nested lists and drop invalid entries",
			raw: map[string]any{
				"autotag_settings": true,
				"autotag_rules": []any{
					[]any{"name", "contains_words", "ignore_case", "1080p bluray"},
					[]any{"tracker", "regex", "match_case", ""},
					[]any{"size", "regex", "match_case", "x"},
					[]any{"name", "regex"},
				},
			},
			check: func(t *testing.T, got TagOptions) {
				require.Len(t, got.AutotagRules, 1)
				assert.Equal(t, AutotagRule{
					Property: RulePropertyName,
					Operator: RuleOperatorContainsWords,
					Case:     RuleCaseInsensitive,
					Query:    "1080p bluray",
				}, got.AutotagRules[0])
				assert.True(t, got.AutotagActive())
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTagOptions(tt.raw, template)
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestDecodeTagOptionsDoesNotAliasTemplate(t *testing.T) {
	template := DefaultTagOptions()
	template.AutotagRules = []AutotagRule{{Property: RulePropertyName, Operator: RuleOperatorRegex, Case: RuleCaseSensitive, Query: "x"}}

	got, err := DecodeTagOptions(map[string]any{}, template)
	require.NoError(t, err)
	got.AutotagRules[0].Query = "changed"

	assert.Equal(t, "x", template.AutotagRules[0].Query)
}

func TestSanitizeTagOptions(t *testing.T) {
	opts := DefaultTagOptions()
	opts.MoveCompletedMode = MoveCompletedModeSubfolder
	opts.MoveCompletedPath = "   "
	opts.MaxDownloadSpeed = -20
	opts.MaxConnections = -7
	opts.StopRatio = -1

	got := SanitizeTagOptions(opts, "/global/move")

	assert.Equal(t, "/global/move", got.MoveCompletedPath)
	assert.Equal(t, MoveCompletedModeFolder, got.MoveCompletedMode)
	assert.Equal(t, float64(Unlimited), got.MaxDownloadSpeed)
	assert.Equal(t, Unlimited, got.MaxConnections)
	assert.Zero(t, got.StopRatio)
}

func TestSanitizeTagOptionsUnknownMode(t *testing.T) {
	opts := DefaultTagOptions()
	opts.MoveCompletedMode = "sideways"
	opts.MoveCompletedPath = "/data"

	got := SanitizeTagOptions(opts, "/global")
	assert.Equal(t, MoveCompletedModeFolder, got.MoveCompletedMode)
	assert.Equal(t, "/data", got.MoveCompletedPath)
}

func TestAutotagRuleJSONShape(t *testing.T) {
	rule := AutotagRule{Property: RulePropertyTracker, Operator: RuleOperatorRegex, Case: RuleCaseInsensitive, Query: `^tracker\.`}

	payload, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.JSONEq(t, `["tracker","regex","ignore_case","^tracker\\."]`, string(payload))

	var decoded AutotagRule
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, rule, decoded)

	require.Error(t, json.Unmarshal([]byte(`["name","regex"]`), &decoded))
}

func TestSanitizeTagPreferencesClampsInterval(t *testing.T) {
	prefs := DefaultTagPreferences()
	prefs.Options.SharedLimitInterval = 0

	got := SanitizeTagPreferences(prefs, "/move")
	assert.Equal(t, 1, got.Options.SharedLimitInterval)
	assert.Equal(t, "/move", got.Tag.MoveCompletedPath)
}

func TestDecodeTagPreferences(t *testing.T) {
	got, err := DecodeTagPreferences(map[string]any{
		"options": map[string]any{"move_on_changes": true, "shared_limit_interval": "10"},
		"tag":     map[string]any{"queue_settings": true},
	}, DefaultTagPreferences())
	require.NoError(t, err)

	assert.True(t, got.Options.MoveOnChanges)
	assert.Equal(t, 10, got.Options.SharedLimitInterval)
	assert.True(t, got.Tag.QueueSettings)
	assert.Equal(t, defaultStopRatio, got.Tag.StopRatio)
}

func TestTagConfigClone(t *testing.T) {
	cfg := DefaultTagConfig()
	cfg.Tags["0"] = TagRecord{Name: "Movies", Options: DefaultTagOptions()}
	cfg.Mappings["abc"] = "0"

	clone := cfg.Clone()
	clone.Tags["1"] = TagRecord{Name: "TV"}
	clone.Mappings["abc"] = "1"

	assert.Len(t, cfg.Tags, 1)
	assert.Equal(t, "0", cfg.Mappings["abc"])
}
