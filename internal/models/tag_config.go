// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
)

// TagPreferenceOptions are engine-wide switches.
type TagPreferenceOptions struct {
	// MoveOnChanges applies move-on-complete immediately when a label's
	// path changes or items are relabelled.
	MoveOnChanges bool `json:"move_on_changes" mapstructure:"move_on_changes" yaml:"move_on_changes"`
	// MoveAfterRecheck retries move-on-complete when an item finishes again.
	MoveAfterRecheck bool `json:"move_after_recheck" mapstructure:"move_after_recheck" yaml:"move_after_recheck"`
	// SharedLimitInterval is the shared-limit recompute period in seconds.
	SharedLimitInterval int `json:"shared_limit_interval" mapstructure:"shared_limit_interval" yaml:"shared_limit_interval"`
}

// TagPreferences holds engine switches and the defaults cloned into new labels.
type TagPreferences struct {
	Options TagPreferenceOptions `json:"options" yaml:"options"`
	Tag     TagOptions           `json:"tag" yaml:"tag"`
}

// TagRecord is a stored label.
type TagRecord struct {
	Name    string     `json:"name" yaml:"name"`
	Options TagOptions `json:"options" yaml:"options"`
}

// TagConfig is the plain record the engine is loaded from and saved to.
type TagConfig struct {
	Prefs    TagPreferences       `json:"prefs" yaml:"prefs"`
	Tags     map[string]TagRecord `json:"tags" yaml:"tags"`
	Mappings map[string]string    `json:"mappings" yaml:"mappings"`
}

// DefaultTagPreferences returns preferences for a fresh install.
func DefaultTagPreferences() TagPreferences {
	return TagPreferences{
		Options: TagPreferenceOptions{
			SharedLimitInterval: defaultSharedLimitInterval,
		},
		Tag: DefaultTagOptions(),
	}
}

// DefaultTagConfig returns an empty configuration.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		Prefs:    DefaultTagPreferences(),
		Tags:     map[string]TagRecord{},
		Mappings: map[string]string{},
	}
}

// Clone returns a deep copy.
func (c *TagConfig) Clone() *TagConfig {
	if c == nil {
		return nil
	}
	clone := &TagConfig{
		Prefs: TagPreferences{
			Options: c.Prefs.Options,
			Tag:     c.Prefs.Tag.Clone(),
		},
		Tags:     make(map[string]TagRecord, len(c.Tags)),
		Mappings: make(map[string]string, len(c.Mappings)),
	}
	for id, rec := range c.Tags {
		clone.Tags[id] = TagRecord{Name: rec.Name, Options: rec.Options.Clone()}
	}
	for item, tag := range c.Mappings {
		clone.Mappings[item] = tag
	}
	return clone
}

// SanitizeTagPreferences clamps the recompute interval and normalizes the
// tag defaults.
func SanitizeTagPreferences(p TagPreferences, defaultMovePath string) TagPreferences {
	clone := TagPreferences{Options: p.Options, Tag: SanitizeTagOptions(p.Tag, defaultMovePath)}
	if clone.Options.SharedLimitInterval < minSharedLimitInterval {
		log.Debug().
			Int("original", p.Options.SharedLimitInterval).
			Int("sanitized", minSharedLimitInterval).
			Msg("tagging: shared limit interval below minimum, clamping")
		clone.Options.SharedLimitInterval = minSharedLimitInterval
	}
	return clone
}

// DecodeTagPreferences builds preferences from an untyped record, keeping
// template values for missing keys.
func DecodeTagPreferences(raw map[string]any, template TagPreferences) (TagPreferences, error) {
	prefs := TagPreferences{Options: template.Options, Tag: template.Tag.Clone()}

	if rawOptions, ok := raw["options"].(map[string]any); ok {
		if err := mapstructure.WeakDecode(rawOptions, &prefs.Options); err != nil {
			return TagPreferences{}, fmt.Errorf("decode tag preference options: %w", err)
		}
	}
	if rawTag, ok := raw["tag"].(map[string]any); ok {
		tag, err := DecodeTagOptions(rawTag, template.Tag)
		if err != nil {
			return TagPreferences{}, err
		}
		prefs.Tag = tag
	}
	return prefs, nil
}
