// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog/log"
)

const (
	// Unlimited is the sentinel for disabled speed, connection and slot caps.
	Unlimited = -1

	defaultStopRatio           = 2.0
	defaultSharedLimitInterval = 5
	minSharedLimitInterval     = 1
)

// MoveCompletedMode decides how a label's move-on-complete path is derived.
type MoveCompletedMode string

const (
	// MoveCompletedModeFolder uses the label's explicit path.
	MoveCompletedModeFolder MoveCompletedMode = "folder"
	// MoveCompletedModeParent moves into the parent label's folder.
	MoveCompletedModeParent MoveCompletedMode = "parent"
	// MoveCompletedModeSubfolder moves into a folder named after the label, inside the parent's folder.
	MoveCompletedModeSubfolder MoveCompletedMode = "subfolder"
)

func (m MoveCompletedMode) IsValid() bool {
	switch m {
	case MoveCompletedModeFolder, MoveCompletedModeParent, MoveCompletedModeSubfolder:
		return true
	}
	return false
}

// TagOptions is the per-label option record. Fields are grouped by the
// toggle that enables them.
type TagOptions struct {
	DownloadSettings    bool              `json:"download_settings" mapstructure:"download_settings" yaml:"download_settings"`
	MoveCompleted       bool              `json:"move_completed" mapstructure:"move_completed" yaml:"move_completed"`
	MoveCompletedMode   MoveCompletedMode `json:"move_completed_mode" mapstructure:"move_completed_mode" yaml:"move_completed_mode"`
	MoveCompletedPath   string            `json:"move_completed_path" mapstructure:"move_completed_path" yaml:"move_completed_path"`
	PrioritizeFirstLast bool              `json:"prioritize_first_last" mapstructure:"prioritize_first_last" yaml:"prioritize_first_last"`

	BandwidthSettings bool    `json:"bandwidth_settings" mapstructure:"bandwidth_settings" yaml:"bandwidth_settings"`
	MaxDownloadSpeed  float64 `json:"max_download_speed" mapstructure:"max_download_speed" yaml:"max_download_speed"`
	MaxUploadSpeed    float64 `json:"max_upload_speed" mapstructure:"max_upload_speed" yaml:"max_upload_speed"`
	MaxConnections    int     `json:"max_connections" mapstructure:"max_connections" yaml:"max_connections"`
	MaxUploadSlots    int     `json:"max_upload_slots" mapstructure:"max_upload_slots" yaml:"max_upload_slots"`
	SharedLimit       bool    `json:"shared_limit" mapstructure:"shared_limit" yaml:"shared_limit"`

	QueueSettings bool    `json:"queue_settings" mapstructure:"queue_settings" yaml:"queue_settings"`
	AutoManaged   bool    `json:"auto_managed" mapstructure:"auto_managed" yaml:"auto_managed"`
	StopAtRatio   bool    `json:"stop_at_ratio" mapstructure:"stop_at_ratio" yaml:"stop_at_ratio"`
	StopRatio     float64 `json:"stop_ratio" mapstructure:"stop_ratio" yaml:"stop_ratio"`
	RemoveAtRatio bool    `json:"remove_at_ratio" mapstructure:"remove_at_ratio" yaml:"remove_at_ratio"`

	AutotagSettings bool          `json:"autotag_settings" mapstructure:"autotag_settings" yaml:"autotag_settings"`
	AutotagRules    []AutotagRule `json:"autotag_rules" mapstructure:"-" yaml:"autotag_rules"`
	AutotagMatchAll bool          `json:"autotag_match_all" mapstructure:"autotag_match_all" yaml:"autotag_match_all"`
}

// DefaultTagOptions returns the built-in tag defaults.
func DefaultTagOptions() TagOptions {
	return TagOptions{
		MoveCompletedMode: MoveCompletedModeFolder,
		MaxDownloadSpeed:  Unlimited,
		MaxUploadSpeed:    Unlimited,
		MaxConnections:    Unlimited,
		MaxUploadSlots:    Unlimited,
		AutoManaged:       true,
		StopRatio:         defaultStopRatio,
		AutotagRules:      []AutotagRule{},
	}
}

// Clone returns a deep copy.
func (o TagOptions) Clone() TagOptions {
	clone := o
	clone.AutotagRules = append([]AutotagRule{}, o.AutotagRules...)
	return clone
}

// SharedLimitActive reports whether the label takes part in shared-limit recomputation.
func (o TagOptions) SharedLimitActive() bool {
	return o.BandwidthSettings && o.SharedLimit
}

// MoveCompletedActive reports whether items under the label move on completion.
func (o TagOptions) MoveCompletedActive() bool {
	return o.DownloadSettings && o.MoveCompleted
}

// AutotagActive reports whether the label participates in autotagging.
func (o TagOptions) AutotagActive() bool {
	return o.AutotagSettings && len(o.AutotagRules) > 0
}

// SanitizeTagOptions coerces a record into its canonical shape. An empty move
// path falls back to defaultMovePath in explicit folder mode.
func SanitizeTagOptions(o TagOptions, defaultMovePath string) TagOptions {
	clone := o.Clone()

	clone.MoveCompletedPath = strings.TrimSpace(clone.MoveCompletedPath)
	if !clone.MoveCompletedMode.IsValid() {
		log.Debug().
			Str("original", string(clone.MoveCompletedMode)).
			Msg("tagging: unknown move completed mode, using folder")
		clone.MoveCompletedMode = MoveCompletedModeFolder
	}
	if clone.MoveCompletedPath == "" {
		clone.MoveCompletedPath = defaultMovePath
		clone.MoveCompletedMode = MoveCompletedModeFolder
	}

	clone.MaxDownloadSpeed = clampSpeed(clone.MaxDownloadSpeed)
	clone.MaxUploadSpeed = clampSpeed(clone.MaxUploadSpeed)
	if clone.MaxConnections < 0 {
		clone.MaxConnections = Unlimited
	}
	if clone.MaxUploadSlots < 0 {
		clone.MaxUploadSlots = Unlimited
	}
	if clone.StopRatio < 0 {
		clone.StopRatio = 0
	}

	clone.AutotagRules = sanitizeRules(clone.AutotagRules)
	return clone
}

func clampSpeed(v float64) float64 {
	if v < 0 {
		return Unlimited
	}
	return v
}

// DecodeTagOptions builds a typed record from an untyped one. Known keys
// override template, unknown keys are dropped and missing keys keep the
// template's values.
func DecodeTagOptions(raw map[string]any, template TagOptions) (TagOptions, error) {
	opts := template.Clone()
	if len(raw) == 0 {
		return opts, nil
	}

	fields := make(map[string]any, len(raw))
	for key, value := range raw {
		if key == "autotag_rules" {
			continue
		}
		fields[key] = value
	}

	var meta mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		Metadata:         &meta,
		Result:           &opts,
	})
	if err != nil {
		return TagOptions{}, fmt.Errorf("build tag options decoder: %w", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return TagOptions{}, fmt.Errorf("decode tag options: %w", err)
	}
	if len(meta.Unused) > 0 {
		log.Debug().Strs("keys", meta.Unused).Msg("tagging: dropping unknown tag option keys")
	}

	if rules, ok := raw["autotag_rules"]; ok {
		opts.AutotagRules = decodeRules(rules)
	}

	return opts, nil
}
