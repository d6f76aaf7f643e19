// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo carries version metadata injected at build time.
package buildinfo

// Set via -ldflags "-X github.com/autobrr/qtag/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// String renders the version line printed by the version command.
func String() string {
	out := Version
	if Commit != "" {
		out += " (" + Commit + ")"
	}
	if Date != "" {
		out += " built " + Date
	}
	return out
}
