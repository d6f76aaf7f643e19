// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import "github.com/pkg/errors"

var (
	// ErrEngineNotInitialized is returned by every operation once the engine is stopped.
	ErrEngineNotInitialized = errors.New("tagging engine not initialized")
	// ErrInvalidTag means the referenced label does not exist.
	ErrInvalidTag = errors.New("invalid tag")
	// ErrInvalidParent means the parent or destination is absent, or would create a cycle.
	ErrInvalidParent = errors.New("invalid parent")
	// ErrNameConflict means a sibling already uses the name.
	ErrNameConflict = errors.New("tag already exists")
	// ErrInvalidName means the name is empty or holds disallowed characters.
	ErrInvalidName = errors.New("invalid tag name")
	// ErrInvalidOperation means the request targets a reserved label.
	ErrInvalidOperation = errors.New("invalid operation")
)
