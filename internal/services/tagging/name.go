// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// FullNameSeparator joins ancestor names in a label's full name.
const FullNameSeparator = "/"

// ValidateName trims and NFC-normalizes name, then rejects empty names,
// the full-name separator and control characters.
func ValidateName(name string) (string, error) {
	normalized := norm.NFC.String(strings.TrimSpace(name))
	if normalized == "" {
		return "", errors.Wrap(ErrInvalidName, "name is empty")
	}
	if strings.Contains(normalized, FullNameSeparator) {
		return "", errors.Wrapf(ErrInvalidName, "name %q contains %q", normalized, FullNameSeparator)
	}
	for _, r := range normalized {
		if unicode.IsControl(r) {
			return "", errors.Wrapf(ErrInvalidName, "name %q contains a control character", normalized)
		}
	}
	return normalized, nil
}
