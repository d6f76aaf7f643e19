// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"strconv"
	"strings"
)

const (
	// IDNull is the parent of root labels.
	IDNull = ""
	// IDAll addresses every item.
	IDAll = "All"
	// IDNone addresses every unlabelled item.
	IDNone = "None"

	idSeparator = ":"
)

// IsReserved reports whether id names a pseudo-label rather than a stored one.
func IsReserved(id string) bool {
	return id == IDNull || id == IDAll || id == IDNone
}

// ParentID returns the structural parent of id. Roots return IDNull.
func ParentID(id string) string {
	idx := strings.LastIndex(id, idSeparator)
	if idx == -1 {
		return IDNull
	}
	return id[:idx]
}

func childID(parent string, segment int) string {
	if parent == IDNull {
		return strconv.Itoa(segment)
	}
	return parent + idSeparator + strconv.Itoa(segment)
}

// validID reports whether id is a non-empty chain of decimal segments.
func validID(id string) bool {
	if id == "" {
		return false
	}
	for _, seg := range strings.Split(id, idSeparator) {
		if seg == "" {
			return false
		}
		if _, err := strconv.Atoi(seg); err != nil {
			return false
		}
	}
	return true
}

// isAncestor reports whether ancestor is a strict structural ancestor of id.
func isAncestor(ancestor, id string) bool {
	if ancestor == IDNull {
		return id != IDNull
	}
	return strings.HasPrefix(id, ancestor+idSeparator)
}

// compareIDs orders ids segment by segment numerically.
func compareIDs(a, b string) int {
	as := strings.Split(a, idSeparator)
	bs := strings.Split(b, idSeparator)
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, _ := strconv.Atoi(as[i])
		bn, _ := strconv.Atoi(bs[i])
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
	}
	return len(as) - len(bs)
}
