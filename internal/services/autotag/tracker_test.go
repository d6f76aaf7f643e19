// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package autotag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerHost(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "https with port and query", input: "https://Tracker.Example.org:443/announce?passkey=1", want: "tracker.example.org"},
		{name: "udp", input: "udp://open.tracker.net:1337/announce", want: "open.tracker.net"},
		{name: "scheme-less", input: "tracker.example.com/announce", want: "tracker.example.com"},
		{name: "scheme-less with port", input: "tracker.example.com:8080/announce", want: "tracker.example.com"},
		{name: "ipv6 literal", input: "http://[2001:db8::1]:8080/announce", want: "2001:db8::1"},
		{name: "blank", input: "   ", want: ""},
	}

	m := NewMatcher()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.TrackerHost(tt.input))
		})
	}
}

func TestTrackerHostsDeduplicates(t *testing.T) {
	hosts := NewMatcher().TrackerHosts([]string{
		"https://a.example/announce",
		"http://a.example:80/announce",
		"",
		"https://b.example/announce",
	})
	assert.Equal(t, []string{"a.example", "b.example"}, hosts)
}

func TestTrackerHostCacheIsPerMatcher(t *testing.T) {
	const announce = "https://Tracker.Example.org/announce"

	first, second := NewMatcher(), NewMatcher()
	assert.Equal(t, "tracker.example.org", first.TrackerHost(announce))

	cached, found := first.hostCache.Get(announce)
	assert.True(t, found)
	assert.Equal(t, "tracker.example.org", cached)

	_, found = second.hostCache.Get(announce)
	assert.False(t, found)
}
