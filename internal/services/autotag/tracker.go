// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package autotag

import (
	"net"
	"net/url"
	"strings"

	"github.com/autobrr/autobrr/pkg/ttlcache"
)

// TrackerHost returns the lowercase host of a tracker announce URL, or ""
// when none can be extracted.
//
// Fallback strategy: url.Parse, then "//"-prefixed parse for scheme-less
// values, then manual host:port splitting.
func (m *Matcher) TrackerHost(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	if cached, found := m.hostCache.Get(rawURL); found {
		return cached
	}

	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}

	if host == "" && !strings.Contains(rawURL, "://") {
		if u, err := url.Parse("//" + rawURL); err == nil {
			host = u.Hostname()
		}
	}

	if host == "" {
		candidate := rawURL
		if idx := strings.IndexAny(candidate, "/?#"); idx != -1 {
			candidate = candidate[:idx]
		}
		candidate = strings.TrimSpace(strings.TrimPrefix(candidate, "//"))
		if h, _, err := net.SplitHostPort(candidate); err == nil {
			host = h
		} else if ip := net.ParseIP(candidate); ip != nil {
			host = candidate
		} else if idx := strings.Index(candidate, ":"); idx != -1 {
			host = candidate[:idx]
		} else {
			host = candidate
		}
	}

	host = strings.ToLower(strings.Trim(host, "[]"))
	m.hostCache.Set(rawURL, host, ttlcache.DefaultTTL)
	return host
}

// TrackerHosts maps announce URLs to their unique hosts, preserving order.
func (m *Matcher) TrackerHosts(urls []string) []string {
	hosts := make([]string, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		host := m.TrackerHost(u)
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}
	return hosts
}
