// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package autotag evaluates label rules against item properties.
package autotag

import (
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/models"
)

const (
	regexMatchTimeout = 250 * time.Millisecond
	hostCacheTTL      = 5 * time.Minute
)

// Item is the projection of an item that rules can see.
type Item struct {
	Name string
	// Trackers holds announce URLs; rules match against their hosts.
	Trackers []string
}

type regexKey struct {
	pattern string
	ignore  bool
}

// Matcher evaluates rule sets. Compiled expressions are cached, including
// failed compilations so a bad pattern is only logged once per TTL. Tracker
// hosts extracted from announce URLs are cached too.
type Matcher struct {
	regexCache *ttlcache.Cache[regexKey, *regexp2.Regexp]
	hostCache  *ttlcache.Cache[string, string]
}

// NewMatcher constructs a Matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		regexCache: ttlcache.New(ttlcache.Options[regexKey, *regexp2.Regexp]{}.SetDefaultTTL(10 * time.Minute)),
		hostCache:  ttlcache.New(ttlcache.Options[string, string]{}.SetDefaultTTL(hostCacheTTL)),
	}
}

// Match reports whether item satisfies rules. With matchAll every rule must
// match at least one projected value, otherwise any single rule suffices.
// An empty rule set never matches.
func (m *Matcher) Match(item Item, rules []models.AutotagRule, matchAll bool) bool {
	if len(rules) == 0 {
		return false
	}

	var hosts []string
	for _, rule := range rules {
		var values []string
		switch rule.Property {
		case models.RulePropertyName:
			if item.Name != "" {
				values = []string{item.Name}
			}
		case models.RulePropertyTracker:
			if hosts == nil {
				hosts = m.TrackerHosts(item.Trackers)
			}
			values = hosts
		}

		matched := m.matchAny(rule, values)
		if matchAll && !matched {
			return false
		}
		if !matchAll && matched {
			return true
		}
	}

	return matchAll
}

func (m *Matcher) matchAny(rule models.AutotagRule, values []string) bool {
	for _, value := range values {
		if m.RuleMatches(rule, value) {
			return true
		}
	}
	return false
}

// RuleMatches applies a single rule's operator to value.
func (m *Matcher) RuleMatches(rule models.AutotagRule, value string) bool {
	ignoreCase := rule.Case == models.RuleCaseInsensitive

	switch rule.Operator {
	case models.RuleOperatorContainsWords:
		return containsWords(rule.Query, value, ignoreCase)
	case models.RuleOperatorRegex:
		re := m.compile(rule.Query, ignoreCase)
		if re == nil {
			return false
		}
		ok, err := re.MatchString(value)
		if err != nil {
			log.Debug().Err(err).Str("pattern", rule.Query).Msg("autotag: regex evaluation failed")
			return false
		}
		return ok
	}
	return false
}

// containsWords requires every whitespace-separated word of query to appear
// somewhere in value.
func containsWords(query, value string, ignoreCase bool) bool {
	words := strings.Fields(query)
	if len(words) == 0 {
		return false
	}
	if ignoreCase {
		value = strings.ToLower(value)
	}
	for _, word := range words {
		if ignoreCase {
			word = strings.ToLower(word)
		}
		if !strings.Contains(value, word) {
			return false
		}
	}
	return true
}

func (m *Matcher) compile(pattern string, ignoreCase bool) *regexp2.Regexp {
	key := regexKey{pattern: pattern, ignore: ignoreCase}
	if cached, found := m.regexCache.Get(key); found {
		return cached
	}

	opts := regexp2.None
	if ignoreCase {
		opts |= regexp2.IgnoreCase
	}
	re, err := regexp2.Compile(pattern, opts)
	if err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("autotag: invalid regex rule")
	} else {
		re.MatchTimeout = regexMatchTimeout
	}

	m.regexCache.Set(key, re, ttlcache.DefaultTTL)
	return re
}
