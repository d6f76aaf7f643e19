// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RuleProperty selects which item property a rule is evaluated against.
type RuleProperty string

const (
	RulePropertyName    RuleProperty = "name"
	RulePropertyTracker RuleProperty = "tracker"
)

// RuleOperator selects how the query is compared with the property value.
type RuleOperator string

const (
	RuleOperatorContainsWords RuleOperator = "contains_words"
	RuleOperatorRegex         RuleOperator = "regex"
)

// RuleCase selects case handling for the operator.
type RuleCase string

const (
	RuleCaseSensitive   RuleCase = "match_case"
	RuleCaseInsensitive RuleCase = "ignore_case"
)

func (p RuleProperty) IsValid() bool {
	switch p {
	case RulePropertyName, RulePropertyTracker:
		return true
	}
	return false
}

func (o RuleOperator) IsValid() bool {
	switch o {
	case RuleOperatorContainsWords, RuleOperatorRegex:
		return true
	}
	return false
}

func (c RuleCase) IsValid() bool {
	switch c {
	case RuleCaseSensitive, RuleCaseInsensitive:
		return true
	}
	return false
}

// AutotagRule is a single (property, operator, case, query) tuple.
// It is persisted as a four element JSON array.
type AutotagRule struct {
	Property RuleProperty
	Operator RuleOperator
	Case     RuleCase
	Query    string
}

// IsValid reports whether every enum field is known and the query is non-empty.
func (r AutotagRule) IsValid() bool {
	return r.Property.IsValid() && r.Operator.IsValid() && r.Case.IsValid() && r.Query != ""
}

func (r AutotagRule) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]string{string(r.Property), string(r.Operator), string(r.Case), r.Query})
}

func (r *AutotagRule) UnmarshalJSON(data []byte) error {
	var fields []string
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("autotag rule: %w", err)
	}
	if len(fields) != 4 {
		return fmt.Errorf("autotag rule: expected 4 fields, got %d", len(fields))
	}
	*r = AutotagRule{
		Property: RuleProperty(fields[0]),
		Operator: RuleOperator(fields[1]),
		Case:     RuleCase(fields[2]),
		Query:    fields[3],
	}
	return nil
}

// MarshalYAML keeps the tuple shape in exported configs.
func (r AutotagRule) MarshalYAML() (any, error) {
	return []string{string(r.Property), string(r.Operator), string(r.Case), r.Query}, nil
}

// sanitizeRules drops invalid rules. A nil input yields an empty slice.
func sanitizeRules(rules []AutotagRule) []AutotagRule {
	result := make([]AutotagRule, 0, len(rules))
	for _, rule := range rules {
		rule.Property = RuleProperty(strings.ToLower(strings.TrimSpace(string(rule.Property))))
		rule.Operator = RuleOperator(strings.ToLower(strings.TrimSpace(string(rule.Operator))))
		rule.Case = RuleCase(strings.ToLower(strings.TrimSpace(string(rule.Case))))
		if !rule.IsValid() {
			continue
		}
		result = append(result, rule)
	}
	return result
}

// decodeRules accepts the loose shapes rules arrive in from JSON documents,
// API payloads and already-typed records.
func decodeRules(raw any) []AutotagRule {
	switch v := raw.(type) {
	case nil:
		return []AutotagRule{}
	case []AutotagRule:
		return sanitizeRules(v)
	case [][]string:
		rules := make([]AutotagRule, 0, len(v))
		for _, fields := range v {
			if rule, ok := ruleFromStrings(fields); ok {
				rules = append(rules, rule)
			}
		}
		return sanitizeRules(rules)
	case []any:
		rules := make([]AutotagRule, 0, len(v))
		for _, entry := range v {
			if rule, ok := ruleFromAny(entry); ok {
				rules = append(rules, rule)
			}
		}
		return sanitizeRules(rules)
	}
	return []AutotagRule{}
}

func ruleFromAny(entry any) (AutotagRule, bool) {
	switch e := entry.(type) {
	case AutotagRule:
		return e, true
	case []string:
		return ruleFromStrings(e)
	case []any:
		fields := make([]string, 0, len(e))
		for _, f := range e {
			s, ok := f.(string)
			if !ok {
				return AutotagRule{}, false
			}
			fields = append(fields, s)
		}
		return ruleFromStrings(fields)
	case map[string]any:
		get := func(key string) string {
			s, _ := e[key].(string)
			return s
		}
		return AutotagRule{
			Property: RuleProperty(get("property")),
			Operator: RuleOperator(get("operator")),
			Case:     RuleCase(get("case")),
			Query:    get("query"),
		}, true
	}
	return AutotagRule{}, false
}

func ruleFromStrings(fields []string) (AutotagRule, bool) {
	if len(fields) != 4 {
		return AutotagRule{}, false
	}
	return AutotagRule{
		Property: RuleProperty(fields[0]),
		Operator: RuleOperator(fields[1]),
		Case:     RuleCase(fields[2]),
		Query:    fields[3],
	}, true
}
