// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dbinterface

import (
	"context"
	"fmt"
	"strings"
)

// SQLite has SQLITE_MAX_VARIABLE_NUMBER limit (default 999), stay below it.
const maxParams = 900

// InternStrings stores values in string_pool and returns value -> id.
// Empty values are rejected. Duplicates are collapsed.
func InternStrings(ctx context.Context, tx TxQuerier, values ...string) (map[string]int64, error) {
	unique := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for i, v := range values {
		if v == "" {
			return nil, fmt.Errorf("value at index %d is empty", i)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}

	if len(unique) == 0 {
		return map[string]int64{}, nil
	}

	for _, chunk := range chunkStrings(unique, maxParams) {
		query := "INSERT OR IGNORE INTO string_pool (value) VALUES " + placeholders("(?)", len(chunk))
		if _, err := tx.ExecContext(ctx, query, toArgs(chunk)...); err != nil {
			return nil, fmt.Errorf("failed to batch insert strings: %w", err)
		}
	}

	ids := make(map[string]int64, len(unique))
	for _, chunk := range chunkStrings(unique, maxParams) {
		query := "SELECT id, value FROM string_pool WHERE value IN (" + placeholders("?", len(chunk)) + ")"
		rows, err := tx.QueryContext(ctx, query, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("failed to query string pool: %w", err)
		}
		for rows.Next() {
			var id int64
			var value string
			if err := rows.Scan(&id, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan string pool row: %w", err)
			}
			ids[value] = id
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating string pool rows: %w", err)
		}
		rows.Close()
	}

	for _, v := range unique {
		if _, ok := ids[v]; !ok {
			return nil, fmt.Errorf("failed to get ID for interned string %q", v)
		}
	}
	return ids, nil
}

// PruneStrings removes pool entries no longer referenced by the given column.
func PruneStrings(ctx context.Context, tx TxQuerier, table, column string) error {
	query := fmt.Sprintf("DELETE FROM string_pool WHERE id NOT IN (SELECT %s FROM %s)", column, table)
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to prune string pool: %w", err)
	}
	return nil
}

func placeholders(unit string, n int) string {
	var sb strings.Builder
	sb.Grow(n * (len(unit) + 1))
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(unit)
	}
	return sb.String()
}

func chunkStrings(values []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(values); i += size {
		end := min(i+size, len(values))
		chunks = append(chunks, values[i:end])
	}
	return chunks
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
