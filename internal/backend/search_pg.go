/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"midiscript/internal/script"
	"midiscript/internal/storage"
)

// SearchPG searches the paragraphs of a published timeline using tsvector and returns results
// shaped like storage.SearchResult so both indexes can be compared.
// q.BuildID selects a published version; 0 means the latest one.
func SearchPG(ctx context.Context, db *sql.DB, name string, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		tq := "plainto_tsquery('simple', " + place(q.Text) + ")"
		b.WriteString("SELECT v.version, p.ord, p.start_bar, p.end_bar, p.line, ")
		b.WriteString("COALESCE(ts_headline('simple', p.raw_text, " + tq + ", 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12'), '') ")
		b.WriteString("FROM published_paragraphs p JOIN timeline_versions v ON v.id = p.version_id JOIN timelines t ON t.id = v.timeline_id ")
		b.WriteString("WHERE p.search_vector @@ " + tq + " ")
	} else {
		b.WriteString("SELECT v.version, p.ord, p.start_bar, p.end_bar, p.line, p.raw_text ")
		b.WriteString("FROM published_paragraphs p JOIN timeline_versions v ON v.id = p.version_id JOIN timelines t ON t.id = v.timeline_id ")
		b.WriteString("WHERE TRUE ")
	}
	b.WriteString(" AND t.name = " + place(strings.TrimSpace(name)) + " ")
	if q.BuildID > 0 {
		b.WriteString(" AND v.version = " + place(q.BuildID) + " ")
	} else {
		b.WriteString(" AND v.version = t.version ")
	}
	if q.Within != nil {
		b.WriteString(" AND p.end_bar > " + place(q.Within.Start()) + " AND p.start_bar < " + place(q.Within.End()) + " ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY v.version, p.ord ")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		var start, end float64
		if err := rows.Scan(&r.BuildID, &r.Ordinal, &start, &end, &r.Line, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Range = script.Range{start, end}
		out = append(out, r)
	}
	return out, rows.Err()
}
