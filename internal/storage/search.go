/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"midiscript/internal/script"
)

// SearchQuery describes a paragraph search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT); empty Text lists paragraphs.
// BuildID 0 searches the latest build. Within, when set, keeps paragraphs overlapping that bar range.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text    string
	BuildID int64
	Within  *script.Range
	Limit   int
	Offset  int
}

// SearchResult is one matching paragraph.
// Snippet marks matched terms with [ ] when Text is set, otherwise it holds the full text.
type SearchResult struct {
	BuildID int64
	Ordinal int
	Range   script.Range
	Line    int
	Snippet string
}

// SearchParagraphs runs q against the index.
func SearchParagraphs(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	if db == nil {
		return nil, errors.New("nil DB")
	}
	var args []any
	var sb strings.Builder
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		sb.WriteString("SELECT p.build_id, p.ord, p.start_bar, p.end_bar, p.line, snippet(fts_paragraphs, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_paragraphs JOIN paragraphs p ON fts_paragraphs.rowid = p.id\n")
		sb.WriteString("WHERE fts_paragraphs MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT p.build_id, p.ord, p.start_bar, p.end_bar, p.line, p.text\n")
		sb.WriteString("FROM paragraphs p\nWHERE 1=1\n")
	}
	if q.BuildID > 0 {
		sb.WriteString(" AND p.build_id = ?\n")
		args = append(args, q.BuildID)
	} else {
		sb.WriteString(" AND p.build_id = (SELECT MAX(id) FROM builds)\n")
	}
	if q.Within != nil {
		sb.WriteString(" AND p.end_bar > ? AND p.start_bar < ?\n")
		args = append(args, q.Within.Start(), q.Within.End())
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	sb.WriteString("ORDER BY p.build_id, p.ord\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var start, end float64
		var sn sql.NullString
		if err := rows.Scan(&r.BuildID, &r.Ordinal, &start, &end, &r.Line, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Range = script.Range{start, end}
		if sn.Valid {
			r.Snippet = sn.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
