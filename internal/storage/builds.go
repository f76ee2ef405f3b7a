/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"midiscript/internal/script"
)

// ErrNoBuild is returned by LatestBuild when nothing has been recorded yet.
var ErrNoBuild = errors.New("no build recorded")

// Build is one recorded parse of a workspace script.
type Build struct {
	ID         int64
	CreatedAt  time.Time
	ScriptPath string
	SHA256     string
	Timeline   *script.Timeline
}

// BuildInfo summarises a build without its timeline.
type BuildInfo struct {
	ID         int64
	CreatedAt  time.Time
	ScriptPath string
	SHA256     string
	Paragraphs int
	Patterns   int
}

// language=SQL
// dialect=SQLite
const insertBuildSQL = `INSERT INTO builds(ts, script_path, sha256, timeline, paragraphs, patterns) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const insertParagraphSQL = `INSERT INTO paragraphs(build_id, ord, start_bar, end_bar, line, text) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const insertPatternSQL = `INSERT INTO patterns(build_id, ord, start_bar, end_bar, disp_start, disp_end, channels) VALUES (?, ?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestBuildSQL = `SELECT id, ts, script_path, sha256, timeline FROM builds ORDER BY id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listBuildsSQL = `SELECT id, ts, script_path, sha256, paragraphs, patterns FROM builds ORDER BY id DESC LIMIT ?`

// RecordBuild stores b with its paragraphs and patterns in one transaction and returns the new build ID.
// A zero CreatedAt is replaced by the current time.
func RecordBuild(ctx context.Context, db *sql.DB, b Build) (int64, error) {
	if db == nil {
		return 0, errors.New("nil DB")
	}
	if b.Timeline == nil {
		return 0, errors.New("build has no timeline")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	data, err := json.Marshal(b.Timeline)
	if err != nil {
		return 0, fmt.Errorf("marshal timeline: %w", err)
	}
	tl := b.Timeline

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	res, err := tx.ExecContext(ctx, insertBuildSQL, b.CreatedAt.UTC().Format(tsLayout), b.ScriptPath, b.SHA256, string(data), len(tl.Paragraphs), len(tl.Patterns))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert build: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("build id: %w", err)
	}
	for i, p := range tl.Paragraphs {
		if _, err := tx.ExecContext(ctx, insertParagraphSQL, id, i, p.Range.Start(), p.Range.End(), p.Line, p.Text); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert paragraph %d: %w", i, err)
		}
	}
	for i, p := range tl.Patterns {
		if _, err := tx.ExecContext(ctx, insertPatternSQL, id, i, p.Range.Start(), p.Range.End(), p.DispRange.Start(), p.DispRange.End(), p.Channels.Key()); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert pattern %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// LatestBuild returns the most recently recorded build, or ErrNoBuild.
func LatestBuild(ctx context.Context, db *sql.DB) (*Build, error) {
	if db == nil {
		return nil, errors.New("nil DB")
	}
	var (
		b     Build
		tsStr string
		data  string
	)
	err := db.QueryRowContext(ctx, selectLatestBuildSQL).Scan(&b.ID, &tsStr, &b.ScriptPath, &b.SHA256, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBuild
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt, _ = time.Parse(tsLayout, tsStr)
	var tl script.Timeline
	if err := json.Unmarshal([]byte(data), &tl); err != nil {
		return nil, fmt.Errorf("decode build %d: %w", b.ID, err)
	}
	b.Timeline = &tl
	return &b, nil
}

// ListBuilds returns up to limit builds, newest first.
func ListBuilds(ctx context.Context, db *sql.DB, limit int) ([]BuildInfo, error) {
	if db == nil {
		return nil, errors.New("nil DB")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, listBuildsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []BuildInfo
	for rows.Next() {
		var bi BuildInfo
		var tsStr string
		if err := rows.Scan(&bi.ID, &tsStr, &bi.ScriptPath, &bi.SHA256, &bi.Paragraphs, &bi.Patterns); err != nil {
			return nil, err
		}
		bi.CreatedAt, _ = time.Parse(tsLayout, tsStr)
		out = append(out, bi)
	}
	return out, rows.Err()
}

// PruneBuilds keeps the keepLast newest builds and deletes the rest with their rows.
func PruneBuilds(ctx context.Context, db *sql.DB, keepLast int) (int64, error) {
	if db == nil {
		return 0, errors.New("nil DB")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	const keep = `SELECT id FROM builds ORDER BY id DESC LIMIT ?`
	for _, q := range []string{
		`DELETE FROM paragraphs WHERE build_id NOT IN (` + keep + `)`,
		`DELETE FROM patterns WHERE build_id NOT IN (` + keep + `)`,
	} {
		if _, err := tx.ExecContext(ctx, q, keepLast); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("prune rows: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM builds WHERE id NOT IN (`+keep+`)`, keepLast)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune builds: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}
