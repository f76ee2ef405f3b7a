/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

// tsLayout is fixed width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Revision is one saved copy of the script text.
type Revision struct {
	ID     int64
	TS     time.Time
	SHA256 string
	Text   string
}

// language=SQL
// dialect=SQLite
const insertScriptRevisionSQL = `INSERT INTO script_revisions(ts, sha256, text) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestScriptRevisionSQL = `SELECT id, ts, sha256, text FROM script_revisions ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listScriptRevisionsSQL = `SELECT id, ts, sha256, text FROM script_revisions ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldScriptRevisionsSQL = `DELETE FROM script_revisions WHERE id NOT IN (
	SELECT id FROM script_revisions ORDER BY ts DESC, id DESC LIMIT ?
)`

// SaveScriptRevision stores text with a timestamp unless it is identical to the latest revision.
// It reports whether a row was written.
func SaveScriptRevision(ctx context.Context, db *sql.DB, text string, ts time.Time) (bool, error) {
	if db == nil {
		return false, errors.New("nil DB")
	}
	sum := sha256.Sum256([]byte(text))
	digest := hex.EncodeToString(sum[:])
	latest, ok, err := LatestScriptRevision(ctx, db)
	if err != nil {
		return false, err
	}
	if ok && latest.SHA256 == digest {
		return false, nil
	}
	if _, err := db.ExecContext(ctx, insertScriptRevisionSQL, ts.UTC().Format(tsLayout), digest, text); err != nil {
		return false, err
	}
	return true, nil
}

// LatestScriptRevision returns the newest revision and false when there is none.
func LatestScriptRevision(ctx context.Context, db *sql.DB) (Revision, bool, error) {
	if db == nil {
		return Revision{}, false, errors.New("nil DB")
	}
	var r Revision
	var tsStr string
	err := db.QueryRowContext(ctx, selectLatestScriptRevisionSQL).Scan(&r.ID, &tsStr, &r.SHA256, &r.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, false, nil
	}
	if err != nil {
		return Revision{}, false, err
	}
	r.TS, _ = time.Parse(tsLayout, tsStr)
	return r, true, nil
}

// ListScriptRevisions returns up to limit most recent revisions.
func ListScriptRevisions(ctx context.Context, db *sql.DB, limit int) ([]Revision, error) {
	if db == nil {
		return nil, errors.New("nil DB")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, listScriptRevisionsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		var r Revision
		var tsStr string
		if err := rows.Scan(&r.ID, &tsStr, &r.SHA256, &r.Text); err != nil {
			return nil, err
		}
		r.TS, _ = time.Parse(tsLayout, tsStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneScriptRevisions keeps at most keepLast revisions and deletes older ones.
func PruneScriptRevisions(ctx context.Context, db *sql.DB, keepLast int) (int64, error) {
	if db == nil {
		return 0, errors.New("nil DB")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	res, err := db.ExecContext(ctx, pruneOldScriptRevisionsSQL, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
