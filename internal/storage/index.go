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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "midiscript/internal/log"
	"midiscript/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName stores all per-workspace index data under the workspace root.
	IndexDirName  = ".msv"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema. Bump it together with a step in runMigrations.
	schemaVersion = 2
)

// IndexPath returns the full path to the workspace's embedded index database file.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures that the per-workspace SQLite index exists at .msv/index.sqlite,
// opens it in WAL mode and brings the schema up to date.
// The caller owns the returned *sql.DB.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("workspace root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create %s dir: %w", IndexDirName, err)
	}

	path := IndexPath(root)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}

	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Existing schema number is left for runMigrations.
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			// v2 added bar-range lookups and the revision hash.
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_paragraphs_bars ON paragraphs(build_id, start_bar, end_bar);`,
			}
			if !hasColumn(ctx, db, "script_revisions", "sha256") {
				stmts = append(stmts, `ALTER TABLE script_revisions ADD COLUMN sha256 TEXT NOT NULL DEFAULT '';`)
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		// best-effort
		_, _ = db.ExecContext(ctx, `INSERT INTO fts_paragraphs(fts_paragraphs) VALUES('optimize')`)
		cur = next
	}
	return nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) bool {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	return err == nil && n > 0
}

// ensureIndexSchema creates the build, paragraph, pattern and revision tables and the FTS index.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS builds (
			id          INTEGER PRIMARY KEY,
			ts          TEXT    NOT NULL,
			script_path TEXT    NOT NULL,
			sha256      TEXT    NOT NULL,
			timeline    TEXT    NOT NULL,
			paragraphs  INTEGER NOT NULL,
			patterns    INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_builds_ts ON builds(ts);`,

		`CREATE TABLE IF NOT EXISTS paragraphs (
			id        INTEGER PRIMARY KEY,
			build_id  INTEGER NOT NULL,
			ord       INTEGER NOT NULL,
			start_bar REAL    NOT NULL,
			end_bar   REAL    NOT NULL,
			line      INTEGER NOT NULL,
			text      TEXT    NOT NULL,
			FOREIGN KEY(build_id) REFERENCES builds(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_paragraphs_build ON paragraphs(build_id, ord);`,
		`CREATE INDEX IF NOT EXISTS idx_paragraphs_bars ON paragraphs(build_id, start_bar, end_bar);`,

		`CREATE TABLE IF NOT EXISTS patterns (
			id         INTEGER PRIMARY KEY,
			build_id   INTEGER NOT NULL,
			ord        INTEGER NOT NULL,
			start_bar  REAL    NOT NULL,
			end_bar    REAL    NOT NULL,
			disp_start REAL    NOT NULL,
			disp_end   REAL    NOT NULL,
			channels   TEXT    NOT NULL,
			FOREIGN KEY(build_id) REFERENCES builds(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_build ON patterns(build_id, ord);`,

		// External-content FTS5 index over paragraphs.text, kept in sync by triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_paragraphs USING fts5(
			text,
			content='paragraphs',
			content_rowid='id',
			tokenize = 'unicode61'
		);`,

		`CREATE TABLE IF NOT EXISTS script_revisions (
			id     INTEGER PRIMARY KEY,
			ts     TEXT    NOT NULL,
			sha256 TEXT    NOT NULL DEFAULT '',
			text   TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_script_revisions_ts ON script_revisions(ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS paragraphs_ai AFTER INSERT ON paragraphs BEGIN
			INSERT INTO fts_paragraphs(rowid, text) VALUES (new.id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS paragraphs_ad AFTER DELETE ON paragraphs BEGIN
			INSERT INTO fts_paragraphs(fts_paragraphs, rowid, text) VALUES ('delete', old.id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS paragraphs_au AFTER UPDATE OF text ON paragraphs BEGIN
			INSERT INTO fts_paragraphs(fts_paragraphs, rowid, text) VALUES ('delete', old.id, old.text);
			INSERT INTO fts_paragraphs(rowid, text) VALUES (new.id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks the index for corruption or a missing schema. A damaged file is
// copied to .msv/backups and replaced by an empty index. It reports whether a rebuild happened.
// Builds must be recorded again afterwards.
func DetectAndRebuildIndex(ctx context.Context, root string) (bool, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_check")
	path := IndexPath(root)
	db, err := InitOrOpenIndex(root)
	if err == nil {
		needs := false
		var chk string
		if qerr := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); qerr != nil || !strings.EqualFold(strings.TrimSpace(chk), "ok") {
			needs = true
		}
		if !needs {
			if _, perr := db.ExecContext(ctx, `SELECT 1 FROM paragraphs LIMIT 1;`); perr != nil {
				needs = true
			}
		}
		_ = db.Close()
		if !needs {
			return false, nil
		}
	}
	l.Warn("rebuilding index", slog.String("path", path), slog.Any("open_err", err))
	backupIndexFile(path)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
	fresh, ferr := InitOrOpenIndex(root)
	if ferr != nil {
		return false, fmt.Errorf("rebuild index: %w", ferr)
	}
	_ = fresh.Close()
	return true, nil
}

// backupIndexFile copies the current index file into a timestamped backup in .msv/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}
