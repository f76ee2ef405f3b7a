/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	applog "midiscript/internal/log"
	"midiscript/internal/script"
)

// ErrNotPublished is returned by Latest for an unknown timeline name.
var ErrNotPublished = errors.New("timeline not published")

// Publication is one published version of a named timeline.
type Publication struct {
	Name      string
	Version   int64
	SHA256    string
	CreatedAt time.Time
	Document  []byte
}

// Timeline decodes the published document.
func (p Publication) Timeline() (*script.Timeline, error) {
	var tl script.Timeline
	if err := json.Unmarshal(p.Document, &tl); err != nil {
		return nil, fmt.Errorf("decode %s v%d: %w", p.Name, p.Version, err)
	}
	return &tl, nil
}

// Publish stores tl under name as a new version together with its paragraphs and returns the version number.
func Publish(ctx context.Context, db *sql.DB, name string, tl *script.Timeline) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("publication name is required")
	}
	if tl == nil {
		return 0, errors.New("timeline is nil")
	}
	doc, err := json.Marshal(tl)
	if err != nil {
		return 0, fmt.Errorf("marshal timeline: %w", err)
	}
	sum := sha256.Sum256(doc)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	var timelineID, version int64
	err = tx.QueryRowContext(ctx, `INSERT INTO timelines(name, version) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET version = timelines.version + 1, updated_at = now()
		RETURNING id, version`, name).Scan(&timelineID, &version)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("bump version: %w", err)
	}
	var versionID int64
	err = tx.QueryRowContext(ctx, `INSERT INTO timeline_versions(timeline_id, version, sha256, document) VALUES ($1, $2, $3, $4) RETURNING id`,
		timelineID, version, hex.EncodeToString(sum[:]), string(doc)).Scan(&versionID)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert version: %w", err)
	}
	for i, p := range tl.Paragraphs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO published_paragraphs(version_id, ord, start_bar, end_bar, line, raw_text) VALUES ($1, $2, $3, $4, $5, $6)`,
			versionID, i, p.Range.Start(), p.Range.End(), p.Line, p.Text); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert paragraph %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	applog.WithOperation(applog.WithComponent("backend"), "publish").Info("timeline published",
		slog.String("name", name),
		slog.Int64("version", version),
		slog.Int("paragraphs", len(tl.Paragraphs)))
	return version, nil
}

// Latest returns the newest published version of name, or ErrNotPublished.
func Latest(ctx context.Context, db *sql.DB, name string) (Publication, error) {
	p := Publication{Name: strings.TrimSpace(name)}
	var doc string
	err := db.QueryRowContext(ctx, `SELECT v.version, v.sha256, v.document::text, v.created_at
		FROM timeline_versions v JOIN timelines t ON t.id = v.timeline_id
		WHERE t.name = $1 ORDER BY v.version DESC LIMIT 1`, p.Name).Scan(&p.Version, &p.SHA256, &doc, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Publication{}, fmt.Errorf("%s: %w", p.Name, ErrNotPublished)
	}
	if err != nil {
		return Publication{}, err
	}
	p.Document = []byte(doc)
	return p, nil
}
