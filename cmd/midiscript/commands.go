/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"midiscript/internal/backend"
	"midiscript/internal/config"
	"midiscript/internal/export"
	applog "midiscript/internal/log"
	"midiscript/internal/notes"
	"midiscript/internal/script"
	"midiscript/internal/session"
	"midiscript/internal/source"
	"midiscript/internal/storage"
	"midiscript/internal/version"
)

// loadTimeline decodes the script at path and parses it on top of the configured session defaults.
func (a *app) loadTimeline(ctx context.Context, path string) (*script.Timeline, source.Source, error) {
	src, err := source.Load(path, a.cfg.Source.Encoding)
	if err != nil {
		return nil, source.Source{}, err
	}
	defaults, err := a.cfg.SessionDefaults()
	if err != nil {
		return nil, src, err
	}
	tl, err := script.Parse(ctx, src.Text, defaults)
	if err != nil {
		return nil, src, fmt.Errorf("%s: %w", path, err)
	}
	applog.WithOperation(applog.WithComponent("cli"), "parse").Debug("parsed",
		slog.String("path", path), slog.String("encoding", src.Encoding),
		slog.Int("paragraphs", len(tl.Paragraphs)), slog.Int("patterns", len(tl.Patterns)))
	return tl, src, nil
}

func (a *app) parseCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse <script>",
		Short: "Parse a script and print its paragraphs and patterns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tl, _, err := a.loadTimeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := export.MarshalTimeline(tl)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			return printSummary(out, tl)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the timeline as JSON")
	return cmd
}

func printSummary(w io.Writer, tl *script.Timeline) error {
	span := "-"
	if r, ok := tl.Span(); ok {
		span = r.String()
	}
	if _, err := fmt.Fprintf(w, "Paragraphs: %d\nPatterns: %d\nSpan: %s\n", len(tl.Paragraphs), len(tl.Patterns), span); err != nil {
		return err
	}
	for i, p := range tl.Paragraphs {
		first, _, _ := strings.Cut(p.Text, "\n")
		if _, err := fmt.Fprintf(w, "  %3d  %-14s line %-4d %s\n", i+1, p.Range, p.Line, first); err != nil {
			return err
		}
	}
	for i, p := range tl.Patterns {
		if _, err := fmt.Fprintf(w, "  P%-2d  %-14s disp %-14s %s\n", i+1, p.Range, p.DispRange, strings.Join(p.Channels.Names(), ",")); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a parsed timeline",
	}

	jsonCmd := &cobra.Command{
		Use:   "json <script> <out>",
		Short: "Write the timeline as schema-checked JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tl, _, err := a.loadTimeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := export.WriteTimelineJSON(tl, args[1]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[1])
			return err
		},
	}

	var cue export.CueSheetOptions
	pdfCmd := &cobra.Command{
		Use:   "pdf <script> <out>",
		Short: "Write a printable cue sheet",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tl, _, err := a.loadTimeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := export.ExportCueSheetPDF(tl, args[1], cue); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", args[1])
			return err
		},
	}
	addCueFlags(pdfCmd, &cue)

	var (
		preset  string
		formats []string
		name    string
		bcue    export.CueSheetOptions
	)
	batchCmd := &cobra.Command{
		Use:   "batch <script> <outdir>",
		Short: "Export several formats using a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tl, _, err := a.loadTimeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			written, err := export.BatchExport(tl, export.BatchOptions{
				Preset:   export.PresetName(preset),
				Formats:  formats,
				OutDir:   args[1],
				BaseName: name,
				CueSheet: bcue,
			})
			for _, p := range written {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", p)
			}
			return err
		},
	}
	batchCmd.Flags().StringVar(&preset, "preset", string(export.PresetReview), "export preset: data or review")
	batchCmd.Flags().StringSliceVar(&formats, "formats", nil, "formats to write (json, pdf); default from preset")
	batchCmd.Flags().StringVar(&name, "name", "", "base file name (default: script name)")
	addCueFlags(batchCmd, &bcue)

	cmd.AddCommand(jsonCmd, pdfCmd, batchCmd)
	return cmd
}

func addCueFlags(cmd *cobra.Command, o *export.CueSheetOptions) {
	cmd.Flags().StringVar(&o.PageSize, "page-size", "A4", "page size")
	cmd.Flags().BoolVar(&o.Landscape, "landscape", false, "landscape orientation")
	cmd.Flags().BoolVar(&o.SkipPatterns, "skip-patterns", false, "leave out the pattern table")
	cmd.Flags().StringVar(&o.Author, "author", "", "author shown in the document properties")
}

// patternNotes is one materialized pattern as printed by the notes command.
type patternNotes struct {
	Index int `json:"index"`
	notes.Selection
	// DisplayPitch is the padded pitch range; nil for an empty selection.
	DisplayPitch *[2]float64 `json:"display_pitch,omitempty"`
}

func (a *app) notesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "notes <script> <midi>",
		Short: "Materialize every pattern of a script against a MIDI file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tl, _, err := a.loadTimeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := materialize(tl, args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			for _, r := range res {
				line := fmt.Sprintf("P%-2d %-14s %d notes", r.Index, r.Window, r.NoteCount)
				if r.DisplayPitch != nil {
					line += fmt.Sprintf(", pitch %d-%d, display %g-%g", r.PitchRange[0], r.PitchRange[1], r.DisplayPitch[0], r.DisplayPitch[1])
				}
				if _, err := fmt.Fprintln(out, line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print selections as JSON")
	return cmd
}

func materialize(tl *script.Timeline, midiPath string) ([]patternNotes, error) {
	clock, err := tl.Settings.Clock()
	if err != nil {
		return nil, err
	}
	song, err := notes.Load(midiPath, clock)
	if err != nil {
		return nil, err
	}
	clip, err := tl.Settings.Interval(session.KeyPitchClipRange)
	if err != nil {
		return nil, err
	}
	expand, err := tl.Settings.Interval(session.KeyExpandRange)
	if err != nil {
		return nil, err
	}
	minHalf, err := tl.Settings.Interval(session.KeyMinPitchRange)
	if err != nil {
		return nil, err
	}
	res := make([]patternNotes, 0, len(tl.Patterns))
	for i, p := range tl.Patterns {
		sel, err := song.Select(p, clip)
		if err != nil {
			return nil, fmt.Errorf("pattern %d %s: %w", i+1, p.Range, err)
		}
		pn := patternNotes{Index: i + 1, Selection: sel}
		if sel.NoteCount > 0 {
			d := notes.DisplayPitchRange([2]float64{float64(sel.PitchRange[0]), float64(sel.PitchRange[1])}, expand, minHalf)
			pn.DisplayPitch = &d
		}
		res = append(res, pn)
	}
	return res, nil
}

func (a *app) indexCmd() *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "index <workspace>",
		Short: "Parse the workspace script, write its manifest and record a build in the local index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			open := storage.OpenWorkspace
			if create {
				open = storage.InitWorkspace
			}
			ws, err := open(args[0])
			if err != nil {
				return err
			}
			a.bindWorkspace(ws)
			ctx := applog.WithWorkspace(cmd.Context(), ws.Root)
			l := applog.WithOperation(applog.WithComponent("cli"), "index")

			tl, src, err := a.loadTimeline(ctx, ws.ScriptPath)
			if err != nil {
				return err
			}
			if err := storage.WriteManifest(ws, tl); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.cfg.Index.Disabled {
				l.InfoContext(ctx, "index disabled; manifest only")
				_, err := fmt.Fprintf(out, "Wrote %s\n", ws.ManifestPath)
				return err
			}

			rebuilt, err := storage.DetectAndRebuildIndex(ctx, ws.Root)
			if err != nil {
				return err
			}
			if rebuilt {
				l.WarnContext(ctx, "index was rebuilt")
			}
			db, err := storage.InitOrOpenIndex(ws.Root)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			now := time.Now()
			id, err := storage.RecordBuild(ctx, db, storage.Build{CreatedAt: now, ScriptPath: ws.ScriptPath, SHA256: src.SHA256, Timeline: tl})
			if err != nil {
				return err
			}
			saved, err := storage.SaveScriptRevision(ctx, db, src.Text, now)
			if err != nil {
				return err
			}
			if keep := a.cfg.Index.KeepRevisions; keep > 0 {
				if _, err := storage.PruneScriptRevisions(ctx, db, keep); err != nil {
					return err
				}
				if _, err := storage.PruneBuilds(ctx, db, keep); err != nil {
					return err
				}
			}
			l.InfoContext(ctx, "indexed", slog.Int64("build", id), slog.Bool("new_revision", saved))
			_, err = fmt.Fprintf(out, "Build %d: %d paragraphs, %d patterns\n", id, len(tl.Paragraphs), len(tl.Patterns))
			return err
		},
	}
	cmd.Flags().BoolVar(&create, "init", false, "create the workspace when missing")
	return cmd
}

func (a *app) searchCmd() *cobra.Command {
	var (
		buildID   int64
		from, to  float64
		limit     int
		published string
	)
	cmd := &cobra.Command{
		Use:   "search <workspace> [query...]",
		Short: "Full-text search over indexed paragraphs",
		Long: "Searches the paragraphs of the latest build (or --build) in the workspace index.\n" +
			"With --published NAME the first argument is part of the query and the Postgres backend is searched instead.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := storage.SearchQuery{BuildID: buildID, Limit: limit}
			fromSet, toSet := cmd.Flags().Changed("from"), cmd.Flags().Changed("to")
			if fromSet != toSet {
				return errors.New("--from and --to must be given together")
			}
			if fromSet {
				q.Within = &script.Range{from, to}
			}

			var results []storage.SearchResult
			if published != "" {
				q.Text = strings.Join(args, " ")
				err := a.withBackend(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
					var err error
					results, err = backend.SearchPG(ctx, db, published, q)
					return err
				})
				if err != nil {
					return err
				}
			} else {
				q.Text = strings.Join(args[1:], " ")
				ws, err := storage.OpenWorkspace(args[0])
				if err != nil {
					return err
				}
				a.bindWorkspace(ws)
				db, err := storage.InitOrOpenIndex(ws.Root)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				if results, err = storage.SearchParagraphs(applog.WithWorkspace(cmd.Context(), ws.Root), db, q); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				_, err := fmt.Fprintln(out, "No matches")
				return err
			}
			for _, r := range results {
				if _, err := fmt.Fprintf(out, "#%d %s line %d: %s\n", r.Ordinal+1, r.Range, r.Line, strings.ReplaceAll(r.Snippet, "\n", " ")); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&buildID, "build", 0, "build ID to search (default: latest)")
	cmd.Flags().Float64Var(&from, "from", 0, "only paragraphs overlapping [from, to] in bar-time")
	cmd.Flags().Float64Var(&to, "to", 0, "end of the bar-time filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	cmd.Flags().StringVar(&published, "published", "", "search a published timeline on the backend")
	return cmd
}

func (a *app) publishCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "publish <script>",
		Short: "Publish a parsed timeline to the Postgres backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tl, _, err := a.loadTimeline(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			var ver int64
			err = a.withBackend(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				var err error
				ver, err = backend.Publish(ctx, db, name, tl)
				return err
			})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Published %s version %d\n", name, ver)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "publication name (default: script name)")
	return cmd
}

// withBackend opens the Postgres backend under the configured timeout and runs fn.
func (a *app) withBackend(parent context.Context, fn func(context.Context, *sql.DB) error) error {
	dsn := a.dsn
	if dsn == "" {
		stored, err := a.cfg.BackendDSN()
		if err != nil {
			applog.WithComponent("cli").Warn("keyring unavailable", slog.Any("err", err))
		}
		dsn = stored
	}
	if dsn == "" {
		return errors.New("no backend DSN: set backend.dsn, MSV_BACKEND_DSN, --dsn or run 'midiscript dsn set'")
	}
	ctx, cancel := context.WithTimeout(parent, a.cfg.Backend.Timeout())
	defer cancel()
	db, err := backend.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(ctx, db)
}

func (a *app) dsnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dsn",
		Short: "Manage the backend DSN kept in the OS keyring",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <dsn>",
			Short: "Store the Postgres DSN in the OS keyring",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := config.StoreBackendDSN(args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Stored backend DSN")
				return err
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove the stored DSN",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := config.StoreBackendDSN(""); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Removed backend DSN")
				return err
			},
		},
	)
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "midiscript %s\n", version.String())
			return err
		},
	}
}
