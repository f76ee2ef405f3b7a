/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"midiscript/internal/script"
	"midiscript/internal/session"
	"midiscript/internal/timebar"
)

// CueSheetOptions controls the printable cue sheet.
// Units are millimetres. Built-in Helvetica is used so no font has to be embedded;
// text outside the cp1252 range is replaced.
type CueSheetOptions struct {
	PageSize     string // gofpdf size name; "A4" when empty
	Landscape    bool
	SkipPatterns bool
	Author       string
}

const (
	rowHeight  = 6.0
	textIndent = 1.5
)

// ExportCueSheetPDF writes a cue sheet for tl to outPath: one row per paragraph with its bar range,
// movie time and first text line, followed by one row per MIDI pattern.
func ExportCueSheetPDF(tl *script.Timeline, outPath string, opt CueSheetOptions) error {
	if tl == nil {
		return errors.New("timeline is nil")
	}
	if strings.TrimSpace(outPath) == "" {
		return errors.New("output path is required")
	}
	size := opt.PageSize
	if size == "" {
		size = "A4"
	}
	orient := "P"
	if opt.Landscape {
		orient = "L"
	}
	pdf := gofpdf.New(orient, "mm", size, "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	title := cueSheetTitle(tl.Settings)
	pdf.SetTitle(title, true)
	if opt.Author != "" {
		pdf.SetAuthor(opt.Author, true)
	}
	pdf.SetCreator("midiscript", true)
	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("%d / {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, tr(settingsLine(tl.Settings)), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	clock, clockErr := clockOf(tl.Settings)
	width, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := width - left - right

	cols := []float64{10, 30, 36, 14}
	cols = append(cols, usable-sum(cols))
	header(pdf, cols, []string{"#", "Bars", "Movie", "Line", "Text"})
	for i, p := range tl.Paragraphs {
		movie := "-"
		if clockErr == nil {
			movie = formatSeconds(clock.BarToMovie(p.Range.Start())) + " - " + formatSeconds(clock.BarToMovie(p.Range.End()))
		}
		row(pdf, tr, cols, []string{
			fmt.Sprintf("%d", i+1),
			p.Range.String(),
			movie,
			fmt.Sprintf("%d", p.Line),
			firstLine(p.Text),
		})
	}

	if !opt.SkipPatterns && len(tl.Patterns) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "MIDI patterns", "", 1, "L", false, 0, "")
		pcols := []float64{10, 30, 30, 26}
		pcols = append(pcols, usable-sum(pcols))
		header(pdf, pcols, []string{"#", "Window", "Display", "Clip", "Channels"})
		for i, mp := range tl.Patterns {
			clip := "global"
			if mp.PitchClipRange != nil {
				clip = mp.PitchClipRange.String()
			}
			row(pdf, tr, pcols, []string{
				fmt.Sprintf("%d", i+1),
				mp.Range.String(),
				mp.DispRange.String(),
				clip,
				channelsText(mp.Channels),
			})
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func header(pdf *gofpdf.Fpdf, cols []float64, names []string) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, n := range names {
		pdf.CellFormat(cols[i], rowHeight, n, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(rowHeight)
	pdf.SetFont("Helvetica", "", 9)
}

func row(pdf *gofpdf.Fpdf, tr func(string) string, cols []float64, cells []string) {
	for i, c := range cells {
		pdf.CellFormat(cols[i], rowHeight, fitText(pdf, tr(c), cols[i]-2*textIndent), "1", 0, "L", false, 0, "")
	}
	pdf.Ln(rowHeight)
}

// fitText shortens s until it fits into w, marking the cut with "...".
func fitText(pdf *gofpdf.Fpdf, s string, w float64) string {
	if pdf.GetStringWidth(s) <= w {
		return s
	}
	b := []byte(s)
	for len(b) > 0 && pdf.GetStringWidth(string(b)+"...") > w {
		b = b[:len(b)-1]
	}
	return string(b) + "..."
}

func sum(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}

func cueSheetTitle(s *session.Settings) string {
	if s != nil {
		if t := strings.TrimSpace(s.Text(session.KeyTitle)); t != "" {
			return t
		}
	}
	return "Cue sheet"
}

func settingsLine(s *session.Settings) string {
	if s == nil {
		return ""
	}
	parts := make([]string, 0, 5)
	for _, k := range []string{session.KeyStartBar, session.KeyInitBar, session.KeyBeginTime, session.KeyBeatsPerBar, session.KeyBeatsPerMinute} {
		if v, ok := s.Get(k); ok {
			parts = append(parts, k+"="+v.String())
		}
	}
	return strings.Join(parts, "  ")
}

func clockOf(s *session.Settings) (timebar.Clock, error) {
	if s == nil {
		return timebar.Clock{}, errors.New("no settings")
	}
	return s.Clock()
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(line)
}

func channelsText(c script.Channels) string {
	if c.IsAll() && len(c) == 1 {
		return script.AllTracks
	}
	parts := make([]string, 0, len(c))
	for _, name := range c.Names() {
		if disp := c[name]; disp != "" && disp != name {
			parts = append(parts, name+" as "+disp)
			continue
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}

// formatSeconds renders seconds as m:ss.ss.
func formatSeconds(sec float64) string {
	sign := ""
	if sec < 0 {
		sign = "-"
		sec = -sec
	}
	m := math.Floor(sec / 60)
	return fmt.Sprintf("%s%d:%05.2f", sign, int(m), sec-m*60)
}
