/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"context"
	"errors"
	"strings"
	"testing"

	"midiscript/internal/session"
)

const scenario = "---\n" +
	"StartBar: 5\n" +
	"InitBar: 1\n" +
	"Title: ''\n" +
	"---\n" +
	"# `6,10` `vln:Violin I`\n" +
	"Hello\n" +
	"# `+2` `keep`\n" +
	"World\n"

func mustParse(t *testing.T, input string) *Timeline {
	t.Helper()
	tl, err := Parse(context.Background(), input, nil)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return tl
}

func TestParseScenario(t *testing.T) {
	tl := mustParse(t, scenario)
	if len(tl.Paragraphs) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d", len(tl.Paragraphs))
	}
	if tl.Paragraphs[0].Range != (Range{2, 6}) || tl.Paragraphs[0].Text != "Hello" {
		t.Fatalf("unexpected first paragraph: %+v", tl.Paragraphs[0])
	}
	if tl.Paragraphs[1].Range != (Range{6, 8}) || tl.Paragraphs[1].Text != "World" {
		t.Fatalf("unexpected second paragraph: %+v", tl.Paragraphs[1])
	}
	if len(tl.Patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d: %+v", len(tl.Patterns), tl.Patterns)
	}
	mp := tl.Patterns[0]
	if mp.Range != (Range{2, 6}) {
		t.Fatalf("pattern range = %v", mp.Range)
	}
	if len(mp.Channels) != 1 || mp.Channels["vln"] != "Violin I" {
		t.Fatalf("pattern channels = %v", mp.Channels)
	}
	if mp.DispRange != (Range{2, 8}) {
		t.Fatalf("pattern disp range = %v, want [2, 8]", mp.DispRange)
	}
	if bt, _ := tl.Settings.Number(session.KeyBeginTime); bt != 0 {
		t.Fatalf("empty title must collapse BeginTime, got %v", bt)
	}
}

func TestAbsoluteOffset(t *testing.T) {
	tl := mustParse(t, "---\nStartBar: 5\nInitBar: 1\n---\n# `6,10`\ntext\n")
	if got := tl.Paragraphs[0].Range; got != (Range{2, 6}) {
		t.Fatalf("range = %v, want [2, 6]", got)
	}
	tl = mustParse(t, "---\nStartBar: 5\nInitBar: 1\n---\n# `6.5 ~ 10.25`\n")
	if got := tl.Paragraphs[0].Range; got != (Range{2.5, 6.25}) {
		t.Fatalf("tilde range = %v, want [2.5, 6.25]", got)
	}
}

func TestRelativeChaining(t *testing.T) {
	tl := mustParse(t, "# `6,10`\na\n# `+4`\nb\n# `+ 0.5`\nc\n")
	want := []Range{{2, 6}, {6, 10}, {10, 10.5}}
	for i, w := range want {
		if tl.Paragraphs[i].Range != w {
			t.Fatalf("paragraph %d range = %v, want %v", i, tl.Paragraphs[i].Range, w)
		}
	}
	if len(tl.Patterns) != 0 {
		t.Fatalf("text-only blocks must not create patterns: %+v", tl.Patterns)
	}
}

func TestRelativeFirstBlockStartsAtZero(t *testing.T) {
	tl := mustParse(t, "# `+3`\nintro\n")
	if got := tl.Paragraphs[0].Range; got != (Range{0, 3}) {
		t.Fatalf("range = %v, want [0, 3]", got)
	}
}

func TestDedupConsecutiveBlocks(t *testing.T) {
	tl := mustParse(t, "# `6,10` `vln; vc` `6,10`\na\n# `10,12` `vc, vln` `6,10`\nb\n")
	if len(tl.Patterns) != 1 {
		t.Fatalf("expected one pattern, got %d", len(tl.Patterns))
	}
	if got := tl.Patterns[0].DispRange; got != (Range{2, 8}) {
		t.Fatalf("disp range = %v, want [2, 8]", got)
	}
	// The paragraph range is an independent copy.
	if tl.Paragraphs[0].Range != (Range{2, 6}) {
		t.Fatalf("paragraph range mutated: %v", tl.Paragraphs[0].Range)
	}
}

func TestDistinctWindowsCreatePatterns(t *testing.T) {
	tl := mustParse(t, "# `6,10` `vln`\na\n# `+4` `vln`\nb\n")
	if len(tl.Patterns) != 2 {
		t.Fatalf("expected two patterns, got %d", len(tl.Patterns))
	}
	if tl.Patterns[1].Range != (Range{6, 10}) || tl.Patterns[1].DispRange != (Range{6, 10}) {
		t.Fatalf("unexpected second pattern: %+v", tl.Patterns[1])
	}
}

// A key revisited after another window was created widens the latest pattern,
// not the one that carries the key.
func TestNonContiguousRepeatWidensLatestPattern(t *testing.T) {
	tl := mustParse(t, "# `6,10` `vln`\na\n# `10,14` `vc`\nb\n# `6,10` `vln`\nc\n")
	if len(tl.Patterns) != 2 {
		t.Fatalf("expected two patterns, got %d", len(tl.Patterns))
	}
	if got := tl.Patterns[0].DispRange; got != (Range{2, 6}) {
		t.Fatalf("first pattern disp = %v, want [2, 6]", got)
	}
	if got := tl.Patterns[1].DispRange; got != (Range{2, 10}) {
		t.Fatalf("latest pattern disp = %v, want [2, 10]", got)
	}
}

func TestChannelGrammar(t *testing.T) {
	tl := mustParse(t, "# `6,10` `vln:Violin I; vc`\n")
	ch := tl.Patterns[0].Channels
	if len(ch) != 2 || ch["vln"] != "Violin I" || ch["vc"] != "vc" {
		t.Fatalf("channels = %v", ch)
	}
	tl = mustParse(t, "# `6,10` ` a : Alpha ,b;; `\n")
	ch = tl.Patterns[0].Channels
	if len(ch) != 2 || ch["a"] != "Alpha" || ch["b"] != "b" {
		t.Fatalf("channels = %v", ch)
	}
}

func TestAllSentinel(t *testing.T) {
	tl := mustParse(t, "---\ntracks: ['vln', 'vc']\n---\n# `6,10` `ALL`\n")
	ch := tl.Patterns[0].Channels
	if !ch.IsAll() || len(ch) != 1 || ch[AllTracks] != "" {
		t.Fatalf("channels = %v, want all sentinel", ch)
	}
}

func TestKeepReusesPreviousWindowAndChannels(t *testing.T) {
	tl := mustParse(t, "# `6,10` `vln` `5,12`\na\n# `+2` `same` `keep`\nb\n# `+2` `vc` `same`\nc\n")
	if len(tl.Patterns) != 2 {
		t.Fatalf("expected two patterns, got %+v", tl.Patterns)
	}
	if tl.Patterns[0].Range != (Range{1, 8}) || tl.Patterns[0].DispRange != (Range{2, 8}) {
		t.Fatalf("unexpected first pattern: %+v", tl.Patterns[0])
	}
	if tl.Patterns[1].Range != (Range{1, 8}) || tl.Patterns[1].Channels["vc"] != "vc" {
		t.Fatalf("unexpected second pattern: %+v", tl.Patterns[1])
	}
}

func TestKeepOnFirstBlockUsesEmptyPredecessor(t *testing.T) {
	tl := mustParse(t, "# `6,10` `keep`\na\n")
	if len(tl.Patterns) != 1 || len(tl.Patterns[0].Channels) != 0 || tl.Patterns[0].Range != (Range{2, 6}) {
		t.Fatalf("unexpected pattern: %+v", tl.Patterns)
	}
	tl = mustParse(t, "# `6,10` `vln` `keep`\na\n")
	if tl.Patterns[0].Range != (Range{}) {
		t.Fatalf("window = %v, want zero window", tl.Patterns[0].Range)
	}
}

func TestKeepWithoutPredecessorFails(t *testing.T) {
	_, err := Parse(context.Background(), "# `6,10`\na\n# `+2` `keep`\nb\n", nil)
	var pe *PredecessorError
	if !errors.As(err, &pe) || pe.Block != 2 {
		t.Fatalf("expected PredecessorError on block 2, got %v", err)
	}
}

func TestExtraControls(t *testing.T) {
	tl := mustParse(t, "# `6,10` `vln` `! pitch_clip_range = [40, 80] !velocity_scale=0.5`\n")
	mp := tl.Patterns[0]
	if mp.Range != (Range{2, 6}) {
		t.Fatalf("window = %v, want paragraph range", mp.Range)
	}
	if mp.PitchClipRange == nil || *mp.PitchClipRange != (Range{40, 80}) {
		t.Fatalf("pitch clip = %v", mp.PitchClipRange)
	}
	if v, ok := mp.Extra["velocity_scale"]; !ok || !v.Equal(session.Float(0.5)) {
		t.Fatalf("extra = %v", mp.Extra)
	}
	if _, ok := mp.Extra[session.KeyPitchClipRange]; ok {
		t.Fatalf("pitch_clip_range must not be duplicated into extra")
	}

	tl = mustParse(t, "# `6,10` `vln` `7,9` `ignored` `!pitch_clip_range=None`\n")
	mp = tl.Patterns[0]
	if mp.Range != (Range{3, 5}) || mp.PitchClipRange != nil || mp.Extra != nil {
		t.Fatalf("unexpected pattern: %+v", mp)
	}
}

func TestTokenErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		token int
	}{
		{"no pair", "# `six,ten` `vln`\n", 0},
		{"inverted", "# `10,6`\n", 0},
		{"relative without number", "# `+`\n", 0},
		{"bad channel item", "# `6,10` `vln:`\n", 1},
		{"empty selection", "# `6,10` ` ; `\n", 1},
		{"bad window", "# `6,10` `vln` `later`\n", 2},
		{"extra without value", "# `6,10` `vln` `!oops`\n", 2},
		{"bad pitch clip", "# `6,10` `vln` `!pitch_clip_range=[1]`\n", 2},
		{"bad literal", "# `6,10` `vln` `!x={a: 1}`\n", 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tl, err := Parse(context.Background(), c.input, nil)
			if tl != nil {
				t.Fatalf("partial timeline returned")
			}
			var te *TokenError
			if !errors.As(err, &te) {
				t.Fatalf("expected TokenError, got %v", err)
			}
			if te.Block != 1 || te.Line != 1 || te.Token != c.token {
				t.Fatalf("unexpected error position: %+v", te)
			}
		})
	}
}

func TestMissingTimeRange(t *testing.T) {
	_, err := Parse(context.Background(), "# `6,10`\na\n\n# heading without tokens\nb\n", nil)
	var me *MissingTimeRangeError
	if !errors.As(err, &me) || me.Block != 2 || me.Line != 4 {
		t.Fatalf("expected MissingTimeRangeError for block 2 line 4, got %v", err)
	}
	if !strings.Contains(err.Error(), "block 2") {
		t.Fatalf("error should name the block: %v", err)
	}
}

func TestFrontMatter(t *testing.T) {
	input := "---\n" +
		"# a comment inside front matter\n" +
		"StartBar: 3\n" +
		"\n" +
		"Title: 'Opening'\n" +
		"Tempo: fast\n" +
		"pitch_clip_range: [21, 108]\n" +
		"---\n" +
		"// global comment\n" +
		"# `4,5`\n"
	tl := mustParse(t, input)
	if got := tl.Paragraphs[0].Range; got != (Range{2, 3}) {
		t.Fatalf("range = %v, want [2, 3]", got)
	}
	if tl.Settings.Text("Tempo") != "fast" || tl.Settings.Text(session.KeyTitle) != "Opening" {
		t.Fatalf("front matter values not stored: %v", tl.Settings.Keys())
	}
	if bt, _ := tl.Settings.Number(session.KeyBeginTime); bt != 1 {
		t.Fatalf("BeginTime = %v, want 1 with a title", bt)
	}
	if iv, _ := tl.Settings.Interval(session.KeyPitchClipRange); iv != [2]float64{21, 108} {
		t.Fatalf("pitch_clip_range = %v", iv)
	}
}

func TestFrontMatterErrors(t *testing.T) {
	for _, in := range []string{
		"---\nStartBar 5\n---\n",
		"---\nStartBar:\n---\n",
		"---\nStartBar: {a: 1}\n---\n",
		"---\nStartBar: 'five'\n---\n# `6,10`\n",
	} {
		_, err := Parse(context.Background(), in, nil)
		if err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
	_, err := Parse(context.Background(), "---\nTitle: {a: 1}\n---\n", nil)
	var fe *FrontMatterError
	if !errors.As(err, &fe) || fe.Line != 2 || !errors.Is(err, session.ErrInvalidLiteral) {
		t.Fatalf("expected FrontMatterError on line 2, got %v", err)
	}
}

func TestEmptyDocument(t *testing.T) {
	tl := mustParse(t, "---\nTitle: 'Only settings'\n---\n\n// nothing else\n")
	if len(tl.Paragraphs) != 0 || len(tl.Patterns) != 0 {
		t.Fatalf("expected empty timeline, got %+v", tl)
	}
}

func TestDefaultsAreNotModified(t *testing.T) {
	defaults := session.Defaults()
	defaults.Set(session.KeyTitle, session.String("x"))
	mustParseWith := func(in string) *Timeline {
		tl, err := Parse(context.Background(), in, defaults)
		if err != nil {
			t.Fatalf("Parse error: %v", err)
		}
		return tl
	}
	tl := mustParseWith("---\nStartBar: 1\nTitle: ''\n---\n# `1,2`\n")
	if tl.Paragraphs[0].Range != (Range{1, 2}) {
		t.Fatalf("range = %v", tl.Paragraphs[0].Range)
	}
	if sb, _ := defaults.Number(session.KeyStartBar); sb != 5 {
		t.Fatalf("defaults mutated: StartBar=%v", sb)
	}
	if defaults.Text(session.KeyTitle) != "x" {
		t.Fatalf("defaults mutated: Title=%q", defaults.Text(session.KeyTitle))
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Parse(ctx, scenario, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func testContext() context.Context { return context.Background() }
