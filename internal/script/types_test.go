/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestChannelsKeyIgnoresInsertionOrder(t *testing.T) {
	a := Channels{}
	a["vln"] = "Violin I"
	a["vc"] = "vc"
	b := Channels{}
	b["vc"] = "vc"
	b["vln"] = "Violin I"
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %s vs %s", a.Key(), b.Key())
	}
	if a.Key() == (Channels{"vln": "Violin"}).Key() {
		t.Fatalf("display name must be part of the key")
	}
}

func TestChannelsJSON(t *testing.T) {
	b, err := json.Marshal(Channels{AllTracks: "", "vln": "Violin I"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"all":null,"vln":"Violin I"}` {
		t.Fatalf("unexpected JSON: %s", b)
	}
	var back Channels
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.IsAll() || back["vln"] != "Violin I" {
		t.Fatalf("unexpected channels: %v", back)
	}
}

func TestPatternKeyFoldsNegativeZero(t *testing.T) {
	negZero := 0.0
	negZero = -negZero
	if patternKey(Range{negZero, 1}, Channels{"a": "a"}) != patternKey(Range{0, 1}, Channels{"a": "a"}) {
		t.Fatalf("negative zero must not change the identity key")
	}
}

func TestTimelineSpan(t *testing.T) {
	tl := &Timeline{Paragraphs: []Paragraph{{Range: Range{6, 8}}, {Range: Range{2, 6}}}}
	if s, ok := tl.Span(); !ok || s != (Range{2, 8}) {
		t.Fatalf("span = %v %v", s, ok)
	}
	if _, ok := (&Timeline{}).Span(); ok {
		t.Fatalf("empty timeline has no span")
	}
}

// Every block shares one identity key, so the single pattern's display range
// is the hull of all paragraph ranges whatever their order.
func TestExtentMonotonicityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("disp range is the hull of referencing paragraphs", prop.ForAll(
		func(starts, lengths []int) bool {
			n := len(starts)
			if len(lengths) < n {
				n = len(lengths)
			}
			if n == 0 {
				return true
			}
			var b strings.Builder
			b.WriteString("---\nStartBar: 1\nInitBar: 1\n---\n")
			lo, hi := starts[0], starts[0]+lengths[0]
			for i := 0; i < n; i++ {
				a, e := starts[i], starts[i]+lengths[i]
				if a < lo {
					lo = a
				}
				if e > hi {
					hi = e
				}
				fmt.Fprintf(&b, "# `%d,%d` `vln:Violin I` `100,200`\nblock %d\n", a, e, i)
			}
			tl, err := Parse(testContext(), b.String(), nil)
			if err != nil || len(tl.Patterns) != 1 {
				return false
			}
			return tl.Patterns[0].DispRange == Range{float64(lo), float64(hi)}
		},
		gen.SliceOf(gen.IntRange(0, 500)),
		gen.SliceOf(gen.IntRange(0, 50)),
	))

	properties.Property("widening never shrinks", prop.ForAll(
		func(a, la, b, lb int) bool {
			mp := MidiPattern{DispRange: Range{float64(a), float64(a + la)}}
			before := mp.DispRange
			mp.Widen(Range{float64(b), float64(b + lb)})
			return mp.DispRange.Contains(before) && mp.DispRange.Contains(Range{float64(b), float64(b + lb)})
		},
		gen.IntRange(-100, 100), gen.IntRange(0, 50),
		gen.IntRange(-100, 100), gen.IntRange(0, 50),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
