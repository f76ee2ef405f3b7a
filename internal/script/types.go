/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"midiscript/internal/session"
)

// Range is a closed bar-time interval [start, end].
type Range [2]float64

func (r Range) Start() float64 { return r[0] }
func (r Range) End() float64 { return r[1] }
func (r Range) Len() float64 { return r[1] - r[0] }

// Valid reports start <= end.
func (r Range) Valid() bool { return r[0] <= r[1] }

// Union returns the smallest range containing both r and o.
func (r Range) Union(o Range) Range {
	out := r
	if o[0] < out[0] {
		out[0] = o[0]
	}
	if o[1] > out[1] {
		out[1] = o[1]
	}
	return out
}

// Contains reports whether o lies within r.
func (r Range) Contains(o Range) bool { return r[0] <= o[0] && o[1] <= r[1] }

func (r Range) String() string {
	return "[" + formatBar(r[0]) + ", " + formatBar(r[1]) + "]"
}

func formatBar(f float64) string {
	// +0 folds negative zero so equal ranges always print identically.
	return strconv.FormatFloat(f+0, 'g', -1, 64)
}

// Paragraph is one timed block of annotation text.
type Paragraph struct {
	Range Range  `json:"range"`
	Text  string `json:"text"`
	// Line is the 1-based source line of the block heading.
	Line int `json:"line"`
}

// AllTracks is the channel key meaning "every track of the note source".
const AllTracks = "all"

// Channels maps a source track name to its display name. The AllTracks key
// carries no display name.
type Channels map[string]string

// AllChannels returns a fresh all-tracks selection.
func AllChannels() Channels { return Channels{AllTracks: ""} }

// IsAll reports whether the selection includes the all-tracks sentinel.
func (c Channels) IsAll() bool {
	_, ok := c[AllTracks]
	return ok
}

// Names returns the track names in sorted order.
func (c Channels) Names() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c Channels) Clone() Channels {
	out := make(Channels, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Key is a canonical encoding independent of insertion order.
func (c Channels) Key() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, name := range c.Names() {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Quote(name))
		if name != AllTracks || c[name] != "" {
			b.WriteByte(':')
			b.WriteString(strconv.Quote(c[name]))
		}
	}
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON writes the all-tracks sentinel with a null display name.
func (c Channels) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range c.Names() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(name)
		buf.Write(kb)
		buf.WriteByte(':')
		if name == AllTracks && c[name] == "" {
			buf.WriteString("null")
			continue
		}
		vb, _ := json.Marshal(c[name])
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Channels) UnmarshalJSON(b []byte) error {
	var raw map[string]*string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Channels, len(raw))
	for k, v := range raw {
		if v == nil {
			out[k] = ""
			continue
		}
		out[k] = *v
	}
	*c = out
	return nil
}

// MidiPattern is a note-selection window shared by one or more paragraphs.
// Its identity is (Range, Channels); only DispRange changes after creation.
type MidiPattern struct {
	Range    Range    `json:"range"`
	Channels Channels `json:"channels"`
	// DispRange covers every paragraph that referenced this pattern.
	DispRange Range `json:"disp_range"`
	// PitchClipRange overrides the global pitch_clip_range when set.
	PitchClipRange *Range                    `json:"pitch_clip_range"`
	Extra          map[string]session.Value `json:"extra,omitempty"`
}

// Key returns the identity key of the pattern.
func (p *MidiPattern) Key() string { return patternKey(p.Range, p.Channels) }

// Widen grows DispRange to include r. It never shrinks.
func (p *MidiPattern) Widen(r Range) { p.DispRange = p.DispRange.Union(r) }

func patternKey(r Range, c Channels) string { return r.String() + c.Key() }

// Timeline is the parse result handed to rendering collaborators.
type Timeline struct {
	Settings   *session.Settings `json:"settings"`
	Paragraphs []Paragraph       `json:"paragraphs"`
	Patterns   []MidiPattern     `json:"patterns"`
}

// Span returns the range covered by all paragraphs, and false for an empty timeline.
func (t *Timeline) Span() (Range, bool) {
	if len(t.Paragraphs) == 0 {
		return Range{}, false
	}
	out := t.Paragraphs[0].Range
	for _, p := range t.Paragraphs[1:] {
		out = out.Union(p.Range)
	}
	return out, true
}
