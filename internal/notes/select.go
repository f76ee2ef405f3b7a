/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package notes

import (
	"fmt"
	"math"

	"midiscript/internal/script"
)

// SelectedTrack is one track of a materialized pattern.
type SelectedTrack struct {
	Name    string `json:"name"`
	Display string `json:"display"`
	Notes   []Note `json:"notes"`
}

// Selection is a pattern materialized against a song.
type Selection struct {
	Window    script.Range    `json:"window"`
	DispRange script.Range    `json:"disp_range"`
	Clip      [2]float64      `json:"clip"`
	Tracks    []SelectedTrack `json:"tracks"`
	// PitchRange is the lowest and highest selected pitch; valid only when NoteCount > 0.
	PitchRange [2]int `json:"pitch_range"`
	NoteCount  int    `json:"note_count"`
}

// UnknownTrackError names a selected track the song does not contain.
type UnknownTrackError struct{ Track string }

func (e *UnknownTrackError) Error() string { return fmt.Sprintf("notes: unknown track %q", e.Track) }

// Select keeps the notes of the pattern's tracks that overlap its window and
// whose pitch lies strictly inside the clip bounds. The pattern's own
// PitchClipRange wins over globalClip. The all-tracks sentinel expands to every
// track in file order; explicit entries still set display names.
func (s *Song) Select(p script.MidiPattern, globalClip [2]float64) (Selection, error) {
	clip := globalClip
	if p.PitchClipRange != nil {
		clip = *p.PitchClipRange
	}
	sel := Selection{Window: p.Range, DispRange: p.DispRange, Clip: clip}

	type pick struct{ name, display string }
	var picks []pick
	if p.Channels.IsAll() {
		for _, name := range s.Order {
			display := name
			if d, ok := p.Channels[name]; ok {
				display = d
			}
			picks = append(picks, pick{name, display})
		}
		for _, name := range p.Channels.Names() {
			if name == script.AllTracks {
				continue
			}
			if _, ok := s.Tracks[name]; !ok {
				return Selection{}, &UnknownTrackError{Track: name}
			}
		}
	} else {
		for _, name := range p.Channels.Names() {
			if _, ok := s.Tracks[name]; !ok {
				return Selection{}, &UnknownTrackError{Track: name}
			}
			picks = append(picks, pick{name, p.Channels[name]})
		}
	}

	start, end := p.Range[0], p.Range[1]
	for _, pk := range picks {
		st := SelectedTrack{Name: pk.name, Display: pk.display, Notes: []Note{}}
		for _, n := range s.Tracks[pk.name] {
			if n.End > start && n.Start < end && float64(n.Pitch) > clip[0] && float64(n.Pitch) < clip[1] {
				st.Notes = append(st.Notes, n)
				if sel.NoteCount == 0 || n.Pitch < sel.PitchRange[0] {
					sel.PitchRange[0] = n.Pitch
				}
				if sel.NoteCount == 0 || n.Pitch > sel.PitchRange[1] {
					sel.PitchRange[1] = n.Pitch
				}
				sel.NoteCount++
			}
		}
		sel.Tracks = append(sel.Tracks, st)
	}
	return sel, nil
}

// DisplayPitchRange pads a pitch range for display: each bound moves out by
// expand, and the result spans at least minHalf around the rounded centre.
// Halves round to even.
func DisplayPitchRange(pitch [2]float64, expand, minHalf [2]float64) [2]float64 {
	centre := math.RoundToEven((pitch[0] + pitch[1]) / 2)
	return [2]float64{
		math.Min(pitch[0]-expand[0], centre-minHalf[0]),
		math.Max(pitch[1]+expand[1], centre+minHalf[1]),
	}
}
