/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package notes reads Standard MIDI Files and materializes timeline patterns
// against them: per-track notes in bar-time, track selection with the
// all-tracks sentinel, pitch clipping and the padded display pitch range.
package notes

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"gitlab.com/gomidi/midi/v2/smf"

	applog "midiscript/internal/log"
	"midiscript/internal/timebar"
)

// Note is one sounding note. Start and End are bar-time.
type Note struct {
	Pitch    int     `json:"pitch"`
	Velocity int     `json:"velocity"`
	Channel  int     `json:"channel"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
}

// Song holds the notes of every named track.
type Song struct {
	TicksPerBeat float64
	// BeatsPerMinute is the first tempo found in the file, or 0 without one.
	BeatsPerMinute float64
	Tracks         map[string][]Note
	// Order lists track names in file order.
	Order []string
}

// ErrUnsupportedTimeFormat is returned for SMPTE-timed files.
var ErrUnsupportedTimeFormat = errors.New("notes: only metric (ticks per quarter) time format is supported")

// Load reads the MIDI file at path.
func Load(path string, clock timebar.Clock) (*Song, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	song, err := Read(f, clock)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return song, nil
}

// Read parses a Standard MIDI File. Ticks become bar-time through the clock:
// bar = tick / TicksPerBar(ticksPerBeat) + InitBar.
func Read(r io.Reader, clock timebar.Clock) (*Song, error) {
	l := applog.WithOperation(applog.WithComponent("notes"), "read")
	if err := clock.Validate(); err != nil {
		return nil, err
	}
	data, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}
	mt, ok := data.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, ErrUnsupportedTimeFormat
	}
	song := &Song{TicksPerBeat: float64(mt), Tracks: map[string][]Note{}}
	perBar := clock.TicksPerBar(song.TicksPerBeat)
	toBar := func(tick int64) float64 { return float64(tick)/perBar + clock.InitBar }

	for i, track := range data.Tracks {
		name, notes, bpm := readTrack(track, toBar)
		if song.BeatsPerMinute == 0 && bpm > 0 {
			song.BeatsPerMinute = bpm
		}
		if len(notes) == 0 {
			continue
		}
		if name == "" {
			name = "track" + strconv.Itoa(i)
		}
		if _, dup := song.Tracks[name]; dup {
			name = name + "#" + strconv.Itoa(i)
		}
		song.Tracks[name] = notes
		song.Order = append(song.Order, name)
	}
	l.Debug("read", slog.Int("tracks", len(song.Order)), slog.Float64("bpm", song.BeatsPerMinute), slog.Float64("tpb", song.TicksPerBeat))
	return song, nil
}

type noteKey struct{ ch, key uint8 }

type openNote struct {
	tick int64
	vel  uint8
}

func readTrack(track smf.Track, toBar func(int64) float64) (string, []Note, float64) {
	var (
		name  string
		bpm   float64
		tick  int64
		notes []Note
		open  = map[noteKey][]openNote{}
	)
	for _, ev := range track {
		tick += int64(ev.Delta)
		msg := ev.Message
		var (
			ch, key, vel uint8
			text         string
			tempo        float64
		)
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			k := noteKey{ch, key}
			open[k] = append(open[k], openNote{tick: tick, vel: vel})
		case msg.GetNoteEnd(&ch, &key):
			k := noteKey{ch, key}
			stack := open[k]
			if len(stack) == 0 {
				continue
			}
			on := stack[0]
			open[k] = stack[1:]
			notes = append(notes, Note{Pitch: int(key), Velocity: int(on.vel), Channel: int(ch), Start: toBar(on.tick), End: toBar(tick)})
		case name == "" && msg.GetMetaTrackName(&text):
			name = text
		case msg.GetMetaTempo(&tempo):
			if bpm == 0 {
				bpm = tempo
			}
		}
	}
	// Notes still sounding at the end of the track end there.
	for k, stack := range open {
		for _, on := range stack {
			notes = append(notes, Note{Pitch: int(k.key), Velocity: int(on.vel), Channel: int(k.ch), Start: toBar(on.tick), End: toBar(tick)})
		}
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Start != notes[j].Start {
			return notes[i].Start < notes[j].Start
		}
		return notes[i].Pitch < notes[j].Pitch
	})
	return name, notes, bpm
}
