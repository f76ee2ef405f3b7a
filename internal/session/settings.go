/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session holds the per-script settings map: named typed values with
// documented defaults, overridden by a script's front matter and handed on
// unexamined to rendering collaborators.
package session

import (
	"bytes"
	"encoding/json"
	"fmt"

	"midiscript/internal/timebar"
)

// Well-known setting names.
const (
	KeyStartBar       = "StartBar"
	KeyInitBar        = "InitBar"
	KeyBeginTime      = "BeginTime"
	KeyCountDown      = "CountDown"
	KeyTitle          = "Title"
	KeySaying         = "Saying"
	KeyName           = "Name"
	KeyHeight         = "h"
	KeyWidth          = "w"
	KeyFontPath       = "FontPath"
	KeyStepsPerBeat   = "spb"
	KeyBeatsPerBar    = "bpB"
	KeyBeatsPerMinute = "bpM"
	KeyTicksPerBeat   = "tpb"
	KeyPitchClipRange = "pitch_clip_range"
	KeyExpandRange    = "expand_range"
	KeyMinPitchRange  = "min_pitch_range"
	KeySubclipBar     = "subclip_tBar"
	KeySubclipMovie   = "subclip_tMov"
)

// Settings is an insertion-ordered map of named values.
type Settings struct {
	values map[string]Value
	order  []string
}

// New returns an empty settings map.
func New() *Settings { return &Settings{values: map[string]Value{}} }

// Defaults returns a fresh settings map seeded with the documented defaults.
func Defaults() *Settings {
	s := New()
	s.Set(KeyStartBar, Int(5))
	s.Set(KeyInitBar, Int(1))
	s.Set(KeyBeginTime, Int(1))
	s.Set(KeyCountDown, Int(3))
	s.Set(KeyTitle, Null())
	s.Set(KeySaying, Null())
	s.Set(KeyName, String("—— Gray Frezicical"))
	s.Set(KeyHeight, Int(1080))
	s.Set(KeyWidth, Int(2160))
	s.Set(KeyFontPath, String(""))
	s.Set(KeyStepsPerBeat, Int(4))
	s.Set(KeyBeatsPerBar, Int(4))
	s.Set(KeyBeatsPerMinute, Int(120))
	s.Set(KeyTicksPerBeat, Int(96))
	s.Set(KeyPitchClipRange, Interval(33, 93))
	s.Set(KeyExpandRange, Interval(4, 4))
	s.Set(KeyMinPitchRange, Interval(10, 10))
	s.Set(KeySubclipBar, Null())
	s.Set(KeySubclipMovie, Null())
	return s
}

func (s *Settings) Get(key string) (Value, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set stores v under key. New keys keep their insertion position.
func (s *Settings) Set(key string, v Value) {
	if s.values == nil {
		s.values = map[string]Value{}
	}
	if _, ok := s.values[key]; !ok {
		s.order = append(s.order, key)
	}
	s.values[key] = v
}

func (s *Settings) Keys() []string { return append([]string(nil), s.order...) }

func (s *Settings) Len() int { return len(s.order) }

func (s *Settings) Clone() *Settings {
	c := &Settings{values: make(map[string]Value, len(s.values)), order: append([]string(nil), s.order...)}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// Number returns a numeric setting.
func (s *Settings) Number(key string) (float64, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, fmt.Errorf("setting %s is not set", key)
	}
	f, ok := v.Float()
	if !ok {
		return 0, fmt.Errorf("setting %s must be a number, got %s %s", key, v.Kind(), v)
	}
	return f, nil
}

// Interval returns a two-number setting.
func (s *Settings) Interval(key string) ([2]float64, error) {
	v, ok := s.values[key]
	if !ok {
		return [2]float64{}, fmt.Errorf("setting %s is not set", key)
	}
	iv, ok := v.Interval()
	if !ok {
		return [2]float64{}, fmt.Errorf("setting %s must be a two-number list, got %s", key, v)
	}
	return iv, nil
}

// Text returns a string setting; null yields "".
func (s *Settings) Text(key string) string {
	v := s.values[key]
	t, _ := v.Text()
	return t
}

// Offsets returns StartBar and InitBar.
func (s *Settings) Offsets() (startBar, initBar float64, err error) {
	if startBar, err = s.Number(KeyStartBar); err != nil {
		return 0, 0, err
	}
	if initBar, err = s.Number(KeyInitBar); err != nil {
		return 0, 0, err
	}
	return startBar, initBar, nil
}

// Clock builds the time-coordinate parameters from the settings.
func (s *Settings) Clock() (timebar.Clock, error) {
	var c timebar.Clock
	fields := []struct {
		key string
		dst *float64
	}{
		{KeyStepsPerBeat, &c.StepsPerBeat},
		{KeyBeatsPerBar, &c.BeatsPerBar},
		{KeyBeatsPerMinute, &c.BeatsPerMinute},
		{KeyStartBar, &c.StartBar},
		{KeyInitBar, &c.InitBar},
		{KeyBeginTime, &c.BeginTime},
	}
	for _, f := range fields {
		v, err := s.Number(f.key)
		if err != nil {
			return timebar.Clock{}, err
		}
		*f.dst = v
	}
	if err := c.Validate(); err != nil {
		return timebar.Clock{}, err
	}
	return c, nil
}

// ApplyTitleRule collapses the opening title duration to zero when Title is
// null or empty. It reports whether BeginTime was changed.
func (s *Settings) ApplyTitleRule() bool {
	v := s.values[KeyTitle]
	if t, ok := v.Text(); (ok && t == "") || v.IsNull() {
		s.Set(KeyBeginTime, Int(0))
		return true
	}
	return false
}

func (s *Settings) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := s.values[k].MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping the key order of the document.
func (s *Settings) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("session: settings must be a JSON object")
	}
	out := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("session: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var v Value
		if err := v.UnmarshalJSON(raw); err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
		out.Set(key, v)
	}
	*s = *out
	return nil
}
