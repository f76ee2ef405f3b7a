/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"midiscript/internal/session"
)

var (
	reToken    = regexp.MustCompile("`([^`]*)`")
	reNumber   = regexp.MustCompile(`\d+(?:\.\d*)?`)
	rePair     = regexp.MustCompile(`(\d+(?:\.\d*)?)\s*[,~]\s*(\d+(?:\.\d*)?)`)
	reItemSep  = regexp.MustCompile(`\s*[;,]\s*`)
	errNoPair  = errors.New("expected two numbers separated by ',' or '~'")
	errInverse = errors.New("range start is after its end")
)

const (
	wordKeep     = "keep"
	wordSame     = "same"
	extraLead    = "!"
	keyPitchClip = session.KeyPitchClipRange
)

// controlTokens returns the backtick-delimited fields of a heading, left to right.
func controlTokens(heading string) []string {
	m := reToken.FindAllStringSubmatch(heading, -1)
	out := make([]string, 0, len(m))
	for _, g := range m {
		out = append(out, g[1])
	}
	return out
}

func isKeep(tok string) bool {
	w := strings.ToLower(strings.TrimSpace(tok))
	return w == wordKeep || w == wordSame
}

func isAll(tok string) bool { return strings.EqualFold(strings.TrimSpace(tok), AllTracks) }

// relativeSpan reports whether tok is a relative range and returns its length.
func relativeSpan(tok string) (float64, bool, error) {
	if !strings.Contains(tok, "+") {
		return 0, false, nil
	}
	n := reNumber.FindString(tok)
	if n == "" {
		return 0, true, errors.New("relative range needs a number after '+'")
	}
	f, err := strconv.ParseFloat(n, 64)
	return f, true, err
}

// authoredPair extracts the first "A,B" or "A~B" pair of authored bar numbers.
func authoredPair(tok string) (float64, float64, error) {
	m := rePair.FindStringSubmatch(tok)
	if m == nil {
		return 0, 0, errNoPair
	}
	a, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// parseChannelList parses "name" and "name:display" items separated by ';' or ','.
func parseChannelList(tok string) (Channels, error) {
	out := Channels{}
	for _, item := range reItemSep.Split(strings.TrimSpace(tok), -1) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, display, hasDisplay := strings.Cut(item, ":")
		name, display = strings.TrimSpace(name), strings.TrimSpace(display)
		switch {
		case hasDisplay && (name == "" || display == ""):
			return nil, errors.New("channel item " + strconv.Quote(item) + " must be name:display")
		case isAll(name) && !hasDisplay:
			out[AllTracks] = ""
		case hasDisplay:
			out[name] = display
		default:
			out[name] = name
		}
	}
	if len(out) == 0 {
		return nil, errors.New("empty channel selection")
	}
	return out, nil
}

// extraControls parses "!key=value!key=value". Values use the literal grammar.
func extraControls(tok string) (map[string]session.Value, error) {
	out := map[string]session.Value{}
	for _, seg := range strings.Split(tok, extraLead) {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		key, expr, ok := strings.Cut(seg, "=")
		key, expr = strings.TrimSpace(key), strings.TrimSpace(expr)
		if !ok || key == "" || expr == "" {
			return nil, errors.New("extra control " + strconv.Quote(strings.TrimSpace(seg)) + " must be key=value")
		}
		v, err := session.Decode(expr)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// pitchClip validates the pitch_clip_range extra control. Null clears the override.
func pitchClip(v session.Value) (*Range, error) {
	if v.IsNull() {
		return nil, nil
	}
	iv, ok := v.Interval()
	if !ok {
		return nil, errors.New(keyPitchClip + " must be a two-number list or null")
	}
	r := Range(iv)
	if !r.Valid() {
		return nil, errInverse
	}
	return &r, nil
}

// blockText joins the lines after the heading, trimming leading and trailing blank lines.
func blockText(lines []SourceLine) string {
	if len(lines) <= 1 {
		return ""
	}
	body := lines[1:]
	start, end := 0, len(body)
	for start < end && strings.TrimSpace(body[start].Text) == "" {
		start++
	}
	for end > start && strings.TrimSpace(body[end-1].Text) == "" {
		end--
	}
	parts := make([]string, 0, end-start)
	for _, l := range body[start:end] {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}
