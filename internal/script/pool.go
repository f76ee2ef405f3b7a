/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "midiscript/internal/session"

// patternPool creates patterns on first sight of an identity key. A repeated
// key widens the most recently created pattern, which is not necessarily the
// one that carries the key when other windows were created in between.
type patternPool struct {
	seen     map[string]struct{}
	patterns []MidiPattern
}

func newPatternPool() *patternPool { return &patternPool{seen: map[string]struct{}{}} }

// last returns the most recently created pattern, or nil.
func (p *patternPool) last() *MidiPattern {
	if len(p.patterns) == 0 {
		return nil
	}
	return &p.patterns[len(p.patterns)-1]
}

// place registers one occurrence and reports whether a new pattern was created.
func (p *patternPool) place(window Range, ch Channels, para Range, clip *Range, extra map[string]session.Value) bool {
	key := patternKey(window, ch)
	if _, ok := p.seen[key]; ok {
		p.last().Widen(para)
		return false
	}
	p.seen[key] = struct{}{}
	mp := MidiPattern{
		Range:     window,
		Channels:  ch.Clone(),
		DispRange: para,
		Extra:     extra,
	}
	if clip != nil {
		c := *clip
		mp.PitchClipRange = &c
	}
	p.patterns = append(p.patterns, mp)
	return true
}
