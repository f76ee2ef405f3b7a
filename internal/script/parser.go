/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script parses timeline scripts.
//
// A script is an optional front matter fenced by "---" lines holding
// "key: value" settings, followed by body blocks. Each body block starts with
// a "# " heading carrying backtick control tokens and continues with text:
//
//	---
//	StartBar: 5
//	Title: ''
//	---
//	# `6,10` `vln:Violin I`
//	Hello
//	# `+2` `keep`
//	World
//
// Token 0 is the paragraph range, either relative ("+N" bars after the
// previous paragraph) or an authored bar pair ("A,B" or "A~B"). Token 1 selects
// tracks ("all", "keep"/"same", or "name[:display]" items). Token 2 is the
// note window ("keep"/"same" or an authored pair). A final "!key=value" token
// passes extra parameters to the pattern. Lines starting with "//" are comments.
package script

import (
	"context"
	"log/slog"
	"strings"

	applog "midiscript/internal/log"
	"midiscript/internal/session"
)

// Parse converts a script into a timeline. defaults seeds the settings and is
// not modified; nil means session.Defaults(). Any error aborts the parse and no
// timeline is returned.
func Parse(ctx context.Context, input string, defaults *session.Settings) (*Timeline, error) {
	l := applog.WithOperation(applog.WithComponent("script"), "parse")

	settings := session.Defaults()
	if defaults != nil {
		settings = defaults.Clone()
	}

	doc := Divide(input)
	if err := resolveFrontMatter(doc.FrontMatter, settings); err != nil {
		l.Error("front matter", slog.Any("err", err))
		return nil, err
	}
	startBar, initBar, err := settings.Offsets()
	if err != nil {
		l.Error("front matter offsets", slog.Any("err", err))
		return nil, err
	}

	p := &parser{
		log:      l,
		startBar: startBar,
		initBar:  initBar,
		pool:     newPatternPool(),
	}
	for _, b := range doc.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.block(b); err != nil {
			l.Error("block", slog.Int("block", b.Index), slog.Any("err", err))
			return nil, err
		}
	}

	settings.ApplyTitleRule()
	tl := &Timeline{Settings: settings, Paragraphs: p.paragraphs, Patterns: p.pool.patterns}
	if tl.Paragraphs == nil {
		tl.Paragraphs = []Paragraph{}
	}
	if tl.Patterns == nil {
		tl.Patterns = []MidiPattern{}
	}
	l.Info("parsed", slog.Int("paragraphs", len(tl.Paragraphs)), slog.Int("patterns", len(tl.Patterns)))
	return tl, nil
}

type parser struct {
	log      *slog.Logger
	startBar float64
	initBar  float64

	paragraphs []Paragraph
	pool       *patternPool
}

func (p *parser) authored(a float64) float64 { return a - p.startBar + p.initBar }

// prevEnd is the end of the latest paragraph, or 0 before the first one.
func (p *parser) prevEnd() float64 {
	if len(p.paragraphs) == 0 {
		return 0
	}
	return p.paragraphs[len(p.paragraphs)-1].Range[1]
}

func (p *parser) block(b Block) error {
	head := b.Heading()
	tokens := controlTokens(head.Text)
	if len(tokens) == 0 {
		return &MissingTimeRangeError{Block: b.Index, Line: head.No}
	}
	tokErr := func(i int, reason string, err error) error {
		return &TokenError{Block: b.Index, Line: head.No, Token: i, Text: tokens[i], Reason: reason, Err: err}
	}

	para, err := p.paragraphRange(tokens[0])
	if err != nil {
		return tokErr(0, "paragraph range", err)
	}
	if !para.Valid() {
		return tokErr(0, "paragraph range", errInverse)
	}
	p.paragraphs = append(p.paragraphs, Paragraph{Range: para, Text: blockText(b.Lines), Line: head.No})

	if len(tokens) == 1 {
		p.log.Debug("text block", slog.Int("block", b.Index), slog.String("range", para.String()))
		return nil
	}

	prev := p.pool.last()
	// The first block may refer to a predecessor that does not exist yet; it
	// then gets an empty selection and a zero window.
	firstBlock := b.Index == 1

	var channels Channels
	keptChannels := false
	switch {
	case isKeep(tokens[1]):
		switch {
		case prev != nil:
			channels = prev.Channels.Clone()
			keptChannels = true
		case firstBlock:
			channels = Channels{}
		default:
			return &PredecessorError{Block: b.Index, Line: head.No, What: "pattern channels"}
		}
	case isAll(tokens[1]):
		channels = AllChannels()
	default:
		channels, err = parseChannelList(tokens[1])
		if err != nil {
			return tokErr(1, "channel selection", err)
		}
	}

	window := para
	if keptChannels {
		// Keeping the selection without naming a window continues the previous pattern.
		window = prev.Range
	}
	if len(tokens) >= 3 && !startsExtra(tokens[2]) {
		switch {
		case isKeep(tokens[2]):
			switch {
			case prev != nil:
				window = prev.Range
			case firstBlock:
				window = Range{}
			default:
				return &PredecessorError{Block: b.Index, Line: head.No, What: "pattern range"}
			}
		default:
			a, bb, err := authoredPair(tokens[2])
			if err != nil {
				return tokErr(2, "note window", err)
			}
			window = Range{p.authored(a), p.authored(bb)}
			if !window.Valid() {
				return tokErr(2, "note window", errInverse)
			}
		}
	}

	var (
		clip  *Range
		extra map[string]session.Value
	)
	last := len(tokens) - 1
	ignoredEnd := len(tokens)
	if len(tokens) >= 3 && startsExtra(tokens[last]) {
		ignoredEnd = last
		ctrls, err := extraControls(tokens[last])
		if err != nil {
			return tokErr(last, "extra controls", err)
		}
		if v, ok := ctrls[keyPitchClip]; ok {
			if clip, err = pitchClip(v); err != nil {
				return tokErr(last, "extra controls", err)
			}
			delete(ctrls, keyPitchClip)
		}
		if len(ctrls) > 0 {
			extra = ctrls
		}
	}
	for i := 3; i < ignoredEnd; i++ {
		p.log.Debug("ignored control token", slog.Int("block", b.Index), slog.Int("token", i), slog.String("text", tokens[i]))
	}

	created := p.pool.place(window, channels, para, clip, extra)
	p.log.Debug("pattern block",
		slog.Int("block", b.Index),
		slog.String("range", para.String()),
		slog.String("window", window.String()),
		slog.String("channels", channels.Key()),
		slog.Bool("created", created))
	return nil
}

func (p *parser) paragraphRange(tok string) (Range, error) {
	span, relative, err := relativeSpan(tok)
	if err != nil {
		return Range{}, err
	}
	if relative {
		a := p.prevEnd()
		return Range{a, a + span}, nil
	}
	a, b, err := authoredPair(tok)
	if err != nil {
		return Range{}, err
	}
	return Range{p.authored(a), p.authored(b)}, nil
}

func startsExtra(tok string) bool { return strings.HasPrefix(strings.TrimSpace(tok), extraLead) }
