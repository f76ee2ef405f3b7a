/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "strings"

const (
	fenceMarker        = "---"
	commentMarker      = "//"
	frontCommentMarker = "#"
	headingMarker      = "# "
)

type division int

const (
	divNone division = iota
	divFrontMatter
	divBody
)

// SourceLine is one raw line with its 1-based line number.
type SourceLine struct {
	No   int
	Text string
}

// Block is one body block: a heading line plus the text lines that follow it.
type Block struct {
	Index int // 1-based among body blocks
	Lines []SourceLine
}

// Heading returns the first line of the block.
func (b Block) Heading() SourceLine {
	if len(b.Lines) == 0 {
		return SourceLine{}
	}
	return b.Lines[0]
}

// Document is the divider output: front-matter lines, then body blocks in order.
type Document struct {
	FrontMatter []SourceLine
	Blocks      []Block
}

// Divide classifies the lines of a script. Rules per line, first match wins:
//   - "---" opens front matter when nothing is open, otherwise closes what is open
//   - "//" lines, and "#" lines inside front matter, are dropped
//   - "# " starts a new body block
//   - anything else is appended to the current buffer
//
// Buffers collected outside front matter that contain only blank lines are dropped.
func Divide(input string) Document {
	var (
		doc   Document
		buf   []SourceLine
		state = divNone
	)
	flush := func() {
		defer func() { buf = nil }()
		if len(buf) == 0 {
			return
		}
		if state == divFrontMatter {
			doc.FrontMatter = append(doc.FrontMatter, buf...)
			return
		}
		for _, l := range buf {
			if strings.TrimSpace(l.Text) != "" {
				doc.Blocks = append(doc.Blocks, Block{Index: len(doc.Blocks) + 1, Lines: buf})
				return
			}
		}
	}

	for i, raw := range strings.Split(input, "\n") {
		line := SourceLine{No: i + 1, Text: strings.TrimSuffix(raw, "\r")}
		switch {
		case strings.HasPrefix(line.Text, fenceMarker):
			flush()
			if state == divNone {
				state = divFrontMatter
			} else {
				state = divNone
			}
		case strings.HasPrefix(line.Text, commentMarker),
			state == divFrontMatter && strings.HasPrefix(line.Text, frontCommentMarker):
			// dropped
		case strings.HasPrefix(line.Text, headingMarker):
			flush()
			state = divBody
			buf = append(buf, line)
		default:
			buf = append(buf, line)
		}
	}
	flush()
	return doc
}
