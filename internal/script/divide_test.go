/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "testing"

func TestDivideRules(t *testing.T) {
	input := "---\r\n" +
		"# front comment\r\n" +
		"StartBar: 5\r\n" +
		"---\r\n" +
		"\r\n" +
		"# `6,10`\r\n" +
		"first line\r\n" +
		"// comment inside body\r\n" +
		"\r\n" +
		"after blank\r\n" +
		"#no space is text\r\n" +
		"# `+1`\r\n" +
		"second"
	doc := Divide(input)
	if len(doc.FrontMatter) != 1 || doc.FrontMatter[0].Text != "StartBar: 5" || doc.FrontMatter[0].No != 3 {
		t.Fatalf("unexpected front matter: %+v", doc.FrontMatter)
	}
	if len(doc.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d: %+v", len(doc.Blocks), doc.Blocks)
	}
	b := doc.Blocks[0]
	if b.Index != 1 || b.Heading().No != 6 {
		t.Fatalf("unexpected first block header: %+v", b.Heading())
	}
	if got := blockText(b.Lines); got != "first line\n\nafter blank\n#no space is text" {
		t.Fatalf("unexpected text: %q", got)
	}
	if doc.Blocks[1].Index != 2 || blockText(doc.Blocks[1].Lines) != "second" {
		t.Fatalf("unexpected second block: %+v", doc.Blocks[1])
	}
}

func TestDivideFenceClosesBody(t *testing.T) {
	doc := Divide("# `1,2`\na\n---\nKey: 1\n---\n")
	// A fence inside the body closes it; text before the next fence is not front matter.
	if len(doc.Blocks) != 2 || len(doc.Blocks[0].Lines) != 2 {
		t.Fatalf("unexpected blocks: %+v", doc.Blocks)
	}
	if doc.Blocks[1].Heading().Text != "Key: 1" {
		t.Fatalf("unexpected second block: %+v", doc.Blocks[1])
	}
	doc = Divide("# `1,2`\n---\n---\nKey: 1\n---\n")
	if len(doc.FrontMatter) != 1 || doc.FrontMatter[0].Text != "Key: 1" {
		t.Fatalf("expected reopened front matter, got %+v", doc.FrontMatter)
	}
}

func TestDividePreambleBecomesBlock(t *testing.T) {
	doc := Divide("\n\n   \n")
	if len(doc.Blocks) != 0 {
		t.Fatalf("blank preamble must be dropped: %+v", doc.Blocks)
	}
	doc = Divide("stray text\n# `1,2`\n")
	if len(doc.Blocks) != 2 || doc.Blocks[0].Heading().Text != "stray text" {
		t.Fatalf("stray preamble should form its own block: %+v", doc.Blocks)
	}
}

func TestControlTokens(t *testing.T) {
	got := controlTokens("# `6,10` some words `vln:Violin I``!a=1` trailing `")
	want := []string{"6,10", "vln:Violin I", "!a=1"}
	if len(got) != len(want) {
		t.Fatalf("tokens = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}
