/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"midiscript/internal/script"
	"midiscript/internal/storage"
)

const publishScript = "---\n" +
	"StartBar: 5\n" +
	"Title: 'Published'\n" +
	"---\n" +
	"# `6,10` `vln:Violin I`\n" +
	"Hello strings\n" +
	"# `+2` `keep`\n" +
	"World answers\n" +
	"# `12,14` `all`\n" +
	"Beach waves\n"

func parseForTest(t *testing.T, input string) *script.Timeline {
	t.Helper()
	tl, err := script.Parse(context.Background(), input, nil)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return tl
}

func uniqueName(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

func TestPublishRejectsBadInput(t *testing.T) {
	if _, err := Publish(context.Background(), nil, " ", &script.Timeline{}); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if _, err := Publish(context.Background(), nil, "x", nil); err == nil {
		t.Fatalf("expected error for nil timeline")
	}
}

func TestPublishAndLatest(t *testing.T) {
	db := openPGForTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	name := uniqueName(t)

	if _, err := Latest(ctx, db, name); !errors.Is(err, ErrNotPublished) {
		t.Fatalf("expected ErrNotPublished, got %v", err)
	}
	v1, err := Publish(ctx, db, name, parseForTest(t, "# `1,2`\nfirst\n"))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	v2, err := Publish(ctx, db, name, parseForTest(t, publishScript))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if v1 != 1 || v2 != 2 {
		t.Fatalf("versions = %d, %d; want 1, 2", v1, v2)
	}
	pub, err := Latest(ctx, db, name)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if pub.Version != 2 || len(pub.SHA256) != 64 {
		t.Fatalf("unexpected publication: %+v", pub)
	}
	tl, err := pub.Timeline()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tl.Paragraphs) != 3 || tl.Settings.Text("Title") != "Published" {
		t.Fatalf("unexpected timeline: %+v", tl)
	}
	// json keeps the document text, so settings come back in order.
	keys := tl.Settings.Keys()
	if len(keys) == 0 || keys[0] != "StartBar" {
		t.Fatalf("settings order lost: %v", keys)
	}
}

func TestSearchParity_SQLite_vs_Postgres(t *testing.T) {
	db := openPGForTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tl := parseForTest(t, publishScript)

	name := uniqueName(t)
	if _, err := Publish(ctx, db, name, tl); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	idx, err := storage.InitOrOpenIndex(t.TempDir())
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer idx.Close()
	if _, err := storage.RecordBuild(ctx, idx, storage.Build{Timeline: tl}); err != nil {
		t.Fatalf("RecordBuild: %v", err)
	}

	within := script.Range{7, 9}
	cases := []struct {
		name string
		q    storage.SearchQuery
		want []int
	}{
		{"fts_hello", storage.SearchQuery{Text: "hello"}, []int{0}},
		{"fts_waves", storage.SearchQuery{Text: "waves"}, []int{2}},
		{"bars", storage.SearchQuery{Within: &within}, []int{1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sres, err := storage.SearchParagraphs(ctx, idx, tc.q)
			if err != nil {
				t.Fatalf("sqlite search: %v", err)
			}
			pres, err := SearchPG(ctx, db, name, tc.q)
			if err != nil {
				t.Fatalf("pg search: %v", err)
			}
			if got := ordinals(sres); !equalInts(got, tc.want) {
				t.Fatalf("sqlite ordinals = %v, want %v", got, tc.want)
			}
			if got := ordinals(pres); !equalInts(got, tc.want) {
				t.Fatalf("pg ordinals = %v, want %v", got, tc.want)
			}
			for i := range pres {
				if pres[i].Range != sres[i].Range || pres[i].Line != sres[i].Line {
					t.Fatalf("row %d differs: pg=%+v sqlite=%+v", i, pres[i], sres[i])
				}
			}
			if tc.q.Text != "" && !strings.Contains(pres[0].Snippet, "[") {
				t.Fatalf("pg snippet lacks highlight: %q", pres[0].Snippet)
			}
		})
	}
}

func ordinals(list []storage.SearchResult) []int {
	out := make([]int, 0, len(list))
	for _, r := range list {
		out = append(out, r.Ordinal)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
