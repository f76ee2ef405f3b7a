/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lastJSONLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	return m
}

func TestInitWritesRotatedJSONFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "midiscript.log")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "console", File: fpath, Writer: &console})

	WithOperation(WithComponent("script"), "parse").Info("parsed", slog.Int("paragraphs", 2))
	time.Sleep(20 * time.Millisecond)

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	m := lastJSONLine(t, b)
	if m["app"] != "midiscript" {
		t.Fatalf("missing app attr: %v", m["app"])
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["component"] != "script" || m["op"] != "parse" || m["msg"] != "parsed" {
		t.Fatalf("unexpected record: %v", m)
	}
	if !strings.Contains(console.String(), "paragraphs=2") {
		t.Fatalf("console output missing record: %q", console.String())
	}
}

func TestWorkspaceContextAttr(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Writer: &buf})

	ctx := WithWorkspace(context.Background(), "/tmp/ws")
	L().InfoContext(ctx, "indexed")
	m := lastJSONLine(t, buf.Bytes())
	if m["workspace"] != "/tmp/ws" {
		t.Fatalf("workspace attr missing: %v", m)
	}

	buf.Reset()
	L().Info("plain")
	if m := lastJSONLine(t, buf.Bytes()); m["workspace"] != nil {
		t.Fatalf("unexpected workspace attr: %v", m)
	}
}
