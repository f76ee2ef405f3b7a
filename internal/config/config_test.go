/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"midiscript/internal/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Source.Encoding != "utf-8" || cfg.Index.KeepRevisions != 50 || cfg.Backend.Timeout() != 15*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadMergesFile(t *testing.T) {
	p := writeConfig(t, `
source:
  encoding: GB18030
index:
  keep_revisions: 5
backend:
  dsn: postgres://u:p@localhost/midiscript
logging:
  level: DEBUG
session:
  bpM: "96"
  Name: "'— me'"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Source.Encoding != "gb18030" || cfg.Index.KeepRevisions != 5 || cfg.Logging.Level != "debug" {
		t.Fatalf("file values not merged: %+v", cfg)
	}
	if cfg.Backend.DSN != "postgres://u:p@localhost/midiscript" || cfg.Backend.TimeoutMs != 15000 {
		t.Fatalf("backend not merged: %+v", cfg.Backend)
	}
	s, err := cfg.SessionDefaults()
	if err != nil {
		t.Fatalf("SessionDefaults error: %v", err)
	}
	if bpm, _ := s.Number(session.KeyBeatsPerMinute); bpm != 96 {
		t.Fatalf("bpM override = %v", bpm)
	}
	if s.Text(session.KeyName) != "— me" {
		t.Fatalf("Name override = %q", s.Text(session.KeyName))
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	if _, err := Load(writeConfig(t, "source: [unclosed")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSessionDefaultsRejectsBadLiteral(t *testing.T) {
	cfg := Defaults()
	cfg.Session = map[string]string{"StartBar": "{a: 1}"}
	if _, err := cfg.SessionDefaults(); err == nil {
		t.Fatalf("expected error for mapping literal")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvSourceEncoding, "Shift_JIS")
	t.Setenv(EnvIndexDisabled, "yes")
	t.Setenv(EnvKeepRevisions, "7")
	t.Setenv(EnvBackendDSN, "postgres://env")
	t.Setenv(EnvBackendTimeoutMs, "250")
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "/tmp/msv.log")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Source.Encoding != "shift_jis" || !cfg.Index.Disabled || cfg.Index.KeepRevisions != 7 {
		t.Fatalf("source/index overrides not applied: %+v", cfg)
	}
	if cfg.Backend.DSN != "postgres://env" || cfg.Backend.Timeout() != 250*time.Millisecond {
		t.Fatalf("backend overrides not applied: %+v", cfg.Backend)
	}
	opts := cfg.LogOptions()
	if opts.Level != "error" || opts.Format != "json" || !opts.AddSource || opts.File != "/tmp/msv.log" {
		t.Fatalf("logging overrides not applied: %+v", opts)
	}
	if env, ok := EnvOverrideFor("backend.dsn"); !ok || env != EnvBackendDSN {
		t.Fatalf("EnvOverrideFor(backend.dsn) = %q %v", env, ok)
	}
	if _, ok := EnvOverrideFor("unknown.key"); ok {
		t.Fatalf("unknown key must not be reported as overridden")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Defaults()
	cfg.Source.Encoding = "windows-1252"
	cfg.Session = map[string]string{"Title": "'Night'"}
	if err := Save(cfg, p); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	back, err := Load(p)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if back.Source.Encoding != "windows-1252" || back.Session["Title"] != "'Night'" {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestConfigPathHonoursEnv(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/midiscript.yaml")
	if p, err := ConfigPath(); err != nil || p != "/etc/midiscript.yaml" {
		t.Fatalf("ConfigPath() = %q %v", p, err)
	}
}
