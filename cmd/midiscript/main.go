/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"midiscript/internal/config"
	"midiscript/internal/crash"
	applog "midiscript/internal/log"
	"midiscript/internal/storage"
)

func main() {
	// Filled in by workspace commands so a crash report lands next to the script.
	ws := &storage.Workspace{}
	defer crash.Recover(ws)

	if err := newRootCmd(ws).Execute(); err != nil {
		applog.WithComponent("cli").Error("command failed", slog.Any("err", err))
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the global flags and the loaded configuration to every command.
type app struct {
	configPath string
	encoding   string
	logLevel   string
	dsn        string

	cfg config.AppConfig
	ws  *storage.Workspace
}

func newRootCmd(ws *storage.Workspace) *cobra.Command {
	a := &app{ws: ws}
	root := &cobra.Command{
		Use:           "midiscript",
		Short:         "Parse MIDI timeline scripts into paragraphs and note patterns",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: per-user config.yaml)")
	root.PersistentFlags().StringVar(&a.encoding, "encoding", "", "script source encoding (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "Postgres DSN for publish and search --published (overrides config)")

	root.AddCommand(
		a.parseCmd(),
		a.exportCmd(),
		a.notesCmd(),
		a.indexCmd(),
		a.searchCmd(),
		a.publishCmd(),
		a.dsnCmd(),
		a.versionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.encoding != "" {
		cfg.Source.Encoding = a.encoding
	}
	opts := cfg.LogOptions()
	if a.logLevel != "" {
		opts.Level = strings.ToLower(a.logLevel)
	}
	opts.Writer = cmd.ErrOrStderr()
	applog.Init(opts)
	a.cfg = cfg
	return nil
}

// bindWorkspace records the opened workspace for crash reports.
func (a *app) bindWorkspace(opened *storage.Workspace) {
	if a.ws != nil && opened != nil {
		*a.ws = *opened
	}
}
