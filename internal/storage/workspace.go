/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"midiscript/internal/script"
)

const (
	ScriptFileName   = "script.md"
	ManifestFileName = "timeline.json"
	BackupsDirName   = "backups"
)

// ErrNotWorkspace is returned by OpenWorkspace when root has no script file.
var ErrNotWorkspace = errors.New("not a workspace")

// Workspace locates the files of one script workspace.
type Workspace struct {
	Root         string
	ScriptPath   string
	ManifestPath string
}

func newWorkspace(root string) *Workspace {
	return &Workspace{
		Root:         root,
		ScriptPath:   filepath.Join(root, ScriptFileName),
		ManifestPath: filepath.Join(root, ManifestFileName),
	}
}

// BackupsDir returns the directory holding manifest backups and crash reports.
func (ws *Workspace) BackupsDir() string { return filepath.Join(ws.Root, BackupsDirName) }

// InitWorkspace creates root and its backups folder. An existing script is kept;
// otherwise an empty script.md is written.
func InitWorkspace(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	ws := newWorkspace(root)
	if err := os.MkdirAll(ws.BackupsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	if _, err := os.Stat(ws.ScriptPath); errors.Is(err, os.ErrNotExist) {
		if werr := writeFileSync(ws.ScriptPath, nil); werr != nil {
			return nil, fmt.Errorf("create script: %w", werr)
		}
	}
	return ws, nil
}

// OpenWorkspace returns the workspace at root. The script file must exist.
func OpenWorkspace(root string) (*Workspace, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	ws := newWorkspace(root)
	fi, err := os.Stat(ws.ScriptPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", root, ErrNotWorkspace)
		}
		return nil, err
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrNotWorkspace)
	}
	return ws, nil
}

// WriteManifest writes tl to timeline.json. The previous manifest, if any, is copied to a
// timestamped backup first, and the new one replaces it through a temp file rename.
func WriteManifest(ws *Workspace, tl *script.Timeline) error {
	if ws == nil {
		return errors.New("nil Workspace")
	}
	if tl == nil {
		return errors.New("nil Timeline")
	}
	data, err := json.MarshalIndent(tl, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')

	bdir := ws.BackupsDir()
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(ws.ManifestPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405.000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", ManifestFileName, stamp))
		if cerr := copyFile(ws.ManifestPath, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}

	temp := filepath.Join(ws.Root, fmt.Sprintf(".%s.tmp-%d-%d", ManifestFileName, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp manifest: %w", werr)
	}
	// Windows will not rename over an existing file.
	if _, err := os.Stat(ws.ManifestPath); err == nil {
		_ = os.Remove(ws.ManifestPath)
	}
	if rerr := os.Rename(temp, ws.ManifestPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace manifest: %w", rerr)
	}
	return nil
}

// ReadManifest loads timeline.json. When it is missing or unreadable the latest backup is used.
func ReadManifest(ws *Workspace) (*script.Timeline, error) {
	if ws == nil {
		return nil, errors.New("nil Workspace")
	}
	tl, err := readTimeline(ws.ManifestPath)
	if err == nil {
		return tl, nil
	}
	backup, berr := latestBackup(ws.BackupsDir())
	if berr != nil {
		return nil, fmt.Errorf("read manifest: %w; backup attempt: %v", err, berr)
	}
	tl, berr = readTimeline(backup)
	if berr != nil {
		return nil, fmt.Errorf("read manifest: %w; backup attempt: %v", err, berr)
	}
	return tl, nil
}

func readTimeline(path string) (*script.Timeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tl script.Timeline
	if err := json.Unmarshal(b, &tl); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &tl, nil
}

func latestBackup(bdir string) (string, error) {
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return "", fmt.Errorf("read backups dir: %w", err)
	}
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	if len(candidates) == 0 {
		return "", errors.New("no backups found")
	}
	sort.Strings(candidates)
	return candidates[len(candidates)-1], nil
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies src to dst, overwriting dst.
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
