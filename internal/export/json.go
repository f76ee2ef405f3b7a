/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
	"midiscript/internal/script"
)

//go:embed timeline.schema.json
var timelineSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

// SchemaError lists the ways a document breaks the timeline schema.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "timeline schema: " + strings.Join(e.Problems, "; ")
}

// TimelineSchema returns the JSON schema that exported timelines conform to.
func TimelineSchema() []byte { return append([]byte(nil), timelineSchema...) }

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(timelineSchema))
	})
	return compiledSchema, schemaErr
}

// MarshalTimeline renders tl as indented JSON with a trailing newline.
func MarshalTimeline(tl *script.Timeline) ([]byte, error) {
	if tl == nil {
		return nil, errors.New("timeline is nil")
	}
	data, err := json.MarshalIndent(tl, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal timeline: %w", err)
	}
	return append(data, '\n'), nil
}

// ValidateTimelineJSON checks data against the timeline schema. Schema violations are
// reported as *SchemaError.
func ValidateTimelineJSON(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("load timeline schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate timeline: %w", err)
	}
	if result.Valid() {
		return nil
	}
	se := &SchemaError{}
	for _, e := range result.Errors() {
		se.Problems = append(se.Problems, e.String())
	}
	return se
}

// WriteTimelineJSON validates tl and writes it to outPath.
func WriteTimelineJSON(tl *script.Timeline, outPath string) error {
	data, err := MarshalTimeline(tl)
	if err != nil {
		return err
	}
	if err := ValidateTimelineJSON(data); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write timeline: %w", err)
	}
	return nil
}
