/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"strings"

	"midiscript/internal/session"
)

// resolveFrontMatter writes every "key: value" line into s, in order.
func resolveFrontMatter(lines []SourceLine, s *session.Settings) error {
	for _, l := range lines {
		if strings.TrimSpace(l.Text) == "" {
			continue
		}
		key, expr, ok := strings.Cut(l.Text, ":")
		key, expr = strings.TrimSpace(key), strings.TrimSpace(expr)
		if !ok || key == "" {
			return &FrontMatterError{Line: l.No, Text: l.Text}
		}
		if expr == "" {
			return &FrontMatterError{Line: l.No, Text: l.Text, Err: errors.New("missing value")}
		}
		v, err := session.Decode(expr)
		if err != nil {
			return &FrontMatterError{Line: l.No, Text: l.Text, Err: err}
		}
		s.Set(key, v)
	}
	return nil
}
