/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import "fmt"

// MissingTimeRangeError is returned for a body block whose heading carries no control token.
type MissingTimeRangeError struct {
	Block int // 1-based body block index
	Line  int
}

func (e *MissingTimeRangeError) Error() string {
	return fmt.Sprintf("block %d (line %d): missing time range", e.Block, e.Line)
}

// TokenError reports a malformed control token.
type TokenError struct {
	Block  int
	Line   int
	Token  int // 0-based position among the block's control tokens
	Text   string
	Reason string
	Err    error
}

func (e *TokenError) Error() string {
	msg := fmt.Sprintf("block %d (line %d): token %d %q: %s", e.Block, e.Line, e.Token, e.Text, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenError) Unwrap() error { return e.Err }

// PredecessorError reports keep/same with nothing to keep.
type PredecessorError struct {
	Block int
	Line  int
	What  string
}

func (e *PredecessorError) Error() string {
	return fmt.Sprintf("block %d (line %d): keep/same has no previous %s", e.Block, e.Line, e.What)
}

// FrontMatterError reports an unparsable front-matter line.
type FrontMatterError struct {
	Line int
	Text string
	Err  error
}

func (e *FrontMatterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("front matter line %d %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("front matter line %d %q: expected key: value", e.Line, e.Text)
}

func (e *FrontMatterError) Unwrap() error { return e.Err }
