/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package source reads script files. Scripts are UTF-8 by default; scripts
// saved in a legacy encoding (GB18030, Shift_JIS, windows-1252, ...) are
// converted when the encoding is named.
package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DefaultEncoding is used when no encoding is named.
const DefaultEncoding = "utf-8"

// ErrInvalidUTF8 is returned for UTF-8 input that does not decode cleanly.
var ErrInvalidUTF8 = errors.New("source: invalid UTF-8")

// Source is a decoded script.
type Source struct {
	Path     string
	Text     string
	Encoding string
	// SHA256 is the hex digest of the raw file bytes.
	SHA256 string
}

// Load reads and decodes the script at path.
func Load(path, encodingName string) (Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read script: %w", err)
	}
	src, err := Decode(raw, encodingName)
	if err != nil {
		return Source{}, fmt.Errorf("%s: %w", path, err)
	}
	src.Path = path
	return src, nil
}

// Read decodes a script from r.
func Read(r io.Reader, encodingName string) (Source, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Source{}, err
	}
	return Decode(raw, encodingName)
}

// Decode converts raw bytes to text. A byte order mark always wins over the
// named encoding.
func Decode(raw []byte, encodingName string) (Source, error) {
	sum := sha256.Sum256(raw)
	src := Source{SHA256: hex.EncodeToString(sum[:])}

	enc, canonical, err := Lookup(encodingName)
	if err != nil {
		return Source{}, err
	}
	src.Encoding = canonical

	if enc == nil {
		body := bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
		if !utf8.Valid(body) {
			return Source{}, ErrInvalidUTF8
		}
		src.Text = string(body)
		return src, nil
	}

	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(raw), unicode.BOMOverride(enc.NewDecoder())))
	if err != nil {
		return Source{}, fmt.Errorf("decode %s: %w", canonical, err)
	}
	src.Text = string(out)
	return src, nil
}

// Lookup resolves an encoding label such as "gbk" or "Shift_JIS". UTF-8 (and
// the empty label) resolve to a nil encoding.
func Lookup(name string) (encoding.Encoding, string, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	if label == "" || label == "utf-8" || label == "utf8" {
		return nil, DefaultEncoding, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, "", fmt.Errorf("source: unknown encoding %q: %w", name, err)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = label
	}
	if canonical == DefaultEncoding {
		return nil, DefaultEncoding, nil
	}
	return enc, canonical, nil
}
