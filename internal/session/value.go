/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a typed literal: null, bool, int, float, string or a flat list of those.
// The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func List(vs ...Value) Value { return Value{kind: KindList, list: append([]Value(nil), vs...)} }
func Interval(a, b float64) Value {
	return List(numberValue(a), numberValue(b))
}

// numberValue keeps integral floats as ints so defaults print like authored values.
func numberValue(f float64) Value {
	if f == float64(int64(f)) {
		return Int(int64(f))
	}
	return Float(f)
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) Text() (string, bool) { return v.s, v.kind == KindString }

// Float returns the numeric value of an int or float.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// Int returns an int value, or a float without fractional part.
func (v Value) Int() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f == float64(int64(v.f)) {
			return int64(v.f), true
		}
	}
	return 0, false
}

// List returns a copy of the list elements, or nil for non-lists.
func (v Value) List() []Value {
	if v.kind != KindList {
		return nil
	}
	return append([]Value(nil), v.list...)
}

// Interval returns the value as a two-number pair.
func (v Value) Interval() ([2]float64, bool) {
	var out [2]float64
	if v.kind != KindList || len(v.list) != 2 {
		return out, false
	}
	for i, e := range v.list {
		f, ok := e.Float()
		if !ok {
			return out, false
		}
		out[i] = f
	}
	return out, true
}

// Equal compares kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value as a literal expression that Decode accepts.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnI") {
			s += ".0"
		}
		return s
	case KindString:
		return strconv.Quote(v.s)
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return ""
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return nil, fmt.Errorf("session: unknown value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := fromJSON(raw, true)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func fromJSON(raw any, allowList bool) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case string:
		return String(x), nil
	case []any:
		if !allowList {
			return Value{}, errors.New("session: nested lists are not supported")
		}
		vs := make([]Value, 0, len(x))
		for _, e := range x {
			ev, err := fromJSON(e, false)
			if err != nil {
				return Value{}, err
			}
			vs = append(vs, ev)
		}
		return List(vs...), nil
	}
	return Value{}, fmt.Errorf("session: unsupported JSON value %T", raw)
}

// ErrInvalidLiteral is wrapped by every Decode failure.
var ErrInvalidLiteral = errors.New("invalid literal")

// Decode parses a literal expression. The grammar is closed: null, booleans,
// integers, floats, quoted or bare strings, and flat lists of those.
// The spellings None, True and False are accepted as null and booleans.
// Mappings, anchors, aliases, nested lists and explicit custom tags are rejected.
func Decode(expr string) (Value, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Value{}, fmt.Errorf("%w: empty expression", ErrInvalidLiteral)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(expr), &doc); err != nil {
		return Value{}, fmt.Errorf("%w: %q: %v", ErrInvalidLiteral, expr, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return Value{}, fmt.Errorf("%w: %q", ErrInvalidLiteral, expr)
	}
	v, err := fromNode(doc.Content[0], true)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q: %v", ErrInvalidLiteral, expr, err)
	}
	return v, nil
}

func fromNode(n *yaml.Node, allowList bool) (Value, error) {
	if n.Anchor != "" {
		return Value{}, errors.New("anchors are not allowed")
	}
	switch n.Kind {
	case yaml.ScalarNode:
		return fromScalar(n)
	case yaml.SequenceNode:
		if !allowList {
			return Value{}, errors.New("nested lists are not allowed")
		}
		if n.Tag != "" && n.ShortTag() != "!!seq" {
			return Value{}, fmt.Errorf("tag %s is not allowed", n.Tag)
		}
		vs := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromNode(c, false)
			if err != nil {
				return Value{}, err
			}
			vs = append(vs, v)
		}
		return List(vs...), nil
	case yaml.MappingNode:
		return Value{}, errors.New("mappings are not allowed")
	case yaml.AliasNode:
		return Value{}, errors.New("aliases are not allowed")
	}
	return Value{}, fmt.Errorf("unsupported node kind %d", n.Kind)
}

func fromScalar(n *yaml.Node) (Value, error) {
	if n.Style == 0 {
		switch n.Value {
		case "None":
			return Null(), nil
		case "True":
			return Bool(true), nil
		case "False":
			return Bool(false), nil
		}
	}
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return Value{}, err
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case "!!str":
		return String(n.Value), nil
	}
	return Value{}, fmt.Errorf("tag %s is not allowed", n.Tag)
}
