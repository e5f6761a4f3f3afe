// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package prefs models the preference document consumed by the settings
// resolver: an ordered tree of typed values split into managed (policy) and
// user levels.
package prefs

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindList
	KindDict
)

var kindNames = [...]string{"null", "bool", "int", "double", "string", "list", "dict"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// Value is a tagged union. A nil *Value behaves as a missing value: every
// accessor reports false and Find returns nil.
type Value struct {
	kind Kind
	b    bool
	i    int
	d    float64
	s    string
	list []*Value
	dict *Dict
}

func Null() *Value { return &Value{kind: KindNull} }
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }
func Int(i int) *Value { return &Value{kind: KindInt, i: i} }
func Double(d float64) *Value { return &Value{kind: KindDouble, d: d} }
func String(s string) *Value { return &Value{kind: KindString, s: s} }
func DictValue(d *Dict) *Value { return &Value{kind: KindDict, dict: d} }

// List builds a list value from items.
func List(items ...*Value) *Value {
	return &Value{kind: KindList, list: append([]*Value(nil), items...)}
}

// Strings builds a list of string values.
func Strings(items ...string) *Value {
	out := make([]*Value, 0, len(items))
	for _, s := range items {
		out = append(out, String(s))
	}
	return &Value{kind: KindList, list: out}
}

// Kind returns the variant. A nil value reports KindNull.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

func (v *Value) IsNull() bool { return v == nil || v.kind == KindNull }

func (v *Value) AsBool() (bool, bool) {
	if v == nil || v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v *Value) AsInt() (int, bool) {
	if v == nil || v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsDouble accepts both doubles and ints.
func (v *Value) AsDouble() (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch v.kind {
	case KindDouble:
		return v.d, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

func (v *Value) AsString() (string, bool) {
	if v == nil || v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsList returns the list items. The slice must not be modified.
func (v *Value) AsList() ([]*Value, bool) {
	if v == nil || v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v *Value) AsDict() (*Dict, bool) {
	if v == nil || v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Find returns the child named key when v is a dict.
func (v *Value) Find(key string) *Value {
	d, ok := v.AsDict()
	if !ok {
		return nil
	}
	return d.Get(key)
}

// FindPath walks nested dicts one key at a time.
func (v *Value) FindPath(keys ...string) *Value {
	cur := v
	for _, k := range keys {
		cur = cur.Find(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Equal reports deep equality. Dict key order is not significant.
func (v *Value) Equal(other *Value) bool {
	if v.Kind() != other.Kind() {
		return false
	}
	switch v.Kind() {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInt:
		return v.i == other.i
	case KindDouble:
		return v.d == other.d
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		return v.dict.Equal(other.dict)
	}
	return false
}

// MarshalJSON encodes the value, keeping dict insertion order.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) encode(buf *bytes.Buffer) error {
	switch v.Kind() {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.Itoa(v.i))
	case KindDouble:
		raw, err := json.Marshal(v.d)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case KindString:
		raw, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(raw)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindDict:
		return v.dict.encode(buf)
	}
	return nil
}

// Dict is an insertion-ordered string-keyed map of values.
type Dict struct {
	keys   []string
	values map[string]*Value
}

func NewDict() *Dict {
	return &Dict{values: make(map[string]*Value)}
}

// Set stores value under key. Re-setting an existing key keeps its position.
func (d *Dict) Set(key string, value *Value) *Dict {
	if d.values == nil {
		d.values = make(map[string]*Value)
	}
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
	return d
}

func (d *Dict) Get(key string) *Value {
	if d == nil {
		return nil
	}
	return d.values[key]
}

func (d *Dict) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.values[key]
	return ok
}

func (d *Dict) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.keys...)
}

// Range calls fn for each entry in insertion order until fn returns false.
func (d *Dict) Range(fn func(key string, value *Value) bool) {
	if d == nil {
		return
	}
	for _, k := range d.keys {
		if !fn(k, d.values[k]) {
			return
		}
	}
}

func (d *Dict) Equal(other *Dict) bool {
	if d.Len() != other.Len() {
		return false
	}
	for _, k := range d.Keys() {
		if !other.Has(k) || !d.Get(k).Equal(other.Get(k)) {
			return false
		}
	}
	return true
}

func (d *Dict) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		raw, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(raw)
		buf.WriteByte(':')
		if err := d.values[k].encode(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}
