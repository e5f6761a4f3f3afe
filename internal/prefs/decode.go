// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package prefs

import (
	"math"
	"strconv"
	"strings"

	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// DecodeJSON decodes a JSON document, keeping object key order.
func DecodeJSON(data []byte) (*Value, error) {
	if !gjson.ValidBytes(data) {
		return nil, sigilerr.New(sigilerr.CodePrefsDecodeInvalidFormat, "decoding json: invalid document")
	}
	return fromGJSON(gjson.ParseBytes(data)), nil
}

func fromGJSON(r gjson.Result) *Value {
	switch r.Type {
	case gjson.Null:
		return Null()
	case gjson.False:
		return Bool(false)
	case gjson.True:
		return Bool(true)
	case gjson.String:
		return String(r.Str)
	case gjson.Number:
		return fromNumber(r.Raw, r.Num)
	case gjson.JSON:
		if r.IsArray() {
			items := []*Value{}
			r.ForEach(func(_, item gjson.Result) bool {
				items = append(items, fromGJSON(item))
				return true
			})
			return List(items...)
		}
		d := NewDict()
		r.ForEach(func(key, item gjson.Result) bool {
			d.Set(key.String(), fromGJSON(item))
			return true
		})
		return DictValue(d)
	}
	return Null()
}

// fromNumber keeps integral literals that fit in 32 bits as ints; everything
// else becomes a double.
func fromNumber(raw string, num float64) *Value {
	if !strings.ContainsAny(raw, ".eE") {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil && i >= math.MinInt32 && i <= math.MaxInt32 {
			return Int(int(i))
		}
	}
	return Double(num)
}

// DecodeYAML decodes a YAML document, keeping mapping key order. Non-string
// mapping keys are converted to their scalar text.
func DecodeYAML(data []byte) (*Value, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, sigilerr.Wrap(err, sigilerr.CodePrefsDecodeInvalidFormat, "decoding yaml")
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return Null(), nil
	}
	dec := yamlDecoder{active: map[*yaml.Node]bool{}}
	return dec.decode(root.Content[0])
}

// MaxYAMLNodes bounds the nodes produced from one YAML document, counting
// every alias expansion.
const MaxYAMLNodes = 100_000

type yamlDecoder struct {
	active map[*yaml.Node]bool
	nodes  int
}

func (d *yamlDecoder) decode(n *yaml.Node) (*Value, error) {
	d.nodes++
	if d.nodes > MaxYAMLNodes {
		return nil, sigilerr.New(sigilerr.CodePrefsDecodeInvalidFormat, "decoding yaml: document expands past node limit",
			sigilerr.Field("limit", MaxYAMLNodes))
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return d.decode(n.Content[0])
	case yaml.AliasNode:
		if n.Alias == nil || d.active[n.Alias] {
			return nil, sigilerr.New(sigilerr.CodePrefsDecodeInvalidFormat, "decoding yaml: recursive alias",
				sigilerr.Field("alias", n.Value), sigilerr.Field("line", n.Line))
		}
		d.active[n.Alias] = true
		defer delete(d.active, n.Alias)
		return d.decode(n.Alias)
	case yaml.SequenceNode:
		items := make([]*Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := d.decode(c)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return List(items...), nil
	case yaml.MappingNode:
		dict := NewDict()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := d.decode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			dict.Set(n.Content[i].Value, v)
		}
		return DictValue(dict), nil
	case yaml.ScalarNode:
		return fromScalar(n)
	}
	return nil, sigilerr.New(sigilerr.CodePrefsDecodeInvalidFormat, "decoding yaml: unsupported node",
		sigilerr.Field("line", n.Line))
}

func fromScalar(n *yaml.Node) (*Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodePrefsDecodeInvalidFormat, "decoding yaml bool")
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodePrefsDecodeInvalidFormat, "decoding yaml int")
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return Double(float64(i)), nil
		}
		return Int(int(i)), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodePrefsDecodeInvalidFormat, "decoding yaml float")
		}
		return Double(f), nil
	default:
		return String(n.Value), nil
	}
}
