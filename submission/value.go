package submission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds
type Kind int

// Value variants
const (
	KindScalar Kind = iota
	KindList
	KindIterations
)

// String returns the variant name
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindList:
		return "list"
	case KindIterations:
		return "iterations"
	default:
		return "unknown"
	}
}

// Value is one answer in a submission: a single string, a list of strings
// (checkbox sets, keys ending in "[]"), or a list of subflow iterations.
type Value struct {
	kind       Kind
	scalar     string
	list       []string
	iterations []Iteration
}

// Scalar creates a single-string value
func Scalar(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// List creates a multi-string value
func List(items ...string) Value {
	out := make([]string, len(items))
	copy(out, items)
	return Value{kind: KindList, list: out}
}

// Iterations creates a subflow value
func Iterations(items ...Iteration) Value {
	out := make([]Iteration, len(items))
	copy(out, items)
	return Value{kind: KindIterations, iterations: out}
}

// Kind returns the variant held
func (v Value) Kind() Kind {
	return v.kind
}

// String returns the scalar, or the list joined by commas
func (v Value) String() string {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindList:
		return strings.Join(v.list, ",")
	default:
		return fmt.Sprintf("[%d iterations]", len(v.iterations))
	}
}

// AsScalar returns the scalar string and whether the value is a scalar
func (v Value) AsScalar() (string, bool) {
	return v.scalar, v.kind == KindScalar
}

// AsList returns the list items and whether the value is a list
func (v Value) AsList() ([]string, bool) {
	return v.list, v.kind == KindList
}

// AsIterations returns the iterations and whether the value holds a subflow
func (v Value) AsIterations() ([]Iteration, bool) {
	return v.iterations, v.kind == KindIterations
}

// Clone returns a deep copy
func (v Value) Clone() Value {
	switch v.kind {
	case KindList:
		return List(v.list...)
	case KindIterations:
		out := make([]Iteration, len(v.iterations))
		for i, it := range v.iterations {
			out[i] = it.Clone()
		}
		return Value{kind: KindIterations, iterations: out}
	default:
		return v
	}
}

// Equal reports deep equality
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		return v.scalar == other.scalar
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != other.list[i] {
				return false
			}
		}
		return true
	default:
		if len(v.iterations) != len(other.iterations) {
			return false
		}
		for i := range v.iterations {
			if !v.iterations[i].Equal(other.iterations[i]) {
				return false
			}
		}
		return true
	}
}

// Interface converts the value to plain Go data (string, []string or
// []map[string]any) for templates, scripts and schema validation.
func (v Value) Interface() any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindList:
		out := make([]string, len(v.list))
		copy(out, v.list)
		return out
	default:
		out := make([]map[string]any, len(v.iterations))
		for i, it := range v.iterations {
			out[i] = it.Map()
		}
		return out
	}
}

// MarshalJSON encodes scalars as strings, lists as string arrays and
// iterations as arrays of objects.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindScalar:
		return json.Marshal(v.scalar)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		if v.iterations == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.iterations)
	}
}

// UnmarshalJSON decodes the inverse of MarshalJSON. Numbers and booleans
// become scalars; an empty array becomes an empty list.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Scalar(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if len(raw) == 0 {
			*v = List()
			return nil
		}
		if first := bytes.TrimSpace(raw[0]); len(first) > 0 && first[0] == '{' {
			var its []Iteration
			if err := json.Unmarshal(data, &its); err != nil {
				return err
			}
			*v = Value{kind: KindIterations, iterations: its}
			return nil
		}
		items := make([]string, 0, len(raw))
		for _, item := range raw {
			var elem Value
			if err := elem.UnmarshalJSON(item); err != nil {
				return err
			}
			items = append(items, elem.scalar)
		}
		*v = Value{kind: KindList, list: items}
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Scalar(strconv.FormatBool(b))
		return nil
	case 'n':
		*v = Scalar("")
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Scalar(n.String())
		return nil
	}
}
