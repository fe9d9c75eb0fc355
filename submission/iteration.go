package submission

import (
	"encoding/json"
	"sort"
)

// Reserved iteration keys
const (
	UUIDKey                = "uuid"
	IterationIsCompleteKey = "iterationIsComplete"
)

// Iteration is one instance of a subflow's repeated data
type Iteration struct {
	UUID     string
	Complete bool
	Fields   map[string]Value
}

// NewIteration creates an incomplete iteration with the given fields
func NewIteration(uuid string, fields map[string]Value) Iteration {
	it := Iteration{UUID: uuid, Fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		if k == UUIDKey || k == IterationIsCompleteKey {
			continue
		}
		it.Fields[k] = v
	}
	return it
}

// Get returns the field value and whether it is present
func (it Iteration) Get(key string) (Value, bool) {
	v, ok := it.Fields[key]
	return v, ok
}

// GetString returns the scalar at key, or "" when absent or not a scalar
func (it Iteration) GetString(key string) string {
	if v, ok := it.Fields[key]; ok {
		s, _ := v.AsScalar()
		return s
	}
	return ""
}

// Set assigns a field value
func (it *Iteration) Set(key string, v Value) {
	if it.Fields == nil {
		it.Fields = make(map[string]Value)
	}
	it.Fields[key] = v
}

// Clone returns a deep copy
func (it Iteration) Clone() Iteration {
	out := Iteration{UUID: it.UUID, Complete: it.Complete, Fields: make(map[string]Value, len(it.Fields))}
	for k, v := range it.Fields {
		out.Fields[k] = v.Clone()
	}
	return out
}

// Equal reports deep equality
func (it Iteration) Equal(other Iteration) bool {
	if it.UUID != other.UUID || it.Complete != other.Complete || len(it.Fields) != len(other.Fields) {
		return false
	}
	for k, v := range it.Fields {
		ov, ok := other.Fields[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Map flattens the iteration into plain Go data, reserved keys included
func (it Iteration) Map() map[string]any {
	out := make(map[string]any, len(it.Fields)+2)
	for k, v := range it.Fields {
		out[k] = v.Interface()
	}
	out[UUIDKey] = it.UUID
	out[IterationIsCompleteKey] = it.Complete
	return out
}

// MarshalJSON encodes the iteration as a flat object
func (it Iteration) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(it.Fields)+2)
	for k, v := range it.Fields {
		out[k] = v
	}
	out[UUIDKey] = it.UUID
	out[IterationIsCompleteKey] = it.Complete
	return json.Marshal(out)
}

// UnmarshalJSON decodes a flat object
func (it *Iteration) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Iteration{Fields: make(map[string]Value, len(raw))}
	for k, msg := range raw {
		switch k {
		case UUIDKey:
			if err := json.Unmarshal(msg, &out.UUID); err != nil {
				return err
			}
		case IterationIsCompleteKey:
			var complete any
			if err := json.Unmarshal(msg, &complete); err != nil {
				return err
			}
			out.Complete = complete == true || complete == "true"
		default:
			var v Value
			if err := json.Unmarshal(msg, &v); err != nil {
				return err
			}
			out.Fields[k] = v
		}
	}
	*it = out
	return nil
}

// Keys returns the field names sorted
func (it Iteration) Keys() []string {
	keys := make([]string, 0, len(it.Fields))
	for k := range it.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
