// Package vals defines the closed set of field value variants used across
// strata: string, number, bool, null, map and list. Field bags are
// map[string]Value rather than map[string]interface{} so every consumer
// (validator, reducer, fragment scorer) handles the same small set of cases.
package vals

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/stratahq/strata/errors"
)

// Kind enumerates the value variants.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

// Value is a tagged union over the closed variant set. The zero Value is
// null.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Map  map[string]Value
	List []Value
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// String wraps a string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number wraps a numeric value.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Boolean wraps a bool value.
func Boolean(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// FromAny converts a JSON-decoded interface{} into a Value. Unknown Go
// types are rejected rather than coerced.
func FromAny(raw interface{}) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, errors.Wrapf(errors.ErrValidation, "non-numeric json.Number %q", x.String())
		}
		return Number(f), nil
	case bool:
		return Boolean(x), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(x))
		for k, elem := range x {
			ev, err := FromAny(elem)
			if err != nil {
				return Value{}, err
			}
			m[k] = ev
		}
		return Value{Kind: KindMap, Map: m}, nil
	case []interface{}:
		l := make([]Value, 0, len(x))
		for _, elem := range x {
			ev, err := FromAny(elem)
			if err != nil {
				return Value{}, err
			}
			l = append(l, ev)
		}
		return Value{Kind: KindList, List: l}, nil
	default:
		return Value{}, errors.Wrapf(errors.ErrValidation, "unsupported value type %T", raw)
	}
}

// FieldsFromAny converts a decoded JSON object into a field bag.
func FieldsFromAny(raw map[string]interface{}) (map[string]Value, error) {
	fields := make(map[string]Value, len(raw))
	for k, elem := range raw {
		v, err := FromAny(elem)
		if err != nil {
			return nil, errors.Wrapf(err, "field %q", k)
		}
		fields[k] = v
	}
	return fields, nil
}

// ToAny converts a Value back to its interface{} JSON shape.
func (v Value) ToAny() interface{} {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindMap:
		m := make(map[string]interface{}, len(v.Map))
		for k, elem := range v.Map {
			m[k] = elem.ToAny()
		}
		return m
	case KindList:
		l := make([]interface{}, 0, len(v.List))
		for _, elem := range v.List {
			l = append(l, elem.ToAny())
		}
		return l
	default:
		return nil
	}
}

// MarshalJSON encodes the value as plain JSON (no tag envelope).
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON decodes plain JSON into the tagged representation.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Equal reports deep equality between two values.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	case KindMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, elem := range v.Map {
			other, ok := o.Map[k]
			if !ok || !elem.Equal(other) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i, elem := range v.List {
			if !elem.Equal(o.List[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// TypeName returns the schema type name for the value. String values that
// parse as dates report "date" so schema inference can distinguish them.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindString:
		if looksLikeDate(v.Str) {
			return "date"
		}
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return "null"
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
}

func looksLikeDate(s string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// SortedKeys returns the keys of a field bag in lexicographic order.
// Deterministic iteration matters anywhere output bytes must be stable.
func SortedKeys(fields map[string]Value) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalFields encodes a field bag with lexicographically ordered keys.
func MarshalFields(fields map[string]Value) ([]byte, error) {
	// encoding/json sorts map keys, which keeps stored field bags stable.
	return json.Marshal(fields)
}

// UnmarshalFields decodes a stored field bag.
func UnmarshalFields(data []byte) (map[string]Value, error) {
	if len(data) == 0 {
		return map[string]Value{}, nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode field bag")
	}
	return FieldsFromAny(raw)
}
