package workflow

import (
	"bytes"
)

// ValueKind discriminates the tagged Value union.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindBool   ValueKind = "bool"
	KindInt    ValueKind = "int"
	KindFloat  ValueKind = "float"
	KindString ValueKind = "string"
	KindBytes  ValueKind = "bytes"
	KindList   ValueKind = "list"
	KindMap    ValueKind = "map"
)

// Value is a dynamically typed workflow state value. The Kind field selects
// which payload field is meaningful; snapshots serialise the struct
// directly, keeping state portable across JSON and CBOR.
type Value struct {
	Kind  ValueKind        `json:"kind" cbor:"1,keyasint"`
	Bool  bool             `json:"bool,omitempty" cbor:"2,keyasint,omitempty"`
	Int   int64            `json:"int,omitempty" cbor:"3,keyasint,omitempty"`
	Float float64          `json:"float,omitempty" cbor:"4,keyasint,omitempty"`
	Str   string           `json:"string,omitempty" cbor:"5,keyasint,omitempty"`
	Bytes []byte           `json:"bytes,omitempty" cbor:"6,keyasint,omitempty"`
	List  []Value          `json:"list,omitempty" cbor:"7,keyasint,omitempty"`
	Map   map[string]Value `json:"map,omitempty" cbor:"8,keyasint,omitempty"`
}

// Null is the absent value.
func Null() Value { return Value{Kind: KindNull} }

// BoolValue wraps a bool.
func BoolValue(v bool) Value { return Value{Kind: KindBool, Bool: v} }

// IntValue wraps an int64.
func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }

// FloatValue wraps a float64.
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }

// StringValue wraps a string.
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// BytesValue wraps a byte slice.
func BytesValue(v []byte) Value { return Value{Kind: KindBytes, Bytes: v} }

// ListValue wraps a list of values.
func ListValue(items ...Value) Value { return Value{Kind: KindList, List: items} }

// MapValue wraps a string-keyed map of values.
func MapValue(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// IsNull reports whether the value is the null value.
func (v Value) IsNull() bool { return v.Kind == KindNull || v.Kind == "" }

// AsBool returns the bool payload.
func (v Value) AsBool() (bool, bool) { return v.Bool, v.Kind == KindBool }

// AsInt returns the int payload.
func (v Value) AsInt() (int64, bool) { return v.Int, v.Kind == KindInt }

// AsFloat returns a numeric payload widened to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.Float, true
	case KindInt:
		return float64(v.Int), true
	default:
		return 0, false
	}
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.Str, v.Kind == KindString }

// AsBytes returns the bytes payload.
func (v Value) AsBytes() ([]byte, bool) { return v.Bytes, v.Kind == KindBytes }

// AsList returns the list payload.
func (v Value) AsList() ([]Value, bool) { return v.List, v.Kind == KindList }

// AsMap returns the map payload.
func (v Value) AsMap() (map[string]Value, bool) { return v.Map, v.Kind == KindMap }

// Clone returns a deep copy.
func (v Value) Clone() Value {
	out := v
	if v.Bytes != nil {
		out.Bytes = append([]byte(nil), v.Bytes...)
	}
	if v.List != nil {
		out.List = make([]Value, len(v.List))
		for i, item := range v.List {
			out.List[i] = item.Clone()
		}
	}
	if v.Map != nil {
		out.Map = make(map[string]Value, len(v.Map))
		for k, item := range v.Map {
			out.Map[k] = item.Clone()
		}
	}
	return out
}

// Equal reports deep structural equality.
func (v Value) Equal(o Value) bool {
	if v.IsNull() && o.IsNull() {
		return true
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindString:
		return v.Str == o.Str
	case KindBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, item := range v.Map {
			other, ok := o.Map[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return true
}
