package model

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unique"

	gojson "github.com/goccy/go-json"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindInvalid represents an invalid kind.
	KindInvalid Kind = iota
	// KindNull represents a null value.
	KindNull
	// KindInt represents an integer value.
	KindInt
	// KindFloat represents a float value.
	KindFloat
	// KindString represents a string value.
	KindString
	// KindBool represents a boolean value.
	KindBool
	// KindBytes represents a binary value.
	KindBytes
	// KindTime represents a timestamp (nanosecond precision, UTC).
	KindTime
	// KindList represents a multi-valued column (list or set).
	KindList
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	default:
		return "invalid"
	}
}

// ParseKind returns the kind for a name produced by Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k := KindNull; k <= KindList; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindInvalid, false
}

// Value is a small typed column value.
//
// Strings are interned so that rows repeating the same values share storage.
type Value struct {
	Kind Kind                  `json:"k"`
	I64  int64                 `json:"i,omitempty"`
	F64  float64               `json:"f,omitempty"`
	s    unique.Handle[string] `json:"-"`
	B    bool                  `json:"b,omitempty"`
	Raw  []byte                `json:"r,omitempty"`
	A    []Value               `json:"a,omitempty"`
}

// Null returns a null Value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an int64 Value.
func Int(v int64) Value { return Value{Kind: KindInt, I64: v} }

// Float returns a float64 Value.
func Float(v float64) Value { return Value{Kind: KindFloat, F64: v} }

// String returns a string Value.
func String(v string) Value { return Value{Kind: KindString, s: unique.Make(v)} }

// Bool returns a boolean Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Bytes returns a binary Value. The slice is not copied.
func Bytes(v []byte) Value { return Value{Kind: KindBytes, Raw: v} }

// Time returns a timestamp Value.
func Time(t time.Time) Value { return Value{Kind: KindTime, I64: t.UnixNano()} }

// List returns a multi-valued Value.
func List(v ...Value) Value { return Value{Kind: KindList, A: v} }

// IsNull reports whether v is null or unset.
func (v Value) IsNull() bool { return v.Kind == KindNull || v.Kind == KindInvalid }

// AsInt64 returns the int64 value if Kind is KindInt.
func (v Value) AsInt64() (int64, bool) {
	if v.Kind != KindInt {
		return 0, false
	}
	return v.I64, true
}

// AsFloat64 returns the numeric value for KindInt and KindFloat.
func (v Value) AsFloat64() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.F64, true
	case KindInt:
		return float64(v.I64), true
	default:
		return 0, false
	}
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.s.Value(), true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.Kind != KindBool {
		return false, false
	}
	return v.B, true
}

// AsBytes returns the binary value if Kind is KindBytes.
func (v Value) AsBytes() ([]byte, bool) {
	if v.Kind != KindBytes {
		return nil, false
	}
	return v.Raw, true
}

// AsTime returns the timestamp if Kind is KindTime.
func (v Value) AsTime() (time.Time, bool) {
	if v.Kind != KindTime {
		return time.Time{}, false
	}
	return time.Unix(0, v.I64).UTC(), true
}

// AsList returns the elements if Kind is KindList.
func (v Value) AsList() ([]Value, bool) {
	if v.Kind != KindList {
		return nil, false
	}
	return v.A, true
}

// Elements returns the values of a multi-valued column, or v itself for
// single values. Null values yield nothing.
func (v Value) Elements() []Value {
	switch {
	case v.IsNull():
		return nil
	case v.Kind == KindList:
		return v.A
	default:
		return []Value{v}
	}
}

// Any converts v back into a plain Go value.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.I64
	case KindFloat:
		return v.F64
	case KindString:
		return v.s.Value()
	case KindBool:
		return v.B
	case KindBytes:
		return v.Raw
	case KindTime:
		t, _ := v.AsTime()
		return t
	case KindList:
		out := make([]any, len(v.A))
		for i := range v.A {
			out[i] = v.A[i].Any()
		}
		return out
	default:
		return nil
	}
}

// String implements fmt.Stringer.
func (v Value) String() string {
	switch v.Kind {
	case KindNull, KindInvalid:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s.Value())
	case KindBool:
		return strconv.FormatBool(v.B)
	case KindBytes:
		return "0x" + hex.EncodeToString(v.Raw)
	case KindTime:
		t, _ := v.AsTime()
		return t.Format(time.RFC3339Nano)
	case KindList:
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return "invalid"
}

// Key returns a stable string representation for use in maps and identities.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindInt:
		return "i:" + strconv.FormatInt(v.I64, 10)
	case KindFloat:
		return "f:" + strconv.FormatUint(math.Float64bits(v.F64), 16)
	case KindString:
		return "s:" + v.s.Value()
	case KindBool:
		if v.B {
			return "b:1"
		}
		return "b:0"
	case KindBytes:
		return "x:" + hex.EncodeToString(v.Raw)
	case KindTime:
		return "t:" + strconv.FormatInt(v.I64, 10)
	case KindList:
		parts := make([]string, len(v.A))
		for i := range v.A {
			parts[i] = v.A[i].Key()
		}
		return "a:" + strings.Join(parts, "\x1f")
	default:
		return "invalid"
	}
}

// Equal reports whether two values are identical.
func (v Value) Equal(o Value) bool { return v.Key() == o.Key() }

// Compare orders two values.
//
// Numbers compare numerically across int and float. Values of different kinds
// order by kind. Null (and unset) values order after every other value.
func Compare(a, b Value) int {
	an, bn := a.IsNull(), b.IsNull()
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	}

	if a.Kind == KindInt && b.Kind == KindInt {
		return cmp.Compare(a.I64, b.I64)
	}
	if af, ok := a.AsFloat64(); ok {
		if bf, ok := b.AsFloat64(); ok {
			return cmp.Compare(af, bf)
		}
	}
	if a.Kind != b.Kind {
		return cmp.Compare(a.Kind, b.Kind)
	}

	switch a.Kind {
	case KindString:
		return strings.Compare(a.s.Value(), b.s.Value())
	case KindBool:
		switch {
		case a.B == b.B:
			return 0
		case !a.B:
			return -1
		default:
			return 1
		}
	case KindBytes:
		return bytes.Compare(a.Raw, b.Raw)
	case KindTime:
		return cmp.Compare(a.I64, b.I64)
	case KindList:
		for i := 0; i < len(a.A) && i < len(b.A); i++ {
			if c := Compare(a.A[i], b.A[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(a.A), len(b.A))
	}
	return 0
}

// jsonValue is the wire form of a Value.
type jsonValue struct {
	Kind Kind    `json:"k"`
	I64  int64   `json:"i,omitempty"`
	F64  float64 `json:"f,omitempty"`
	S    string  `json:"s,omitempty"`
	B    bool    `json:"b,omitempty"`
	Raw  []byte  `json:"r,omitempty"`
	A    []Value `json:"a,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	w := jsonValue{Kind: v.Kind, I64: v.I64, F64: v.F64, B: v.B, Raw: v.Raw, A: v.A}
	if v.Kind == KindString {
		w.S = v.s.Value()
	}
	return gojson.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w jsonValue
	if err := gojson.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = Value{Kind: w.Kind, I64: w.I64, F64: w.F64, B: w.B, Raw: w.Raw, A: w.A}
	if w.Kind == KindString {
		v.s = unique.Make(w.S)
	}
	return nil
}

// FromAny converts a plain Go value (as produced by JSON decoding or user
// code) into a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		if t > math.MaxInt64 {
			return Value{}, fmt.Errorf("unsigned value %d overflows int64", t)
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case gojson.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case []byte:
		return Bytes(t), nil
	case time.Time:
		return Time(t), nil
	case []any:
		out := make([]Value, 0, len(t))
		for _, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			out = append(out, ev)
		}
		return List(out...), nil
	case []string:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = String(e)
		}
		return List(out...), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

// MustFromAny is like FromAny but panics on error. Intended for tests and
// literals.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}
