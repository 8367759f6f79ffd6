// Package value implements the Value sum type shared by the query
// evaluator, the storage engine, and the key codec: Null, Bool, Integer,
// Float, String, Array, and Object (an ordered string-keyed mapping).
package value

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind distinguishes the Value variants for type switches and ordering.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// Value is the sum type. Only one of the typed fields is meaningful,
// selected by Kind. Object preserves insertion order via Keys/fields.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	f      float64
	s      string
	arr    []Value
	okeys  []string
	ovals  map[string]Value
}

func Null() Value             { return Value{kind: KindNull} }
func Bool(b bool) Value       { return Value{kind: KindBool, b: b} }
func Int(i int64) Value       { return Value{kind: KindInt, i: i} }
func Float(f float64) Value   { return Value{kind: KindFloat, f: f} }
func String(s string) Value   { return Value{kind: KindString, s: s} }
func Array(vs []Value) Value  { return Value{kind: KindArray, arr: vs} }

// Object builds an ordered object from parallel key/value slices.
func Object(keys []string, vals []Value) Value {
	m := make(map[string]Value, len(keys))
	ks := make([]string, 0, len(keys))
	for i, k := range keys {
		if _, exists := m[k]; !exists {
			ks = append(ks, k)
		}
		m[k] = vals[i]
	}
	return Value{kind: KindObject, okeys: ks, ovals: m}
}

// NewObject starts an empty ordered object for incremental Set calls.
func NewObject() Value {
	return Value{kind: KindObject, ovals: map[string]Value{}}
}

func (v *Value) Set(key string, val Value) {
	if v.ovals == nil {
		v.kind = KindObject
		v.ovals = map[string]Value{}
	}
	if _, ok := v.ovals[key]; !ok {
		v.okeys = append(v.okeys, key)
	}
	v.ovals[key] = val
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() bool     { return v.b }
func (v Value) AsInt() int64     { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() string { return v.s }
func (v Value) AsArray() []Value { return v.arr }

// Keys returns an object's keys in insertion order. Empty for non-objects.
func (v Value) Keys() []string { return v.okeys }

// Get looks up an object field; returns Null and false if absent or v
// is not an object.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	val, ok := v.ovals[key]
	return val, ok
}

// IsNumber reports whether v is Integer or Float.
func (v Value) IsNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// Number returns v's numeric value as float64, and whether v was numeric.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// TypeName mirrors the TYPENAME built-in.
func (v Value) TypeName() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt, KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// ToBool implements the DBQL truthiness used by FILTER/AND/OR/NOT:
// null and false are falsy, zero numbers and empty strings/arrays/objects
// are falsy, everything else is truthy.
func (v Value) ToBool() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindArray:
		return len(v.arr) != 0
	case KindObject:
		return len(v.okeys) != 0
	}
	return false
}

// ToFloat coerces a Value to float64 for arithmetic, the TO_NUMBER rules:
// numbers pass through, numeric strings parse, bool is 0/1, everything
// else is 0.
func (v Value) ToFloat() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ToStringValue renders a Value the way TO_STRING/TemplateString does:
// Null becomes the literal "null", not an empty string.
func (v Value) ToStringValue() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindArray, KindObject:
		b, _ := MarshalJSON(v)
		return string(b)
	}
	return ""
}

func (v Value) String() string { return fmt.Sprintf("%v", v.ToStringValue()) }

// rankOf implements the ordering Null < Bool < Number < String < Array < Object.
func rankOf(v Value) int {
	switch v.kind {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt, KindFloat:
		return 2
	case KindString:
		return 3
	case KindArray:
		return 4
	case KindObject:
		return 5
	}
	return 6
}

// Compare implements compare_values: -1, 0, 1. Numbers compare by real
// value regardless of Int/Float representation; strings by codepoint
// (Go's native string ordering, which is codepoint order for valid UTF-8).
func Compare(a, b Value) int {
	ra, rb := rankOf(a), rankOf(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindBool:
		if a.b == b.b {
			return 0
		}
		if !a.b {
			return -1
		}
		return 1
	case KindInt, KindFloat:
		af, _ := a.Number()
		bf, _ := b.Number()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case KindString:
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		default:
			return 0
		}
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(a.arr) < len(b.arr):
			return -1
		case len(a.arr) > len(b.arr):
			return 1
		default:
			return 0
		}
	case KindObject:
		ak := append([]string(nil), a.okeys...)
		bk := append([]string(nil), b.okeys...)
		sort.Strings(ak)
		sort.Strings(bk)
		n := len(ak)
		if len(bk) < n {
			n = len(bk)
		}
		for i := 0; i < n; i++ {
			if ak[i] != bk[i] {
				if ak[i] < bk[i] {
					return -1
				}
				return 1
			}
			if c := Compare(a.ovals[ak[i]], b.ovals[bk[i]]); c != 0 {
				return c
			}
		}
		switch {
		case len(ak) < len(bk):
			return -1
		case len(ak) > len(bk):
			return 1
		default:
			return 0
		}
	}
	return 0
}

// Equal reports a == b under the same semantics as Compare == 0.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }
