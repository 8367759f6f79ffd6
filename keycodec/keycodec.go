// Package keycodec implements the binary-comparable encoding used for
// secondary index keys: a Value is encoded to a byte string such that
// lexicographic byte order matches Value ordering over the numeric and
// string domains.
package keycodec

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/solisoft/solidb/value"
)

const (
	classNull   byte = 0
	classBool   byte = 1
	classInt    byte = 2
	classFloat  byte = 3
	classString byte = 4
)

// Encode produces a binary-comparable encoding of v. Arrays and Objects
// fall back to their JSON form (not order-preserving).
func Encode(v value.Value) []byte {
	switch v.Kind() {
	case value.KindNull:
		return []byte{classNull}
	case value.KindBool:
		b := byte(0)
		if v.AsBool() {
			b = 1
		}
		return []byte{classBool, b}
	case value.KindInt:
		buf := make([]byte, 9)
		buf[0] = classInt
		// Offset by 2^63 so two's-complement ordering becomes unsigned
		// lexicographic ordering.
		binary.BigEndian.PutUint64(buf[1:], uint64(v.AsInt())^uint64(1)<<63)
		return buf
	case value.KindFloat:
		buf := make([]byte, 9)
		buf[0] = classFloat
		binary.BigEndian.PutUint64(buf[1:], sortableFloatBits(v.AsFloat()))
		return buf
	case value.KindString:
		buf := make([]byte, 1+len(v.AsString()))
		buf[0] = classString
		copy(buf[1:], v.AsString())
		return buf
	default:
		j, _ := value.MarshalJSON(v)
		buf := make([]byte, 1+len(j))
		buf[0] = classString
		copy(buf[1:], j)
		return buf
	}
}

// EncodeHex wraps Encode's output in hex so it can be embedded inside a
// textual index key.
func EncodeHex(v value.Value) string {
	return hex.EncodeToString(Encode(v))
}

// sortableFloatBits applies the standard sortable bit transform: flip the
// sign bit for positive numbers, flip all bits for negative numbers, so
// the resulting uint64 orders the same way as the float64.
func sortableFloatBits(f float64) uint64 {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | (1 << 63)
}

// Decode reverses Encode for the Null/Bool/Int/Float/String cases it can
// round-trip; it returns ok=false for the JSON fallback class (ambiguous
// with String) since arrays/objects are not meant to be decoded back.
func Decode(b []byte) (value.Value, bool) {
	if len(b) == 0 {
		return value.Null(), false
	}
	switch b[0] {
	case classNull:
		return value.Null(), true
	case classBool:
		if len(b) < 2 {
			return value.Null(), false
		}
		return value.Bool(b[1] != 0), true
	case classInt:
		if len(b) < 9 {
			return value.Null(), false
		}
		u := binary.BigEndian.Uint64(b[1:9])
		return value.Int(int64(u ^ (1 << 63))), true
	case classFloat:
		if len(b) < 9 {
			return value.Null(), false
		}
		u := binary.BigEndian.Uint64(b[1:9])
		if u&(1<<63) != 0 {
			u &^= 1 << 63
		} else {
			u = ^u
		}
		return value.Float(math.Float64frombits(u)), true
	case classString:
		return value.String(string(b[1:])), true
	default:
		return value.Null(), false
	}
}
