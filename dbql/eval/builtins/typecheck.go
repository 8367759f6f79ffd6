package builtins

import (
	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/value"
)

func init() {
	register("IS_NULL", kindCheck(value.KindNull))
	register("IS_BOOL", kindCheck(value.KindBool))
	register("IS_NUMBER", isNumber)
	register("IS_STRING", kindCheck(value.KindString))
	register("IS_ARRAY", kindCheck(value.KindArray))
	register("IS_LIST", kindCheck(value.KindArray))
	register("IS_OBJECT", kindCheck(value.KindObject))
	register("IS_DOCUMENT", kindCheck(value.KindObject))
	register("IS_INTEGER", kindCheck(value.KindInt))
	register("IS_EMPTY", isEmpty)
	register("TYPENAME", typeName)
	register("TO_BOOL", toBool)
	register("TO_NUMBER", toNumber)
	register("TO_STRING", toString)
	register("TO_ARRAY", toArray)
	register("COALESCE", coalesce)
	register("NOT_NULL", coalesce)
	register("NULL_COALESCE", nullCoalesce)
	register("NULLIF", nullIf)
	register("ASSERT", assertFn)
	register("IF", ifFn)
}

func kindCheck(k value.Kind) Func {
	return func(a []value.Value) (value.Value, error) {
		if len(a) != 1 {
			return value.Null(), argErr("IS_*", 1, len(a))
		}
		return value.Bool(a[0].Kind() == k), nil
	}
}

func isNumber(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("IS_NUMBER", 1, len(a))
	}
	return value.Bool(a[0].IsNumber()), nil
}

func typeName(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("TYPENAME", 1, len(a))
	}
	return value.String(a[0].TypeName()), nil
}

func toBool(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("TO_BOOL", 1, len(a))
	}
	return value.Bool(a[0].ToBool()), nil
}

func toNumber(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("TO_NUMBER", 1, len(a))
	}
	if a[0].Kind() == value.KindInt {
		return a[0], nil
	}
	return value.Float(a[0].ToFloat()), nil
}

func toString(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("TO_STRING", 1, len(a))
	}
	return value.String(a[0].ToStringValue()), nil
}

func toArray(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("TO_ARRAY", 1, len(a))
	}
	switch a[0].Kind() {
	case value.KindArray:
		return a[0], nil
	case value.KindNull:
		return value.Array(nil), nil
	case value.KindObject:
		out := make([]value.Value, 0, len(a[0].Keys()))
		for _, k := range a[0].Keys() {
			v, _ := a[0].Get(k)
			out = append(out, v)
		}
		return value.Array(out), nil
	default:
		return value.Array([]value.Value{a[0]}), nil
	}
}

func coalesce(a []value.Value) (value.Value, error) {
	for _, v := range a {
		if !v.IsNull() {
			return v, nil
		}
	}
	return value.Null(), nil
}

func nullCoalesce(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("NULL_COALESCE", 2, len(a))
	}
	if a[0].IsNull() {
		return a[1], nil
	}
	return a[0], nil
}

func isEmpty(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("IS_EMPTY", 1, len(a))
	}
	switch a[0].Kind() {
	case value.KindNull:
		return value.Bool(true), nil
	case value.KindString:
		return value.Bool(a[0].AsString() == ""), nil
	case value.KindArray:
		return value.Bool(len(a[0].AsArray()) == 0), nil
	case value.KindObject:
		return value.Bool(len(a[0].Keys()) == 0), nil
	default:
		return value.Bool(false), nil
	}
}

func nullIf(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("NULLIF", 2, len(a))
	}
	if value.Equal(a[0], a[1]) {
		return value.Null(), nil
	}
	return a[0], nil
}

func assertFn(a []value.Value) (value.Value, error) {
	if len(a) < 1 || len(a) > 2 {
		return value.Null(), argErr("ASSERT", 2, len(a))
	}
	if a[0].ToBool() {
		return value.Bool(true), nil
	}
	msg := "assertion failed"
	if len(a) == 2 {
		msg = a[1].ToStringValue()
	}
	return value.Null(), dberr.New(dberr.ExecutionError, "%s", msg)
}

func ifFn(a []value.Value) (value.Value, error) {
	if len(a) != 3 {
		return value.Null(), argErr("IF", 3, len(a))
	}
	if a[0].ToBool() {
		return a[1], nil
	}
	return a[2], nil
}
