package builtins

import (
	"bytes"
	"encoding/json"

	"github.com/solisoft/solidb/value"
)

func init() {
	register("JSON_PARSE", jsonParse)
	register("JSON_STRINGIFY", jsonStringify)
	register("JSON_STRINGIFY_PRETTY", jsonStringifyPretty)
	register("MERGE", merge)
	register("MERGE_DEEP", mergeDeep)
	register("KEEP", keep)
	register("UNSET", unset)
	register("WITHOUT", unset)
	register("HAS", hasKey)
	register("ATTRIBUTES", attributes)
	register("KEYS", attributes)
	register("VALUES", objectValues)
	register("ENTRIES", entries)
	register("FROM_ENTRIES", fromEntries)
	register("ZIP_OBJECT", zip)
	register("ZIP_OBJECTS", zip)
	register("MATCHES", matches)
}

func jsonParse(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("JSON_PARSE", 1, len(a))
	}
	v, err := value.UnmarshalJSON([]byte(a[0].AsString()))
	if err != nil {
		return value.Null(), err
	}
	return v, nil
}

func jsonStringify(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("JSON_STRINGIFY", 1, len(a))
	}
	b, err := value.MarshalJSON(a[0])
	if err != nil {
		return value.Null(), err
	}
	return value.String(string(b)), nil
}

func jsonStringifyPretty(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("JSON_STRINGIFY_PRETTY", 1, len(a))
	}
	raw, err := value.MarshalJSON(a[0])
	if err != nil {
		return value.Null(), err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return value.Null(), err
	}
	return value.String(pretty.String()), nil
}

func merge(a []value.Value) (value.Value, error) {
	out := value.NewObject()
	for _, v := range a {
		if v.Kind() != value.KindObject {
			return value.Null(), typeErr("MERGE", a)
		}
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			out.Set(k, val)
		}
	}
	return out, nil
}

func mergeDeep(a []value.Value) (value.Value, error) {
	if len(a) == 0 {
		return value.NewObject(), nil
	}
	result := a[0]
	for _, v := range a[1:] {
		var err error
		result, err = mergeDeepTwo(result, v)
		if err != nil {
			return value.Null(), err
		}
	}
	return result, nil
}

func mergeDeepTwo(a, b value.Value) (value.Value, error) {
	if a.Kind() != value.KindObject || b.Kind() != value.KindObject {
		return b, nil
	}
	out := value.NewObject()
	for _, k := range a.Keys() {
		v, _ := a.Get(k)
		out.Set(k, v)
	}
	for _, k := range b.Keys() {
		bv, _ := b.Get(k)
		if av, ok := out.Get(k); ok && av.Kind() == value.KindObject && bv.Kind() == value.KindObject {
			merged, err := mergeDeepTwo(av, bv)
			if err != nil {
				return value.Null(), err
			}
			out.Set(k, merged)
			continue
		}
		out.Set(k, bv)
	}
	return out, nil
}

func keep(a []value.Value) (value.Value, error) {
	if len(a) < 2 {
		return value.Null(), argErr("KEEP", 2, len(a))
	}
	if a[0].Kind() != value.KindObject {
		return value.Null(), typeErr("KEEP", a)
	}
	out := value.NewObject()
	for _, k := range a[1:] {
		names := []value.Value{k}
		if k.Kind() == value.KindArray {
			names = k.AsArray()
		}
		for _, n := range names {
			name := n.AsString()
			if v, ok := a[0].Get(name); ok {
				out.Set(name, v)
			}
		}
	}
	return out, nil
}

func unset(a []value.Value) (value.Value, error) {
	if len(a) < 2 {
		return value.Null(), argErr("UNSET", 2, len(a))
	}
	if a[0].Kind() != value.KindObject {
		return value.Null(), typeErr("UNSET", a)
	}
	drop := map[string]bool{}
	for _, k := range a[1:] {
		if k.Kind() == value.KindArray {
			for _, n := range k.AsArray() {
				drop[n.AsString()] = true
			}
			continue
		}
		drop[k.AsString()] = true
	}
	out := value.NewObject()
	for _, k := range a[0].Keys() {
		if drop[k] {
			continue
		}
		v, _ := a[0].Get(k)
		out.Set(k, v)
	}
	return out, nil
}

func hasKey(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("HAS", 2, len(a))
	}
	if a[0].Kind() != value.KindObject {
		return value.Bool(false), nil
	}
	_, ok := a[0].Get(a[1].AsString())
	return value.Bool(ok), nil
}

func attributes(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("ATTRIBUTES", 1, len(a))
	}
	if a[0].Kind() != value.KindObject {
		return value.Null(), typeErr("ATTRIBUTES", a)
	}
	out := make([]value.Value, len(a[0].Keys()))
	for i, k := range a[0].Keys() {
		out[i] = value.String(k)
	}
	return value.Array(out), nil
}

func objectValues(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("VALUES", 1, len(a))
	}
	if a[0].Kind() != value.KindObject {
		return value.Null(), typeErr("VALUES", a)
	}
	out := make([]value.Value, len(a[0].Keys()))
	for i, k := range a[0].Keys() {
		out[i], _ = a[0].Get(k)
	}
	return value.Array(out), nil
}

func entries(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("ENTRIES", 1, len(a))
	}
	if a[0].Kind() != value.KindObject {
		return value.Null(), typeErr("ENTRIES", a)
	}
	out := make([]value.Value, len(a[0].Keys()))
	for i, k := range a[0].Keys() {
		v, _ := a[0].Get(k)
		pair := value.NewObject()
		pair.Set("key", value.String(k))
		pair.Set("value", v)
		out[i] = pair
	}
	return value.Array(out), nil
}

// fromEntries is ENTRIES' inverse: each element is either a {key, value}
// object or a 2-element [key, value] array.
func fromEntries(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("FROM_ENTRIES", 1, len(a))
	}
	if a[0].Kind() != value.KindArray {
		return value.Null(), typeErr("FROM_ENTRIES", a)
	}
	out := value.NewObject()
	for _, entry := range a[0].AsArray() {
		var key, val value.Value
		switch entry.Kind() {
		case value.KindObject:
			key, _ = entry.Get("key")
			val, _ = entry.Get("value")
		case value.KindArray:
			pair := entry.AsArray()
			if len(pair) != 2 {
				return value.Null(), typeErr("FROM_ENTRIES", a)
			}
			key, val = pair[0], pair[1]
		default:
			return value.Null(), typeErr("FROM_ENTRIES", a)
		}
		out.Set(key.ToStringValue(), val)
	}
	return out, nil
}

// matches checks example has the fields of example with equal values;
// a lightweight partial-object match used by FILTER predicates.
func matches(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("MATCHES", 2, len(a))
	}
	doc, example := a[0], a[1]
	if doc.Kind() != value.KindObject || example.Kind() != value.KindObject {
		return value.Bool(false), nil
	}
	for _, k := range example.Keys() {
		ev, _ := example.Get(k)
		dv, ok := doc.Get(k)
		if !ok || !value.Equal(dv, ev) {
			return value.Bool(false), nil
		}
	}
	return value.Bool(true), nil
}
