package builtins

import (
	"math"
	"sort"

	"github.com/solisoft/solidb/value"
)

func init() {
	register("FIRST", first)
	register("LAST", last)
	register("NTH", nth)
	register("LENGTH_OF", arrayLength)
	register("SORTED", sorted)
	register("SORT", sorted)
	register("SORTED_DESC", sortedDesc)
	register("SORTED_UNIQUE", sortedUnique)
	register("UNIQUE", unique)
	register("REVERSE_ARRAY", reverseString) // alias, array-aware reverse lives in string.go
	register("FLATTEN", flatten)
	register("APPEND", appendArr)
	register("PUSH", push)
	register("POP", pop)
	register("SHIFT", shift)
	register("UNSHIFT", unshift)
	register("SLICE", sliceArr)
	register("UNION", union)
	register("INTERSECTION", intersection)
	register("MINUS", minus)
	register("DIFFERENCE", minus)
	register("RANGE", rangeFn)
	register("ZIP", zip)
	register("COUNT", count)
	register("SUM", sum)
	register("AVG", avg)
	register("MIN", minFn)
	register("MAX", maxFn)
	register("MEDIAN", median)
	register("VARIANCE", variance)
	register("STDDEV", stddev)
	register("APPEND_UNIQUE", appendUnique)
	register("CONTAINS_ARRAY", containsArray)
	register("POSITION", position)
	register("INDEX_OF", position)
	register("N_TH", nth)
}

func asArray(v value.Value) ([]value.Value, bool) {
	if v.Kind() != value.KindArray {
		return nil, false
	}
	return v.AsArray(), true
}

func first(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("FIRST", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("FIRST", a)
	}
	if len(arr) == 0 {
		return value.Null(), nil
	}
	return arr[0], nil
}

func last(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("LAST", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("LAST", a)
	}
	if len(arr) == 0 {
		return value.Null(), nil
	}
	return arr[len(arr)-1], nil
}

func nth(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("NTH", 2, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("NTH", a)
	}
	idx := int(a[1].ToFloat())
	if idx < 0 {
		idx = len(arr) + idx
	}
	if idx < 0 || idx >= len(arr) {
		return value.Null(), nil
	}
	return arr[idx], nil
}

func arrayLength(a []value.Value) (value.Value, error) {
	return length(a)
}

func sorted(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("SORTED", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("SORTED", a)
	}
	out := append([]value.Value(nil), arr...)
	sort.SliceStable(out, func(i, j int) bool { return value.Compare(out[i], out[j]) < 0 })
	return value.Array(out), nil
}

func sortedDesc(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("SORTED_DESC", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("SORTED_DESC", a)
	}
	out := append([]value.Value(nil), arr...)
	sort.SliceStable(out, func(i, j int) bool { return value.Compare(out[i], out[j]) > 0 })
	return value.Array(out), nil
}

func sortedUnique(a []value.Value) (value.Value, error) {
	s, err := sorted(a)
	if err != nil {
		return value.Null(), err
	}
	return unique([]value.Value{s})
}

func unique(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("UNIQUE", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("UNIQUE", a)
	}
	var out []value.Value
	for _, v := range arr {
		dup := false
		for _, seen := range out {
			if value.Equal(v, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return value.Array(out), nil
}

func flatten(a []value.Value) (value.Value, error) {
	if len(a) < 1 || len(a) > 2 {
		return value.Null(), argErr("FLATTEN", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("FLATTEN", a)
	}
	depth := 1
	if len(a) == 2 {
		depth = int(a[1].ToFloat())
	}
	return value.Array(flattenN(arr, depth)), nil
}

func flattenN(arr []value.Value, depth int) []value.Value {
	if depth <= 0 {
		return arr
	}
	var out []value.Value
	for _, v := range arr {
		if v.Kind() == value.KindArray {
			out = append(out, flattenN(v.AsArray(), depth-1)...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

func appendArr(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("APPEND", 2, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("APPEND", a)
	}
	out := append([]value.Value(nil), arr...)
	if other, ok := asArray(a[1]); ok {
		out = append(out, other...)
	} else {
		out = append(out, a[1])
	}
	return value.Array(out), nil
}

func appendUnique(a []value.Value) (value.Value, error) {
	appended, err := appendArr(a)
	if err != nil {
		return value.Null(), err
	}
	return unique([]value.Value{appended})
}

func push(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("PUSH", 2, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("PUSH", a)
	}
	out := append(append([]value.Value(nil), arr...), a[1])
	return value.Array(out), nil
}

func pop(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("POP", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("POP", a)
	}
	if len(arr) == 0 {
		return value.Array(nil), nil
	}
	return value.Array(append([]value.Value(nil), arr[:len(arr)-1]...)), nil
}

func shift(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("SHIFT", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("SHIFT", a)
	}
	if len(arr) == 0 {
		return value.Array(nil), nil
	}
	return value.Array(append([]value.Value(nil), arr[1:]...)), nil
}

func unshift(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("UNSHIFT", 2, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("UNSHIFT", a)
	}
	out := append([]value.Value{a[1]}, arr...)
	return value.Array(out), nil
}

func sliceArr(a []value.Value) (value.Value, error) {
	if len(a) < 2 || len(a) > 3 {
		return value.Null(), argErr("SLICE", 2, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("SLICE", a)
	}
	start := int(a[1].ToFloat())
	if start < 0 {
		start = len(arr) + start
	}
	if start < 0 {
		start = 0
	}
	if start > len(arr) {
		start = len(arr)
	}
	end := len(arr)
	if len(a) == 3 {
		n := int(a[2].ToFloat())
		if n < 0 {
			end = len(arr) + n
		} else {
			end = start + n
		}
	}
	if end > len(arr) {
		end = len(arr)
	}
	if end < start {
		end = start
	}
	return value.Array(append([]value.Value(nil), arr[start:end]...)), nil
}

func union(a []value.Value) (value.Value, error) {
	var out []value.Value
	for _, v := range a {
		arr, ok := asArray(v)
		if !ok {
			return value.Null(), typeErr("UNION", a)
		}
		out = append(out, arr...)
	}
	return value.Array(out), nil
}

func intersection(a []value.Value) (value.Value, error) {
	if len(a) < 2 {
		return value.Null(), argErr("INTERSECTION", 2, len(a))
	}
	base, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("INTERSECTION", a)
	}
	result := append([]value.Value(nil), base...)
	for _, v := range a[1:] {
		arr, ok := asArray(v)
		if !ok {
			return value.Null(), typeErr("INTERSECTION", a)
		}
		var next []value.Value
		for _, r := range result {
			for _, o := range arr {
				if value.Equal(r, o) {
					next = append(next, r)
					break
				}
			}
		}
		result = next
	}
	return value.Array(result), nil
}

func minus(a []value.Value) (value.Value, error) {
	if len(a) < 2 {
		return value.Null(), argErr("MINUS", 2, len(a))
	}
	base, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("MINUS", a)
	}
	var out []value.Value
	for _, v := range base {
		exclude := false
		for _, other := range a[1:] {
			arr, ok := asArray(other)
			if !ok {
				continue
			}
			for _, o := range arr {
				if value.Equal(v, o) {
					exclude = true
					break
				}
			}
			if exclude {
				break
			}
		}
		if !exclude {
			out = append(out, v)
		}
	}
	return value.Array(out), nil
}

func rangeFn(a []value.Value) (value.Value, error) {
	if len(a) < 2 || len(a) > 3 {
		return value.Null(), argErr("RANGE", 2, len(a))
	}
	start := int64(a[0].ToFloat())
	end := int64(a[1].ToFloat())
	step := int64(1)
	if len(a) == 3 {
		step = int64(a[2].ToFloat())
	}
	if step == 0 {
		return value.Null(), typeErr("RANGE", a)
	}
	var out []value.Value
	if step > 0 {
		for i := start; i <= end; i += step {
			out = append(out, value.Int(i))
		}
	} else {
		for i := start; i >= end; i += step {
			out = append(out, value.Int(i))
		}
	}
	return value.Array(out), nil
}

func zip(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("ZIP", 2, len(a))
	}
	keys, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("ZIP", a)
	}
	vals, ok := asArray(a[1])
	if !ok {
		return value.Null(), typeErr("ZIP", a)
	}
	obj := value.NewObject()
	for i := 0; i < len(keys) && i < len(vals); i++ {
		obj.Set(keys[i].ToStringValue(), vals[i])
	}
	return obj, nil
}

func count(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("COUNT", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("COUNT", a)
	}
	return value.Int(int64(len(arr))), nil
}

func numericValues(v value.Value) ([]float64, bool) {
	arr, ok := asArray(v)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(arr))
	for _, item := range arr {
		if n, ok := item.Number(); ok {
			out = append(out, n)
		}
	}
	return out, true
}

func sum(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("SUM", 1, len(a))
	}
	nums, ok := numericValues(a[0])
	if !ok {
		return value.Null(), typeErr("SUM", a)
	}
	var s float64
	for _, n := range nums {
		s += n
	}
	return value.Float(s), nil
}

func avg(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("AVG", 1, len(a))
	}
	nums, ok := numericValues(a[0])
	if !ok {
		return value.Null(), typeErr("AVG", a)
	}
	if len(nums) == 0 {
		return value.Null(), nil
	}
	var s float64
	for _, n := range nums {
		s += n
	}
	return value.Float(s / float64(len(nums))), nil
}

func minFn(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("MIN", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("MIN", a)
	}
	var best value.Value
	found := false
	for _, v := range arr {
		if v.IsNull() {
			continue
		}
		if !found || value.Compare(v, best) < 0 {
			best = v
			found = true
		}
	}
	if !found {
		return value.Null(), nil
	}
	return best, nil
}

func maxFn(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("MAX", 1, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("MAX", a)
	}
	var best value.Value
	found := false
	for _, v := range arr {
		if v.IsNull() {
			continue
		}
		if !found || value.Compare(v, best) > 0 {
			best = v
			found = true
		}
	}
	if !found {
		return value.Null(), nil
	}
	return best, nil
}

func median(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("MEDIAN", 1, len(a))
	}
	nums, ok := numericValues(a[0])
	if !ok {
		return value.Null(), typeErr("MEDIAN", a)
	}
	if len(nums) == 0 {
		return value.Null(), nil
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return value.Float(nums[mid]), nil
	}
	return value.Float((nums[mid-1] + nums[mid]) / 2), nil
}

func meanOf(nums []float64) float64 {
	var s float64
	for _, n := range nums {
		s += n
	}
	return s / float64(len(nums))
}

func variance(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("VARIANCE", 1, len(a))
	}
	nums, ok := numericValues(a[0])
	if !ok || len(nums) == 0 {
		return value.Null(), typeErr("VARIANCE", a)
	}
	m := meanOf(nums)
	var sq float64
	for _, n := range nums {
		d := n - m
		sq += d * d
	}
	return value.Float(sq / float64(len(nums))), nil
}

func stddev(a []value.Value) (value.Value, error) {
	v, err := variance(a)
	if err != nil {
		return value.Null(), err
	}
	return value.Float(math.Sqrt(v.ToFloat())), nil
}

func containsArray(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("CONTAINS_ARRAY", 2, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("CONTAINS_ARRAY", a)
	}
	for _, v := range arr {
		if value.Equal(v, a[1]) {
			return value.Bool(true), nil
		}
	}
	return value.Bool(false), nil
}

func position(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("POSITION", 2, len(a))
	}
	arr, ok := asArray(a[0])
	if !ok {
		return value.Null(), typeErr("POSITION", a)
	}
	for i, v := range arr {
		if value.Equal(v, a[1]) {
			return value.Int(int64(i)), nil
		}
	}
	return value.Int(-1), nil
}
