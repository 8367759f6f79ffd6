package builtins

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/solisoft/solidb/value"
)

func init() {
	register("FLOOR", mathFn1("FLOOR", math.Floor))
	register("CEIL", mathFn1("CEIL", math.Ceil))
	register("ROUND", roundFn)
	register("ABS", mathFn1("ABS", math.Abs))
	register("SQRT", mathFn1("SQRT", math.Sqrt))
	register("CBRT", mathFn1("CBRT", math.Cbrt))
	register("EXP", mathFn1("EXP", math.Exp))
	register("LOG", logFn)
	register("LOG2", mathFn1("LOG2", math.Log2))
	register("LOG10", mathFn1("LOG10", math.Log10))
	register("POW", powFn)
	register("SIN", mathFn1("SIN", math.Sin))
	register("COS", mathFn1("COS", math.Cos))
	register("TAN", mathFn1("TAN", math.Tan))
	register("ASIN", mathFn1("ASIN", math.Asin))
	register("ACOS", mathFn1("ACOS", math.Acos))
	register("ATAN", mathFn1("ATAN", math.Atan))
	register("ATAN2", atan2Fn)
	register("RADIANS", mathFn1("RADIANS", func(d float64) float64 { return d * math.Pi / 180 }))
	register("DEGREES", mathFn1("DEGREES", func(r float64) float64 { return r * 180 / math.Pi }))
	register("PI", func(a []value.Value) (value.Value, error) { return value.Float(math.Pi), nil })
	register("E", func(a []value.Value) (value.Value, error) { return value.Float(math.E), nil })
	register("SIGN", signFn)
	register("TRUNCATE", truncateFn)
	register("RAND", randFn)
	register("RAND_RANGE", randRangeFn)
	register("RANDOM_INT", randomIntFn)
	register("MODULO", moduloFn)
	register("MOD", moduloFn)
}

func mathFn1(name string, f func(float64) float64) Func {
	return func(a []value.Value) (value.Value, error) {
		if len(a) != 1 {
			return value.Null(), argErr(name, 1, len(a))
		}
		n, ok := a[0].Number()
		if !ok {
			return value.Null(), typeErr(name, a)
		}
		return value.Float(f(n)), nil
	}
}

func roundFn(a []value.Value) (value.Value, error) {
	if len(a) < 1 || len(a) > 2 {
		return value.Null(), argErr("ROUND", 1, len(a))
	}
	n, ok := a[0].Number()
	if !ok {
		return value.Null(), typeErr("ROUND", a)
	}
	if len(a) == 2 {
		digits := a[1].ToFloat()
		mult := math.Pow(10, digits)
		return value.Float(math.Round(n*mult) / mult), nil
	}
	return value.Float(math.Round(n)), nil
}

func logFn(a []value.Value) (value.Value, error) {
	if len(a) < 1 || len(a) > 2 {
		return value.Null(), argErr("LOG", 1, len(a))
	}
	n0, ok0 := a[0].Number()
	if !ok0 {
		return value.Null(), typeErr("LOG", a)
	}
	if len(a) == 2 {
		n1, ok1 := a[1].Number()
		if !ok1 {
			return value.Null(), typeErr("LOG", a)
		}
		return value.Float(math.Log(n1) / math.Log(n0)), nil
	}
	return value.Float(math.Log(n0)), nil
}

func powFn(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("POW", 2, len(a))
	}
	n0, ok0 := a[0].Number()
	n1, ok1 := a[1].Number()
	if !ok0 || !ok1 {
		return value.Null(), typeErr("POW", a)
	}
	return value.Float(math.Pow(n0, n1)), nil
}

func atan2Fn(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("ATAN2", 2, len(a))
	}
	n0, ok0 := a[0].Number()
	n1, ok1 := a[1].Number()
	if !ok0 || !ok1 {
		return value.Null(), typeErr("ATAN2", a)
	}
	return value.Float(math.Atan2(n0, n1)), nil
}

func randFn(a []value.Value) (value.Value, error) {
	if len(a) != 0 {
		return value.Null(), argErr("RAND", 0, len(a))
	}
	return value.Float(rand.Float64()), nil
}

func randRangeFn(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("RAND_RANGE", 2, len(a))
	}
	lo, hi := a[0].ToFloat(), a[1].ToFloat()
	if hi < lo {
		lo, hi = hi, lo
	}
	return value.Float(lo + rand.Float64()*(hi-lo)), nil
}

func signFn(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("SIGN", 1, len(a))
	}
	n, ok := a[0].Number()
	if !ok {
		return value.Null(), typeErr("SIGN", a)
	}
	switch {
	case n > 0:
		return value.Int(1), nil
	case n < 0:
		return value.Int(-1), nil
	default:
		return value.Int(0), nil
	}
}

func truncateFn(a []value.Value) (value.Value, error) {
	if len(a) < 1 || len(a) > 2 {
		return value.Null(), argErr("TRUNCATE", 1, len(a))
	}
	n, ok := a[0].Number()
	if !ok {
		return value.Null(), typeErr("TRUNCATE", a)
	}
	if len(a) == 2 {
		mult := math.Pow(10, a[1].ToFloat())
		return value.Float(math.Trunc(n*mult) / mult), nil
	}
	return value.Float(math.Trunc(n)), nil
}

func randomIntFn(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("RANDOM_INT", 2, len(a))
	}
	lo, hi := int64(a[0].ToFloat()), int64(a[1].ToFloat())
	if hi < lo {
		lo, hi = hi, lo
	}
	return value.Int(lo + rand.Int63n(hi-lo+1)), nil
}

func moduloFn(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("MODULO", 2, len(a))
	}
	n0, ok0 := a[0].Number()
	n1, ok1 := a[1].Number()
	if !ok0 || !ok1 {
		return value.Null(), typeErr("MODULO", a)
	}
	if n1 == 0 {
		return value.Null(), fmt.Errorf("MODULO: division by zero")
	}
	if a[0].Kind() == value.KindInt && a[1].Kind() == value.KindInt {
		return value.Int(a[0].AsInt() % a[1].AsInt()), nil
	}
	return value.Float(math.Mod(n0, n1)), nil
}
