// Package builtins implements the DBQL built-in function families:
// string, array, math, datetime, type/conversion, json,
// crypto/encoding, phonetic, and misc. Each function takes already
// evaluated Value arguments; the higher-order functions (FILTER, MAP,
// ANY, ALL, REDUCE) are handled by package eval itself since they need
// the unevaluated lambda body.
package builtins

import (
	"fmt"
	"strings"

	"github.com/solisoft/solidb/value"
)

// Func is a built-in implementation over already-evaluated arguments.
type Func func(args []value.Value) (value.Value, error)

var registry = map[string]Func{}

func register(name string, fn Func) {
	registry[strings.ToUpper(name)] = fn
}

// Call dispatches a case-insensitive built-in name. ok is false when the
// name is not a known built-in, so the caller can raise "Unknown
// function".
func Call(name string, args []value.Value) (v value.Value, ok bool, err error) {
	fn, found := registry[strings.ToUpper(name)]
	if !found {
		return value.Null(), false, nil
	}
	v, err = fn(args)
	return v, true, err
}

// Known reports whether name is a registered built-in (used by the
// executor/translator to validate function names without calling them).
func Known(name string) bool {
	_, ok := registry[strings.ToUpper(name)]
	return ok
}

func argErr(name string, want int, got int) error {
	return fmt.Errorf("%s: expected %d argument(s), got %d", name, want, got)
}

func typeErr(name string, args []value.Value) error {
	kinds := make([]string, len(args))
	for i, a := range args {
		kinds[i] = a.TypeName()
	}
	return fmt.Errorf("%s: invalid argument type(s) %s", name, strings.Join(kinds, ", "))
}
