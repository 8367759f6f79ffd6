package builtins

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/solisoft/solidb/value"
)

const matchTimeout = 100 * time.Millisecond

var regexMeta = ".^$*+?()[]{}|\\"

func escapeRegex(r rune) string {
	if strings.ContainsRune(regexMeta, r) {
		return "\\" + string(r)
	}
	return string(r)
}

func init() {
	register("LIKE", likeFn)
}

// likeFn implements SQL-style LIKE (% and _ wildcards, backslash escape),
// compiled through regexp2 rather than regexp so the match runs against a
// bounded-time, backtracking-limited engine, so untrusted patterns must not
// be able to pin a worker on catastrophic backtracking.
func likeFn(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("LIKE", 2, len(a))
	}
	re, err := CompileLike(a[1].AsString())
	if err != nil {
		return value.Null(), err
	}
	ok, err := re.MatchString(a[0].AsString())
	if err != nil {
		return value.Null(), err
	}
	return value.Bool(ok), nil
}

// CompileLike translates a LIKE pattern into a regexp2.Regexp anchored to
// the full string, with a conservative match timeout.
func CompileLike(pattern string) (*regexp2.Regexp, error) {
	if len(pattern) > 1024 {
		return nil, fmt.Errorf("LIKE: pattern exceeds 1024 character limit")
	}
	var sb strings.Builder
	sb.WriteString("^")
	escapeNext := false
	for _, r := range pattern {
		if escapeNext {
			sb.WriteString(escapeRegex(r))
			escapeNext = false
			continue
		}
		switch r {
		case '\\':
			escapeNext = true
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(escapeRegex(r))
		}
	}
	sb.WriteString("$")
	re, err := regexp2.Compile(sb.String(), regexp2.Singleline)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = matchTimeout
	return re, nil
}
