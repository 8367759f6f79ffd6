package builtins

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/solisoft/solidb/value"
)

func init() {
	register("UPPER", func(a []value.Value) (value.Value, error) { return strFn1(a, "UPPER", strings.ToUpper) })
	register("LOWER", func(a []value.Value) (value.Value, error) { return strFn1(a, "LOWER", strings.ToLower) })
	register("TRIM", func(a []value.Value) (value.Value, error) { return strFn1(a, "TRIM", strings.TrimSpace) })
	register("LTRIM", func(a []value.Value) (value.Value, error) {
		return strFn1(a, "LTRIM", func(s string) string { return strings.TrimLeft(s, " \t\n\r") })
	})
	register("RTRIM", func(a []value.Value) (value.Value, error) {
		return strFn1(a, "RTRIM", func(s string) string { return strings.TrimRight(s, " \t\n\r") })
	})
	register("LENGTH", length)
	register("CHAR_LENGTH", length)
	register("BYTE_LENGTH", byteLength)
	register("CONCAT", concat)
	register("CONCAT_SEPARATOR", concatSeparator)
	register("CONTAINS", contains)
	register("STARTS_WITH", startsWith)
	register("ENDS_WITH", endsWith)
	register("SUBSTRING", substring)
	register("LEFT", left)
	register("RIGHT", right)
	register("SPLIT", split)
	register("JOIN", joinStrings)
	register("REVERSE", reverseString)
	register("REPLACE", replace)
	register("REGEX_REPLACE", regexReplace)
	register("REGEX_TEST", regexTest)
	register("REGEX_MATCHES", regexMatches)
	register("PAD_LEFT", padLeft)
	register("PAD_RIGHT", padRight)
	register("FIND_FIRST", findFirst)
	register("FIND_LAST", findLast)
	register("HIGHLIGHT", highlight)
	register("SLUGIFY", slugify)
	register("SANITIZE", sanitize)
	register("TITLE_CASE", titleCase)
	register("ENCODE_URI", func(a []value.Value) (value.Value, error) {
		return strFn1(a, "ENCODE_URI", url.QueryEscape)
	})
	register("DECODE_URI", decodeURI)
	register("IS_EMAIL", isEmail)
	register("IS_URL", isURL)
	register("IS_UUID", isUUID)
}

func strFn1(a []value.Value, name string, f func(string) string) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr(name, 1, len(a))
	}
	return value.String(f(a[0].AsString())), nil
}

func length(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("LENGTH", 1, len(a))
	}
	switch a[0].Kind() {
	case value.KindArray:
		return value.Int(int64(len(a[0].AsArray()))), nil
	case value.KindObject:
		return value.Int(int64(len(a[0].Keys()))), nil
	case value.KindString:
		return value.Int(int64(utf8.RuneCountInString(a[0].AsString()))), nil
	case value.KindNull:
		return value.Int(0), nil
	default:
		return value.Int(int64(utf8.RuneCountInString(a[0].ToStringValue()))), nil
	}
}

func byteLength(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("BYTE_LENGTH", 1, len(a))
	}
	return value.Int(int64(len(a[0].AsString()))), nil
}

func concat(a []value.Value) (value.Value, error) {
	var sb strings.Builder
	for _, v := range a {
		if v.IsNull() {
			continue
		}
		sb.WriteString(v.ToStringValue())
	}
	return value.String(sb.String()), nil
}

func concatSeparator(a []value.Value) (value.Value, error) {
	if len(a) < 1 {
		return value.Null(), argErr("CONCAT_SEPARATOR", 2, len(a))
	}
	sep := a[0].ToStringValue()
	parts := make([]string, 0, len(a)-1)
	for _, v := range a[1:] {
		if v.IsNull() {
			continue
		}
		parts = append(parts, v.ToStringValue())
	}
	return value.String(strings.Join(parts, sep)), nil
}

func contains(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("CONTAINS", 2, len(a))
	}
	return value.Bool(strings.Contains(a[0].AsString(), a[1].AsString())), nil
}

func startsWith(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("STARTS_WITH", 2, len(a))
	}
	return value.Bool(strings.HasPrefix(a[0].AsString(), a[1].AsString())), nil
}

func endsWith(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("ENDS_WITH", 2, len(a))
	}
	return value.Bool(strings.HasSuffix(a[0].AsString(), a[1].AsString())), nil
}

func runeSlice(s string) []rune { return []rune(s) }

func substring(a []value.Value) (value.Value, error) {
	if len(a) < 2 || len(a) > 3 {
		return value.Null(), argErr("SUBSTRING", 2, len(a))
	}
	runes := runeSlice(a[0].AsString())
	start := int(a[1].ToFloat())
	if start < 0 {
		start = len(runes) + start
	}
	if start < 0 {
		start = 0
	}
	if start > len(runes) {
		start = len(runes)
	}
	end := len(runes)
	if len(a) == 3 {
		n := int(a[2].ToFloat())
		if n < 0 {
			n = 0
		}
		end = start + n
		if end > len(runes) {
			end = len(runes)
		}
	}
	if end < start {
		end = start
	}
	return value.String(string(runes[start:end])), nil
}

func left(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("LEFT", 2, len(a))
	}
	runes := runeSlice(a[0].AsString())
	n := int(a[1].ToFloat())
	if n < 0 {
		n = 0
	}
	if n > len(runes) {
		n = len(runes)
	}
	return value.String(string(runes[:n])), nil
}

func right(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("RIGHT", 2, len(a))
	}
	runes := runeSlice(a[0].AsString())
	n := int(a[1].ToFloat())
	if n < 0 {
		n = 0
	}
	if n > len(runes) {
		n = len(runes)
	}
	return value.String(string(runes[len(runes)-n:])), nil
}

func split(a []value.Value) (value.Value, error) {
	if len(a) < 1 || len(a) > 2 {
		return value.Null(), argErr("SPLIT", 2, len(a))
	}
	s := a[0].AsString()
	var parts []string
	if len(a) == 1 {
		parts = strings.Fields(s)
	} else {
		sep := a[1].AsString()
		if sep == "" {
			for _, r := range s {
				parts = append(parts, string(r))
			}
		} else {
			parts = strings.Split(s, sep)
		}
	}
	out := make([]value.Value, len(parts))
	for i, p := range parts {
		out[i] = value.String(p)
	}
	return value.Array(out), nil
}

func joinStrings(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("JOIN", 2, len(a))
	}
	if a[0].Kind() != value.KindArray {
		return value.Null(), typeErr("JOIN", a)
	}
	sep := a[1].AsString()
	parts := make([]string, len(a[0].AsArray()))
	for i, v := range a[0].AsArray() {
		parts[i] = v.ToStringValue()
	}
	return value.String(strings.Join(parts, sep)), nil
}

func reverseString(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("REVERSE", 1, len(a))
	}
	if a[0].Kind() == value.KindArray {
		arr := a[0].AsArray()
		out := make([]value.Value, len(arr))
		for i, v := range arr {
			out[len(arr)-1-i] = v
		}
		return value.Array(out), nil
	}
	r := runeSlice(a[0].AsString())
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return value.String(string(r)), nil
}

func replace(a []value.Value) (value.Value, error) {
	if len(a) != 3 {
		return value.Null(), argErr("REPLACE", 3, len(a))
	}
	return value.String(strings.ReplaceAll(a[0].AsString(), a[1].AsString(), a[2].AsString())), nil
}

func regexReplace(a []value.Value) (value.Value, error) {
	if len(a) != 3 {
		return value.Null(), argErr("REGEX_REPLACE", 3, len(a))
	}
	re, err := compileRegexStdlib(a[1].AsString())
	if err != nil {
		return value.Null(), err
	}
	return value.String(re.ReplaceAllString(a[0].AsString(), a[2].AsString())), nil
}

func regexTest(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("REGEX_TEST", 2, len(a))
	}
	re, err := compileRegexStdlib(a[1].AsString())
	if err != nil {
		return value.Null(), err
	}
	return value.Bool(re.MatchString(a[0].AsString())), nil
}

func regexMatches(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("REGEX_MATCHES", 2, len(a))
	}
	re, err := compileRegexStdlib(a[1].AsString())
	if err != nil {
		return value.Null(), err
	}
	m := re.FindStringSubmatch(a[0].AsString())
	out := make([]value.Value, len(m))
	for i, s := range m {
		out[i] = value.String(s)
	}
	return value.Array(out), nil
}

// compileRegexStdlib bounds pattern length (≤1024 chars)
// before handing off to regexp; LIKE-translated patterns go through
// CompileLike in like.go instead, which uses regexp2 for bounded size.
func compileRegexStdlib(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > 1024 {
		return nil, fmt.Errorf("regex pattern exceeds 1024 character limit")
	}
	return regexp.Compile(pattern)
}

func padLeft(a []value.Value) (value.Value, error) {
	return pad(a, "PAD_LEFT", true)
}

func padRight(a []value.Value) (value.Value, error) {
	return pad(a, "PAD_RIGHT", false)
}

func pad(a []value.Value, name string, left bool) (value.Value, error) {
	if len(a) < 2 || len(a) > 3 {
		return value.Null(), argErr(name, 2, len(a))
	}
	s := a[0].AsString()
	width := int(a[1].ToFloat())
	filler := " "
	if len(a) == 3 {
		filler = a[2].AsString()
	}
	if filler == "" {
		filler = " "
	}
	cur := utf8.RuneCountInString(s)
	if cur >= width {
		return value.String(s), nil
	}
	need := width - cur
	var pad strings.Builder
	fr := []rune(filler)
	for pad.Len() < need || utf8.RuneCountInString(pad.String()) < need {
		for _, r := range fr {
			pad.WriteRune(r)
			if utf8.RuneCountInString(pad.String()) >= need {
				break
			}
		}
	}
	padded := string([]rune(pad.String())[:need])
	if left {
		return value.String(padded + s), nil
	}
	return value.String(s + padded), nil
}

func findFirst(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("FIND_FIRST", 2, len(a))
	}
	idx := strings.Index(a[0].AsString(), a[1].AsString())
	if idx < 0 {
		return value.Int(-1), nil
	}
	return value.Int(int64(utf8.RuneCountInString(a[0].AsString()[:idx]))), nil
}

func findLast(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("FIND_LAST", 2, len(a))
	}
	idx := strings.LastIndex(a[0].AsString(), a[1].AsString())
	if idx < 0 {
		return value.Int(-1), nil
	}
	return value.Int(int64(utf8.RuneCountInString(a[0].AsString()[:idx]))), nil
}

func highlight(a []value.Value) (value.Value, error) {
	if len(a) != 4 {
		return value.Null(), argErr("HIGHLIGHT", 4, len(a))
	}
	s, term, pre, post := a[0].AsString(), a[1].AsString(), a[2].AsString(), a[3].AsString()
	if term == "" {
		return value.String(s), nil
	}
	return value.String(strings.ReplaceAll(s, term, pre+term+post)), nil
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("SLUGIFY", 1, len(a))
	}
	s := strings.ToLower(a[0].AsString())
	s = slugNonAlnum.ReplaceAllString(s, "-")
	return value.String(strings.Trim(s, "-")), nil
}

func sanitize(a []value.Value) (value.Value, error) {
	if len(a) < 1 {
		return value.Null(), argErr("SANITIZE", 1, len(a))
	}
	s := a[0].AsString()
	ops := map[string]bool{}
	if len(a) == 2 && a[1].Kind() == value.KindArray {
		for _, v := range a[1].AsArray() {
			ops[strings.ToLower(v.AsString())] = true
		}
	}
	if len(ops) == 0 {
		ops["trim"] = true
		ops["collapse_whitespace"] = true
	}
	if ops["trim"] {
		s = strings.TrimSpace(s)
	}
	if ops["collapse_whitespace"] {
		s = strings.Join(strings.Fields(s), " ")
	}
	if ops["strip_html"] {
		s = regexp.MustCompile(`<[^>]*>`).ReplaceAllString(s, "")
	}
	if ops["strip_control"] {
		s = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, s)
	}
	return value.String(s), nil
}

var titleCaser = cases.Title(language.Und)

func titleCase(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("TITLE_CASE", 1, len(a))
	}
	return value.String(titleCaser.String(a[0].AsString())), nil
}

func decodeURI(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("DECODE_URI", 1, len(a))
	}
	s, err := url.QueryUnescape(a[0].AsString())
	if err != nil {
		return value.Null(), err
	}
	return value.String(s), nil
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func isEmail(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("IS_EMAIL", 1, len(a))
	}
	return value.Bool(emailRe.MatchString(a[0].AsString())), nil
}

func isURL(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("IS_URL", 1, len(a))
	}
	u, err := url.ParseRequestURI(a[0].AsString())
	return value.Bool(err == nil && u.Scheme != "" && u.Host != ""), nil
}

func isUUID(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("IS_UUID", 1, len(a))
	}
	return value.Bool(uuidRe.MatchString(a[0].AsString())), nil
}
