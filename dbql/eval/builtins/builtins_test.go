package builtins

import (
	"math"
	"strings"
	"testing"

	"github.com/solisoft/solidb/value"
)

func call(t *testing.T, name string, args ...value.Value) value.Value {
	t.Helper()
	v, ok, err := Call(name, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if !ok {
		t.Fatalf("%s: not a registered built-in", name)
	}
	return v
}

func strArr(ss ...string) value.Value {
	out := make([]value.Value, len(ss))
	for i, s := range ss {
		out[i] = value.String(s)
	}
	return value.Array(out)
}

func intArr(is ...int64) value.Value {
	out := make([]value.Value, len(is))
	for i, n := range is {
		out[i] = value.Int(n)
	}
	return value.Array(out)
}

func TestCallIsCaseInsensitive(t *testing.T) {
	for _, name := range []string{"upper", "Upper", "UPPER"} {
		if got := call(t, name, value.String("ok")); !value.Equal(got, value.String("OK")) {
			t.Errorf("%s = %s", name, got)
		}
	}
}

func TestUnknownNameReportsNotOK(t *testing.T) {
	_, ok, err := Call("DEFINITELY_NOT_A_FUNCTION", nil)
	if ok || err != nil {
		t.Errorf("ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}

func TestJoinSplitRoundTrip(t *testing.T) {
	// JOIN(SPLIT(s, sep), sep) == s for non-empty sep.
	cases := []struct{ s, sep string }{
		{"a,b,c", ","},
		{"one", "|"},
		{"", "-"},
		{"a::b::c", "::"},
	}
	for _, tc := range cases {
		parts := call(t, "SPLIT", value.String(tc.s), value.String(tc.sep))
		back := call(t, "JOIN", parts, value.String(tc.sep))
		if !value.Equal(back, value.String(tc.s)) {
			t.Errorf("JOIN(SPLIT(%q, %q)) = %s", tc.s, tc.sep, back)
		}
	}
}

func TestReverseIsInvolution(t *testing.T) {
	arr := intArr(1, 2, 3, 4)
	twice := call(t, "REVERSE", call(t, "REVERSE", arr))
	if !value.Equal(twice, arr) {
		t.Errorf("REVERSE(REVERSE(a)) = %s", twice)
	}
}

func TestSortedAndUniqueAreIdempotent(t *testing.T) {
	arr := intArr(3, 1, 2, 3, 1)
	once := call(t, "SORTED", arr)
	twice := call(t, "SORTED", once)
	if !value.Equal(once, twice) {
		t.Errorf("SORTED not idempotent: %s vs %s", once, twice)
	}
	u1 := call(t, "UNIQUE", arr)
	u2 := call(t, "UNIQUE", u1)
	if !value.Equal(u1, u2) {
		t.Errorf("UNIQUE not idempotent: %s vs %s", u1, u2)
	}
}

func TestUniquePreservesFirstOccurrence(t *testing.T) {
	got := call(t, "UNIQUE", strArr("b", "a", "b", "c", "a"))
	want := strArr("b", "a", "c")
	if !value.Equal(got, want) {
		t.Errorf("UNIQUE = %s, want %s", got, want)
	}
}

func TestKeepUnsetComplement(t *testing.T) {
	o := value.Object(
		[]string{"a", "b", "c"},
		[]value.Value{value.Int(1), value.Int(2), value.Int(3)},
	)
	keys := strArr("a", "b")
	// KEEP(UNSET(o, K), K) == {}
	got := call(t, "KEEP", call(t, "UNSET", o, keys), keys)
	if len(got.Keys()) != 0 {
		t.Errorf("KEEP(UNSET(o, K), K) = %s, want empty object", got)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	o := value.Object([]string{"a", "b"}, []value.Value{value.Int(1), value.String("x")})
	if got := call(t, "MERGE", o, o); !value.Equal(got, o) {
		t.Errorf("MERGE(o, o) = %s, want %s", got, o)
	}
}

func TestMergeDeepRecurses(t *testing.T) {
	left := value.Object([]string{"cfg"}, []value.Value{
		value.Object([]string{"a"}, []value.Value{value.Int(1)}),
	})
	right := value.Object([]string{"cfg"}, []value.Value{
		value.Object([]string{"b"}, []value.Value{value.Int(2)}),
	})
	got := call(t, "MERGE_DEEP", left, right)
	cfg, _ := got.Get("cfg")
	if _, ok := cfg.Get("a"); !ok {
		t.Errorf("deep merge lost left branch: %s", got)
	}
	if _, ok := cfg.Get("b"); !ok {
		t.Errorf("deep merge lost right branch: %s", got)
	}
	// Shallow MERGE would have replaced cfg wholesale.
	shallow := call(t, "MERGE", left, right)
	cfgShallow, _ := shallow.Get("cfg")
	if _, ok := cfgShallow.Get("a"); ok {
		t.Errorf("shallow merge should replace nested objects: %s", shallow)
	}
}

func TestLengthCountsCodepoints(t *testing.T) {
	if got := call(t, "LENGTH", value.String("héllo")); !value.Equal(got, value.Int(5)) {
		t.Errorf("LENGTH = %s, want 5 codepoints", got)
	}
	if got := call(t, "BYTE_LENGTH", value.String("héllo")); !value.Equal(got, value.Int(6)) {
		t.Errorf("BYTE_LENGTH = %s, want 6 bytes", got)
	}
	if got := call(t, "LENGTH", intArr(1, 2, 3)); !value.Equal(got, value.Int(3)) {
		t.Errorf("LENGTH over array = %s", got)
	}
}

func TestSubstringByCodepoints(t *testing.T) {
	got := call(t, "SUBSTRING", value.String("héllo"), value.Int(1), value.Int(3))
	if !value.Equal(got, value.String("éll")) {
		t.Errorf("SUBSTRING = %s", got)
	}
}

func TestStringFamily(t *testing.T) {
	tests := []struct {
		name string
		args []value.Value
		want value.Value
	}{
		{"TRIM", []value.Value{value.String("  x  ")}, value.String("x")},
		{"CONCAT", []value.Value{value.String("a"), value.Null(), value.String("b")}, value.String("ab")},
		{"CONCAT_SEPARATOR", []value.Value{value.String("-"), value.String("a"), value.String("b")}, value.String("a-b")},
		{"CONTAINS", []value.Value{value.String("haystack"), value.String("stack")}, value.Bool(true)},
		{"STARTS_WITH", []value.Value{value.String("prefix"), value.String("pre")}, value.Bool(true)},
		{"ENDS_WITH", []value.Value{value.String("suffix"), value.String("fix")}, value.Bool(true)},
		{"REPLACE", []value.Value{value.String("aaa"), value.String("a"), value.String("b")}, value.String("bbb")},
		{"LEFT", []value.Value{value.String("hello"), value.Int(2)}, value.String("he")},
		{"RIGHT", []value.Value{value.String("hello"), value.Int(2)}, value.String("lo")},
	}
	for _, tc := range tests {
		got := call(t, tc.name, tc.args...)
		if !value.Equal(got, tc.want) {
			t.Errorf("%s = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestArrayAggregates(t *testing.T) {
	arr := intArr(4, 1, 3, 2)
	if got := call(t, "SUM", arr); got.ToFloat() != 10 {
		t.Errorf("SUM = %s", got)
	}
	if got := call(t, "AVG", arr); got.ToFloat() != 2.5 {
		t.Errorf("AVG = %s", got)
	}
	if got := call(t, "MIN", arr); !value.Equal(got, value.Int(1)) {
		t.Errorf("MIN = %s", got)
	}
	if got := call(t, "MAX", arr); !value.Equal(got, value.Int(4)) {
		t.Errorf("MAX = %s", got)
	}
	if got := call(t, "COUNT", arr); !value.Equal(got, value.Int(4)) {
		t.Errorf("COUNT = %s", got)
	}
	if got := call(t, "MEDIAN", intArr(1, 2, 100)); got.ToFloat() != 2 {
		t.Errorf("MEDIAN = %s", got)
	}
}

func TestFirstLastNth(t *testing.T) {
	arr := intArr(10, 20, 30)
	if got := call(t, "FIRST", arr); !value.Equal(got, value.Int(10)) {
		t.Errorf("FIRST = %s", got)
	}
	if got := call(t, "LAST", arr); !value.Equal(got, value.Int(30)) {
		t.Errorf("LAST = %s", got)
	}
	if got := call(t, "NTH", arr, value.Int(-1)); !value.Equal(got, value.Int(30)) {
		t.Errorf("NTH(-1) = %s", got)
	}
}

func TestFlattenDepth(t *testing.T) {
	nested := value.Array([]value.Value{
		intArr(1, 2),
		value.Array([]value.Value{intArr(3)}),
	})
	one := call(t, "FLATTEN", nested)
	if len(one.AsArray()) != 3 { // 1, 2, [3]
		t.Errorf("FLATTEN depth 1 = %s", one)
	}
	two := call(t, "FLATTEN", nested, value.Int(2))
	if !value.Equal(two, intArr(1, 2, 3)) {
		t.Errorf("FLATTEN depth 2 = %s", two)
	}
}

func TestSetOperations(t *testing.T) {
	a := intArr(1, 2, 3)
	b := intArr(2, 3, 4)
	if got := call(t, "INTERSECTION", a, b); !value.Equal(got, intArr(2, 3)) {
		t.Errorf("INTERSECTION = %s", got)
	}
	if got := call(t, "MINUS", a, b); !value.Equal(got, intArr(1)) {
		t.Errorf("MINUS = %s", got)
	}
}

func TestMathFamily(t *testing.T) {
	if got := call(t, "FLOOR", value.Float(2.9)); got.ToFloat() != 2 {
		t.Errorf("FLOOR = %s", got)
	}
	if got := call(t, "CEIL", value.Float(2.1)); got.ToFloat() != 3 {
		t.Errorf("CEIL = %s", got)
	}
	if got := call(t, "ROUND", value.Float(2.345), value.Int(2)); got.ToFloat() != 2.35 {
		t.Errorf("ROUND(2.345, 2) = %s", got)
	}
	if got := call(t, "SIGN", value.Float(-7)); !value.Equal(got, value.Int(-1)) {
		t.Errorf("SIGN = %s", got)
	}
	if got := call(t, "TRUNCATE", value.Float(2.99)); got.ToFloat() != 2 {
		t.Errorf("TRUNCATE = %s", got)
	}
	if got := call(t, "PI"); math.Abs(got.ToFloat()-math.Pi) > 1e-15 {
		t.Errorf("PI = %s", got)
	}
	if _, _, err := Call("MOD", []value.Value{value.Int(1), value.Int(0)}); err == nil {
		t.Error("MOD by zero should error")
	}
}

func TestTypeCheckFamily(t *testing.T) {
	tests := []struct {
		name string
		arg  value.Value
		want bool
	}{
		{"IS_ARRAY", intArr(1), true},
		{"IS_BOOL", value.Bool(false), true},
		{"IS_NUMBER", value.Float(1.5), true},
		{"IS_INTEGER", value.Int(1), true},
		{"IS_INTEGER", value.Float(1.5), false},
		{"IS_STRING", value.String(""), true},
		{"IS_NULL", value.Null(), true},
		{"IS_OBJECT", value.NewObject(), true},
		{"IS_EMPTY", value.Array(nil), true},
		{"IS_EMPTY", intArr(1), false},
	}
	for _, tc := range tests {
		got := call(t, tc.name, tc.arg)
		if got.ToBool() != tc.want {
			t.Errorf("%s(%s) = %s, want %v", tc.name, tc.arg, got, tc.want)
		}
	}
	if got := call(t, "TYPENAME", value.Int(1)); !value.Equal(got, value.String("number")) {
		t.Errorf("TYPENAME = %s", got)
	}
}

func TestConversionFamily(t *testing.T) {
	if got := call(t, "TO_NUMBER", value.String("42.5")); got.ToFloat() != 42.5 {
		t.Errorf("TO_NUMBER = %s", got)
	}
	if got := call(t, "TO_STRING", value.Int(7)); !value.Equal(got, value.String("7")) {
		t.Errorf("TO_STRING = %s", got)
	}
	if got := call(t, "TO_BOOL", value.Int(0)); got.ToBool() {
		t.Errorf("TO_BOOL(0) = %s", got)
	}
	if got := call(t, "COALESCE", value.Null(), value.Null(), value.Int(3)); !value.Equal(got, value.Int(3)) {
		t.Errorf("COALESCE = %s", got)
	}
	if got := call(t, "NULLIF", value.Int(1), value.Int(1)); !got.IsNull() {
		t.Errorf("NULLIF = %s", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	obj := value.Object(
		[]string{"k", "arr"},
		[]value.Value{value.String("v"), intArr(1, 2)},
	)
	text := call(t, "JSON_STRINGIFY", obj)
	back := call(t, "JSON_PARSE", text)
	if !value.Equal(back, obj) {
		t.Errorf("JSON_PARSE(JSON_STRINGIFY(o)) = %s", back)
	}
}

func TestKeysValuesEntries(t *testing.T) {
	o := value.Object([]string{"a", "b"}, []value.Value{value.Int(1), value.Int(2)})
	if got := call(t, "KEYS", o); !value.Equal(got, strArr("a", "b")) {
		t.Errorf("KEYS = %s", got)
	}
	if got := call(t, "VALUES", o); !value.Equal(got, intArr(1, 2)) {
		t.Errorf("VALUES = %s", got)
	}
	entries := call(t, "ENTRIES", o)
	back := call(t, "FROM_ENTRIES", entries)
	if !value.Equal(back, o) {
		t.Errorf("FROM_ENTRIES(ENTRIES(o)) = %s", back)
	}
}

func TestCryptoFamily(t *testing.T) {
	// Fixed vectors.
	if got := call(t, "MD5", value.String("abc")); !value.Equal(got, value.String("900150983cd24fb0d6963f7d28e17f72")) {
		t.Errorf("MD5 = %s", got)
	}
	if got := call(t, "SHA256", value.String("abc")); !value.Equal(got, value.String("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")) {
		t.Errorf("SHA256 = %s", got)
	}
	enc := call(t, "BASE64_ENCODE", value.String("hello"))
	dec := call(t, "BASE64_DECODE", enc)
	if !value.Equal(dec, value.String("hello")) {
		t.Errorf("base64 round trip = %s", dec)
	}
	hexed := call(t, "HEX_ENCODE", value.String("hi"))
	if !value.Equal(hexed, value.String("6869")) {
		t.Errorf("HEX_ENCODE = %s", hexed)
	}
}

func TestArgon2HashVerify(t *testing.T) {
	hash := call(t, "ARGON2_HASH", value.String("secret"), value.String("pepper"))
	if !strings.Contains(hash.AsString(), "$") {
		t.Fatalf("hash format = %s", hash)
	}
	if got := call(t, "ARGON2_VERIFY", value.String("secret"), hash); !got.ToBool() {
		t.Error("correct password should verify")
	}
	if got := call(t, "ARGON2_VERIFY", value.String("wrong"), hash); got.ToBool() {
		t.Error("wrong password should not verify")
	}
}

func TestSoundex(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Robert", "R163"},
		{"Rupert", "R163"},
		{"Ashcraft", "A261"},
		{"Tymczak", "T522"},
	}
	for _, tc := range tests {
		got := call(t, "SOUNDEX", value.String(tc.in))
		if !value.Equal(got, value.String(tc.want)) {
			t.Errorf("SOUNDEX(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
	// Locale dispatch folds non-ASCII first; müller and mueller should
	// land on the same code under the German locale.
	de1 := call(t, "SOUNDEX", value.String("müller"), value.String("de"))
	de2 := call(t, "SOUNDEX", value.String("mueller"), value.String("de"))
	if !value.Equal(de1, de2) {
		t.Errorf("de SOUNDEX: %s != %s", de1, de2)
	}
}

func TestDoubleMetaphoneReturnsPair(t *testing.T) {
	got := call(t, "DOUBLE_METAPHONE", value.String("Smith"))
	if got.Kind() != value.KindArray || len(got.AsArray()) != 2 {
		t.Fatalf("DOUBLE_METAPHONE = %s, want [primary, secondary]", got)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int64
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"same", "same", 0},
	}
	for _, tc := range tests {
		got := call(t, "LEVENSHTEIN_DISTANCE", value.String(tc.a), value.String(tc.b))
		if !value.Equal(got, value.Int(tc.want)) {
			t.Errorf("LEVENSHTEIN_DISTANCE(%q, %q) = %s, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestDateFamily(t *testing.T) {
	ts := value.String("2024-03-05T10:30:00Z")
	if got := call(t, "DATE_YEAR", ts); !value.Equal(got, value.Int(2024)) {
		t.Errorf("DATE_YEAR = %s", got)
	}
	if got := call(t, "DATE_MONTH", ts); !value.Equal(got, value.Int(3)) {
		t.Errorf("DATE_MONTH = %s", got)
	}
	// 2024-03-05 is a Tuesday; DATE_DAYOFWEEK counts Sunday as 0.
	if got := call(t, "DATE_DAYOFWEEK", ts); !value.Equal(got, value.Int(2)) {
		t.Errorf("DATE_DAYOFWEEK = %s", got)
	}
	if got := call(t, "DATE_TIMESTAMP", value.String("1970-01-01T00:00:01Z")); !value.Equal(got, value.Int(1000)) {
		t.Errorf("DATE_TIMESTAMP = %s", got)
	}
}

func TestDateAddMonthIsCalendarCorrect(t *testing.T) {
	// Calendar month arithmetic, not a 30-day approximation.
	got := call(t, "DATE_ADD", value.String("2023-01-15T00:00:00Z"), value.Int(1), value.String("month"))
	if !strings.HasPrefix(got.AsString(), "2023-02-15") {
		t.Errorf("DATE_ADD month = %s", got)
	}
	back := call(t, "DATE_SUBTRACT", got, value.Int(1), value.String("month"))
	if !strings.HasPrefix(back.AsString(), "2023-01-15") {
		t.Errorf("DATE_SUBTRACT month = %s", back)
	}
	// Day-of-month clamps to the target month's last day.
	clamped := call(t, "DATE_ADD", value.String("2023-01-31T00:00:00Z"), value.Int(1), value.String("month"))
	if !strings.HasPrefix(clamped.AsString(), "2023-02-28") {
		t.Errorf("DATE_ADD from Jan 31 = %s, want Feb 28", clamped)
	}
}

func TestDateTrunc(t *testing.T) {
	got := call(t, "DATE_TRUNC", value.String("2024-03-05T10:30:45Z"), value.String("day"))
	if !strings.HasPrefix(got.AsString(), "2024-03-05T00:00:00") {
		t.Errorf("DATE_TRUNC day = %s", got)
	}
}

func TestDateTruncWithTimezone(t *testing.T) {
	// 10:30 UTC on March 5 is 05:30 in New York (EST); local midnight is
	// 2024-03-05T00:00:00-05:00.
	got := call(t, "DATE_TRUNC", value.String("2024-03-05T10:30:45Z"), value.String("day"), value.String("America/New_York"))
	if !strings.HasPrefix(got.AsString(), "2024-03-05T00:00:00-05:00") {
		t.Errorf("DATE_TRUNC day in New York = %s", got)
	}
	_, _, err := Call("DATE_TRUNC",
		[]value.Value{value.String("2024-03-05T10:30:45Z"), value.String("day"), value.String("Not/AZone")})
	if err == nil {
		t.Fatal("expected unknown-timezone error")
	}
}

func TestDateDiff(t *testing.T) {
	got := call(t, "DATE_DIFF",
		value.String("2024-01-01T00:00:00Z"),
		value.String("2024-01-03T00:00:00Z"),
		value.String("days"))
	if got.ToFloat() != 2 {
		t.Errorf("DATE_DIFF days = %s", got)
	}
}

func TestDateUnitShortForms(t *testing.T) {
	// The single-letter unit tokens, with i meaning minutes.
	base := value.String("2024-01-01T00:00:00Z")
	if got := call(t, "DATE_ADD", base, value.Int(1), value.String("d")); !strings.HasPrefix(got.AsString(), "2024-01-02") {
		t.Errorf("DATE_ADD d = %s", got)
	}
	if got := call(t, "DATE_ADD", base, value.Int(2), value.String("w")); !strings.HasPrefix(got.AsString(), "2024-01-15") {
		t.Errorf("DATE_ADD w = %s", got)
	}
	if got := call(t, "DATE_ADD", base, value.Int(90), value.String("i")); !strings.HasPrefix(got.AsString(), "2024-01-01T01:30:00") {
		t.Errorf("DATE_ADD i = %s", got)
	}
	if got := call(t, "DATE_ADD", base, value.Int(500), value.String("ms")); !strings.HasPrefix(got.AsString(), "2024-01-01T00:00:00.5") {
		t.Errorf("DATE_ADD ms = %s", got)
	}
	if got := call(t, "DATE_SUBTRACT", base, value.Int(1), value.String("y")); !strings.HasPrefix(got.AsString(), "2023-01-01") {
		t.Errorf("DATE_SUBTRACT y = %s", got)
	}

	end := value.String("2024-01-03T00:00:00Z")
	if got := call(t, "DATE_DIFF", base, end, value.String("d")); got.ToFloat() != 2 {
		t.Errorf("DATE_DIFF d = %s", got)
	}
	if got := call(t, "DATE_DIFF", base, end, value.String("h")); got.ToFloat() != 48 {
		t.Errorf("DATE_DIFF h = %s", got)
	}
	if got := call(t, "DATE_DIFF", base, value.String("2024-01-01T00:00:01Z"), value.String("ms")); got.ToFloat() != 1000 {
		t.Errorf("DATE_DIFF ms = %s", got)
	}
}

func TestDateDiffUnknownUnitErrors(t *testing.T) {
	_, _, err := Call("DATE_DIFF",
		[]value.Value{value.String("2024-01-01T00:00:00Z"), value.String("2024-01-02T00:00:00Z"), value.String("fortnights")})
	if err == nil {
		t.Fatal("expected unknown-unit error")
	}
}

func TestNanoidRespectsSize(t *testing.T) {
	got := call(t, "NANOID", value.Int(12))
	if n := len(got.AsString()); n != 12 {
		t.Errorf("NANOID(12) length = %d", n)
	}
}

func TestUUIDFormats(t *testing.T) {
	u := call(t, "UUID")
	if ok := call(t, "IS_UUID", u); !ok.ToBool() {
		t.Errorf("UUID() = %s does not validate", u)
	}
	u7a := call(t, "UUIDV7").AsString()
	u7b := call(t, "UUIDV7").AsString()
	if u7a == u7b {
		t.Error("UUIDv7 values should be unique")
	}
}
