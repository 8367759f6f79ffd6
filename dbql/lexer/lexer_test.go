package lexer

import (
	"testing"

	"github.com/solisoft/solidb/dbql/token"
)

func kinds(t *testing.T, src string) []token.Kind {
	t.Helper()
	toks, err := Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", src, err)
	}
	out := make([]token.Kind, len(toks))
	for i, tok := range toks {
		out[i] = tok.Kind
	}
	return out
}

func TestKeywordsAreCaseInsensitive(t *testing.T) {
	for _, src := range []string{"FOR", "for", "For", "fOr"} {
		toks, err := Tokenize(src)
		if err != nil {
			t.Fatalf("Tokenize(%q): %v", src, err)
		}
		if toks[0].Kind != token.FOR {
			t.Errorf("Tokenize(%q)[0] = %s, want FOR", src, toks[0].Kind)
		}
	}
}

func TestIdentifiersKeepTheirCase(t *testing.T) {
	toks, err := Tokenize("userName")
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Kind != token.Ident || toks[0].Text != "userName" {
		t.Errorf("got %s %q", toks[0].Kind, toks[0].Text)
	}
}

func TestMultiCharOperators(t *testing.T) {
	tests := []struct {
		src  string
		want token.Kind
	}{
		{"??", token.NULL_COALESCE},
		{"?.", token.QuestionDot},
		{"..", token.DotDot},
		{"->", token.Arrow},
		{"|>", token.Pipeline},
		{"~=", token.FuzzyEq},
		{"!=", token.NotEq},
		{"<>", token.NotEq},
		{"<=", token.LtEq},
		{">=", token.GtEq},
		{"||", token.LogicalOr},
	}
	for _, tc := range tests {
		toks, err := Tokenize(tc.src)
		if err != nil {
			t.Fatalf("Tokenize(%q): %v", tc.src, err)
		}
		if toks[0].Kind != tc.want {
			t.Errorf("Tokenize(%q)[0] = %v, want %v", tc.src, toks[0].Kind, tc.want)
		}
		if len(toks) != 2 {
			t.Errorf("Tokenize(%q) produced %d tokens, want operator+EOF", tc.src, len(toks))
		}
	}
}

func TestNumbers(t *testing.T) {
	toks, err := Tokenize("42 3.14 1e3 2.5e-1")
	if err != nil {
		t.Fatal(err)
	}
	wantKinds := []token.Kind{token.IntNumber, token.Number, token.Number, token.Number, token.EOF}
	for i, want := range wantKinds {
		if toks[i].Kind != want {
			t.Errorf("token %d = %v (%q), want %v", i, toks[i].Kind, toks[i].Text, want)
		}
	}
}

func TestRangeAfterIntDoesNotEatDot(t *testing.T) {
	got := kinds(t, "1..5")
	want := []token.Kind{token.IntNumber, token.DotDot, token.IntNumber, token.EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestStringQuotingAndEscapes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`"a\nb"`, "a\nb"},
		{`"say ""hi"""`, `say "hi"`},
		{`'it''s'`, "it's"},
	}
	for _, tc := range tests {
		toks, err := Tokenize(tc.src)
		if err != nil {
			t.Fatalf("Tokenize(%s): %v", tc.src, err)
		}
		if toks[0].Kind != token.StringLit || toks[0].Text != tc.want {
			t.Errorf("Tokenize(%s) = %s %q, want STRING %q", tc.src, toks[0].Kind, toks[0].Text, tc.want)
		}
	}
}

func TestBacktickQuotedIdentifier(t *testing.T) {
	toks, err := Tokenize("`for`")
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Kind != token.Ident || toks[0].Text != "for" {
		t.Errorf("backtick-quoted keyword should lex as identifier, got %s %q", toks[0].Kind, toks[0].Text)
	}
}

func TestBindVariable(t *testing.T) {
	toks, err := Tokenize("@minAge")
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Kind != token.BindVar || toks[0].Text != "minAge" {
		t.Errorf("got %s %q", toks[0].Kind, toks[0].Text)
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	got := kinds(t, "RETURN // line comment\n /* block\ncomment */ 1")
	want := []token.Kind{token.RETURN, token.IntNumber, token.EOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestUnterminatedStringErrors(t *testing.T) {
	if _, err := Tokenize(`"oops`); err == nil {
		t.Error("expected error for unterminated string")
	}
}

func TestTokenPositionsAreByteOffsets(t *testing.T) {
	toks, err := Tokenize("FOR d IN users")
	if err != nil {
		t.Fatal(err)
	}
	wantPos := []int{0, 4, 6, 9}
	for i, want := range wantPos {
		if toks[i].Pos != want {
			t.Errorf("token %d pos = %d, want %d", i, toks[i].Pos, want)
		}
	}
}
