package lexer

import (
	"testing"

	"github.com/chazu/skiff/pkg/diag"
)

func lex(t *testing.T, source string) []Token {
	t.Helper()
	l := New(diag.NewSource("test.sk", source))
	if l.HasErrors() {
		t.Fatalf("unexpected lex errors: %v", l.Diagnostics())
	}
	return l.Tokens()
}

func lexFail(t *testing.T, source, code string) []diag.Diagnostic {
	t.Helper()
	l := New(diag.NewSource("test.sk", source))
	if !l.HasErrors() {
		t.Fatalf("expected lex errors for %q", source)
	}
	for _, d := range l.Diagnostics() {
		if d.Code == code {
			return l.Diagnostics()
		}
	}
	t.Fatalf("expected code %s, got %v", code, l.Diagnostics())
	return nil
}

func wantKinds(t *testing.T, toks []Token, kinds ...Kind) {
	t.Helper()
	if len(toks) != len(kinds) {
		t.Fatalf("expected %d tokens, got %d: %v", len(kinds), len(toks), toks)
	}
	for i, k := range kinds {
		if toks[i].Kind != k {
			t.Errorf("token %d: expected %s, got %s", i, k, toks[i].Kind)
		}
	}
}

func TestIntLiterals(t *testing.T) {
	cases := []struct {
		source string
		want   int64
	}{
		{"0", 0},
		{"42", 42},
		{"1_000_000", 1000000},
		{"0xFF", 255},
		{"0o755", 493},
		{"0b1010", 10},
		{"9223372036854775807", 9223372036854775807},
	}
	for _, c := range cases {
		toks := lex(t, c.source)
		if len(toks) != 1 || toks[0].Kind != TokenInt {
			t.Fatalf("%q: expected one integer token, got %v", c.source, toks)
		}
		if toks[0].Int != c.want {
			t.Errorf("%q: expected %d, got %d", c.source, c.want, toks[0].Int)
		}
	}
}

func TestFloatLiterals(t *testing.T) {
	cases := []struct {
		source string
		want   float64
	}{
		{"3.14", 3.14},
		{"0.5", 0.5},
		{"1e3", 1000},
		{"2.5e-2", 0.025},
		{"1E6", 1e6},
	}
	for _, c := range cases {
		toks := lex(t, c.source)
		if len(toks) != 1 || toks[0].Kind != TokenFloat {
			t.Fatalf("%q: expected one float token, got %v", c.source, toks)
		}
		if toks[0].Float != c.want {
			t.Errorf("%q: expected %g, got %g", c.source, c.want, toks[0].Float)
		}
	}
}

func TestIntegerOverflow(t *testing.T) {
	lexFail(t, "9223372036854775808", diag.CodeInvalidNumber)
}

func TestMalformedNumberIsOneError(t *testing.T) {
	l := New(diag.NewSource("test.sk", "123abc"))
	if !l.HasErrors() {
		t.Fatal("expected an error for 123abc")
	}
	if len(l.Diagnostics()) != 1 {
		t.Errorf("expected a single diagnostic, got %v", l.Diagnostics())
	}
}

func TestRangeAfterInt(t *testing.T) {
	// 1..10 must not scan "1." as a float.
	toks := lex(t, "1..10")
	wantKinds(t, toks, TokenInt, TokenDotDot, TokenInt)
	if toks[0].Int != 1 || toks[2].Int != 10 {
		t.Errorf("unexpected values: %v", toks)
	}
}

func TestStringEscapes(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{`"hello"`, "hello"},
		{`'single'`, "single"},
		{`"a\tb\nc"`, "a\tb\nc"},
		{`"say \"hi\""`, `say "hi"`},
		{`"\x41"`, "A"},
		{`"é"`, "é"},
		{`"\U0001F600"`, "\U0001F600"},
	}
	for _, c := range cases {
		toks := lex(t, c.source)
		if len(toks) != 1 || toks[0].Kind != TokenString {
			t.Fatalf("%q: expected one string token, got %v", c.source, toks)
		}
		if toks[0].Text != c.want {
			t.Errorf("%q: expected %q, got %q", c.source, c.want, toks[0].Text)
		}
	}
}

func TestUnterminatedString(t *testing.T) {
	lexFail(t, `"no closing quote`, diag.CodeInvalidString)
}

func TestInvalidEscape(t *testing.T) {
	lexFail(t, `"bad \q escape"`, diag.CodeInvalidString)
}

func TestKeywordsAndIdents(t *testing.T) {
	toks := lex(t, "let while_count = while")
	wantKinds(t, toks, TokenLet, TokenIdent, TokenAssign, TokenWhile)
	if toks[1].Text != "while_count" {
		t.Errorf("expected ident while_count, got %q", toks[1].Text)
	}
}

func TestUnicodeIdentifiers(t *testing.T) {
	toks := lex(t, "let café = 1")
	wantKinds(t, toks, TokenLet, TokenIdent, TokenAssign, TokenInt)
	if toks[1].Text != "café" {
		t.Errorf("expected ident café, got %q", toks[1].Text)
	}
}

func TestTwoByteOperators(t *testing.T) {
	toks := lex(t, "== <> <= >= ** // ..")
	wantKinds(t, toks, TokenEq, TokenNe, TokenLe, TokenGe, TokenStarStar, TokenSlashSlash, TokenDotDot)
}

func TestMethodCallPunctuation(t *testing.T) {
	toks := lex(t, "obj:method(a.b)")
	wantKinds(t, toks,
		TokenIdent, TokenColon, TokenIdent,
		TokenLParen, TokenIdent, TokenDot, TokenIdent, TokenRParen)
}

func TestCommentsAreSkipped(t *testing.T) {
	toks := lex(t, "1 -- a comment\n2")
	wantKinds(t, toks, TokenInt, TokenInt)
}

func TestCommentVersusMinus(t *testing.T) {
	// "a - b" subtracts; "a --b" comments out the rest of the line.
	wantKinds(t, lex(t, "a - b"), TokenIdent, TokenMinus, TokenIdent)
	wantKinds(t, lex(t, "a --b"), TokenIdent)
}

func TestShebangSkipped(t *testing.T) {
	toks := lex(t, "#!/usr/bin/env skiff\nreturn 1")
	wantKinds(t, toks, TokenReturn, TokenInt)
}

func TestUnknownSymbol(t *testing.T) {
	lexFail(t, "a ; b", diag.CodeInvalidChar)
}

func TestInvalidUTF8Terminates(t *testing.T) {
	l := New(diag.NewSource("test.sk", "let x = \xff"))
	lexFail(t, "let x = \xff", diag.CodeInvalidChar)
	wantKinds(t, l.Tokens(), TokenLet, TokenIdent, TokenAssign)
}

func TestInvalidUTF8InsideIdentifier(t *testing.T) {
	// The bad byte splits the identifier and is reported once.
	l := New(diag.NewSource("test.sk", "ab\xffc"))
	if len(l.Diagnostics()) != 1 {
		t.Fatalf("expected one diagnostic, got %v", l.Diagnostics())
	}
	wantKinds(t, l.Tokens(), TokenIdent, TokenIdent)
	if l.Tokens()[0].Text != "ab" || l.Tokens()[1].Text != "c" {
		t.Errorf("unexpected idents: %v", l.Tokens())
	}
}

func TestScanContinuesPastErrors(t *testing.T) {
	l := New(diag.NewSource("test.sk", "let x = @ + $ + 1"))
	if len(l.Diagnostics()) != 2 {
		t.Fatalf("expected two diagnostics, got %v", l.Diagnostics())
	}
	// The valid tokens around the errors are still produced.
	wantKinds(t, l.Tokens(), TokenLet, TokenIdent, TokenAssign, TokenPlus, TokenPlus, TokenInt)
}

func TestSpansCoverSource(t *testing.T) {
	source := "let abc = 42"
	toks := lex(t, source)
	for _, tok := range toks {
		if tok.Span.Start < 0 || tok.Span.End > len(source) || tok.Span.Start >= tok.Span.End {
			t.Errorf("bad span %+v for token %s", tok.Span, tok)
		}
	}
	if got := source[toks[1].Span.Start:toks[1].Span.End]; got != "abc" {
		t.Errorf("ident span covers %q", got)
	}
}
