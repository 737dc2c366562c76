package diag

import (
	"strings"
	"testing"
)

func TestPositionMapping(t *testing.T) {
	src := NewSource("p.sk", "abc\ndef\n\nghi")
	cases := []struct {
		offset    int
		line, col int
	}{
		{0, 1, 1},
		{2, 1, 3},
		{4, 2, 1},
		{8, 3, 1},
		{9, 4, 1},
		{11, 4, 3},
	}
	for _, c := range cases {
		line, col := src.Position(c.offset)
		if line != c.line || col != c.col {
			t.Errorf("offset %d: expected %d:%d, got %d:%d", c.offset, c.line, c.col, line, col)
		}
	}
}

func TestSourceLines(t *testing.T) {
	src := NewSource("p.sk", "one\ntwo\nthree")
	if src.LineCount() != 3 {
		t.Fatalf("expected 3 lines, got %d", src.LineCount())
	}
	if src.Line(2) != "two" {
		t.Errorf("expected line 2 to be %q, got %q", "two", src.Line(2))
	}
}

func TestSpanMerge(t *testing.T) {
	merged := NewSpan(5, 8).Merge(NewSpan(2, 6))
	if merged.Start != 2 || merged.End != 8 {
		t.Errorf("expected [2,8), got %+v", merged)
	}
}

func TestRenderLayout(t *testing.T) {
	src := NewSource("script.sk", "let t = [1,2,3] return t[5]")
	d := Errorf("E3001", NewSpan(23, 27), "index out of range: 5 (length 3)").
		WithHelp("list indices run from 0 to length-1")

	got := NewRenderer(src).Render(d)
	want := strings.Join([]string{
		"error[E3001]: index out of range: 5 (length 3)",
		"  --> script.sk:1:24",
		"   |",
		" 1 | let t = [1,2,3] return t[5]",
		"   |                        ^^^^",
		"   = help: list indices run from 0 to length-1",
		"",
	}, "\n")
	if got != want {
		t.Errorf("render mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderSecondaryLabel(t *testing.T) {
	src := NewSource("s.sk", "def f(a, a)\nend")
	d := Errorf("E2002", NewSpan(9, 10), "duplicate parameter \"a\"").
		WithLabel(NewSpan(6, 7), "first declared here")

	got := NewRenderer(src).Render(d)
	if !strings.Contains(got, "^") {
		t.Errorf("missing primary underline:\n%s", got)
	}
	if !strings.Contains(got, "- first declared here") {
		t.Errorf("missing secondary label:\n%s", got)
	}
}

func TestRenderMultiLineSpan(t *testing.T) {
	src := NewSource("m.sk", "while true do\n  x = 1\nend")
	d := Errorf("E1001", NewSpan(0, 25), "unclosed loop")
	got := NewRenderer(src).Render(d)
	if !strings.Contains(got, "(spans 3 lines)") {
		t.Errorf("expected multi-line note:\n%s", got)
	}
}

func TestRenderWithoutCode(t *testing.T) {
	src := NewSource("n.sk", "x")
	d := Diagnostic{Severity: SeverityError, Message: "boom", Primary: NewSpan(0, 1)}
	got := NewRenderer(src).Render(d)
	if !strings.HasPrefix(got, "error: boom\n") {
		t.Errorf("unexpected header:\n%s", got)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	src := NewSource("d.sk", "let x = y")
	d := Errorf("E2001", NewSpan(8, 9), "undefined variable \"y\"")
	r := NewRenderer(src)
	if r.Render(d) != r.Render(d) {
		t.Error("rendering the same diagnostic twice differed")
	}
}

func TestSummaryCounts(t *testing.T) {
	ds := []Diagnostic{
		Errorf("E0001", NewSpan(0, 1), "a"),
		Warningf("W0001", NewSpan(0, 1), "b"),
		Errorf("E0002", NewSpan(0, 1), "c"),
	}
	if got := Summary(ds); got != "2 errors and 1 warnings generated" {
		t.Errorf("unexpected summary: %q", got)
	}
	if !HasErrors(ds) {
		t.Error("HasErrors should be true")
	}
	if HasErrors(ds[1:2]) {
		t.Error("a lone warning is not an error")
	}
}
