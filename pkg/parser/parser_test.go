package parser

import (
	"testing"

	"github.com/chazu/skiff/pkg/ast"
	"github.com/chazu/skiff/pkg/diag"
)

func parseOK(t *testing.T, input string) *ast.Module {
	t.Helper()
	mod, diags := Parse(diag.NewSource("test.sk", input))
	if diag.HasErrors(diags) {
		t.Fatalf("unexpected parse errors for %q: %v", input, diags)
	}
	return mod
}

func parseFail(t *testing.T, input string) []diag.Diagnostic {
	t.Helper()
	_, diags := Parse(diag.NewSource("test.sk", input))
	if !diag.HasErrors(diags) {
		t.Fatalf("expected parse errors for %q, got none", input)
	}
	return diags
}

func TestParseLet(t *testing.T) {
	mod := parseOK(t, "let x = 42")
	if len(mod.Stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(mod.Stmts))
	}
	let, ok := mod.Stmts[0].(*ast.Let)
	if !ok {
		t.Fatalf("expected *ast.Let, got %T", mod.Stmts[0])
	}
	if let.Destructure {
		t.Error("single binding should not be a destructure")
	}
	if len(let.Names) != 1 || let.Names[0].Name != "x" {
		t.Errorf("expected binding x, got %v", let.Names)
	}
	lit, ok := let.Value.(*ast.IntLit)
	if !ok || lit.Value != 42 {
		t.Errorf("expected IntLit 42, got %v", let.Value)
	}
}

func TestParseLetDestructure(t *testing.T) {
	mod := parseOK(t, "let (a, b) = (1, 2)")
	let := mod.Stmts[0].(*ast.Let)
	if !let.Destructure {
		t.Fatal("expected a destructuring let")
	}
	if len(let.Names) != 2 || let.Names[0].Name != "a" || let.Names[1].Name != "b" {
		t.Errorf("expected bindings a, b, got %v", let.Names)
	}
	tup, ok := let.Value.(*ast.TupleLit)
	if !ok || len(tup.Elems) != 2 {
		t.Errorf("expected a 2-element tuple, got %v", let.Value)
	}
}

func TestPrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3).
	mod := parseOK(t, "let x = 1 + 2 * 3")
	bin := mod.Stmts[0].(*ast.Let).Value.(*ast.Binary)
	if bin.Op != ast.OpAdd {
		t.Fatalf("expected + at the root, got %s", bin.Op)
	}
	right, ok := bin.Right.(*ast.Binary)
	if !ok || right.Op != ast.OpMul {
		t.Errorf("expected * on the right, got %v", bin.Right)
	}
}

func TestPowerRightAssociative(t *testing.T) {
	// 2 ** 3 ** 2 parses as 2 ** (3 ** 2).
	mod := parseOK(t, "let x = 2 ** 3 ** 2")
	bin := mod.Stmts[0].(*ast.Let).Value.(*ast.Binary)
	if bin.Op != ast.OpPow {
		t.Fatalf("expected ** at the root, got %s", bin.Op)
	}
	if _, ok := bin.Left.(*ast.IntLit); !ok {
		t.Errorf("expected a literal on the left, got %T", bin.Left)
	}
	right, ok := bin.Right.(*ast.Binary)
	if !ok || right.Op != ast.OpPow {
		t.Errorf("expected ** on the right, got %v", bin.Right)
	}
}

func TestComparisonBelowRange(t *testing.T) {
	// 1 .. n + 1 parses as 1 .. (n + 1).
	mod := parseOK(t, "let r = 1 .. n + 1")
	bin := mod.Stmts[0].(*ast.Let).Value.(*ast.Binary)
	if bin.Op != ast.OpRange {
		t.Fatalf("expected .. at the root, got %s", bin.Op)
	}
	if right, ok := bin.Right.(*ast.Binary); !ok || right.Op != ast.OpAdd {
		t.Errorf("expected + under .., got %v", bin.Right)
	}
}

func TestUnaryBindsTighterThanMul(t *testing.T) {
	// -a * b parses as (-a) * b.
	mod := parseOK(t, "let x = -a * b")
	bin := mod.Stmts[0].(*ast.Let).Value.(*ast.Binary)
	if bin.Op != ast.OpMul {
		t.Fatalf("expected * at the root, got %s", bin.Op)
	}
	if _, ok := bin.Left.(*ast.Unary); !ok {
		t.Errorf("expected unary minus on the left, got %T", bin.Left)
	}
}

func TestGroupingVersusTuple(t *testing.T) {
	mod := parseOK(t, "let a = (1 + 2)\nlet b = (1,)\nlet c = ()")
	if _, ok := mod.Stmts[0].(*ast.Let).Value.(*ast.Binary); !ok {
		t.Errorf("(1 + 2) should be grouping, got %T", mod.Stmts[0].(*ast.Let).Value)
	}
	one, ok := mod.Stmts[1].(*ast.Let).Value.(*ast.TupleLit)
	if !ok || len(one.Elems) != 1 {
		t.Errorf("(1,) should be a 1-tuple, got %v", mod.Stmts[1].(*ast.Let).Value)
	}
	unit, ok := mod.Stmts[2].(*ast.Let).Value.(*ast.TupleLit)
	if !ok || len(unit.Elems) != 0 {
		t.Errorf("() should be the empty tuple, got %v", mod.Stmts[2].(*ast.Let).Value)
	}
}

func TestPostfixChain(t *testing.T) {
	// t.items[0]:render(x) chains member, index, and method call.
	mod := parseOK(t, "t.items[0]:render(x)")
	call, ok := mod.Stmts[0].(*ast.ExprStmt).E.(*ast.MethodCall)
	if !ok {
		t.Fatalf("expected method call, got %T", mod.Stmts[0].(*ast.ExprStmt).E)
	}
	if call.Method != "render" || len(call.Args) != 1 {
		t.Errorf("expected render with 1 argument, got %s with %d", call.Method, len(call.Args))
	}
	idx, ok := call.Receiver.(*ast.Index)
	if !ok {
		t.Fatalf("expected index receiver, got %T", call.Receiver)
	}
	if _, ok := idx.Target.(*ast.Member); !ok {
		t.Errorf("expected member access under index, got %T", idx.Target)
	}
}

func TestParseIfChain(t *testing.T) {
	mod := parseOK(t, "if a then x = 1 elsif b then x = 2 else x = 3 end")
	stmt := mod.Stmts[0].(*ast.If)
	if len(stmt.Branches) != 2 {
		t.Fatalf("expected 2 branches, got %d", len(stmt.Branches))
	}
	if len(stmt.Else) != 1 {
		t.Errorf("expected 1 else statement, got %d", len(stmt.Else))
	}
}

func TestParseLoops(t *testing.T) {
	mod := parseOK(t, "while x < 10 do x = x + 1 end\nloop break end\nfor i in 0..10 do print(i) end")
	if _, ok := mod.Stmts[0].(*ast.While); !ok {
		t.Errorf("expected while, got %T", mod.Stmts[0])
	}
	lp, ok := mod.Stmts[1].(*ast.Loop)
	if !ok {
		t.Fatalf("expected loop, got %T", mod.Stmts[1])
	}
	if _, ok := lp.Body[0].(*ast.Break); !ok {
		t.Errorf("expected break in loop body, got %T", lp.Body[0])
	}
	fr, ok := mod.Stmts[2].(*ast.For)
	if !ok {
		t.Fatalf("expected for, got %T", mod.Stmts[2])
	}
	if fr.Var.Name != "i" {
		t.Errorf("expected loop variable i, got %s", fr.Var.Name)
	}
	if rng, ok := fr.Iterable.(*ast.Binary); !ok || rng.Op != ast.OpRange {
		t.Errorf("expected range iterable, got %v", fr.Iterable)
	}
}

func TestParseFuncDecl(t *testing.T) {
	mod := parseOK(t, "def add(a, b)\n  return a + b\nend")
	decl, ok := mod.Stmts[0].(*ast.FuncDecl)
	if !ok {
		t.Fatalf("expected function declaration, got %T", mod.Stmts[0])
	}
	if decl.Name.Name != "add" || len(decl.Fn.Params) != 2 {
		t.Errorf("expected add with 2 parameters, got %s with %d", decl.Name.Name, len(decl.Fn.Params))
	}
	ret, ok := decl.Fn.Body[0].(*ast.Return)
	if !ok || len(ret.Values) != 1 {
		t.Errorf("expected a single-value return, got %v", decl.Fn.Body[0])
	}
}

func TestParseAnonymousFunc(t *testing.T) {
	mod := parseOK(t, "let f = def (x) return x end")
	if _, ok := mod.Stmts[0].(*ast.Let).Value.(*ast.FuncLit); !ok {
		t.Errorf("expected function literal, got %T", mod.Stmts[0].(*ast.Let).Value)
	}
}

func TestParseMultiValueReturn(t *testing.T) {
	mod := parseOK(t, "def divmod(a, b)\n  return a // b, a % b\nend")
	ret := mod.Stmts[0].(*ast.FuncDecl).Fn.Body[0].(*ast.Return)
	if len(ret.Values) != 2 {
		t.Errorf("expected 2 return values, got %d", len(ret.Values))
	}
}

func TestBareReturn(t *testing.T) {
	mod := parseOK(t, "def f()\n  return\nend")
	ret := mod.Stmts[0].(*ast.FuncDecl).Fn.Body[0].(*ast.Return)
	if len(ret.Values) != 0 {
		t.Errorf("expected no return values, got %d", len(ret.Values))
	}
}

func TestParseTableLit(t *testing.T) {
	mod := parseOK(t, "let t = { name = \"point\", x = 1, y = 2 }")
	lit := mod.Stmts[0].(*ast.Let).Value.(*ast.TableLit)
	if len(lit.Fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(lit.Fields))
	}
	if lit.Fields[0].Name != "name" {
		t.Errorf("expected first field name, got %s", lit.Fields[0].Name)
	}
}

func TestTableNonIdentifierKey(t *testing.T) {
	diags := parseFail(t, "let t = { 1 = 2 }")
	found := false
	for _, d := range diags {
		if d.Code == diag.CodeNonStringKey {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s, got %v", diag.CodeNonStringKey, diags)
	}
}

func TestIndexAssignment(t *testing.T) {
	mod := parseOK(t, "t[0] = 5\nt.field = 6")
	asn, ok := mod.Stmts[0].(*ast.Assign)
	if !ok {
		t.Fatalf("expected assignment, got %T", mod.Stmts[0])
	}
	if _, ok := asn.Target.(*ast.Index); !ok {
		t.Errorf("expected index target, got %T", asn.Target)
	}
	asn2 := mod.Stmts[1].(*ast.Assign)
	if _, ok := asn2.Target.(*ast.Member); !ok {
		t.Errorf("expected member target, got %T", asn2.Target)
	}
}

func TestRecoveryReportsMultipleErrors(t *testing.T) {
	// Two independent syntax errors in one file should both be
	// reported in a single pass.
	diags := parseFail(t, "let = 1\nlet y = 2\nlet = 3")
	errors := 0
	for _, d := range diags {
		if d.Severity == diag.SeverityError {
			errors++
		}
	}
	if errors < 2 {
		t.Errorf("expected at least 2 errors, got %d: %v", errors, diags)
	}
}

func TestRecoveryKeepsLaterStatements(t *testing.T) {
	mod, _ := Parse(diag.NewSource("test.sk", "let = 1\nlet y = 2"))
	var sawGood bool
	for _, s := range mod.Stmts {
		if let, ok := s.(*ast.Let); ok && len(let.Names) == 1 && let.Names[0].Name == "y" {
			sawGood = true
		}
	}
	if !sawGood {
		t.Error("expected the valid statement after the error to be parsed")
	}
}

func TestUnexpectedEOF(t *testing.T) {
	diags := parseFail(t, "def f(x)\n  return x")
	found := false
	for _, d := range diags {
		if d.Code == diag.CodeUnexpectedEOF {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s, got %v", diag.CodeUnexpectedEOF, diags)
	}
}

func TestAssertStatement(t *testing.T) {
	mod := parseOK(t, "assert x > 0")
	as, ok := mod.Stmts[0].(*ast.Assert)
	if !ok {
		t.Fatalf("expected assert, got %T", mod.Stmts[0])
	}
	if cmp, ok := as.Cond.(*ast.Binary); !ok || cmp.Op != ast.OpGt {
		t.Errorf("expected comparison condition, got %v", as.Cond)
	}
}

func TestShortCircuitPrecedence(t *testing.T) {
	// a or b and c parses as a or (b and c).
	mod := parseOK(t, "let x = a or b and c")
	bin := mod.Stmts[0].(*ast.Let).Value.(*ast.Binary)
	if bin.Op != ast.OpOr {
		t.Fatalf("expected or at the root, got %s", bin.Op)
	}
	if right, ok := bin.Right.(*ast.Binary); !ok || right.Op != ast.OpAnd {
		t.Errorf("expected and on the right, got %v", bin.Right)
	}
}
