package bytecode

import (
	"strings"
	"testing"

	"github.com/chazu/skiff/pkg/diag"
	"github.com/chazu/skiff/pkg/parser"
)

var testBuiltins = []string{"print", "len", "str"}

func compileOK(t *testing.T, input string) *Module {
	t.Helper()
	src := diag.NewSource("test.sk", input)
	astMod, diags := parser.Parse(src)
	if diag.HasErrors(diags) {
		t.Fatalf("parse errors for %q: %v", input, diags)
	}
	mod, diags := Compile(src, astMod, testBuiltins)
	if diag.HasErrors(diags) {
		t.Fatalf("compile errors for %q: %v", input, diags)
	}
	return mod
}

func compileFail(t *testing.T, input string) []diag.Diagnostic {
	t.Helper()
	src := diag.NewSource("test.sk", input)
	astMod, diags := parser.Parse(src)
	if diag.HasErrors(diags) {
		t.Fatalf("parse errors for %q: %v", input, diags)
	}
	_, diags = Compile(src, astMod, testBuiltins)
	if !diag.HasErrors(diags) {
		t.Fatalf("expected compile errors for %q, got none", input)
	}
	return diags
}

func hasCode(diags []diag.Diagnostic, code string) bool {
	for _, d := range diags {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestCompileSimpleLet(t *testing.T) {
	mod := compileOK(t, "let x = 1\nlet y = x")
	entry := mod.Entry()
	if entry.Name != "<main>" {
		t.Errorf("expected entry <main>, got %s", entry.Name)
	}
	if entry.NumLocals < 2 {
		t.Errorf("expected at least 2 local slots, got %d", entry.NumLocals)
	}
	// The trailing instruction is the implicit unit return.
	if Opcode(entry.Code[len(entry.Code)-1]) != OpReturnUnit {
		t.Errorf("expected trailing RETURN_UNIT, got %s", Opcode(entry.Code[len(entry.Code)-1]))
	}
}

func TestUndefinedVariableIsCompileError(t *testing.T) {
	diags := compileFail(t, "let y = x")
	if !hasCode(diags, diag.CodeUndefinedVar) {
		t.Errorf("expected %s, got %v", diag.CodeUndefinedVar, diags)
	}
}

func TestAssignToUndefinedIsCompileError(t *testing.T) {
	diags := compileFail(t, "x = 1")
	if !hasCode(diags, diag.CodeUndefinedVar) {
		t.Errorf("expected %s, got %v", diag.CodeUndefinedVar, diags)
	}
}

func TestBlockScopedLetDoesNotLeak(t *testing.T) {
	diags := compileFail(t, "if true then let x = 1 end\nlet y = x")
	if !hasCode(diags, diag.CodeUndefinedVar) {
		t.Errorf("expected %s for out-of-scope x, got %v", diag.CodeUndefinedVar, diags)
	}
}

func TestDuplicateParameter(t *testing.T) {
	diags := compileFail(t, "def f(a, a)\n  return a\nend")
	if !hasCode(diags, diag.CodeDuplicateParam) {
		t.Errorf("expected %s, got %v", diag.CodeDuplicateParam, diags)
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	diags := compileFail(t, "break")
	if !hasCode(diags, diag.CodeLoopControl) {
		t.Errorf("expected %s, got %v", diag.CodeLoopControl, diags)
	}
}

func TestContinueOutsideLoop(t *testing.T) {
	diags := compileFail(t, "continue")
	if !hasCode(diags, diag.CodeLoopControl) {
		t.Errorf("expected %s, got %v", diag.CodeLoopControl, diags)
	}
}

func TestInvalidAssignTarget(t *testing.T) {
	diags := compileFail(t, "let x = 1\n(x + 1) = 2")
	if !hasCode(diags, diag.CodeInvalidAssign) {
		t.Errorf("expected %s, got %v", diag.CodeInvalidAssign, diags)
	}
}

func TestBuiltinResolution(t *testing.T) {
	mod := compileOK(t, "print(42)")
	var sawBuiltin bool
	code := mod.Entry().Code
	for offset := 0; offset < len(code); {
		op := Opcode(code[offset])
		if op == OpLoadBuiltin {
			sawBuiltin = true
		}
		offset += 1 + op.OperandLen()
	}
	if !sawBuiltin {
		t.Error("expected a LOAD_BUILTIN instruction for print")
	}
}

func TestClosureCapture(t *testing.T) {
	mod := compileOK(t, `
let counter = 0
def bump()
  counter = counter + 1
  return counter
end
bump()
`)
	if len(mod.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(mod.Functions))
	}
	bump := mod.Functions[1]
	if len(bump.Upvalues) != 1 {
		t.Fatalf("expected 1 upvalue, got %d", len(bump.Upvalues))
	}
	if !bump.Upvalues[0].InParent {
		t.Error("expected the capture to refer to a parent local")
	}
}

func TestNestedClosureThreadsCapture(t *testing.T) {
	mod := compileOK(t, `
def outer()
  let x = 1
  def middle()
    def inner()
      return x
    end
    return inner
  end
  return middle
end
`)
	if len(mod.Functions) != 4 {
		t.Fatalf("expected 4 functions, got %d", len(mod.Functions))
	}
	inner := mod.Functions[3]
	if inner.Name != "inner" {
		t.Fatalf("expected function 3 to be inner, got %s", inner.Name)
	}
	if len(inner.Upvalues) != 1 || inner.Upvalues[0].InParent {
		t.Errorf("inner should capture through middle's upvalue list, got %+v", inner.Upvalues)
	}
	middle := mod.Functions[2]
	if len(middle.Upvalues) != 1 || !middle.Upvalues[0].InParent {
		t.Errorf("middle should capture outer's local, got %+v", middle.Upvalues)
	}
}

func TestRecursionResolvesOwnName(t *testing.T) {
	compileOK(t, `
def fact(n)
  if n <= 1 then return 1 end
  return n * fact(n - 1)
end
`)
}

func TestConstantDeduplication(t *testing.T) {
	mod := compileOK(t, `let a = "hi"` + "\n" + `let b = "hi"` + "\n" + `let c = "hi"`)
	count := 0
	for _, c := range mod.Entry().Constants {
		if c.Kind == ConstString && c.Str == "hi" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one pooled copy of the string, got %d", count)
	}
}

func TestConstantFolding(t *testing.T) {
	mod := compileOK(t, "let x = 2 + 3 * 4")
	found := false
	for _, c := range mod.Entry().Constants {
		if c.Kind == ConstInt && c.Int == 14 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected folded constant 14, constants: %v", mod.Entry().Constants)
	}
}

func TestDivisionIsNotFolded(t *testing.T) {
	// Zero divisors must fail at run time, not compile time.
	compileOK(t, "let x = 1 // 0")
}

func TestSpanMapCoversCode(t *testing.T) {
	mod := compileOK(t, "let x = 1\nlet y = x + 2")
	entry := mod.Entry()
	if len(entry.Spans) == 0 {
		t.Fatal("expected span entries")
	}
	span := entry.SpanAt(len(entry.Code) - 1)
	if span.End == 0 {
		t.Error("expected a non-empty span at the end of the code")
	}
}

func TestWireRoundTrip(t *testing.T) {
	mod := compileOK(t, `
def greet(name)
  return "hello " + name
end
print(greet("world"))
`)
	data, err := EncodeModule(mod)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeModule(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Functions) != len(mod.Functions) {
		t.Fatalf("function count changed: %d != %d", len(decoded.Functions), len(mod.Functions))
	}
	for i := range mod.Functions {
		want, got := mod.Functions[i], decoded.Functions[i]
		if got.Name != want.Name || got.NumParams != want.NumParams {
			t.Errorf("function %d header changed: %+v != %+v", i, got, want)
		}
		if string(got.Code) != string(want.Code) {
			t.Errorf("function %d code changed after round trip", i)
		}
	}
}

func TestWireEncodingIsDeterministic(t *testing.T) {
	mod := compileOK(t, "let x = { a = 1, b = 2 }")
	first, err := EncodeModule(mod)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, err := EncodeModule(mod)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(first) != string(second) {
		t.Error("encoding the same module twice produced different bytes")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := DecodeModule([]byte("not bytecode")); err == nil {
		t.Error("expected an error decoding garbage")
	}
}

func TestDisassembleNamesFunctions(t *testing.T) {
	mod := compileOK(t, "def twice(x)\n  return x * 2\nend")
	text := Disassemble(mod)
	if !strings.Contains(text, "<main>") || !strings.Contains(text, "twice") {
		t.Errorf("disassembly missing function headers:\n%s", text)
	}
	if !strings.Contains(text, "RETURN") {
		t.Errorf("disassembly missing RETURN:\n%s", text)
	}
}
