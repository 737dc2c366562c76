package skiff

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/chazu/skiff/pkg/vm"
)

func TestCompileAndRun(t *testing.T) {
	e := New(WithStdout(&strings.Builder{}))
	script, err := e.Compile("add.sk", "return 2 + 3")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	result, err := e.NewSession(script).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result != int64(5) {
		t.Errorf("expected 5, got %v (%T)", result, result)
	}
}

func TestCompileErrorRendersDiagnostics(t *testing.T) {
	e := New()
	_, err := e.Compile("bad.sk", "let y = x")
	if err == nil {
		t.Fatal("expected a compile error")
	}
	ce, ok := err.(*CompileError)
	if !ok {
		t.Fatalf("expected *CompileError, got %T", err)
	}
	msg := ce.Error()
	if !strings.Contains(msg, "error[E2001]") {
		t.Errorf("missing error code in:\n%s", msg)
	}
	if !strings.Contains(msg, "bad.sk:1:9") {
		t.Errorf("missing location in:\n%s", msg)
	}
	if !strings.Contains(msg, "1 errors and 0 warnings generated") {
		t.Errorf("missing summary in:\n%s", msg)
	}
}

func TestRuntimeErrorRendering(t *testing.T) {
	e := New()
	script, err := e.Compile("oob.sk", "let t = [1,2,3]\nreturn t[5]")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = e.NewSession(script).Run()
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	rendered := e.RenderError(script, err)
	if !strings.Contains(rendered, "index out of range: 5 (length 3)") {
		t.Errorf("missing message in:\n%s", rendered)
	}
	if !strings.Contains(rendered, "oob.sk:2:8") {
		t.Errorf("missing location in:\n%s", rendered)
	}
}

func TestValuesCopyOut(t *testing.T) {
	e := New()
	script, err := e.Compile("data.sk", `
return { name = "point", coords = [1, 2.5], flags = (true, false) }
`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	result, err := e.NewSession(script).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := map[string]interface{}{
		"name":   "point",
		"coords": []interface{}{int64(1), 2.5},
		"flags":  []interface{}{true, false},
	}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("got %#v, want %#v", result, want)
	}
}

func TestUnitConvertsToNil(t *testing.T) {
	e := New()
	script, err := e.Compile("unit.sk", "return ()")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	result, err := e.NewSession(script).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil for unit, got %#v", result)
	}
}

func TestHostCannotMutateHeap(t *testing.T) {
	e := New()
	script, err := e.Compile("iso.sk", `
let data = [1, 2, 3]
def read(i)
  return data[i]
end
return (data, read)
`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	session := e.NewSession(script)
	defer session.Close()
	result, err := session.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	pair := result.([]interface{})
	copied := pair[0].([]interface{})
	read := pair[1].(FuncRef)

	// Mutating the copy must not be visible to the script.
	copied[0] = int64(999)
	got, err := session.CallRef(read, 0)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != int64(1) {
		t.Errorf("host mutation leaked into the VM: got %v", got)
	}
}

func TestFuncRefRoundTrip(t *testing.T) {
	e := New()
	script, err := e.Compile("fn.sk", "return def (a, b) return a * b end")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	session := e.NewSession(script)
	defer session.Close()
	result, err := session.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	ref, ok := result.(FuncRef)
	if !ok {
		t.Fatalf("expected FuncRef, got %T", result)
	}
	product, err := session.CallRef(ref, 6, 7)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if product != int64(42) {
		t.Errorf("expected 42, got %v", product)
	}

	if _, err := session.CallRef(FuncRef{id: "bogus"}, 1); err == nil {
		t.Error("expected an error for an unknown reference")
	}
}

func TestRegisterNative(t *testing.T) {
	e := New()
	called := false
	err := e.RegisterNative("host_double", 1, func(machine *vm.VM, args []vm.Value) (vm.Value, error) {
		called = true
		return vm.IntValue(args[0].Int * 2), nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	script, err := e.Compile("nat.sk", "return host_double(21)")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	result, err := e.NewSession(script).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !called || result != int64(42) {
		t.Errorf("expected native call returning 42, got %v", result)
	}

	// Frozen after first compile.
	if err := e.RegisterNative("late", 0, nil); err == nil {
		t.Error("expected registration after compile to fail")
	}
}

func TestDuplicateNativeRejected(t *testing.T) {
	e := New()
	if err := e.RegisterNative("print", 1, nil); err == nil {
		t.Error("expected duplicate of prelude print to be rejected")
	}
}

func TestSessionRunsOnce(t *testing.T) {
	e := New()
	script, err := e.Compile("once.sk", "return 1")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	session := e.NewSession(script)
	if _, err := session.Run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := session.Run(); err == nil {
		t.Error("expected the second run to fail")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	e := New()
	script, err := e.Compile("iso2.sk", `
let t = { n = 0 }
def bump()
  t.n = t.n + 1
  return t.n
end
return bump
`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	s1 := e.NewSession(script)
	s2 := e.NewSession(script)
	defer s1.Close()
	defer s2.Close()

	r1, _ := s1.Run()
	r2, _ := s2.Run()
	b1 := r1.(FuncRef)
	b2 := r2.(FuncRef)

	s1.CallRef(b1)
	s1.CallRef(b1)
	got, err := s2.CallRef(b2)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != int64(1) {
		t.Errorf("sessions share state: got %v, want 1", got)
	}
}

func TestModuleCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	cache, err := OpenModuleCache(path)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	e := New(WithCache(cache))
	source := "return 40 + 2"
	script, err := e.Compile("c.sk", source)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if _, ok := cache.Get(source); !ok {
		t.Fatal("expected the module to be cached after compile")
	}
	if _, ok := cache.Get("return 0"); ok {
		t.Fatal("unexpected cache hit for different source")
	}

	// A second engine sharing the cache runs the cached bytecode.
	e2 := New(WithCache(cache))
	script2, err := e2.Compile("c.sk", source)
	if err != nil {
		t.Fatalf("compile from cache: %v", err)
	}
	result, err := e2.NewSession(script2).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result != int64(42) {
		t.Errorf("expected 42 from cached module, got %v", result)
	}
	_ = script
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skiff.toml")
	content := `
[limits]
max_call_depth = 64
gc_growth = 3.0

[cache]
enabled = true
path = "cache.db"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	limits := cfg.VMLimits()
	if limits.MaxCallDepth != 64 || limits.GCGrowth != 3.0 {
		t.Errorf("unexpected limits: %+v", limits)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Path != "cache.db" {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}

	// Missing files fall back to defaults.
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml")); err != nil {
		t.Errorf("missing config should not error: %v", err)
	}
}

func TestConfiguredLimitsApply(t *testing.T) {
	e := New(WithLimits(vm.Limits{MaxCallDepth: 8}))
	script, err := e.Compile("deep.sk", `
def down(n)
  if n == 0 then return 0 end
  return down(n - 1)
end
return down(100)
`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := e.NewSession(script).Run(); err == nil {
		t.Error("expected a stack overflow under the reduced call depth")
	}
}
