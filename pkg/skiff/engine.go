// Package skiff is the embedding surface: compile scripts, run them in
// isolated sessions, register native functions, and exchange values
// with running code. Hosts never see VM internals; results cross the
// boundary as copied Go values or opaque function references.
package skiff

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/skiff/pkg/bytecode"
	"github.com/chazu/skiff/pkg/diag"
	"github.com/chazu/skiff/pkg/parser"
	"github.com/chazu/skiff/pkg/vm"
)

// Engine compiles scripts against a fixed native registry. An Engine is
// immutable once the first script is compiled; sessions created from it
// are independent and each owns a private VM.
type Engine struct {
	log     commonlog.Logger
	limits  vm.Limits
	stdout  io.Writer
	cache   *ModuleCache
	natives []*vm.NativeFunction
	names   map[string]int
	frozen  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimits overrides the default VM limits for every session.
func WithLimits(limits vm.Limits) Option {
	return func(e *Engine) { e.limits = limits }
}

// WithStdout redirects script print output.
func WithStdout(w io.Writer) Option {
	return func(e *Engine) { e.stdout = w }
}

// WithCache attaches a compiled-module cache.
func WithCache(cache *ModuleCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// New creates an engine with the standard prelude registered.
func New(opts ...Option) *Engine {
	e := &Engine{
		log:    commonlog.GetLogger("skiff.engine"),
		stdout: os.Stdout,
		names:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, n := range vm.Prelude(e.stdout) {
		e.names[n.Name] = len(e.natives)
		e.natives = append(e.natives, n)
	}
	return e
}

// RegisterNative adds a host function to the registry. Registration
// must happen before the first compile; the compiled builtin indices
// are baked into bytecode.
func (e *Engine) RegisterNative(name string, arity int, fn vm.NativeFunc) error {
	if e.frozen {
		return fmt.Errorf("skiff: cannot register %q after the first compile", name)
	}
	if _, exists := e.names[name]; exists {
		return fmt.Errorf("skiff: native %q is already registered", name)
	}
	e.names[name] = len(e.natives)
	e.natives = append(e.natives, &vm.NativeFunction{Name: name, Arity: arity, Fn: fn})
	return nil
}

// NativeNames returns the registered names in registry order.
func (e *Engine) NativeNames() []string {
	return vm.PreludeNames(e.natives)
}

// Script is a compiled, immutable program. One Script can back any
// number of sessions.
type Script struct {
	Name   string
	src    *diag.Source
	module *bytecode.Module
}

// Disassemble renders the script's bytecode for inspection.
func (s *Script) Disassemble() string {
	return bytecode.Disassemble(s.module)
}

// CompileError carries the diagnostics of a failed compilation, already
// rendered against the source.
type CompileError struct {
	Diagnostics []diag.Diagnostic
	rendered    string
}

func (e *CompileError) Error() string { return e.rendered }

// Compile turns source text into a Script, consulting the module cache
// when one is attached. All lexical, syntactic, and compile-time errors
// are reported together in the returned CompileError.
func (e *Engine) Compile(name, source string) (*Script, error) {
	e.frozen = true
	src := diag.NewSource(name, source)

	if e.cache != nil {
		if module, ok := e.cache.Get(source); ok {
			e.log.Debugf("cache hit for %s", name)
			return &Script{Name: name, src: src, module: module}, nil
		}
	}

	astMod, diags := parser.Parse(src)
	if diag.HasErrors(diags) {
		return nil, e.compileError(src, diags)
	}

	module, diags := bytecode.Compile(src, astMod, e.NativeNames())
	if diag.HasErrors(diags) {
		return nil, e.compileError(src, diags)
	}

	if e.cache != nil {
		if err := e.cache.Put(source, module); err != nil {
			e.log.Errorf("caching %s: %s", name, err.Error())
		}
	}
	e.log.Infof("compiled %s: %d functions", name, len(module.Functions))
	return &Script{Name: name, src: src, module: module}, nil
}

func (e *Engine) compileError(src *diag.Source, diags []diag.Diagnostic) *CompileError {
	r := diag.NewRenderer(src)
	var b strings.Builder
	b.WriteString(r.RenderAll(diags))
	b.WriteString("\n")
	b.WriteString(diag.Summary(diags))
	return &CompileError{Diagnostics: diags, rendered: b.String()}
}

// RenderError formats any error produced by this engine for terminal
// output, attaching source snippets to runtime errors.
func (e *Engine) RenderError(script *Script, err error) string {
	switch err := err.(type) {
	case *CompileError:
		return err.Error()
	case *vm.RuntimeError:
		return diag.NewRenderer(script.src).Render(err.Diagnostic())
	default:
		return err.Error()
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

// Session is one isolated execution of a script: a private VM, heap,
// and handle table. Sessions are single-threaded.
type Session struct {
	engine *Engine
	script *Script
	vm     *vm.VM
	refs   map[string]vm.Value
	ran    bool
}

// NewSession creates a session for a compiled script.
func (e *Engine) NewSession(script *Script) *Session {
	return &Session{
		engine: e,
		script: script,
		vm:     vm.New(e.limits),
		refs:   make(map[string]vm.Value),
	}
}

// Run executes the script's top level and returns its result converted
// for the host: scalars and tuples copy out, lists and tables deep-copy
// to Go slices and maps, functions come back as opaque FuncRefs.
func (s *Session) Run() (interface{}, error) {
	if s.ran {
		return nil, fmt.Errorf("skiff: session already ran %s", s.script.Name)
	}
	s.ran = true
	result, err := s.vm.Run(s.script.module, s.engine.natives)
	if err != nil {
		s.engine.log.Errorf("%s: %s", s.script.Name, err.Error())
		return nil, err
	}
	return s.valueOut(result), nil
}

// CallRef invokes a function reference previously returned by the
// script, converting arguments in and the result out.
func (s *Session) CallRef(ref FuncRef, args ...interface{}) (interface{}, error) {
	fn, ok := s.refs[ref.id]
	if !ok {
		return nil, fmt.Errorf("skiff: unknown function reference %s", ref.id)
	}
	vals := make([]vm.Value, len(args))
	for i, a := range args {
		v, err := s.valueIn(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	result, err := s.vm.Call(fn, vals)
	if err != nil {
		return nil, err
	}
	return s.valueOut(result), nil
}

// Close releases every pinned handle the session handed out.
func (s *Session) Close() {
	for _, v := range s.refs {
		if v.Kind == vm.KindClosure {
			s.vm.Heap().Unpin(v.Handle)
		}
	}
	s.refs = nil
}

// Refs returns the identifiers of outstanding function references,
// sorted, for diagnostics.
func (s *Session) Refs() []string {
	ids := make([]string, 0, len(s.refs))
	for id := range s.refs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
