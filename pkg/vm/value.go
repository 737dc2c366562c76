// Package vm executes compiled bytecode modules on a stack machine with
// a mark-and-sweep garbage-collected heap. A VM is single-threaded;
// embedders wanting parallelism run one VM per goroutine.
package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/skiff/pkg/diag"
)

// Kind identifies the dynamic type of a Value.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
	KindTuple
	KindList
	KindTable
	KindClosure
	KindNative
)

var kindNames = map[Kind]string{
	KindInt:     "integer",
	KindFloat:   "float",
	KindBool:    "boolean",
	KindString:  "string",
	KindTuple:   "tuple",
	KindList:    "list",
	KindTable:   "table",
	KindClosure: "function",
	KindNative:  "function",
}

// String returns the type name used in error messages.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Handle references an object in the VM heap. Handles are only
// meaningful to the heap that issued them.
type Handle int

// NativeFunc is the signature of a host function callable from scripts.
// The values it receives and returns belong to the calling VM.
type NativeFunc func(vm *VM, args []Value) (Value, error)

// NativeFunction is a named host function registered with the engine.
type NativeFunction struct {
	Name  string
	Arity int // -1 accepts any number of arguments
	Fn    NativeFunc
}

// Value is one dynamically typed value. Scalars and tuples are held
// inline; lists, tables, and closures live on the heap behind Handle.
// The zero Value is the empty tuple.
type Value struct {
	Kind   Kind
	Int    int64
	Float  float64
	Bool   bool
	Str    string
	Tuple  []Value // immutable once built
	Handle Handle
	Native *NativeFunction
}

// Unit is the empty tuple, the result of expressions with nothing to
// say. There is no nil.
func Unit() Value { return Value{Kind: KindTuple} }

func IntValue(v int64) Value     { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func BoolValue(v bool) Value     { return Value{Kind: KindBool, Bool: v} }
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }

// TupleValue builds a tuple; the caller must not mutate elems after.
func TupleValue(elems []Value) Value { return Value{Kind: KindTuple, Tuple: elems} }

// NativeValue wraps a host function as a callable value.
func NativeValue(fn *NativeFunction) Value { return Value{Kind: KindNative, Native: fn} }

// IsUnit reports whether v is the empty tuple.
func (v Value) IsUnit() bool { return v.Kind == KindTuple && len(v.Tuple) == 0 }

// TypeName returns the dynamic type name for error messages.
func (v Value) TypeName() string { return v.Kind.String() }

// Display renders a value for printing. Heap values need the owning
// heap to follow handles; depth limits recursion through cycles.
func (v Value) Display(h *Heap) string {
	return v.display(h, 0)
}

const maxDisplayDepth = 8

func (v Value) display(h *Heap, depth int) string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		s := strconv.FormatFloat(v.Float, 'g', -1, 64)
		// Keep floats visually distinct from integers.
		if !strings.ContainsAny(s, ".eEnI") {
			s += ".0"
		}
		return s
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindString:
		return v.Str
	case KindTuple:
		if depth >= maxDisplayDepth {
			return "(...)"
		}
		parts := make([]string, len(v.Tuple))
		for i, e := range v.Tuple {
			parts[i] = e.display(h, depth+1)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case KindList:
		if h == nil || depth >= maxDisplayDepth {
			return "[...]"
		}
		elems := h.List(v.Handle)
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = e.display(h, depth+1)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindTable:
		if h == nil || depth >= maxDisplayDepth {
			return "{...}"
		}
		keys := h.TableKeys(v.Handle)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			val, _ := h.TableGet(v.Handle, k)
			parts = append(parts, k+" = "+val.display(h, depth+1))
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case KindClosure:
		if h != nil {
			if c := h.Closure(v.Handle); c != nil {
				return "<function " + c.Fn.Name + ">"
			}
		}
		return "<function>"
	case KindNative:
		return "<native " + v.Native.Name + ">"
	default:
		return "<unknown>"
	}
}

// spanlessError builds a runtime error with no source position; the
// interpreter loop attaches the current span before surfacing it.
func spanlessError(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Message: fmt.Sprintf(format, args...)}
}

// TraceEntry is one frame of a runtime error's call trace.
type TraceEntry struct {
	Function string
	Span     diag.Span
}

// RuntimeError is an execution failure with the source span of the
// failing operation and the call trace at the point of failure.
type RuntimeError struct {
	Message string
	Span    diag.Span
	Trace   []TraceEntry
}

func (e *RuntimeError) Error() string { return e.Message }

// Diagnostic converts the error into a renderable diagnostic.
func (e *RuntimeError) Diagnostic() diag.Diagnostic {
	d := diag.Errorf(diag.CodeRuntime, e.Span, "%s", e.Message)
	for _, entry := range e.Trace {
		d = d.WithLabel(entry.Span, "called from "+entry.Function)
	}
	return d
}
