package bytecode

import (
	"fmt"

	"github.com/chazu/skiff/pkg/diag"
)

// BytecodeVersion is the current bytecode format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// MaxConstants is the largest constant pool a function may carry,
// bounded by the u16 operand of OpConst.
const MaxConstants = 1 << 16

// MaxJump is the largest forward or backward jump distance, bounded by
// the i16 operand of the jump opcodes.
const MaxJump = 1<<15 - 1

// ConstKind identifies the type of a pooled constant.
type ConstKind uint8

const (
	ConstInt ConstKind = iota
	ConstFloat
	ConstString
)

// Constant is one entry in a function's constant pool. The pool holds
// only immutable scalars; lists, tuples, and tables are built by
// instructions at run time.
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Str   string
}

func IntConstant(v int64) Constant     { return Constant{Kind: ConstInt, Int: v} }
func FloatConstant(v float64) Constant { return Constant{Kind: ConstFloat, Float: v} }
func StringConstant(v string) Constant { return Constant{Kind: ConstString, Str: v} }

// String renders a constant for disassembly.
func (c Constant) String() string {
	switch c.Kind {
	case ConstInt:
		return fmt.Sprintf("%d", c.Int)
	case ConstFloat:
		return fmt.Sprintf("%g", c.Float)
	case ConstString:
		return fmt.Sprintf("%q", c.Str)
	default:
		return fmt.Sprintf("ConstKind(%d)", c.Kind)
	}
}

// Equal reports whether two constants are identical, used for pool
// deduplication.
func (c Constant) Equal(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstInt:
		return c.Int == o.Int
	case ConstFloat:
		return c.Float == o.Float
	default:
		return c.Str == o.Str
	}
}

// UpvalueDesc describes one variable a closure captures. InParent means
// the variable is a local slot of the directly enclosing function;
// otherwise Index refers to the enclosing function's own upvalue list.
type UpvalueDesc struct {
	InParent bool
	Index    uint8
}

// SpanEntry maps a bytecode offset to the source span of the expression
// that produced it. Entries are sorted by offset.
type SpanEntry struct {
	Offset uint32
	Span   diag.Span
}

// Function is the compiled form of one function body. The module entry
// point is itself a zero-parameter function.
type Function struct {
	Name      string // declared name, or "<main>" / "<anonymous>"
	NumParams uint8
	NumLocals uint8
	Code      []byte
	Constants []Constant
	Upvalues  []UpvalueDesc
	Spans     []SpanEntry
}

// NewFunction creates an empty function chunk.
func NewFunction(name string, numParams uint8) *Function {
	return &Function{
		Name:      name,
		NumParams: numParams,
		Code:      make([]byte, 0, 64),
	}
}

// AddConstant adds a constant to the pool, deduplicating, and returns
// its index. The second result is false when the pool is full.
func (f *Function) AddConstant(c Constant) (uint16, bool) {
	for i, existing := range f.Constants {
		if existing.Equal(c) {
			return uint16(i), true
		}
	}
	if len(f.Constants) >= MaxConstants {
		return 0, false
	}
	idx := uint16(len(f.Constants))
	f.Constants = append(f.Constants, c)
	return idx, true
}

// Emit appends a single-byte opcode and returns its offset.
func (f *Function) Emit(op Opcode) int {
	offset := len(f.Code)
	f.Code = append(f.Code, byte(op))
	return offset
}

// EmitByte appends an opcode with one operand byte.
func (f *Function) EmitByte(op Opcode, operand byte) int {
	offset := len(f.Code)
	f.Code = append(f.Code, byte(op), operand)
	return offset
}

// EmitU16 appends an opcode with a big-endian u16 operand.
func (f *Function) EmitU16(op Opcode, operand uint16) int {
	offset := len(f.Code)
	f.Code = append(f.Code, byte(op), byte(operand>>8), byte(operand))
	return offset
}

// EmitJump emits a jump instruction with a placeholder offset and
// returns the offset of the placeholder for later patching.
func (f *Function) EmitJump(op Opcode) int {
	offset := len(f.Code)
	f.Code = append(f.Code, byte(op), 0xFF, 0xFF)
	return offset + 1
}

// PatchJump patches a jump placeholder to land at the current position.
// Returns false when the distance exceeds the i16 range.
func (f *Function) PatchJump(placeholder int) bool {
	delta := len(f.Code) - (placeholder + 2)
	if delta > MaxJump || delta < -MaxJump-1 {
		return false
	}
	f.Code[placeholder] = byte(delta >> 8)
	f.Code[placeholder+1] = byte(delta)
	return true
}

// EmitLoop emits a backward jump to loopStart. Returns false when the
// distance exceeds the i16 range.
func (f *Function) EmitLoop(loopStart int) bool {
	delta := loopStart - (len(f.Code) + 3)
	if delta < -MaxJump-1 {
		return false
	}
	f.Code = append(f.Code, byte(OpJump), byte(delta>>8), byte(delta))
	return true
}

// CurrentOffset returns the current end of the code section.
func (f *Function) CurrentOffset() int {
	return len(f.Code)
}

// AddSpan records the source span of the instruction at offset.
// Consecutive identical spans collapse into one entry.
func (f *Function) AddSpan(offset int, span diag.Span) {
	if n := len(f.Spans); n > 0 && f.Spans[n-1].Span == span {
		return
	}
	f.Spans = append(f.Spans, SpanEntry{Offset: uint32(offset), Span: span})
}

// SpanAt returns the source span for a bytecode offset, using the
// nearest entry at or before the offset.
func (f *Function) SpanAt(offset int) diag.Span {
	for i := len(f.Spans) - 1; i >= 0; i-- {
		if int(f.Spans[i].Offset) <= offset {
			return f.Spans[i].Span
		}
	}
	return diag.Span{}
}

// Module is one compiled source file: a function table with the entry
// point at index 0.
type Module struct {
	Version   uint16
	Name      string // source file name, carried for error rendering
	Functions []*Function
}

// Entry returns the module's entry function.
func (m *Module) Entry() *Function {
	return m.Functions[0]
}
