package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders a module's function table as annotated text, one
// instruction per line, for debugging and golden tests.
func Disassemble(m *Module) string {
	var b strings.Builder
	for i, fn := range m.Functions {
		if i > 0 {
			b.WriteString("\n")
		}
		DisassembleFunction(&b, fn)
	}
	return b.String()
}

// DisassembleFunction writes one function's header and instructions.
func DisassembleFunction(b *strings.Builder, fn *Function) {
	fmt.Fprintf(b, "== %s (params=%d locals=%d upvalues=%d) ==\n",
		fn.Name, fn.NumParams, fn.NumLocals, len(fn.Upvalues))
	for offset := 0; offset < len(fn.Code); {
		offset = disassembleInstruction(b, fn, offset)
	}
}

func disassembleInstruction(b *strings.Builder, fn *Function, offset int) int {
	op := Opcode(fn.Code[offset])
	info := GetOpcodeInfo(op)
	fmt.Fprintf(b, "%04d %-14s", offset, info.Name)

	next := offset + 1 + info.OperandLen
	if next > len(fn.Code) {
		b.WriteString(" <truncated>\n")
		return len(fn.Code)
	}

	switch op {
	case OpConst:
		idx := readU16(fn.Code, offset+1)
		fmt.Fprintf(b, " %d (%s)", idx, constAt(fn, idx))
	case OpMemberGet, OpMemberSet:
		idx := readU16(fn.Code, offset+1)
		fmt.Fprintf(b, " %d (%s)", idx, constAt(fn, idx))
	case OpMethodCall:
		idx := readU16(fn.Code, offset+1)
		argc := fn.Code[offset+3]
		fmt.Fprintf(b, " %d (%s) argc=%d", idx, constAt(fn, idx), argc)
	case OpJump, OpJumpIfFalse, OpAndJump, OpOrJump, OpIterNext:
		delta := int(int16(readU16(fn.Code, offset+1)))
		fmt.Fprintf(b, " %d -> %04d", delta, next+delta)
	case OpLoadLocal, OpStoreLocal, OpLoadUpvalue, OpStoreUpvalue, OpCall, OpUnpack:
		fmt.Fprintf(b, " %d", fn.Code[offset+1])
	case OpMakeList, OpMakeTuple, OpMakeTable, OpClosure, OpLoadBuiltin:
		fmt.Fprintf(b, " %d", readU16(fn.Code, offset+1))
	}
	b.WriteString("\n")
	return next
}

func constAt(fn *Function, idx uint16) string {
	if int(idx) >= len(fn.Constants) {
		return "<bad index>"
	}
	return fn.Constants[idx].String()
}

func readU16(code []byte, offset int) uint16 {
	return uint16(code[offset])<<8 | uint16(code[offset+1])
}
