package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop Opcode = 0x00 // No operation
	OpPop Opcode = 0x01 // Pop top of stack
	OpDup Opcode = 0x02 // Duplicate top of stack

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst Opcode = 0x10 // Push constant from pool: OpConst <index:u16>
	OpTrue  Opcode = 0x11 // Push true
	OpFalse Opcode = 0x12 // Push false
	OpUnit  Opcode = 0x13 // Push the empty tuple

	// ========================================================================
	// Locals and upvalues (0x20-0x2F)
	// ========================================================================

	OpLoadLocal    Opcode = 0x20 // Push local: OpLoadLocal <slot:u8>
	OpStoreLocal   Opcode = 0x21 // Pop and store to local: OpStoreLocal <slot:u8>
	OpLoadUpvalue  Opcode = 0x22 // Push upvalue: OpLoadUpvalue <index:u8>
	OpStoreUpvalue Opcode = 0x23 // Pop and store to upvalue: OpStoreUpvalue <index:u8>
	OpCloseUpvalue Opcode = 0x24 // Close upvalues at or above the top local slot, then pop it

	// ========================================================================
	// Arithmetic (0x30-0x3F), meta-dispatched when an operand is a table
	// ========================================================================

	OpAdd      Opcode = 0x30 // Pop two, push sum
	OpSub      Opcode = 0x31 // Pop two, push difference (b is TOS)
	OpMul      Opcode = 0x32 // Pop two, push product
	OpDiv      Opcode = 0x33 // Pop two, push quotient (always float for numbers)
	OpFloorDiv Opcode = 0x34 // Pop two, push floor quotient
	OpMod      Opcode = 0x35 // Pop two, push remainder
	OpPow      Opcode = 0x36 // Pop two, push power
	OpNeg      Opcode = 0x37 // Negate top of stack

	// ========================================================================
	// Comparison and logic (0x40-0x4F)
	// ========================================================================

	OpEq  Opcode = 0x40 // Pop two, push equality
	OpNe  Opcode = 0x41 // Pop two, push inequality
	OpLt  Opcode = 0x42 // Pop two, push a < b
	OpLe  Opcode = 0x43 // Pop two, push a <= b
	OpGt  Opcode = 0x44 // Pop two, push a > b
	OpGe  Opcode = 0x45 // Pop two, push a >= b
	OpNot Opcode = 0x46 // Boolean NOT of top of stack

	// ========================================================================
	// Ranges (0x50-0x5F)
	// ========================================================================

	OpRange Opcode = 0x50 // Pop two ints a, b; push the list [a, b-1]

	// ========================================================================
	// Collections (0x60-0x6F)
	// ========================================================================

	OpMakeList  Opcode = 0x60 // Collect n stack values into a list: OpMakeList <n:u16>
	OpMakeTuple Opcode = 0x61 // Collect n stack values into a tuple: OpMakeTuple <n:u16>
	OpMakeTable Opcode = 0x62 // Collect n key/value pairs into a table: OpMakeTable <n:u16>
	OpIndexGet  Opcode = 0x63 // Raw read: pop key and target, push target[key]
	OpIndexSet  Opcode = 0x64 // Raw write: pop value, key, target
	OpMemberGet Opcode = 0x65 // Meta-resolved field read: OpMemberGet <name:u16>
	OpMemberSet Opcode = 0x66 // Raw field write: OpMemberSet <name:u16>
	OpUnpack    Opcode = 0x67 // Unpack a tuple of exactly n elements: OpUnpack <n:u8>

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJump        Opcode = 0x80 // Unconditional jump: OpJump <offset:i16>
	OpJumpIfFalse Opcode = 0x81 // Pop a bool, jump when false: OpJumpIfFalse <offset:i16>
	OpAndJump     Opcode = 0x82 // Peek a bool: false jumps keeping it, true pops
	OpOrJump      Opcode = 0x83 // Peek a bool: true jumps keeping it, false pops
	OpIterPrep    Opcode = 0x84 // Pop a list, push it back with a cursor at 0
	OpIterNext    Opcode = 0x85 // Advance cursor or jump past the loop: OpIterNext <offset:i16>

	// ========================================================================
	// Functions and calls (0x90-0x9F)
	// ========================================================================

	OpClosure     Opcode = 0x90 // Build a closure over function n: OpClosure <func:u16>
	OpCall        Opcode = 0x91 // Call with argc arguments: OpCall <argc:u8>
	OpMethodCall  Opcode = 0x92 // Meta-resolved call: OpMethodCall <name:u16> <argc:u8>
	OpReturn      Opcode = 0x93 // Return top of stack
	OpReturnUnit  Opcode = 0x94 // Return the empty tuple
	OpLoadBuiltin Opcode = 0x95 // Push a registered native function: OpLoadBuiltin <index:u16>

	// ========================================================================
	// Runtime checks (0xA0-0xAF)
	// ========================================================================

	OpAssert Opcode = 0xA0 // Pop a bool, raise a runtime error when false
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack (-1 = variable)
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop: {"NOP", 0, 0, 0},
	OpPop: {"POP", 1, 0, 0},
	OpDup: {"DUP", 1, 2, 0},

	// Constants
	OpConst: {"CONST", 0, 1, 2},
	OpTrue:  {"TRUE", 0, 1, 0},
	OpFalse: {"FALSE", 0, 1, 0},
	OpUnit:  {"UNIT", 0, 1, 0},

	// Locals and upvalues
	OpLoadLocal:    {"LOAD_LOCAL", 0, 1, 1},
	OpStoreLocal:   {"STORE_LOCAL", 1, 0, 1},
	OpLoadUpvalue:  {"LOAD_UPVALUE", 0, 1, 1},
	OpStoreUpvalue: {"STORE_UPVALUE", 1, 0, 1},
	OpCloseUpvalue: {"CLOSE_UPVALUE", 1, 0, 0},

	// Arithmetic
	OpAdd:      {"ADD", 2, 1, 0},
	OpSub:      {"SUB", 2, 1, 0},
	OpMul:      {"MUL", 2, 1, 0},
	OpDiv:      {"DIV", 2, 1, 0},
	OpFloorDiv: {"FLOOR_DIV", 2, 1, 0},
	OpMod:      {"MOD", 2, 1, 0},
	OpPow:      {"POW", 2, 1, 0},
	OpNeg:      {"NEG", 1, 1, 0},

	// Comparison and logic
	OpEq:  {"EQ", 2, 1, 0},
	OpNe:  {"NE", 2, 1, 0},
	OpLt:  {"LT", 2, 1, 0},
	OpLe:  {"LE", 2, 1, 0},
	OpGt:  {"GT", 2, 1, 0},
	OpGe:  {"GE", 2, 1, 0},
	OpNot: {"NOT", 1, 1, 0},

	// Ranges
	OpRange: {"RANGE", 2, 1, 0},

	// Collections
	OpMakeList:  {"MAKE_LIST", -1, 1, 2},
	OpMakeTuple: {"MAKE_TUPLE", -1, 1, 2},
	OpMakeTable: {"MAKE_TABLE", -1, 1, 2},
	OpIndexGet:  {"INDEX_GET", 2, 1, 0},
	OpIndexSet:  {"INDEX_SET", 3, 0, 0},
	OpMemberGet: {"MEMBER_GET", 1, 1, 2},
	OpMemberSet: {"MEMBER_SET", 2, 0, 2},
	OpUnpack:    {"UNPACK", 1, -1, 1},

	// Control flow
	OpJump:        {"JUMP", 0, 0, 2},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 1, 0, 2},
	OpAndJump:     {"AND_JUMP", -1, -1, 2},
	OpOrJump:      {"OR_JUMP", -1, -1, 2},
	OpIterPrep:    {"ITER_PREP", 1, 2, 0},
	OpIterNext:    {"ITER_NEXT", 0, -1, 2},

	// Functions and calls
	OpClosure:    {"CLOSURE", 0, 1, 2},
	OpCall:       {"CALL", -1, 1, 1},
	OpMethodCall: {"METHOD_CALL", -1, 1, 3},
	OpReturn:      {"RETURN", 1, 0, 0},
	OpReturnUnit:  {"RETURN_UNIT", 0, 0, 0},
	OpLoadBuiltin: {"LOAD_BUILTIN", 0, 1, 2},

	// Runtime checks
	OpAssert: {"ASSERT", 1, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a synthetic entry if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable opcode name.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for an opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}
