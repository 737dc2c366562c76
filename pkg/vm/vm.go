package vm

import (
	"math"

	"github.com/chazu/skiff/pkg/bytecode"
)

// Limits bound a VM's resource use. The zero value selects defaults.
type Limits struct {
	MaxCallDepth int     // nested call frames before "stack overflow"
	MaxStack     int     // operand stack slots
	MaxMetaDepth int     // meta-table chain traversal bound
	GCGrowth     float64 // heap threshold multiplier after collection
}

// Default limits.
const (
	DefaultMaxCallDepth = 1024
	DefaultMaxStack     = 65536
)

func (l Limits) withDefaults() Limits {
	if l.MaxCallDepth <= 0 {
		l.MaxCallDepth = DefaultMaxCallDepth
	}
	if l.MaxStack <= 0 {
		l.MaxStack = DefaultMaxStack
	}
	if l.MaxMetaDepth <= 0 {
		l.MaxMetaDepth = DefaultMaxMetaDepth
	}
	if l.GCGrowth <= 1 {
		l.GCGrowth = DefaultGCGrowth
	}
	return l
}

// frame is one function activation. handle roots the closure object
// during collection; the entry closure is not heap-allocated and uses
// NoMeta.
type frame struct {
	closure *Closure
	handle  Handle
	ip      int
	base    int // stack slot of the first argument
	ret     int // stack is truncated here on return
}

// VM executes one module at a time on a private stack and heap. A VM
// is not safe for concurrent use; run one per goroutine.
type VM struct {
	heap     *Heap
	limits   Limits
	stack    []Value
	frames   []frame
	open     []*Upvalue // open upvalues, newest first
	module   *bytecode.Module
	builtins []*NativeFunction
}

// New creates a VM with the given limits.
func New(limits Limits) *VM {
	l := limits.withDefaults()
	return &VM{
		heap:   NewHeap(l.GCGrowth),
		limits: l,
		stack:  make([]Value, 0, 256),
	}
}

// Heap exposes the VM's heap to native functions and embedders.
func (vm *VM) Heap() *Heap { return vm.heap }

// Run executes a module's entry function. builtins must be the same
// ordered registry the module was compiled against.
func (vm *VM) Run(module *bytecode.Module, builtins []*NativeFunction) (Value, error) {
	vm.module = module
	vm.builtins = builtins

	entry := &Closure{FnIndex: 0, Fn: module.Entry()}
	vm.frames = append(vm.frames, frame{closure: entry, handle: NoMeta, base: len(vm.stack), ret: len(vm.stack)})
	return vm.execute(len(vm.frames) - 1)
}

// Call invokes a script function or native from the host with the
// given arguments. The VM must have run its module first so builtins
// and the function table are in place.
func (vm *VM) Call(fn Value, args []Value) (Value, error) {
	switch fn.Kind {
	case KindNative:
		return fn.Native.Fn(vm, args)
	case KindClosure:
		ret := len(vm.stack)
		vm.stack = append(vm.stack, args...)
		if err := vm.enterClosure(fn.Handle, len(vm.stack)-len(args), ret); err != nil {
			vm.stack = vm.stack[:ret]
			return Value{}, vm.attach(err)
		}
		return vm.execute(len(vm.frames) - 1)
	default:
		return Value{}, vm.attach(spanlessError("%s is not callable", fn.TypeName()))
	}
}

// ---------------------------------------------------------------------------
// Stack and frame helpers
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) *RuntimeError {
	if len(vm.stack) >= vm.limits.MaxStack {
		return spanlessError("stack overflow")
	}
	vm.stack = append(vm.stack, v)
	return nil
}

func (vm *VM) pop() Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek() Value { return vm.stack[len(vm.stack)-1] }

func (vm *VM) frame() *frame { return &vm.frames[len(vm.frames)-1] }

func (vm *VM) readByte(f *frame) byte {
	b := f.closure.Fn.Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readU16(f *frame) uint16 {
	v := uint16(f.closure.Fn.Code[f.ip])<<8 | uint16(f.closure.Fn.Code[f.ip+1])
	f.ip += 2
	return v
}

func (vm *VM) readI16(f *frame) int {
	return int(int16(vm.readU16(f)))
}

// attach fills in the source span and call trace for an error raised at
// the current execution point.
func (vm *VM) attach(err *RuntimeError) *RuntimeError {
	if len(vm.frames) == 0 {
		return err
	}
	top := vm.frame()
	if err.Span.Len() == 0 {
		err.Span = top.closure.Fn.SpanAt(top.ip - 1)
	}
	// An error crossing nested execute calls is attached once, at the
	// deepest point; the trace there already covers every lower frame.
	if len(err.Trace) > 0 {
		return err
	}
	for i := len(vm.frames) - 2; i >= 0; i-- {
		f := vm.frames[i]
		err.Trace = append(err.Trace, TraceEntry{
			Function: f.closure.Fn.Name,
			Span:     f.closure.Fn.SpanAt(f.ip - 1),
		})
	}
	return err
}

// captureUpvalue finds or creates the open upvalue for a stack slot.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	for _, uv := range vm.open {
		if uv.Slot == slot {
			return uv
		}
	}
	uv := &Upvalue{Slot: slot}
	vm.open = append(vm.open, uv)
	return uv
}

// closeUpvalues closes every open upvalue at or above the given slot.
func (vm *VM) closeUpvalues(from int) {
	kept := vm.open[:0]
	for _, uv := range vm.open {
		if uv.Slot >= from {
			uv.Value = vm.stack[uv.Slot]
			uv.Closed = true
		} else {
			kept = append(kept, uv)
		}
	}
	vm.open = kept
}

func (vm *VM) upvalueGet(uv *Upvalue) Value {
	if uv.Closed {
		return uv.Value
	}
	return vm.stack[uv.Slot]
}

func (vm *VM) upvalueSet(uv *Upvalue, v Value) {
	if uv.Closed {
		uv.Value = v
	} else {
		vm.stack[uv.Slot] = v
	}
}

// enterClosure pushes a call frame for a closure whose arguments start
// at base; ret is where the stack is truncated on return.
func (vm *VM) enterClosure(handle Handle, base, ret int) *RuntimeError {
	if len(vm.frames) >= vm.limits.MaxCallDepth {
		return spanlessError("stack overflow")
	}
	closure := vm.heap.Closure(handle)
	argc := len(vm.stack) - base
	if argc != int(closure.Fn.NumParams) {
		return spanlessError("function %s expects %d arguments, got %d",
			closure.Fn.Name, closure.Fn.NumParams, argc)
	}
	vm.frames = append(vm.frames, frame{closure: closure, handle: handle, base: base, ret: ret})
	return nil
}

// callValue dispatches a call to a closure or native. base is the slot
// of the first argument; ret is the truncation point on return.
func (vm *VM) callValue(callee Value, base, ret int) *RuntimeError {
	switch callee.Kind {
	case KindClosure:
		return vm.enterClosure(callee.Handle, base, ret)
	case KindNative:
		args := make([]Value, len(vm.stack)-base)
		copy(args, vm.stack[base:])
		if callee.Native.Arity >= 0 && len(args) != callee.Native.Arity {
			return spanlessError("function %s expects %d arguments, got %d",
				callee.Native.Name, callee.Native.Arity, len(args))
		}
		result, err := callee.Native.Fn(vm, args)
		if err != nil {
			if rerr, ok := err.(*RuntimeError); ok {
				return rerr
			}
			return spanlessError("%s", err.Error())
		}
		vm.stack = vm.stack[:ret]
		return vm.push(result)
	default:
		return spanlessError("%s is not callable", callee.TypeName())
	}
}

// maybeCollect runs the collector between instructions when the heap
// has grown past its threshold. Every live value is reachable from the
// stack or a frame closure at instruction boundaries.
func (vm *VM) maybeCollect() {
	if !vm.heap.ShouldCollect() {
		return
	}
	extra := make([]Value, 0, len(vm.frames))
	for _, f := range vm.frames {
		// Frame closures may be off-stack (method calls).
		if f.handle != NoMeta {
			extra = append(extra, Value{Kind: KindClosure, Handle: f.handle})
		}
	}
	vm.heap.Collect(vm.stack, extra)
}

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

// execute runs until the frame at stopDepth returns, yielding its
// result.
func (vm *VM) execute(stopDepth int) (Value, error) {
	for {
		vm.maybeCollect()
		f := vm.frame()
		op := bytecode.Opcode(vm.readByte(f))

		var err *RuntimeError
		switch op {
		case bytecode.OpNop:
		case bytecode.OpPop:
			vm.pop()
		case bytecode.OpDup:
			err = vm.push(vm.peek())

		case bytecode.OpConst:
			idx := vm.readU16(f)
			err = vm.push(constValue(f.closure.Fn.Constants[idx]))
		case bytecode.OpTrue:
			err = vm.push(BoolValue(true))
		case bytecode.OpFalse:
			err = vm.push(BoolValue(false))
		case bytecode.OpUnit:
			err = vm.push(Unit())

		case bytecode.OpLoadLocal:
			slot := int(vm.readByte(f))
			err = vm.push(vm.stack[f.base+slot])
		case bytecode.OpStoreLocal:
			slot := int(vm.readByte(f))
			vm.stack[f.base+slot] = vm.pop()
		case bytecode.OpLoadUpvalue:
			idx := vm.readByte(f)
			err = vm.push(vm.upvalueGet(f.closure.Upvalues[idx]))
		case bytecode.OpStoreUpvalue:
			idx := vm.readByte(f)
			vm.upvalueSet(f.closure.Upvalues[idx], vm.pop())
		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(len(vm.stack) - 1)
			vm.pop()

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv,
			bytecode.OpFloorDiv, bytecode.OpMod, bytecode.OpPow:
			err = vm.binaryArith(op)
		case bytecode.OpNeg:
			err = vm.negate()
		case bytecode.OpEq, bytecode.OpNe:
			err = vm.equality(op == bytecode.OpNe)
		case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			err = vm.ordering(op)
		case bytecode.OpNot:
			v := vm.pop()
			if v.Kind != KindBool {
				err = spanlessError("operand of 'not' must be a boolean, got %s", v.TypeName())
			} else {
				err = vm.push(BoolValue(!v.Bool))
			}

		case bytecode.OpRange:
			err = vm.makeRange()

		case bytecode.OpMakeList:
			n := int(vm.readU16(f))
			elems := make([]Value, n)
			copy(elems, vm.stack[len(vm.stack)-n:])
			vm.stack = vm.stack[:len(vm.stack)-n]
			err = vm.push(Value{Kind: KindList, Handle: vm.heap.AllocList(elems)})
		case bytecode.OpMakeTuple:
			n := int(vm.readU16(f))
			elems := make([]Value, n)
			copy(elems, vm.stack[len(vm.stack)-n:])
			vm.stack = vm.stack[:len(vm.stack)-n]
			err = vm.push(TupleValue(elems))
		case bytecode.OpMakeTable:
			n := int(vm.readU16(f))
			handle := vm.heap.AllocTable()
			pairs := vm.stack[len(vm.stack)-2*n:]
			for i := 0; i < n; i++ {
				vm.heap.TableSet(handle, pairs[2*i].Str, pairs[2*i+1])
			}
			vm.stack = vm.stack[:len(vm.stack)-2*n]
			err = vm.push(Value{Kind: KindTable, Handle: handle})

		case bytecode.OpIndexGet:
			err = vm.indexGet()
		case bytecode.OpIndexSet:
			err = vm.indexSet()
		case bytecode.OpMemberGet:
			name := f.closure.Fn.Constants[vm.readU16(f)].Str
			target := vm.pop()
			var val Value
			val, err = vm.resolveMember(target, name)
			if err == nil {
				err = vm.push(val)
			}
		case bytecode.OpMemberSet:
			name := f.closure.Fn.Constants[vm.readU16(f)].Str
			value := vm.pop()
			target := vm.pop()
			if target.Kind != KindTable {
				err = spanlessError("cannot set member on %s", target.TypeName())
			} else {
				vm.heap.TableSet(target.Handle, name, value)
			}
		case bytecode.OpUnpack:
			n := int(vm.readByte(f))
			v := vm.pop()
			if v.Kind != KindTuple {
				err = spanlessError("cannot destructure %s, expected a tuple", v.TypeName())
			} else if len(v.Tuple) != n {
				err = spanlessError("cannot destructure a %d-element tuple into %d names",
					len(v.Tuple), n)
			} else {
				for _, e := range v.Tuple {
					if err = vm.push(e); err != nil {
						break
					}
				}
			}

		case bytecode.OpJump:
			f.ip += vm.readI16(f)
		case bytecode.OpJumpIfFalse:
			delta := vm.readI16(f)
			cond := vm.pop()
			if cond.Kind != KindBool {
				err = spanlessError("condition must be a boolean, got %s", cond.TypeName())
			} else if !cond.Bool {
				f.ip += delta
			}
		case bytecode.OpAndJump:
			delta := vm.readI16(f)
			v := vm.peek()
			if v.Kind != KindBool {
				err = spanlessError("operands of 'and' must be booleans, got %s", v.TypeName())
			} else if !v.Bool {
				f.ip += delta
			} else {
				vm.pop()
			}
		case bytecode.OpOrJump:
			delta := vm.readI16(f)
			v := vm.peek()
			if v.Kind != KindBool {
				err = spanlessError("operands of 'or' must be booleans, got %s", v.TypeName())
			} else if v.Bool {
				f.ip += delta
			} else {
				vm.pop()
			}

		case bytecode.OpIterPrep:
			v := vm.peek()
			if v.Kind != KindList {
				err = spanlessError("for loop requires a list, got %s", v.TypeName())
			} else {
				err = vm.push(IntValue(0))
			}
		case bytecode.OpIterNext:
			delta := vm.readI16(f)
			cursor := vm.stack[len(vm.stack)-1].Int
			list := vm.heap.List(vm.stack[len(vm.stack)-2].Handle)
			if int(cursor) < len(list) {
				vm.stack[len(vm.stack)-1].Int = cursor + 1
				err = vm.push(list[cursor])
			} else {
				vm.stack = vm.stack[:len(vm.stack)-2]
				f.ip += delta
			}

		case bytecode.OpClosure:
			idx := int(vm.readU16(f))
			fn := vm.module.Functions[idx]
			closure := &Closure{FnIndex: idx, Fn: fn}
			for _, desc := range fn.Upvalues {
				if desc.InParent {
					closure.Upvalues = append(closure.Upvalues, vm.captureUpvalue(f.base+int(desc.Index)))
				} else {
					closure.Upvalues = append(closure.Upvalues, f.closure.Upvalues[desc.Index])
				}
			}
			err = vm.push(Value{Kind: KindClosure, Handle: vm.heap.AllocClosure(closure)})

		case bytecode.OpCall:
			argc := int(vm.readByte(f))
			base := len(vm.stack) - argc
			callee := vm.stack[base-1]
			err = vm.callValue(callee, base, base-1)
		case bytecode.OpMethodCall:
			name := f.closure.Fn.Constants[vm.readU16(f)].Str
			argc := int(vm.readByte(f))
			base := len(vm.stack) - argc - 1 // receiver is the first argument
			var method Value
			method, err = vm.resolveMember(vm.stack[base], name)
			if err == nil {
				err = vm.callValue(method, base, base)
			}
		case bytecode.OpLoadBuiltin:
			idx := vm.readU16(f)
			err = vm.push(NativeValue(vm.builtins[idx]))

		case bytecode.OpReturn, bytecode.OpReturnUnit:
			result := Unit()
			if op == bytecode.OpReturn {
				result = vm.pop()
			}
			vm.closeUpvalues(f.base)
			vm.stack = vm.stack[:f.ret]
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == stopDepth {
				return result, nil
			}
			if perr := vm.push(result); perr != nil {
				err = perr
			}

		case bytecode.OpAssert:
			v := vm.pop()
			if v.Kind != KindBool {
				err = spanlessError("assert requires a boolean, got %s", v.TypeName())
			} else if !v.Bool {
				err = spanlessError("assertion failed")
			}

		default:
			err = spanlessError("unknown opcode 0x%02X", byte(op))
		}

		if err != nil {
			vm.attach(err)
			vm.unwind(stopDepth)
			return Value{}, err
		}
	}
}

// unwind discards the frames above stopDepth after a runtime error,
// closing their upvalues and restoring the stack to the point the
// outermost failed call would have returned to. Without this a failed
// call would leak its frames and poison every later call on the VM.
func (vm *VM) unwind(stopDepth int) {
	for len(vm.frames) > stopDepth {
		f := vm.frame()
		vm.closeUpvalues(f.base)
		vm.stack = vm.stack[:f.ret]
		vm.frames = vm.frames[:len(vm.frames)-1]
	}
}

func constValue(c bytecode.Constant) Value {
	switch c.Kind {
	case bytecode.ConstInt:
		return IntValue(c.Int)
	case bytecode.ConstFloat:
		return FloatValue(c.Float)
	default:
		return StringValue(c.Str)
	}
}

// ---------------------------------------------------------------------------
// Arithmetic and comparison
// ---------------------------------------------------------------------------

var arithMetaSlots = map[bytecode.Opcode]string{
	bytecode.OpAdd: MetaAdd, bytecode.OpSub: MetaSub, bytecode.OpMul: MetaMul,
	bytecode.OpDiv: MetaDiv, bytecode.OpFloorDiv: MetaDiv, bytecode.OpMod: MetaMod,
	bytecode.OpPow: MetaPow,
}

var arithNames = map[bytecode.Opcode]string{
	bytecode.OpAdd: "+", bytecode.OpSub: "-", bytecode.OpMul: "*",
	bytecode.OpDiv: "/", bytecode.OpFloorDiv: "//", bytecode.OpMod: "%",
	bytecode.OpPow: "**",
}

// binaryArith pops two operands and applies an arithmetic operator,
// dispatching through the meta-table protocol when an operand is a
// table carrying the matching slot.
func (vm *VM) binaryArith(op bytecode.Opcode) *RuntimeError {
	b := vm.pop()
	a := vm.pop()

	if a.Kind == KindTable || b.Kind == KindTable {
		slot := arithMetaSlots[op]
		if method, ok := vm.metaSlot(a, slot); ok {
			return vm.callMeta(method, a, b)
		}
		if method, ok := vm.metaSlot(b, slot); ok {
			return vm.callMeta(method, a, b)
		}
		return spanlessError("unsupported operand types for %s: %s and %s",
			arithNames[op], a.TypeName(), b.TypeName())
	}

	if op == bytecode.OpAdd && a.Kind == KindString && b.Kind == KindString {
		return vm.push(StringValue(a.Str + b.Str))
	}

	result, err := numericArith(op, a, b)
	if err != nil {
		return err
	}
	return vm.push(result)
}

// callMeta invokes a meta method with two arguments; the result lands
// where the operands were.
func (vm *VM) callMeta(method Value, a, b Value) *RuntimeError {
	ret := len(vm.stack)
	if err := vm.push(a); err != nil {
		return err
	}
	if err := vm.push(b); err != nil {
		return err
	}
	return vm.callValue(method, ret, ret)
}

// numericArith applies an operator to two numeric scalars. Mixed
// integer/float operands widen to float.
func numericArith(op bytecode.Opcode, a, b Value) (Value, *RuntimeError) {
	if (a.Kind != KindInt && a.Kind != KindFloat) || (b.Kind != KindInt && b.Kind != KindFloat) {
		return Value{}, spanlessError("unsupported operand types for %s: %s and %s",
			arithNames[op], a.TypeName(), b.TypeName())
	}

	bothInt := a.Kind == KindInt && b.Kind == KindInt

	switch op {
	case bytecode.OpAdd:
		if bothInt {
			return IntValue(a.Int + b.Int), nil
		}
		return FloatValue(toFloat(a) + toFloat(b)), nil
	case bytecode.OpSub:
		if bothInt {
			return IntValue(a.Int - b.Int), nil
		}
		return FloatValue(toFloat(a) - toFloat(b)), nil
	case bytecode.OpMul:
		if bothInt {
			return IntValue(a.Int * b.Int), nil
		}
		return FloatValue(toFloat(a) * toFloat(b)), nil
	case bytecode.OpDiv:
		// True division always yields a float.
		return FloatValue(toFloat(a) / toFloat(b)), nil
	case bytecode.OpFloorDiv:
		if bothInt {
			if b.Int == 0 {
				return Value{}, spanlessError("integer division by zero")
			}
			return IntValue(floorDivInt(a.Int, b.Int)), nil
		}
		return FloatValue(math.Floor(toFloat(a) / toFloat(b))), nil
	case bytecode.OpMod:
		if bothInt {
			if b.Int == 0 {
				return Value{}, spanlessError("integer modulo by zero")
			}
			return IntValue(floorModInt(a.Int, b.Int)), nil
		}
		fa, fb := toFloat(a), toFloat(b)
		return FloatValue(fa - math.Floor(fa/fb)*fb), nil
	case bytecode.OpPow:
		if bothInt && b.Int >= 0 {
			return IntValue(intPow(a.Int, b.Int)), nil
		}
		return FloatValue(math.Pow(toFloat(a), toFloat(b))), nil
	}
	return Value{}, spanlessError("unknown arithmetic operator")
}

func toFloat(v Value) float64 {
	if v.Kind == KindInt {
		return float64(v.Int)
	}
	return v.Float
}

// floorDivInt rounds the quotient toward negative infinity.
func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// floorModInt keeps the sign of the divisor, matching floor division.
func floorModInt(a, b int64) int64 {
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func intPow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func (vm *VM) negate() *RuntimeError {
	v := vm.pop()
	switch v.Kind {
	case KindInt:
		return vm.push(IntValue(-v.Int))
	case KindFloat:
		return vm.push(FloatValue(-v.Float))
	case KindTable:
		if method, ok := vm.metaSlot(v, MetaNeg); ok {
			ret := len(vm.stack)
			if err := vm.push(v); err != nil {
				return err
			}
			return vm.callValue(method, ret, ret)
		}
	}
	return spanlessError("cannot negate %s", v.TypeName())
}

// equality pops two operands and pushes their equality. Numbers compare
// across kinds; strings, booleans, and tuples compare structurally;
// lists and tables compare by identity unless a table carries __eq.
func (vm *VM) equality(negate bool) *RuntimeError {
	b := vm.pop()
	a := vm.pop()

	if a.Kind == KindTable || b.Kind == KindTable {
		if method, ok := vm.metaSlot(a, MetaEq); ok {
			return vm.callMetaCompare(method, a, b, negate)
		}
		if method, ok := vm.metaSlot(b, MetaEq); ok {
			return vm.callMetaCompare(method, a, b, negate)
		}
	}

	eq := valuesEqual(a, b)
	if negate {
		eq = !eq
	}
	return vm.push(BoolValue(eq))
}

// callMetaCompare runs __eq to completion and pushes its result,
// flipping it when the operator was <>.
func (vm *VM) callMetaCompare(method Value, a, b Value, negate bool) *RuntimeError {
	result, err := vm.Call(method, []Value{a, b})
	if err != nil {
		if rerr, ok := err.(*RuntimeError); ok {
			return rerr
		}
		return spanlessError("%s", err.Error())
	}
	if result.Kind != KindBool {
		return spanlessError("__eq must return a boolean, got %s", result.TypeName())
	}
	if negate {
		result.Bool = !result.Bool
	}
	return vm.push(result)
}

func valuesEqual(a, b Value) bool {
	// Numbers compare across integer/float kinds.
	if (a.Kind == KindInt || a.Kind == KindFloat) && (b.Kind == KindInt || b.Kind == KindFloat) {
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.Int == b.Int
		}
		return toFloat(a) == toFloat(b)
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindBool:
		return a.Bool == b.Bool
	case KindString:
		return a.Str == b.Str
	case KindTuple:
		if len(a.Tuple) != len(b.Tuple) {
			return false
		}
		for i := range a.Tuple {
			if !valuesEqual(a.Tuple[i], b.Tuple[i]) {
				return false
			}
		}
		return true
	case KindList, KindTable, KindClosure:
		return a.Handle == b.Handle
	case KindNative:
		return a.Native == b.Native
	}
	return false
}

// ordering pops two operands and pushes the comparison result. Numbers
// and strings order directly; tables dispatch through __lt and __le,
// with > and >= derived by swapping the operands.
func (vm *VM) ordering(op bytecode.Opcode) *RuntimeError {
	b := vm.pop()
	a := vm.pop()

	// Normalize to < and <= by swapping the operands.
	if op == bytecode.OpGt {
		op, a, b = bytecode.OpLt, b, a
	} else if op == bytecode.OpGe {
		op, a, b = bytecode.OpLe, b, a
	}

	if a.Kind == KindTable || b.Kind == KindTable {
		slot := MetaLt
		if op == bytecode.OpLe {
			slot = MetaLe
		}
		if method, ok := vm.metaSlot(a, slot); ok {
			return vm.callMeta(method, a, b)
		}
		if method, ok := vm.metaSlot(b, slot); ok {
			return vm.callMeta(method, a, b)
		}
		return spanlessError("cannot order %s and %s", a.TypeName(), b.TypeName())
	}

	if a.Kind == KindString && b.Kind == KindString {
		if op == bytecode.OpLt {
			return vm.push(BoolValue(a.Str < b.Str))
		}
		return vm.push(BoolValue(a.Str <= b.Str))
	}

	if (a.Kind == KindInt || a.Kind == KindFloat) && (b.Kind == KindInt || b.Kind == KindFloat) {
		if a.Kind == KindInt && b.Kind == KindInt {
			if op == bytecode.OpLt {
				return vm.push(BoolValue(a.Int < b.Int))
			}
			return vm.push(BoolValue(a.Int <= b.Int))
		}
		if op == bytecode.OpLt {
			return vm.push(BoolValue(toFloat(a) < toFloat(b)))
		}
		return vm.push(BoolValue(toFloat(a) <= toFloat(b)))
	}

	return spanlessError("cannot order %s and %s", a.TypeName(), b.TypeName())
}

// ---------------------------------------------------------------------------
// Indexing and ranges
// ---------------------------------------------------------------------------

func (vm *VM) makeRange() *RuntimeError {
	b := vm.pop()
	a := vm.pop()
	if a.Kind != KindInt || b.Kind != KindInt {
		return spanlessError("range bounds must be integers, got %s and %s",
			a.TypeName(), b.TypeName())
	}
	var elems []Value
	for i := a.Int; i < b.Int; i++ {
		elems = append(elems, IntValue(i))
	}
	return vm.push(Value{Kind: KindList, Handle: vm.heap.AllocList(elems)})
}

// indexGet performs raw indexing with no meta-table mediation.
func (vm *VM) indexGet() *RuntimeError {
	key := vm.pop()
	target := vm.pop()

	switch target.Kind {
	case KindList:
		if key.Kind != KindInt {
			return spanlessError("list index must be an integer, got %s", key.TypeName())
		}
		elems := vm.heap.List(target.Handle)
		if key.Int < 0 || key.Int >= int64(len(elems)) {
			return spanlessError("index out of range: %d (length %d)", key.Int, len(elems))
		}
		return vm.push(elems[key.Int])
	case KindTuple:
		if key.Kind != KindInt {
			return spanlessError("tuple index must be an integer, got %s", key.TypeName())
		}
		if key.Int < 0 || key.Int >= int64(len(target.Tuple)) {
			return spanlessError("index out of range: %d (length %d)", key.Int, len(target.Tuple))
		}
		return vm.push(target.Tuple[key.Int])
	case KindTable:
		if key.Kind != KindString {
			return spanlessError("table key must be a string, got %s", key.TypeName())
		}
		if v, ok := vm.heap.TableGet(target.Handle, key.Str); ok {
			return vm.push(v)
		}
		return spanlessError("table has no key %q", key.Str)
	default:
		return spanlessError("cannot index %s", target.TypeName())
	}
}

// indexSet performs a raw write; tuples reject all writes.
func (vm *VM) indexSet() *RuntimeError {
	value := vm.pop()
	key := vm.pop()
	target := vm.pop()

	switch target.Kind {
	case KindList:
		if key.Kind != KindInt {
			return spanlessError("list index must be an integer, got %s", key.TypeName())
		}
		elems := vm.heap.List(target.Handle)
		if key.Int < 0 || key.Int >= int64(len(elems)) {
			return spanlessError("index out of range: %d (length %d)", key.Int, len(elems))
		}
		elems[key.Int] = value
		return nil
	case KindTuple:
		return spanlessError("tuples are immutable")
	case KindTable:
		if key.Kind != KindString {
			return spanlessError("table key must be a string, got %s", key.TypeName())
		}
		vm.heap.TableSet(target.Handle, key.Str, value)
		return nil
	default:
		return spanlessError("cannot index %s", target.TypeName())
	}
}
