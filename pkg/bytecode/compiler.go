package bytecode

import (
	"github.com/chazu/skiff/pkg/ast"
	"github.com/chazu/skiff/pkg/diag"
)

// MaxLocals is the number of local slots a single function may use,
// bounded by the u8 operand of the local opcodes.
const MaxLocals = 256

// Compile lowers a parsed module to bytecode. builtins is the ordered
// list of native function names the host has registered; identifiers
// resolve against locals, then enclosing functions, then builtins.
// A result with error diagnostics must not be executed.
func Compile(src *diag.Source, mod *ast.Module, builtins []string) (*Module, []diag.Diagnostic) {
	c := &compiler{
		src:      src,
		module:   &Module{Version: BytecodeVersion, Name: src.Name},
		builtins: make(map[string]uint16, len(builtins)),
	}
	for i, name := range builtins {
		c.builtins[name] = uint16(i)
	}

	entry := c.newFuncCompiler("<main>", nil, nil)
	for _, stmt := range mod.Stmts {
		entry.stmt(stmt)
	}
	entry.fn.Emit(OpReturnUnit)
	entry.finish()

	// The entry function goes first; its index was reserved up front.
	return c.module, c.diags
}

// compiler holds state shared across all function compilations of one
// module.
type compiler struct {
	src      *diag.Source
	module   *Module
	builtins map[string]uint16
	diags    []diag.Diagnostic
}

func (c *compiler) errorf(code string, span diag.Span, format string, args ...interface{}) {
	c.diags = append(c.diags, diag.Errorf(code, span, format, args...))
}

// local is one declared binding in a function being compiled.
type local struct {
	name     string
	depth    int
	captured bool // referenced by a nested closure
	hidden   bool // compiler-introduced iterator slot
}

// loopCtx tracks the innermost enclosing loop for break and continue.
type loopCtx struct {
	continueTarget int   // bytecode offset continue jumps back to
	breaks         []int // jump placeholders patched to the loop end
	scopeDepth     int   // depth at loop entry; unwound before jumping
	isFor          bool  // for-loops keep iterator slots below the body
}

// funcCompiler compiles one function body. Nested function literals get
// their own funcCompiler linked through enclosing for upvalue
// resolution.
type funcCompiler struct {
	c         *compiler
	enclosing *funcCompiler
	fn        *Function
	fnIndex   int
	locals    []local
	depth     int
	maxLocals int
	loops     []*loopCtx
}

// newFuncCompiler reserves a function table slot and seeds the local
// slots with the parameter names, reporting duplicates.
func (c *compiler) newFuncCompiler(name string, enclosing *funcCompiler, params []ast.Param) *funcCompiler {
	fc := &funcCompiler{
		c:         c,
		enclosing: enclosing,
		fn:        NewFunction(name, uint8(len(params))),
		fnIndex:   len(c.module.Functions),
	}
	c.module.Functions = append(c.module.Functions, fc.fn)

	seen := make(map[string]diag.Span, len(params))
	for _, p := range params {
		if first, dup := seen[p.Name]; dup {
			c.diags = append(c.diags, diag.Errorf(
				diag.CodeDuplicateParam, p.Loc,
				"duplicate parameter %q", p.Name,
			).WithLabel(first, "first declared here"))
		} else {
			seen[p.Name] = p.Loc
		}
		fc.locals = append(fc.locals, local{name: p.Name, depth: 0})
	}
	fc.maxLocals = len(fc.locals)
	return fc
}

// finish records the frame size once the body is fully compiled.
func (fc *funcCompiler) finish() {
	if fc.maxLocals > MaxLocals {
		fc.maxLocals = MaxLocals // error was already reported by addLocal
	}
	fc.fn.NumLocals = uint8(fc.maxLocals)
}

func (fc *funcCompiler) errorf(code string, span diag.Span, format string, args ...interface{}) {
	fc.c.errorf(code, span, format, args...)
}

// mark records the source span for instructions emitted from offset on.
func (fc *funcCompiler) mark(offset int, span diag.Span) {
	fc.fn.AddSpan(offset, span)
}

// emitConst emits a constant push, reporting pool overflow once.
func (fc *funcCompiler) emitConst(c Constant, span diag.Span) {
	idx, ok := fc.fn.AddConstant(c)
	if !ok {
		fc.errorf(diag.CodeTooManyConstants, span, "too many constants in one function")
		return
	}
	fc.fn.EmitU16(OpConst, idx)
}

// nameConst interns a string constant and returns its index.
func (fc *funcCompiler) nameConst(name string, span diag.Span) uint16 {
	idx, ok := fc.fn.AddConstant(StringConstant(name))
	if !ok {
		fc.errorf(diag.CodeTooManyConstants, span, "too many constants in one function")
		return 0
	}
	return idx
}

// patchJump patches a placeholder, reporting jumps beyond i16 range.
func (fc *funcCompiler) patchJump(placeholder int, span diag.Span) {
	if !fc.fn.PatchJump(placeholder) {
		fc.errorf(diag.CodeJumpTooFar, span, "jump distance exceeds bytecode limits")
	}
}

// emitLoop emits a backward jump, reporting loops beyond i16 range.
func (fc *funcCompiler) emitLoop(loopStart int, span diag.Span) {
	if !fc.fn.EmitLoop(loopStart) {
		fc.errorf(diag.CodeJumpTooFar, span, "loop body exceeds bytecode limits")
	}
}

// ---------------------------------------------------------------------------
// Scopes and bindings
// ---------------------------------------------------------------------------

// addLocal declares a binding whose value is already on top of the
// stack. Shadowing an earlier binding of the same name is allowed; the
// new slot wins for the rest of its scope.
func (fc *funcCompiler) addLocal(name string, span diag.Span, hidden bool) {
	if len(fc.locals) >= MaxLocals {
		fc.errorf(diag.CodeInvalidAssign, span, "too many local variables in one function")
		return
	}
	fc.locals = append(fc.locals, local{name: name, depth: fc.depth, hidden: hidden})
	if len(fc.locals) > fc.maxLocals {
		fc.maxLocals = len(fc.locals)
	}
}

func (fc *funcCompiler) beginScope() { fc.depth++ }

// endScope pops every local declared in the scope being left, closing
// upvalues over captured ones.
func (fc *funcCompiler) endScope() {
	fc.depth--
	for len(fc.locals) > 0 {
		l := fc.locals[len(fc.locals)-1]
		if l.depth <= fc.depth {
			break
		}
		if l.captured {
			fc.fn.Emit(OpCloseUpvalue)
		} else {
			fc.fn.Emit(OpPop)
		}
		fc.locals = fc.locals[:len(fc.locals)-1]
	}
}

// resolveLocal finds a binding by name in this function, innermost
// shadowing outermost.
func (fc *funcCompiler) resolveLocal(name string) (uint8, bool) {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if !fc.locals[i].hidden && fc.locals[i].name == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// resolveUpvalue finds a binding in an enclosing function, threading a
// capture through every function in between.
func (fc *funcCompiler) resolveUpvalue(name string) (uint8, bool) {
	if fc.enclosing == nil {
		return 0, false
	}
	if slot, ok := fc.enclosing.resolveLocal(name); ok {
		fc.enclosing.locals[slot].captured = true
		return fc.addUpvalue(UpvalueDesc{InParent: true, Index: slot}), true
	}
	if idx, ok := fc.enclosing.resolveUpvalue(name); ok {
		return fc.addUpvalue(UpvalueDesc{InParent: false, Index: idx}), true
	}
	return 0, false
}

func (fc *funcCompiler) addUpvalue(desc UpvalueDesc) uint8 {
	for i, existing := range fc.fn.Upvalues {
		if existing == desc {
			return uint8(i)
		}
	}
	fc.fn.Upvalues = append(fc.fn.Upvalues, desc)
	return uint8(len(fc.fn.Upvalues) - 1)
}

// unwindTo pops locals above the given scope depth without discarding
// them from the compiler's view, for break and continue jumps.
func (fc *funcCompiler) unwindTo(depth int) {
	for i := len(fc.locals) - 1; i >= 0 && fc.locals[i].depth > depth; i-- {
		if fc.locals[i].captured {
			fc.fn.Emit(OpCloseUpvalue)
		} else {
			fc.fn.Emit(OpPop)
		}
	}
}

func (fc *funcCompiler) currentLoop() *loopCtx {
	if len(fc.loops) == 0 {
		return nil
	}
	return fc.loops[len(fc.loops)-1]
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (fc *funcCompiler) block(stmts []ast.Stmt) {
	fc.beginScope()
	for _, s := range stmts {
		fc.stmt(s)
	}
	fc.endScope()
}

func (fc *funcCompiler) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Let:
		fc.letStmt(s)
	case *ast.Assign:
		fc.assignStmt(s)
	case *ast.ExprStmt:
		fc.expr(s.E)
		fc.fn.Emit(OpPop)
	case *ast.If:
		fc.ifStmt(s)
	case *ast.While:
		fc.whileStmt(s)
	case *ast.Loop:
		fc.loopStmt(s)
	case *ast.For:
		fc.forStmt(s)
	case *ast.FuncDecl:
		fc.funcDecl(s)
	case *ast.Return:
		fc.returnStmt(s)
	case *ast.Break:
		fc.breakStmt(s)
	case *ast.Continue:
		fc.continueStmt(s)
	case *ast.Assert:
		fc.mark(fc.fn.CurrentOffset(), s.Loc)
		fc.expr(s.Cond)
		fc.fn.Emit(OpAssert)
	case *ast.BadStmt:
		// Parse errors block execution; nothing to emit.
	}
}

// letStmt compiles let x = e and let (a, b) = e. The value (or each
// unpacked element) stays on the stack as the new local slot.
func (fc *funcCompiler) letStmt(s *ast.Let) {
	fc.mark(fc.fn.CurrentOffset(), s.Loc)
	fc.expr(s.Value)
	if s.Destructure {
		fc.fn.EmitByte(OpUnpack, byte(len(s.Names)))
		for _, name := range s.Names {
			fc.addLocal(name.Name, name.Loc, false)
		}
		return
	}
	fc.addLocal(s.Names[0].Name, s.Names[0].Loc, false)
}

func (fc *funcCompiler) assignStmt(s *ast.Assign) {
	fc.mark(fc.fn.CurrentOffset(), s.Loc)
	switch target := s.Target.(type) {
	case *ast.Ident:
		fc.expr(s.Value)
		if slot, ok := fc.resolveLocal(target.Name); ok {
			fc.fn.EmitByte(OpStoreLocal, slot)
			return
		}
		if idx, ok := fc.resolveUpvalue(target.Name); ok {
			fc.fn.EmitByte(OpStoreUpvalue, idx)
			return
		}
		fc.errorf(diag.CodeUndefinedVar, target.Loc,
			"cannot assign to undefined variable %q", target.Name)
	case *ast.Index:
		fc.expr(target.Target)
		fc.expr(target.Key)
		fc.expr(s.Value)
		fc.fn.Emit(OpIndexSet)
	case *ast.Member:
		fc.expr(target.Target)
		fc.expr(s.Value)
		idx := fc.nameConst(target.Field, target.FieldSpan)
		fc.fn.EmitU16(OpMemberSet, idx)
	default:
		fc.errorf(diag.CodeInvalidAssign, s.Target.Span(),
			"cannot assign to this expression")
	}
}

func (fc *funcCompiler) ifStmt(s *ast.If) {
	var endJumps []int
	for _, branch := range s.Branches {
		fc.mark(fc.fn.CurrentOffset(), branch.Cond.Span())
		fc.expr(branch.Cond)
		skip := fc.fn.EmitJump(OpJumpIfFalse)
		fc.block(branch.Body)
		endJumps = append(endJumps, fc.fn.EmitJump(OpJump))
		fc.patchJump(skip, branch.Cond.Span())
	}
	if s.Else != nil {
		fc.block(s.Else)
	}
	for _, j := range endJumps {
		fc.patchJump(j, s.Loc)
	}
}

func (fc *funcCompiler) whileStmt(s *ast.While) {
	loopStart := fc.fn.CurrentOffset()
	loop := &loopCtx{continueTarget: loopStart, scopeDepth: fc.depth}
	fc.loops = append(fc.loops, loop)

	fc.mark(loopStart, s.Cond.Span())
	fc.expr(s.Cond)
	exit := fc.fn.EmitJump(OpJumpIfFalse)
	fc.block(s.Body)
	fc.emitLoop(loopStart, s.Loc)
	fc.patchJump(exit, s.Cond.Span())

	fc.loops = fc.loops[:len(fc.loops)-1]
	for _, b := range loop.breaks {
		fc.patchJump(b, s.Loc)
	}
}

func (fc *funcCompiler) loopStmt(s *ast.Loop) {
	loopStart := fc.fn.CurrentOffset()
	loop := &loopCtx{continueTarget: loopStart, scopeDepth: fc.depth}
	fc.loops = append(fc.loops, loop)

	fc.block(s.Body)
	fc.emitLoop(loopStart, s.Loc)

	fc.loops = fc.loops[:len(fc.loops)-1]
	for _, b := range loop.breaks {
		fc.patchJump(b, s.Loc)
	}
}

// forStmt compiles for x in e do body end. The iterator list and its
// cursor live in two hidden slots below the loop variable; OpIterNext
// pushes the next element or pops both slots and exits.
func (fc *funcCompiler) forStmt(s *ast.For) {
	fc.beginScope()
	fc.mark(fc.fn.CurrentOffset(), s.Iterable.Span())
	fc.expr(s.Iterable)
	fc.fn.Emit(OpIterPrep)
	fc.addLocal("(iter)", s.Loc, true)
	fc.addLocal("(cursor)", s.Loc, true)

	iterNext := fc.fn.CurrentOffset()
	exit := fc.fn.EmitJump(OpIterNext)
	loop := &loopCtx{continueTarget: iterNext, scopeDepth: fc.depth, isFor: true}
	fc.loops = append(fc.loops, loop)

	fc.beginScope()
	fc.addLocal(s.Var.Name, s.Var.Loc, false)
	for _, stmt := range s.Body {
		fc.stmt(stmt)
	}
	fc.endScope()
	fc.emitLoop(iterNext, s.Loc)

	fc.loops = fc.loops[:len(fc.loops)-1]
	fc.patchJump(exit, s.Loc)
	for _, b := range loop.breaks {
		fc.patchJump(b, s.Loc)
	}

	// OpIterNext popped the two hidden slots on exit.
	fc.locals = fc.locals[:len(fc.locals)-2]
	fc.depth--
}

// funcDecl binds the name before compiling the body so the function can
// call itself.
func (fc *funcCompiler) funcDecl(s *ast.FuncDecl) {
	fc.mark(fc.fn.CurrentOffset(), s.Loc)
	fc.addLocal(s.Name.Name, s.Name.Loc, false)
	fc.compileFunc(s.Name.Name, s.Fn)
}

// compileFunc compiles a function body into its own chunk and emits the
// closure build in the current one.
func (fc *funcCompiler) compileFunc(name string, fn *ast.FuncLit) {
	inner := fc.c.newFuncCompiler(name, fc, fn.Params)
	for _, stmt := range fn.Body {
		inner.stmt(stmt)
	}
	inner.fn.Emit(OpReturnUnit)
	inner.finish()

	fc.fn.EmitU16(OpClosure, uint16(inner.fnIndex))
}

func (fc *funcCompiler) returnStmt(s *ast.Return) {
	fc.mark(fc.fn.CurrentOffset(), s.Loc)
	switch len(s.Values) {
	case 0:
		fc.fn.Emit(OpReturnUnit)
	case 1:
		fc.expr(s.Values[0])
		fc.fn.Emit(OpReturn)
	default:
		for _, v := range s.Values {
			fc.expr(v)
		}
		fc.fn.EmitU16(OpMakeTuple, uint16(len(s.Values)))
		fc.fn.Emit(OpReturn)
	}
}

func (fc *funcCompiler) breakStmt(s *ast.Break) {
	loop := fc.currentLoop()
	if loop == nil {
		fc.errorf(diag.CodeLoopControl, s.Loc, "break outside of a loop")
		return
	}
	fc.unwindTo(loop.scopeDepth)
	if loop.isFor {
		// Discard the hidden iterator and cursor slots.
		fc.fn.Emit(OpPop)
		fc.fn.Emit(OpPop)
	}
	loop.breaks = append(loop.breaks, fc.fn.EmitJump(OpJump))
}

func (fc *funcCompiler) continueStmt(s *ast.Continue) {
	loop := fc.currentLoop()
	if loop == nil {
		fc.errorf(diag.CodeLoopControl, s.Loc, "continue outside of a loop")
		return
	}
	fc.unwindTo(loop.scopeDepth)
	fc.emitLoop(loop.continueTarget, s.Loc)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (fc *funcCompiler) expr(e ast.Expr) {
	fc.mark(fc.fn.CurrentOffset(), e.Span())
	switch e := e.(type) {
	case *ast.IntLit:
		fc.emitConst(IntConstant(e.Value), e.Loc)
	case *ast.FloatLit:
		fc.emitConst(FloatConstant(e.Value), e.Loc)
	case *ast.BoolLit:
		if e.Value {
			fc.fn.Emit(OpTrue)
		} else {
			fc.fn.Emit(OpFalse)
		}
	case *ast.StringLit:
		fc.emitConst(StringConstant(e.Value), e.Loc)
	case *ast.Ident:
		fc.ident(e)
	case *ast.Unary:
		fc.unary(e)
	case *ast.Binary:
		fc.binary(e)
	case *ast.Call:
		fc.expr(e.Callee)
		fc.args(e.Args, e.Loc)
		fc.fn.EmitByte(OpCall, byte(len(e.Args)))
	case *ast.MethodCall:
		fc.expr(e.Receiver)
		fc.args(e.Args, e.Loc)
		idx := fc.nameConst(e.Method, e.MethodSpan)
		fc.fn.EmitU16(OpMethodCall, idx)
		fc.fn.Code = append(fc.fn.Code, byte(len(e.Args)))
	case *ast.Index:
		fc.expr(e.Target)
		fc.expr(e.Key)
		fc.fn.Emit(OpIndexGet)
	case *ast.Member:
		fc.expr(e.Target)
		idx := fc.nameConst(e.Field, e.FieldSpan)
		fc.fn.EmitU16(OpMemberGet, idx)
	case *ast.ListLit:
		for _, elem := range e.Elems {
			fc.expr(elem)
		}
		fc.fn.EmitU16(OpMakeList, uint16(len(e.Elems)))
	case *ast.TupleLit:
		if len(e.Elems) == 0 {
			fc.fn.Emit(OpUnit)
			return
		}
		for _, elem := range e.Elems {
			fc.expr(elem)
		}
		fc.fn.EmitU16(OpMakeTuple, uint16(len(e.Elems)))
	case *ast.TableLit:
		for _, field := range e.Fields {
			fc.emitConst(StringConstant(field.Name), field.NameSpan)
			fc.expr(field.Value)
		}
		fc.fn.EmitU16(OpMakeTable, uint16(len(e.Fields)))
	case *ast.FuncLit:
		fc.compileFunc("<anonymous>", e)
	case *ast.Bad:
		// Unreachable: parse errors block compilation.
	}
}

// args compiles an argument list, bounded by the u8 argc operand.
func (fc *funcCompiler) args(list []ast.Expr, span diag.Span) {
	if len(list) > 255 {
		fc.errorf(diag.CodeInvalidAssign, span, "too many arguments in one call")
	}
	for _, a := range list {
		fc.expr(a)
	}
}

func (fc *funcCompiler) ident(e *ast.Ident) {
	if slot, ok := fc.resolveLocal(e.Name); ok {
		fc.fn.EmitByte(OpLoadLocal, slot)
		return
	}
	if idx, ok := fc.resolveUpvalue(e.Name); ok {
		fc.fn.EmitByte(OpLoadUpvalue, idx)
		return
	}
	if idx, ok := fc.c.builtins[e.Name]; ok {
		fc.fn.EmitU16(OpLoadBuiltin, idx)
		return
	}
	fc.errorf(diag.CodeUndefinedVar, e.Loc, "undefined variable %q", e.Name)
}

func (fc *funcCompiler) unary(e *ast.Unary) {
	if folded := foldUnary(e); folded != nil {
		fc.expr(folded)
		return
	}
	fc.expr(e.Operand)
	switch e.Op {
	case ast.OpNeg:
		fc.fn.Emit(OpNeg)
	case ast.OpNot:
		fc.fn.Emit(OpNot)
	}
}

var binaryOpcodes = map[ast.BinaryOp]Opcode{
	ast.OpAdd: OpAdd, ast.OpSub: OpSub, ast.OpMul: OpMul,
	ast.OpDiv: OpDiv, ast.OpFloorDiv: OpFloorDiv, ast.OpMod: OpMod,
	ast.OpPow: OpPow, ast.OpRange: OpRange,
	ast.OpEq: OpEq, ast.OpNe: OpNe, ast.OpLt: OpLt,
	ast.OpLe: OpLe, ast.OpGt: OpGt, ast.OpGe: OpGe,
}

func (fc *funcCompiler) binary(e *ast.Binary) {
	// and/or short-circuit: the right operand is skipped entirely
	// when the left side decides the result.
	switch e.Op {
	case ast.OpAnd:
		fc.expr(e.Left)
		end := fc.fn.EmitJump(OpAndJump)
		fc.expr(e.Right)
		fc.patchJump(end, e.Loc)
		return
	case ast.OpOr:
		fc.expr(e.Left)
		end := fc.fn.EmitJump(OpOrJump)
		fc.expr(e.Right)
		fc.patchJump(end, e.Loc)
		return
	}

	if folded := foldBinary(e); folded != nil {
		fc.expr(folded)
		return
	}

	fc.expr(e.Left)
	fc.expr(e.Right)
	fc.fn.Emit(binaryOpcodes[e.Op])
}

// ---------------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------------

// foldUnary folds negation of numeric literals.
func foldUnary(e *ast.Unary) ast.Expr {
	if e.Op != ast.OpNeg {
		return nil
	}
	switch operand := e.Operand.(type) {
	case *ast.IntLit:
		return &ast.IntLit{Value: -operand.Value, Loc: e.Loc}
	case *ast.FloatLit:
		return &ast.FloatLit{Value: -operand.Value, Loc: e.Loc}
	}
	return nil
}

// foldBinary folds arithmetic on literal operands. Division and
// remainder are left to the runtime so zero divisors raise the error
// they would at execution.
func foldBinary(e *ast.Binary) ast.Expr {
	left, lok := e.Left.(*ast.IntLit)
	right, rok := e.Right.(*ast.IntLit)
	if lok && rok {
		switch e.Op {
		case ast.OpAdd:
			return &ast.IntLit{Value: left.Value + right.Value, Loc: e.Loc}
		case ast.OpSub:
			return &ast.IntLit{Value: left.Value - right.Value, Loc: e.Loc}
		case ast.OpMul:
			return &ast.IntLit{Value: left.Value * right.Value, Loc: e.Loc}
		}
		return nil
	}

	fleft, flok := e.Left.(*ast.FloatLit)
	fright, frok := e.Right.(*ast.FloatLit)
	if flok && frok {
		switch e.Op {
		case ast.OpAdd:
			return &ast.FloatLit{Value: fleft.Value + fright.Value, Loc: e.Loc}
		case ast.OpSub:
			return &ast.FloatLit{Value: fleft.Value - fright.Value, Loc: e.Loc}
		case ast.OpMul:
			return &ast.FloatLit{Value: fleft.Value * fright.Value, Loc: e.Loc}
		}
	}
	return nil
}
