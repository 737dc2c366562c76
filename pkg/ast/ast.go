// Package ast defines the abstract syntax tree produced by the parser
// and consumed by the bytecode compiler. Every node carries the byte
// span of the source text it was parsed from.
package ast

import (
	"fmt"

	"github.com/chazu/skiff/pkg/diag"
)

// Node is implemented by every AST node.
type Node interface {
	Span() diag.Span
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// UnaryOp identifies a prefix operator.
type UnaryOp int

const (
	OpNeg UnaryOp = iota // -
	OpNot                // not
)

func (op UnaryOp) String() string {
	switch op {
	case OpNeg:
		return "-"
	case OpNot:
		return "not"
	default:
		return fmt.Sprintf("UnaryOp(%d)", int(op))
	}
}

// BinaryOp identifies an infix operator.
type BinaryOp int

const (
	OpAdd      BinaryOp = iota // +
	OpSub                      // -
	OpMul                      // *
	OpDiv                      // /
	OpFloorDiv                 // //
	OpMod                      // %
	OpPow                      // **
	OpRange                    // ..
	OpEq                       // ==
	OpNe                       // <>
	OpLt                       // <
	OpLe                       // <=
	OpGt                       // >
	OpGe                       // >=
	OpAnd                      // and
	OpOr                       // or
)

var binaryOpNames = map[BinaryOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/",
	OpFloorDiv: "//", OpMod: "%", OpPow: "**", OpRange: "..",
	OpEq: "==", OpNe: "<>", OpLt: "<", OpLe: "<=",
	OpGt: ">", OpGe: ">=", OpAnd: "and", OpOr: "or",
}

func (op BinaryOp) String() string {
	if name, ok := binaryOpNames[op]; ok {
		return name
	}
	return fmt.Sprintf("BinaryOp(%d)", int(op))
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// IntLit is an integer literal.
type IntLit struct {
	Value int64
	Loc   diag.Span
}

// FloatLit is a float literal.
type FloatLit struct {
	Value float64
	Loc   diag.Span
}

// BoolLit is true or false.
type BoolLit struct {
	Value bool
	Loc   diag.Span
}

// StringLit is a string literal with escapes already decoded.
type StringLit struct {
	Value string
	Loc   diag.Span
}

// Ident is a variable reference.
type Ident struct {
	Name string
	Loc  diag.Span
}

// Unary is a prefix operator application.
type Unary struct {
	Op      UnaryOp
	Operand Expr
	Loc     diag.Span
}

// Binary is an infix operator application. And/Or short-circuit.
type Binary struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
	Loc   diag.Span
}

// Call is a function call f(args).
type Call struct {
	Callee Expr
	Args   []Expr
	Loc    diag.Span
}

// MethodCall is receiver:method(args). It resolves method through the
// meta-table protocol and passes the receiver as the first argument.
type MethodCall struct {
	Receiver   Expr
	Method     string
	MethodSpan diag.Span
	Args       []Expr
	Loc        diag.Span
}

// Index is raw indexing e[key], with no meta-table mediation.
type Index struct {
	Target Expr
	Key    Expr
	Loc    diag.Span
}

// Member is field access e.name, resolved through the meta-table
// protocol on a missing key.
type Member struct {
	Target    Expr
	Field     string
	FieldSpan diag.Span
	Loc       diag.Span
}

// ListLit is [e1, e2, ...].
type ListLit struct {
	Elems []Expr
	Loc   diag.Span
}

// TupleLit is (), (e,), or (e1, e2, ...).
type TupleLit struct {
	Elems []Expr
	Loc   diag.Span
}

// TableField is one key = value entry in a table literal.
type TableField struct {
	Name     string
	NameSpan diag.Span
	Value    Expr
}

// TableLit is { key = value, ... }. Keys are always strings.
type TableLit struct {
	Fields []TableField
	Loc    diag.Span
}

// Param is a declared function parameter or binding name.
type Param struct {
	Name string
	Loc  diag.Span
}

// FuncLit is an anonymous function expression def (params) body end.
type FuncLit struct {
	Params []Param
	Body   []Stmt
	Loc    diag.Span
}

// Bad is a placeholder produced during error recovery. The compiler
// never sees one: a parse with errors does not reach compilation.
type Bad struct {
	Loc diag.Span
}

func (e *IntLit) Span() diag.Span     { return e.Loc }
func (e *FloatLit) Span() diag.Span   { return e.Loc }
func (e *BoolLit) Span() diag.Span    { return e.Loc }
func (e *StringLit) Span() diag.Span  { return e.Loc }
func (e *Ident) Span() diag.Span      { return e.Loc }
func (e *Unary) Span() diag.Span      { return e.Loc }
func (e *Binary) Span() diag.Span     { return e.Loc }
func (e *Call) Span() diag.Span       { return e.Loc }
func (e *MethodCall) Span() diag.Span { return e.Loc }
func (e *Index) Span() diag.Span      { return e.Loc }
func (e *Member) Span() diag.Span     { return e.Loc }
func (e *ListLit) Span() diag.Span    { return e.Loc }
func (e *TupleLit) Span() diag.Span   { return e.Loc }
func (e *TableLit) Span() diag.Span   { return e.Loc }
func (e *FuncLit) Span() diag.Span    { return e.Loc }
func (e *Bad) Span() diag.Span        { return e.Loc }

func (*IntLit) exprNode()     {}
func (*FloatLit) exprNode()   {}
func (*BoolLit) exprNode()    {}
func (*StringLit) exprNode()  {}
func (*Ident) exprNode()      {}
func (*Unary) exprNode()      {}
func (*Binary) exprNode()     {}
func (*Call) exprNode()       {}
func (*MethodCall) exprNode() {}
func (*Index) exprNode()      {}
func (*Member) exprNode()     {}
func (*ListLit) exprNode()    {}
func (*TupleLit) exprNode()   {}
func (*TableLit) exprNode()   {}
func (*FuncLit) exprNode()    {}
func (*Bad) exprNode()        {}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Let declares one binding, or several when destructuring a tuple:
// let x = e, or let (a, b) = e.
type Let struct {
	Names       []Param
	Destructure bool // true for let (a, b, ...) = e
	Value       Expr
	Loc         diag.Span
}

// Assign writes to an existing binding, index, or field.
// Target validity is checked by the compiler.
type Assign struct {
	Target Expr
	Value  Expr
	Loc    diag.Span
}

// ExprStmt evaluates an expression and discards the result.
type ExprStmt struct {
	E   Expr
	Loc diag.Span
}

// IfBranch is one condition/body pair of an if chain.
type IfBranch struct {
	Cond Expr
	Body []Stmt
}

// If is if/elsif/else/end.
type If struct {
	Branches []IfBranch
	Else     []Stmt
	Loc      diag.Span
}

// While is while cond do body end.
type While struct {
	Cond Expr
	Body []Stmt
	Loc  diag.Span
}

// Loop is an unconditional loop body end, exited with break or return.
type Loop struct {
	Body []Stmt
	Loc  diag.Span
}

// For is for x in e do body end, iterating a list.
type For struct {
	Var      Param
	Iterable Expr
	Body     []Stmt
	Loc      diag.Span
}

// FuncDecl is def name(params) body end, binding name in scope.
type FuncDecl struct {
	Name Param
	Fn   *FuncLit
	Loc  diag.Span
}

// Return exits the enclosing function. Zero values return the empty
// tuple, multiple values return a tuple.
type Return struct {
	Values []Expr
	Loc    diag.Span
}

// Break exits the innermost loop.
type Break struct {
	Loc diag.Span
}

// Continue jumps to the next iteration of the innermost loop.
type Continue struct {
	Loc diag.Span
}

// Assert raises a runtime error when its condition is false.
type Assert struct {
	Cond Expr
	Loc  diag.Span
}

// BadStmt is a statement-level recovery placeholder.
type BadStmt struct {
	Loc diag.Span
}

func (s *Let) Span() diag.Span      { return s.Loc }
func (s *Assign) Span() diag.Span   { return s.Loc }
func (s *ExprStmt) Span() diag.Span { return s.Loc }
func (s *If) Span() diag.Span       { return s.Loc }
func (s *While) Span() diag.Span    { return s.Loc }
func (s *Loop) Span() diag.Span     { return s.Loc }
func (s *For) Span() diag.Span      { return s.Loc }
func (s *FuncDecl) Span() diag.Span { return s.Loc }
func (s *Return) Span() diag.Span   { return s.Loc }
func (s *Break) Span() diag.Span    { return s.Loc }
func (s *Continue) Span() diag.Span { return s.Loc }
func (s *Assert) Span() diag.Span   { return s.Loc }
func (s *BadStmt) Span() diag.Span  { return s.Loc }

func (*Let) stmtNode()      {}
func (*Assign) stmtNode()   {}
func (*ExprStmt) stmtNode() {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*Loop) stmtNode()     {}
func (*For) stmtNode()      {}
func (*FuncDecl) stmtNode() {}
func (*Return) stmtNode()   {}
func (*Break) stmtNode()    {}
func (*Continue) stmtNode() {}
func (*Assert) stmtNode()   {}
func (*BadStmt) stmtNode()  {}

// Module is the parse result for one source file.
type Module struct {
	Stmts []Stmt
}
