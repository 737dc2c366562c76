// Package parser turns tokens into an abstract syntax tree. Statements
// use recursive descent; expressions use Pratt-style binding powers. On
// a syntax error the parser records a diagnostic, skips to the next
// statement boundary, and keeps going, so one pass reports as many
// errors as possible. A parse with any error never reaches compilation.
package parser

import (
	"github.com/chazu/skiff/pkg/ast"
	"github.com/chazu/skiff/pkg/diag"
	"github.com/chazu/skiff/pkg/lexer"
)

// infixBinding returns the (left, right) binding powers for an infix
// operator token. right = left + 1 gives left associativity and
// right = left - 1 gives right associativity.
func infixBinding(kind lexer.Kind) (int, int, ast.BinaryOp, bool) {
	switch kind {
	case lexer.TokenOr:
		return 1, 2, ast.OpOr, true
	case lexer.TokenAnd:
		return 3, 4, ast.OpAnd, true
	case lexer.TokenEq:
		return 5, 6, ast.OpEq, true
	case lexer.TokenNe:
		return 5, 6, ast.OpNe, true
	case lexer.TokenLt:
		return 5, 6, ast.OpLt, true
	case lexer.TokenLe:
		return 5, 6, ast.OpLe, true
	case lexer.TokenGt:
		return 5, 6, ast.OpGt, true
	case lexer.TokenGe:
		return 5, 6, ast.OpGe, true
	case lexer.TokenDotDot:
		return 7, 8, ast.OpRange, true
	case lexer.TokenPlus:
		return 9, 10, ast.OpAdd, true
	case lexer.TokenMinus:
		return 9, 10, ast.OpSub, true
	case lexer.TokenStar:
		return 11, 12, ast.OpMul, true
	case lexer.TokenSlash:
		return 11, 12, ast.OpDiv, true
	case lexer.TokenSlashSlash:
		return 11, 12, ast.OpFloorDiv, true
	case lexer.TokenPercent:
		return 11, 12, ast.OpMod, true
	case lexer.TokenStarStar:
		return 14, 13, ast.OpPow, true // right-associative
	}
	return 0, 0, 0, false
}

// prefixBinding is the binding power of unary - and not. It sits above
// every infix operator and below the postfix forms.
const prefixBinding = 15

// Parser holds the token cursor and collected diagnostics.
type Parser struct {
	src   *diag.Source
	toks  []lexer.Token
	pos   int
	diags []diag.Diagnostic
}

// Parse lexes and parses one source file. The returned diagnostics
// include lexical errors; if any diagnostic is an error the module must
// not be compiled.
func Parse(src *diag.Source) (*ast.Module, []diag.Diagnostic) {
	lx := lexer.New(src)
	p := &Parser{src: src, toks: lx.Tokens()}

	var stmts []ast.Stmt
	for !p.atEnd() {
		stmts = append(stmts, p.parseStmt())
	}

	diags := append(lx.Diagnostics(), p.diags...)
	return &ast.Module{Stmts: stmts}, diags
}

// ---------------------------------------------------------------------------
// Cursor helpers
// ---------------------------------------------------------------------------

func (p *Parser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *Parser) peek() (lexer.Token, bool) {
	if p.atEnd() {
		return lexer.Token{}, false
	}
	return p.toks[p.pos], true
}

func (p *Parser) at(kind lexer.Kind) bool {
	tok, ok := p.peek()
	return ok && tok.Kind == kind
}

func (p *Parser) advance() lexer.Token {
	tok := p.toks[p.pos]
	p.pos++
	return tok
}

// eofSpan is the zero-length span at the end of the file.
func (p *Parser) eofSpan() diag.Span {
	n := len(p.src.Content)
	return diag.NewSpan(n, n)
}

// prevSpan is the span of the most recently consumed token.
func (p *Parser) prevSpan() diag.Span {
	if p.pos == 0 {
		return diag.NewSpan(0, 0)
	}
	return p.toks[p.pos-1].Span
}

// expect consumes a token of the given kind, or records an error and
// leaves the cursor in place.
func (p *Parser) expect(kind lexer.Kind) (lexer.Token, bool) {
	if tok, ok := p.peek(); ok {
		if tok.Kind == kind {
			p.pos++
			return tok, true
		}
		p.errorf(diag.CodeUnexpectedToken, tok.Span, "expected %s, found %s", kind, tok)
		return lexer.Token{}, false
	}
	p.errorf(diag.CodeUnexpectedEOF, p.eofSpan(), "expected %s, found end of file", kind)
	return lexer.Token{}, false
}

func (p *Parser) errorf(code string, span diag.Span, format string, args ...interface{}) {
	p.diags = append(p.diags, diag.Errorf(code, span, format, args...))
}

// sync skips tokens until the next statement boundary so parsing can
// continue after an error.
func (p *Parser) sync() {
	for !p.atEnd() {
		switch p.toks[p.pos].Kind {
		case lexer.TokenLet, lexer.TokenDef, lexer.TokenIf, lexer.TokenWhile,
			lexer.TokenLoop, lexer.TokenFor, lexer.TokenReturn, lexer.TokenBreak,
			lexer.TokenContinue, lexer.TokenAssert, lexer.TokenEnd,
			lexer.TokenElse, lexer.TokenElsif:
			return
		}
		p.pos++
	}
}

// blockEnd reports whether the current token terminates a block.
func (p *Parser) blockEnd(terminators ...lexer.Kind) bool {
	tok, ok := p.peek()
	if !ok {
		return true
	}
	for _, t := range terminators {
		if tok.Kind == t {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// parseBlock parses statements until one of the terminator tokens is
// reached. The terminator is not consumed. Hitting end of file records
// an error.
func (p *Parser) parseBlock(terminators ...lexer.Kind) []ast.Stmt {
	var stmts []ast.Stmt
	for {
		if p.atEnd() {
			p.errorf(diag.CodeUnexpectedEOF, p.eofSpan(), "unexpected end of file inside block")
			return stmts
		}
		if p.blockEnd(terminators...) {
			return stmts
		}
		stmts = append(stmts, p.parseStmt())
	}
}

func (p *Parser) parseStmt() ast.Stmt {
	tok, _ := p.peek()
	switch tok.Kind {
	case lexer.TokenLet:
		return p.parseLet()
	case lexer.TokenDef:
		// def name(...) declares; def (...) is an expression.
		if p.pos+1 < len(p.toks) && p.toks[p.pos+1].Kind == lexer.TokenIdent {
			return p.parseFuncDecl()
		}
		return p.parseExprOrAssign()
	case lexer.TokenIf:
		return p.parseIf()
	case lexer.TokenWhile:
		return p.parseWhile()
	case lexer.TokenLoop:
		return p.parseLoop()
	case lexer.TokenFor:
		return p.parseFor()
	case lexer.TokenReturn:
		return p.parseReturn()
	case lexer.TokenBreak:
		p.advance()
		return &ast.Break{Loc: tok.Span}
	case lexer.TokenContinue:
		p.advance()
		return &ast.Continue{Loc: tok.Span}
	case lexer.TokenAssert:
		p.advance()
		cond := p.parseExpr(0)
		return &ast.Assert{Cond: cond, Loc: tok.Span.Merge(cond.Span())}
	default:
		return p.parseExprOrAssign()
	}
}

// parseExprOrAssign parses an expression statement, converting it to an
// assignment when followed by '='.
func (p *Parser) parseExprOrAssign() ast.Stmt {
	start := p.pos
	e := p.parseExpr(0)
	if _, bad := e.(*ast.Bad); bad && p.pos == start {
		// No progress was made; skip ahead to avoid looping.
		p.sync()
		if p.pos == start && !p.atEnd() {
			p.pos++
		}
		return &ast.BadStmt{Loc: e.Span()}
	}
	if p.at(lexer.TokenAssign) {
		p.advance()
		value := p.parseExpr(0)
		return &ast.Assign{Target: e, Value: value, Loc: e.Span().Merge(value.Span())}
	}
	return &ast.ExprStmt{E: e, Loc: e.Span()}
}

// parseLet parses let x = e and let (a, b) = e.
func (p *Parser) parseLet() ast.Stmt {
	letTok := p.advance()
	stmt := &ast.Let{Loc: letTok.Span}

	if p.at(lexer.TokenLParen) {
		p.advance()
		stmt.Destructure = true
		for {
			name, ok := p.expect(lexer.TokenIdent)
			if !ok {
				p.sync()
				return &ast.BadStmt{Loc: letTok.Span}
			}
			stmt.Names = append(stmt.Names, ast.Param{Name: name.Text, Loc: name.Span})
			if p.at(lexer.TokenComma) {
				p.advance()
				if p.at(lexer.TokenRParen) {
					break // trailing comma
				}
				continue
			}
			break
		}
		if _, ok := p.expect(lexer.TokenRParen); !ok {
			p.sync()
			return &ast.BadStmt{Loc: letTok.Span}
		}
	} else {
		name, ok := p.expect(lexer.TokenIdent)
		if !ok {
			p.sync()
			return &ast.BadStmt{Loc: letTok.Span}
		}
		stmt.Names = append(stmt.Names, ast.Param{Name: name.Text, Loc: name.Span})
	}

	if _, ok := p.expect(lexer.TokenAssign); !ok {
		p.sync()
		return &ast.BadStmt{Loc: letTok.Span}
	}
	stmt.Value = p.parseExpr(0)
	stmt.Loc = letTok.Span.Merge(stmt.Value.Span())
	return stmt
}

// parseFuncDecl parses def name(params) body end.
func (p *Parser) parseFuncDecl() ast.Stmt {
	defTok := p.advance()
	name := p.advance() // identifier, checked by caller

	fn := p.parseFuncRest(defTok.Span)
	if fn == nil {
		return &ast.BadStmt{Loc: defTok.Span}
	}
	return &ast.FuncDecl{
		Name: ast.Param{Name: name.Text, Loc: name.Span},
		Fn:   fn,
		Loc:  defTok.Span.Merge(fn.Loc),
	}
}

// parseFuncRest parses (params) body end after def [name].
func (p *Parser) parseFuncRest(start diag.Span) *ast.FuncLit {
	if _, ok := p.expect(lexer.TokenLParen); !ok {
		p.sync()
		return nil
	}
	var params []ast.Param
	if !p.at(lexer.TokenRParen) {
		for {
			name, ok := p.expect(lexer.TokenIdent)
			if !ok {
				p.sync()
				return nil
			}
			params = append(params, ast.Param{Name: name.Text, Loc: name.Span})
			if p.at(lexer.TokenComma) {
				p.advance()
				continue
			}
			break
		}
	}
	if _, ok := p.expect(lexer.TokenRParen); !ok {
		p.sync()
		return nil
	}

	body := p.parseBlock(lexer.TokenEnd)
	endSpan := p.prevSpan()
	if _, ok := p.expect(lexer.TokenEnd); ok {
		endSpan = p.prevSpan()
	}
	return &ast.FuncLit{Params: params, Body: body, Loc: start.Merge(endSpan)}
}

// parseIf parses if c then ... elsif c then ... else ... end.
func (p *Parser) parseIf() ast.Stmt {
	ifTok := p.advance()
	stmt := &ast.If{Loc: ifTok.Span}

	for {
		cond := p.parseExpr(0)
		if _, ok := p.expect(lexer.TokenThen); !ok {
			p.sync()
		}
		body := p.parseBlock(lexer.TokenElsif, lexer.TokenElse, lexer.TokenEnd)
		stmt.Branches = append(stmt.Branches, ast.IfBranch{Cond: cond, Body: body})

		tok, ok := p.peek()
		if !ok {
			return stmt
		}
		switch tok.Kind {
		case lexer.TokenElsif:
			p.advance()
			continue
		case lexer.TokenElse:
			p.advance()
			stmt.Else = p.parseBlock(lexer.TokenEnd)
			p.expect(lexer.TokenEnd)
			stmt.Loc = ifTok.Span.Merge(p.prevSpan())
			return stmt
		case lexer.TokenEnd:
			p.advance()
			stmt.Loc = ifTok.Span.Merge(p.prevSpan())
			return stmt
		default:
			p.errorf(diag.CodeUnexpectedToken, tok.Span, "expected elsif, else, or end, found %s", tok)
			p.sync()
			return stmt
		}
	}
}

// parseWhile parses while c do body end.
func (p *Parser) parseWhile() ast.Stmt {
	whileTok := p.advance()
	cond := p.parseExpr(0)
	if _, ok := p.expect(lexer.TokenDo); !ok {
		p.sync()
	}
	body := p.parseBlock(lexer.TokenEnd)
	p.expect(lexer.TokenEnd)
	return &ast.While{Cond: cond, Body: body, Loc: whileTok.Span.Merge(p.prevSpan())}
}

// parseLoop parses loop body end.
func (p *Parser) parseLoop() ast.Stmt {
	loopTok := p.advance()
	body := p.parseBlock(lexer.TokenEnd)
	p.expect(lexer.TokenEnd)
	return &ast.Loop{Body: body, Loc: loopTok.Span.Merge(p.prevSpan())}
}

// parseFor parses for x in e do body end.
func (p *Parser) parseFor() ast.Stmt {
	forTok := p.advance()
	name, ok := p.expect(lexer.TokenIdent)
	if !ok {
		p.sync()
		return &ast.BadStmt{Loc: forTok.Span}
	}
	if _, ok := p.expect(lexer.TokenIn); !ok {
		p.sync()
		return &ast.BadStmt{Loc: forTok.Span}
	}
	iterable := p.parseExpr(0)
	if _, ok := p.expect(lexer.TokenDo); !ok {
		p.sync()
	}
	body := p.parseBlock(lexer.TokenEnd)
	p.expect(lexer.TokenEnd)
	return &ast.For{
		Var:      ast.Param{Name: name.Text, Loc: name.Span},
		Iterable: iterable,
		Body:     body,
		Loc:      forTok.Span.Merge(p.prevSpan()),
	}
}

// parseReturn parses return, return e, and return e1, e2, ....
func (p *Parser) parseReturn() ast.Stmt {
	retTok := p.advance()
	stmt := &ast.Return{Loc: retTok.Span}

	if tok, ok := p.peek(); !ok || !startsExpr(tok.Kind) {
		return stmt
	}
	for {
		stmt.Values = append(stmt.Values, p.parseExpr(0))
		if p.at(lexer.TokenComma) {
			p.advance()
			continue
		}
		break
	}
	stmt.Loc = retTok.Span.Merge(p.prevSpan())
	return stmt
}

// startsExpr reports whether a token can begin an expression.
func startsExpr(kind lexer.Kind) bool {
	switch kind {
	case lexer.TokenInt, lexer.TokenFloat, lexer.TokenString, lexer.TokenIdent,
		lexer.TokenTrue, lexer.TokenFalse, lexer.TokenLParen, lexer.TokenLBracket,
		lexer.TokenLBrace, lexer.TokenMinus, lexer.TokenNot, lexer.TokenDef:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExpr parses an expression whose operators all bind at least as
// tightly as minBP.
func (p *Parser) parseExpr(minBP int) ast.Expr {
	lhs := p.parsePrefix()

	for {
		tok, ok := p.peek()
		if !ok {
			return lhs
		}

		// Postfix forms bind tighter than every infix operator.
		switch tok.Kind {
		case lexer.TokenLParen:
			lhs = p.parseCall(lhs)
			continue
		case lexer.TokenLBracket:
			lhs = p.parseIndex(lhs)
			continue
		case lexer.TokenDot:
			lhs = p.parseMember(lhs)
			continue
		case lexer.TokenColon:
			lhs = p.parseMethodCall(lhs)
			continue
		}

		left, right, op, ok := infixBinding(tok.Kind)
		if !ok || left < minBP {
			return lhs
		}
		p.advance()
		rhs := p.parseExpr(right)
		lhs = &ast.Binary{Op: op, Left: lhs, Right: rhs, Loc: lhs.Span().Merge(rhs.Span())}
	}
}

// parsePrefix parses literals, identifiers, prefix operators, grouped
// and tuple expressions, list and table literals, and anonymous
// functions.
func (p *Parser) parsePrefix() ast.Expr {
	tok, ok := p.peek()
	if !ok {
		p.errorf(diag.CodeUnexpectedEOF, p.eofSpan(), "expected expression, found end of file")
		return &ast.Bad{Loc: p.eofSpan()}
	}

	switch tok.Kind {
	case lexer.TokenInt:
		p.advance()
		return &ast.IntLit{Value: tok.Int, Loc: tok.Span}
	case lexer.TokenFloat:
		p.advance()
		return &ast.FloatLit{Value: tok.Float, Loc: tok.Span}
	case lexer.TokenString:
		p.advance()
		return &ast.StringLit{Value: tok.Text, Loc: tok.Span}
	case lexer.TokenTrue:
		p.advance()
		return &ast.BoolLit{Value: true, Loc: tok.Span}
	case lexer.TokenFalse:
		p.advance()
		return &ast.BoolLit{Value: false, Loc: tok.Span}
	case lexer.TokenIdent:
		p.advance()
		return &ast.Ident{Name: tok.Text, Loc: tok.Span}
	case lexer.TokenMinus:
		p.advance()
		operand := p.parseExpr(prefixBinding)
		return &ast.Unary{Op: ast.OpNeg, Operand: operand, Loc: tok.Span.Merge(operand.Span())}
	case lexer.TokenNot:
		p.advance()
		operand := p.parseExpr(prefixBinding)
		return &ast.Unary{Op: ast.OpNot, Operand: operand, Loc: tok.Span.Merge(operand.Span())}
	case lexer.TokenLParen:
		return p.parseParenExpr()
	case lexer.TokenLBracket:
		return p.parseListLit()
	case lexer.TokenLBrace:
		return p.parseTableLit()
	case lexer.TokenDef:
		p.advance()
		fn := p.parseFuncRest(tok.Span)
		if fn == nil {
			return &ast.Bad{Loc: tok.Span}
		}
		return fn
	default:
		p.errorf(diag.CodeMissingExpr, tok.Span, "expected expression, found %s", tok)
		return &ast.Bad{Loc: tok.Span}
	}
}

// parseParenExpr parses (), (e), (e,), and (e1, e2, ...). A single
// expression without a trailing comma is grouping; everything else is a
// tuple literal.
func (p *Parser) parseParenExpr() ast.Expr {
	open := p.advance()

	if p.at(lexer.TokenRParen) {
		p.advance()
		return &ast.TupleLit{Loc: open.Span.Merge(p.prevSpan())}
	}

	first := p.parseExpr(0)
	if p.at(lexer.TokenRParen) {
		p.advance()
		return first // grouping
	}

	elems := []ast.Expr{first}
	for p.at(lexer.TokenComma) {
		p.advance()
		if p.at(lexer.TokenRParen) {
			break // trailing comma
		}
		elems = append(elems, p.parseExpr(0))
	}
	p.expect(lexer.TokenRParen)
	return &ast.TupleLit{Elems: elems, Loc: open.Span.Merge(p.prevSpan())}
}

// parseListLit parses [e1, e2, ...].
func (p *Parser) parseListLit() ast.Expr {
	open := p.advance()
	lit := &ast.ListLit{}
	if !p.at(lexer.TokenRBracket) {
		for {
			lit.Elems = append(lit.Elems, p.parseExpr(0))
			if p.at(lexer.TokenComma) {
				p.advance()
				if p.at(lexer.TokenRBracket) {
					break
				}
				continue
			}
			break
		}
	}
	p.expect(lexer.TokenRBracket)
	lit.Loc = open.Span.Merge(p.prevSpan())
	return lit
}

// parseTableLit parses { key = value, ... }. Keys must be identifiers;
// tables are string-keyed by construction.
func (p *Parser) parseTableLit() ast.Expr {
	open := p.advance()
	lit := &ast.TableLit{}
	if !p.at(lexer.TokenRBrace) {
		for {
			tok, ok := p.peek()
			if !ok {
				p.errorf(diag.CodeUnexpectedEOF, p.eofSpan(), "unexpected end of file in table literal")
				break
			}
			if tok.Kind != lexer.TokenIdent {
				p.diags = append(p.diags, diag.Errorf(
					diag.CodeNonStringKey, tok.Span,
					"table keys must be identifiers, found %s", tok,
				).WithHelp("tables are string-keyed; write { name = value }"))
				p.sync()
				break
			}
			p.advance()
			if _, ok := p.expect(lexer.TokenAssign); !ok {
				p.sync()
				break
			}
			value := p.parseExpr(0)
			lit.Fields = append(lit.Fields, ast.TableField{Name: tok.Text, NameSpan: tok.Span, Value: value})
			if p.at(lexer.TokenComma) {
				p.advance()
				if p.at(lexer.TokenRBrace) {
					break
				}
				continue
			}
			break
		}
	}
	p.expect(lexer.TokenRBrace)
	lit.Loc = open.Span.Merge(p.prevSpan())
	return lit
}

// parseCall parses f(args) after the callee.
func (p *Parser) parseCall(callee ast.Expr) ast.Expr {
	p.advance() // (
	args := p.parseArgs()
	return &ast.Call{Callee: callee, Args: args, Loc: callee.Span().Merge(p.prevSpan())}
}

// parseArgs parses a comma-separated argument list up to ')'. The
// opening parenthesis has already been consumed.
func (p *Parser) parseArgs() []ast.Expr {
	var args []ast.Expr
	if !p.at(lexer.TokenRParen) {
		for {
			args = append(args, p.parseExpr(0))
			if p.at(lexer.TokenComma) {
				p.advance()
				continue
			}
			break
		}
	}
	p.expect(lexer.TokenRParen)
	return args
}

// parseIndex parses e[key] after the target.
func (p *Parser) parseIndex(target ast.Expr) ast.Expr {
	p.advance() // [
	key := p.parseExpr(0)
	p.expect(lexer.TokenRBracket)
	return &ast.Index{Target: target, Key: key, Loc: target.Span().Merge(p.prevSpan())}
}

// parseMember parses e.name after the target.
func (p *Parser) parseMember(target ast.Expr) ast.Expr {
	p.advance() // .
	name, ok := p.expect(lexer.TokenIdent)
	if !ok {
		return &ast.Bad{Loc: target.Span()}
	}
	return &ast.Member{
		Target:    target,
		Field:     name.Text,
		FieldSpan: name.Span,
		Loc:       target.Span().Merge(name.Span),
	}
}

// parseMethodCall parses e:name(args) after the receiver.
func (p *Parser) parseMethodCall(recv ast.Expr) ast.Expr {
	p.advance() // :
	name, ok := p.expect(lexer.TokenIdent)
	if !ok {
		return &ast.Bad{Loc: recv.Span()}
	}
	if _, ok := p.expect(lexer.TokenLParen); !ok {
		return &ast.Bad{Loc: recv.Span().Merge(name.Span)}
	}
	args := p.parseArgs()
	return &ast.MethodCall{
		Receiver:   recv,
		Method:     name.Text,
		MethodSpan: name.Span,
		Args:       args,
		Loc:        recv.Span().Merge(p.prevSpan()),
	}
}
