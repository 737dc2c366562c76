// Package lexer converts skiff source text into tokens carrying byte
// spans. Invalid input produces diagnostics without stopping the scan,
// so one pass surfaces every lexical error in the file.
package lexer

import (
	"fmt"

	"github.com/chazu/skiff/pkg/diag"
)

// Kind identifies a token class.
type Kind int

const (
	// Literals and identifiers
	TokenInt Kind = iota
	TokenFloat
	TokenString
	TokenIdent

	// Keywords
	TokenLet
	TokenDef
	TokenIf
	TokenThen
	TokenElsif
	TokenElse
	TokenEnd
	TokenWhile
	TokenDo
	TokenLoop
	TokenFor
	TokenIn
	TokenBreak
	TokenContinue
	TokenReturn
	TokenAssert
	TokenTrue
	TokenFalse
	TokenAnd
	TokenOr
	TokenNot

	// Operators and punctuation
	TokenPlus       // +
	TokenMinus      // -
	TokenStar       // *
	TokenStarStar   // **
	TokenSlash      // /
	TokenSlashSlash // //
	TokenPercent    // %
	TokenDotDot     // ..
	TokenAssign     // =
	TokenEq         // ==
	TokenNe         // <>
	TokenLt         // <
	TokenLe         // <=
	TokenGt         // >
	TokenGe         // >=
	TokenComma      // ,
	TokenDot        // .
	TokenColon      // :
	TokenLParen     // (
	TokenRParen     // )
	TokenLBracket   // [
	TokenRBracket   // ]
	TokenLBrace     // {
	TokenRBrace     // }
)

var kindNames = map[Kind]string{
	TokenInt:        "integer",
	TokenFloat:      "float",
	TokenString:     "string",
	TokenIdent:      "identifier",
	TokenLet:        "let",
	TokenDef:        "def",
	TokenIf:         "if",
	TokenThen:       "then",
	TokenElsif:      "elsif",
	TokenElse:       "else",
	TokenEnd:        "end",
	TokenWhile:      "while",
	TokenDo:         "do",
	TokenLoop:       "loop",
	TokenFor:        "for",
	TokenIn:         "in",
	TokenBreak:      "break",
	TokenContinue:   "continue",
	TokenReturn:     "return",
	TokenAssert:     "assert",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenAnd:        "and",
	TokenOr:         "or",
	TokenNot:        "not",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenStarStar:   "**",
	TokenSlash:      "/",
	TokenSlashSlash: "//",
	TokenPercent:    "%",
	TokenDotDot:     "..",
	TokenAssign:     "=",
	TokenEq:         "==",
	TokenNe:         "<>",
	TokenLt:         "<",
	TokenLe:         "<=",
	TokenGt:         ">",
	TokenGe:         ">=",
	TokenComma:      ",",
	TokenDot:        ".",
	TokenColon:      ":",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenLBrace:     "{",
	TokenRBrace:     "}",
}

// String returns the display name used in diagnostics.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var keywords = map[string]Kind{
	"let":      TokenLet,
	"def":      TokenDef,
	"if":       TokenIf,
	"then":     TokenThen,
	"elsif":    TokenElsif,
	"else":     TokenElse,
	"end":      TokenEnd,
	"while":    TokenWhile,
	"do":       TokenDo,
	"loop":     TokenLoop,
	"for":      TokenFor,
	"in":       TokenIn,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"return":   TokenReturn,
	"assert":   TokenAssert,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"and":      TokenAnd,
	"or":       TokenOr,
	"not":      TokenNot,
}

// Token is one lexical unit. The payload fields are valid according to
// Kind: Int for TokenInt, Float for TokenFloat, Text for TokenString
// (decoded value) and TokenIdent (name).
type Token struct {
	Kind  Kind
	Span  diag.Span
	Text  string
	Int   int64
	Float float64
}

// String renders a token for debugging and parser error messages.
func (t Token) String() string {
	switch t.Kind {
	case TokenInt:
		return fmt.Sprintf("%d", t.Int)
	case TokenFloat:
		return fmt.Sprintf("%g", t.Float)
	case TokenString:
		return fmt.Sprintf("%q", t.Text)
	case TokenIdent:
		return t.Text
	default:
		return t.Kind.String()
	}
}
