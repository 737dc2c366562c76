package lexer

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chazu/skiff/pkg/diag"
)

// Lexer scans one source file into a token slice. The scan runs eagerly
// at construction; the token slice can be walked from the start any
// number of times. Errors are collected as diagnostics and the scan
// continues past them so one pass reports every problem.
type Lexer struct {
	src   *diag.Source
	pos   int
	toks  []Token
	diags []diag.Diagnostic
}

// New scans the source and returns the finished lexer.
func New(src *diag.Source) *Lexer {
	l := &Lexer{src: src}
	l.scan()
	return l
}

// Tokens returns the scanned tokens in source order.
func (l *Lexer) Tokens() []Token { return l.toks }

// Diagnostics returns every lexical error found during the scan.
func (l *Lexer) Diagnostics() []diag.Diagnostic { return l.diags }

// HasErrors reports whether the scan produced any error diagnostics.
func (l *Lexer) HasErrors() bool { return diag.HasErrors(l.diags) }

func (l *Lexer) errorf(code string, span diag.Span, format string, args ...interface{}) {
	l.diags = append(l.diags, diag.Errorf(code, span, format, args...))
}

// peek returns the byte at the cursor, or 0 at end of input.
func (l *Lexer) peek() byte {
	if l.pos >= len(l.src.Content) {
		return 0
	}
	return l.src.Content[l.pos]
}

// peek2 returns the two bytes at the cursor.
func (l *Lexer) peek2() (byte, byte) {
	var b1, b2 byte
	if l.pos < len(l.src.Content) {
		b1 = l.src.Content[l.pos]
	}
	if l.pos+1 < len(l.src.Content) {
		b2 = l.src.Content[l.pos+1]
	}
	return b1, b2
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.src.Content) }

func (l *Lexer) emit(kind Kind, start int) {
	l.toks = append(l.toks, Token{Kind: kind, Span: diag.NewSpan(start, l.pos)})
}

// isSymbol reports whether b is an ASCII punctuation byte, the class
// that terminates identifiers and numeric literals.
func isSymbol(b byte) bool {
	switch {
	case b >= '!' && b <= '/':
		return true
	case b >= ':' && b <= '@':
		return true
	case b >= '[' && b <= '`':
		return b != '_'
	case b >= '{' && b <= '~':
		return true
	}
	return false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// scan consumes the whole file.
func (l *Lexer) scan() {
	// Skip a leading shebang line.
	if b1, b2 := l.peek2(); b1 == '#' && b2 == '!' {
		for !l.atEnd() && l.peek() != '\n' {
			l.pos++
		}
	}

	for !l.atEnd() {
		b1, b2 := l.peek2()
		switch {
		case b1 == '-' && b2 == '-':
			// Comment to end of line.
			for !l.atEnd() && l.peek() != '\n' {
				l.pos++
			}
		case isSpace(b1):
			l.pos++
		case b1 >= '0' && b1 <= '9':
			l.scanNumber()
		case b1 == '"' || b1 == '\'':
			l.scanString()
		case isSymbol(b1):
			l.scanOperator()
		default:
			l.scanIdentOrKeyword()
		}
	}
}

// scanNumber consumes an integer or float literal. Digit separators
// ('_') are allowed anywhere after the first digit; 0x/0o/0b select the
// base for integers. The scan is greedy through any trailing
// identifier-like characters so that malformed literals such as "123y"
// become a single error token rather than two valid ones.
func (l *Lexer) scanNumber() {
	start := l.pos
	var raw strings.Builder
	isFloat := false
	eFlag := false

	for !l.atEnd() {
		b1, b2 := l.peek2()
		if b1 == '.' && b2 == '.' {
			break // range operator
		}
		if isSpace(b1) {
			break
		}
		if isSymbol(b1) && b1 != '.' {
			if (b1 == '+' || b1 == '-') && eFlag {
				raw.WriteByte(b1)
				l.pos++
				eFlag = false
				continue
			}
			break
		}
		switch {
		case b1 == '_':
			// separator, dropped
		case b1 == '.':
			raw.WriteByte(b1)
			isFloat = true
		default:
			raw.WriteByte(b1)
		}
		if b1 == 'e' || b1 == 'E' {
			// Exponent marker, unless this is a based literal (0x1E).
			text := raw.String()
			if !strings.HasPrefix(text, "0x") && !strings.HasPrefix(text, "0X") {
				eFlag = true
				isFloat = true
			}
		} else {
			eFlag = false
		}
		l.pos++
	}

	span := diag.NewSpan(start, l.pos)
	text := raw.String()

	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			l.errorf(diag.CodeInvalidNumber, span, "invalid float literal %q", text)
			return
		}
		l.toks = append(l.toks, Token{Kind: TokenFloat, Span: span, Float: f})
		return
	}

	base := 10
	digits := text
	if len(text) >= 2 && text[0] == '0' {
		switch text[1] {
		case 'x', 'X':
			base, digits = 16, text[2:]
		case 'o', 'O':
			base, digits = 8, text[2:]
		case 'b', 'B':
			base, digits = 2, text[2:]
		}
	}
	i, err := strconv.ParseInt(digits, base, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			l.errorf(diag.CodeInvalidNumber, span, "integer literal %q overflows 64 bits", text)
		} else {
			l.errorf(diag.CodeInvalidNumber, span, "invalid integer literal %q", text)
		}
		return
	}
	l.toks = append(l.toks, Token{Kind: TokenInt, Span: span, Int: i})
}

// scanString consumes a quoted string, decoding escape sequences.
// On a bad escape the scan keeps going to the closing quote so the
// error is reported once with the span of the whole literal.
func (l *Lexer) scanString() {
	start := l.pos
	quote := l.peek()
	l.pos++

	var out strings.Builder
	invalid := false

	for {
		if l.atEnd() {
			l.errorf(diag.CodeInvalidString, diag.NewSpan(start, l.pos), "string is not terminated")
			return
		}
		b := l.src.Content[l.pos]
		l.pos++
		switch {
		case b == quote:
			span := diag.NewSpan(start, l.pos)
			if invalid {
				l.errorf(diag.CodeInvalidString, span, "string contains an invalid escape sequence")
				return
			}
			l.toks = append(l.toks, Token{Kind: TokenString, Span: span, Text: out.String()})
			return
		case b == '\\':
			r, ok := l.scanEscape()
			if !ok {
				invalid = true
			} else {
				out.WriteRune(r)
			}
		default:
			out.WriteByte(b)
		}
	}
}

// scanEscape decodes one escape sequence after a backslash.
func (l *Lexer) scanEscape() (rune, bool) {
	if l.atEnd() {
		return 0, false
	}
	b := l.src.Content[l.pos]
	l.pos++
	switch b {
	case '\\':
		return '\\', true
	case 't':
		return '\t', true
	case 'n':
		return '\n', true
	case 'r':
		return '\r', true
	case '"':
		return '"', true
	case '\'':
		return '\'', true
	case 'x':
		return l.scanHexEscape(2)
	case 'u':
		return l.scanHexEscape(4)
	case 'U':
		return l.scanHexEscape(8)
	default:
		return 0, false
	}
}

// scanHexEscape reads exactly count hex digits and returns the rune.
func (l *Lexer) scanHexEscape(count int) (rune, bool) {
	var x uint32
	for i := 0; i < count; i++ {
		if l.atEnd() {
			return 0, false
		}
		b := l.src.Content[l.pos]
		var digit uint32
		switch {
		case b >= '0' && b <= '9':
			digit = uint32(b - '0')
		case b >= 'a' && b <= 'f':
			digit = uint32(b-'a') + 10
		case b >= 'A' && b <= 'F':
			digit = uint32(b-'A') + 10
		default:
			return 0, false
		}
		x = x*16 + digit
		l.pos++
	}
	if !utf8.ValidRune(rune(x)) {
		return 0, false
	}
	return rune(x), true
}

// scanOperator consumes an operator or punctuation token. Two-byte
// operators are matched before their one-byte prefixes.
func (l *Lexer) scanOperator() {
	start := l.pos
	b1, b2 := l.peek2()

	two := map[[2]byte]Kind{
		{'/', '/'}: TokenSlashSlash,
		{'*', '*'}: TokenStarStar,
		{'.', '.'}: TokenDotDot,
		{'>', '='}: TokenGe,
		{'<', '='}: TokenLe,
		{'=', '='}: TokenEq,
		{'<', '>'}: TokenNe,
	}
	if kind, ok := two[[2]byte{b1, b2}]; ok {
		l.pos += 2
		l.emit(kind, start)
		return
	}

	one := map[byte]Kind{
		'+': TokenPlus,
		'-': TokenMinus,
		'*': TokenStar,
		'/': TokenSlash,
		'%': TokenPercent,
		'=': TokenAssign,
		',': TokenComma,
		'.': TokenDot,
		':': TokenColon,
		'<': TokenLt,
		'>': TokenGt,
		'(': TokenLParen,
		')': TokenRParen,
		'[': TokenLBracket,
		']': TokenRBracket,
		'{': TokenLBrace,
		'}': TokenRBrace,
	}
	if kind, ok := one[b1]; ok {
		l.pos++
		l.emit(kind, start)
		return
	}

	l.pos++
	l.errorf(diag.CodeInvalidChar, diag.NewSpan(start, l.pos), "unknown symbol %q", string(b1))
}

// scanIdentOrKeyword consumes an identifier or keyword. Any rune that
// is not whitespace, ASCII punctuation, or a leading digit starts an
// identifier, so non-ASCII names are accepted.
func (l *Lexer) scanIdentOrKeyword() {
	start := l.pos
	for !l.atEnd() {
		b := l.peek()
		if isSpace(b) || isSymbol(b) {
			break
		}
		if b < utf8.RuneSelf {
			l.pos++
			continue
		}
		r, size := utf8.DecodeRuneInString(l.src.Content[l.pos:])
		if r == utf8.RuneError && size == 1 {
			// Invalid UTF-8 terminates the identifier; a lone bad byte
			// must still be consumed or the scan would not advance.
			if l.pos == start {
				l.pos++
				l.errorf(diag.CodeInvalidChar, diag.NewSpan(start, l.pos),
					"invalid UTF-8 byte 0x%02X", l.src.Content[start])
				return
			}
			break
		}
		if unicode.IsSpace(r) {
			break
		}
		l.pos += size
	}
	name := l.src.Content[start:l.pos]
	span := diag.NewSpan(start, l.pos)
	if kind, ok := keywords[name]; ok {
		l.toks = append(l.toks, Token{Kind: kind, Span: span})
		return
	}
	l.toks = append(l.toks, Token{Kind: TokenIdent, Span: span, Text: name})
}
