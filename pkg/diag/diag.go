// Package diag implements structured diagnostics for every stage of the
// skiff pipeline: spans, severity, secondary labels, and a deterministic
// textual renderer with source snippets and caret underlines.
package diag

import "fmt"

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// String returns the rendered severity keyword.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Span is a half-open byte range [Start, End) into a source file.
type Span struct {
	Start int
	End   int
}

// NewSpan creates a span, normalizing inverted ranges.
func NewSpan(start, end int) Span {
	if end < start {
		start, end = end, start
	}
	return Span{Start: start, End: end}
}

// Merge returns the smallest span covering both s and other.
func (s Span) Merge(other Span) Span {
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// Len returns the byte length of the span.
func (s Span) Len() int { return s.End - s.Start }

// Label attaches a message to a secondary span.
type Label struct {
	Span    Span
	Message string
}

// Error code ranges, one block per pipeline stage.
// Lexer: E0xxx, Parser: E1xxx, Compiler: E2xxx, Runtime: E3xxx.
const (
	CodeInvalidNumber    = "E0001"
	CodeInvalidString    = "E0002"
	CodeInvalidChar      = "E0003"
	CodeUnexpectedToken  = "E1001"
	CodeUnexpectedEOF    = "E1002"
	CodeMissingExpr      = "E1003"
	CodeNonStringKey     = "E1004"
	CodeUndefinedVar     = "E2001"
	CodeDuplicateParam   = "E2002"
	CodeInvalidAssign    = "E2003"
	CodeTooManyConstants = "E2004"
	CodeJumpTooFar       = "E2005"
	CodeLoopControl      = "E2006"
	CodeRuntime          = "E3001"
)

// Diagnostic is a structured, renderable error or warning report.
type Diagnostic struct {
	Severity  Severity
	Code      string // Optional stage-scoped error code (e.g. "E1001")
	Message   string
	Primary   Span
	Secondary []Label
	Help      string // Optional remediation text
}

// Errorf builds an error diagnostic with a formatted message.
func Errorf(code string, span Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Primary:  span,
	}
}

// Warningf builds a warning diagnostic with a formatted message.
func Warningf(code string, span Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{
		Severity: SeverityWarning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Primary:  span,
	}
}

// WithHelp returns a copy of d carrying remediation text.
func (d Diagnostic) WithHelp(help string) Diagnostic {
	d.Help = help
	return d
}

// WithLabel returns a copy of d with an extra secondary label.
func (d Diagnostic) WithLabel(span Span, message string) Diagnostic {
	d.Secondary = append(append([]Label{}, d.Secondary...), Label{Span: span, Message: message})
	return d
}

// HasErrors reports whether any diagnostic in ds is an error.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
