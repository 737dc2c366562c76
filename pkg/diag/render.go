package diag

import (
	"fmt"
	"strconv"
	"strings"
)

// Renderer turns diagnostics into the fixed textual report layout.
// The output is deterministic: identical input renders byte-identical
// text on every run.
type Renderer struct {
	src *Source
}

// NewRenderer creates a renderer over one source file.
func NewRenderer(src *Source) *Renderer {
	return &Renderer{src: src}
}

// Render produces the full report for a single diagnostic:
//
//	error[E3001]: index out of range: 5 (length 3)
//	  --> script.sk:1:24
//	   |
//	 1 | let t = [1,2,3] return t[5]
//	   |                        ^^^^
//	   = help: list indices run from 0 to length-1
//
// The result always ends with a newline.
func (r *Renderer) Render(d Diagnostic) string {
	var b strings.Builder

	// Header
	b.WriteString(d.Severity.String())
	if d.Code != "" {
		b.WriteString("[")
		b.WriteString(d.Code)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	b.WriteString("\n")

	line, col := r.src.Position(d.Primary.Start)
	gutter := r.gutterWidth(d)

	// Location arrow
	b.WriteString(strings.Repeat(" ", gutter))
	b.WriteString("--> ")
	b.WriteString(fmt.Sprintf("%s:%d:%d\n", r.src.Name, line, col))

	// Primary snippet
	r.writeSnippet(&b, gutter, d.Primary, '^', "")

	// Secondary labels
	for _, label := range d.Secondary {
		r.writeSnippet(&b, gutter, label.Span, '-', label.Message)
	}

	// Remediation
	if d.Help != "" {
		b.WriteString(strings.Repeat(" ", gutter))
		b.WriteString(" = help: ")
		b.WriteString(d.Help)
		b.WriteString("\n")
	}

	return b.String()
}

// RenderAll renders every diagnostic, separated by blank lines.
func (r *Renderer) RenderAll(ds []Diagnostic) string {
	parts := make([]string, 0, len(ds))
	for _, d := range ds {
		parts = append(parts, r.Render(d))
	}
	return strings.Join(parts, "\n")
}

// Summary returns the one-line count summary printed by drivers.
func Summary(ds []Diagnostic) string {
	errors, warnings := 0, 0
	for _, d := range ds {
		if d.Severity == SeverityError {
			errors++
		} else {
			warnings++
		}
	}
	return fmt.Sprintf("%d errors and %d warnings generated", errors, warnings)
}

// gutterWidth computes the line-number column width for a diagnostic,
// covering the primary span and every secondary label.
func (r *Renderer) gutterWidth(d Diagnostic) int {
	max, _ := r.src.Position(d.Primary.Start)
	for _, label := range d.Secondary {
		if l, _ := r.src.Position(label.Span.Start); l > max {
			max = l
		}
	}
	return len(strconv.Itoa(max)) + 1
}

// writeSnippet emits one source line with an underline beneath the span.
// Spans crossing multiple lines underline the first line only and note
// how many lines they cover.
func (r *Renderer) writeSnippet(b *strings.Builder, gutter int, span Span, mark byte, message string) {
	startLine, startCol := r.src.Position(span.Start)
	endLine, endCol := r.src.Position(span.End)
	text := r.src.Line(startLine)

	// Blank gutter line
	b.WriteString(strings.Repeat(" ", gutter))
	b.WriteString(" |\n")

	// Numbered source line
	b.WriteString(fmt.Sprintf("%*d | %s\n", gutter, startLine, text))

	// Underline
	width := endCol - startCol
	if endLine > startLine {
		width = len(text) - startCol + 1
	}
	if width < 1 {
		width = 1
	}
	b.WriteString(strings.Repeat(" ", gutter))
	b.WriteString(" | ")
	b.WriteString(strings.Repeat(" ", startCol-1))
	b.WriteString(strings.Repeat(string(mark), width))
	if endLine > startLine {
		b.WriteString(fmt.Sprintf(" (spans %d lines)", endLine-startLine+1))
	}
	if message != "" {
		b.WriteString(" ")
		b.WriteString(message)
	}
	b.WriteString("\n")
}
