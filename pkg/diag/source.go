package diag

import "strings"

// Source holds one file's name and content plus a lazily built index of
// line-break positions used to map byte offsets to line/column pairs.
type Source struct {
	Name    string
	Content string

	// lineStarts[i] is the byte offset of the first byte of line i+1.
	// Built once on first use.
	lineStarts []int
}

// NewSource creates a Source for the given file name and content.
func NewSource(name, content string) *Source {
	return &Source{Name: name, Content: content}
}

// buildIndex scans the content once, recording the start of every line.
func (s *Source) buildIndex() {
	if s.lineStarts != nil {
		return
	}
	starts := []int{0}
	for i := 0; i < len(s.Content); i++ {
		if s.Content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	s.lineStarts = starts
}

// Position maps a byte offset to a 1-based line and column.
// Columns count bytes, matching the caret alignment in rendered output.
// Offsets past the end of the content map to the final position.
func (s *Source) Position(offset int) (line, col int) {
	s.buildIndex()
	if offset < 0 {
		offset = 0
	}
	if offset > len(s.Content) {
		offset = len(s.Content)
	}
	// Binary search for the last line start <= offset.
	lo, hi := 0, len(s.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, offset - s.lineStarts[lo] + 1
}

// LineCount returns the number of lines in the source.
func (s *Source) LineCount() int {
	s.buildIndex()
	return len(s.lineStarts)
}

// Line returns the text of the 1-based line n without its trailing
// newline. Out-of-range lines return the empty string.
func (s *Source) Line(n int) string {
	s.buildIndex()
	if n < 1 || n > len(s.lineStarts) {
		return ""
	}
	start := s.lineStarts[n-1]
	end := len(s.Content)
	if n < len(s.lineStarts) {
		end = s.lineStarts[n] - 1
	}
	return strings.TrimSuffix(s.Content[start:end], "\r")
}
