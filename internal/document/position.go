package document

import "strings"

// HostPosition is a position in one host editor region. Columns count
// Unicode code points, the native index of the host editor layer.
type HostPosition struct {
	Line   int
	Column int
}

// VirtualPosition is a position in a composed virtual document.
// Character counts UTF-16 code units, as the LSP specification
// requires; an astral-plane character occupies two units.
type VirtualPosition struct {
	Line      int
	Character int
}

// SplitLines splits text into lines on '\n', normalizing '\r\n'.
// Empty text is a single empty line.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// LineIndex provides per-line lookup over a composed text.
type LineIndex struct {
	lines []string
}

// NewLineIndex builds an index for text.
func NewLineIndex(text string) *LineIndex {
	return &LineIndex{lines: SplitLines(text)}
}

// LineCount returns the number of lines.
func (ix *LineIndex) LineCount() int {
	return len(ix.lines)
}

// Line returns the content of line n without its newline, or the empty
// string when n is out of range.
func (ix *LineIndex) Line(n int) string {
	if n < 0 || n >= len(ix.lines) {
		return ""
	}
	return ix.lines[n]
}

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// RuneToUTF16Column converts a code-point column within line to a
// UTF-16 column. Columns beyond the end of the line clamp to its
// UTF-16 length.
func RuneToUTF16Column(line string, runeCol int) int {
	if runeCol <= 0 {
		return 0
	}

	runes := 0
	col := 0
	for _, r := range line {
		if runes >= runeCol {
			return col
		}
		if r >= 0x10000 {
			col += 2
		} else {
			col++
		}
		runes++
	}
	return col
}

// UTF16ToRuneColumn converts a UTF-16 column within line to a
// code-point column. A column landing inside a surrogate pair resolves
// to the code point containing it.
func UTF16ToRuneColumn(line string, utf16Col int) int {
	if utf16Col <= 0 {
		return 0
	}

	units := 0
	runes := 0
	for _, r := range line {
		if units >= utf16Col {
			return runes
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		if units > utf16Col {
			// Landed between the surrogate halves of r.
			return runes
		}
		runes++
	}
	return runes
}
