package extract

import (
	"regexp"
	"strings"
)

// cellMagicLanguages maps interpreter cell magic names to the language
// of the cell body. A cell magic not listed here still removes the
// cell from the host language's view; it just feeds no server.
var cellMagicLanguages = map[string]string{
	"bash":       "shellscript",
	"sh":         "shellscript",
	"script":     "shellscript",
	"html":       "html",
	"js":         "javascript",
	"javascript": "javascript",
	"latex":      "latex",
	"markdown":   "markdown",
	"perl":       "perl",
	"python":     "python",
	"python3":    "python",
	"ruby":       "ruby",
	"sql":        "sql",
}

var (
	cellMagicRe = regexp.MustCompile(`^%%([a-zA-Z_][a-zA-Z0-9_.]*)`)
	lineMagicRe = regexp.MustCompile(`^\s*%[a-zA-Z_]`)
	shellLineRe = regexp.MustCompile(`^(\s*)!(.*)$`)
)

// MagicExtractor lifts interpreter magics out of code regions.
//
// A cell magic on the first line claims the whole region: the body
// becomes a standalone foreign document when the magic names a known
// language, and is masked outright when it does not. Line magics are
// masked; shell escape lines are merged into a shellscript document.
type MagicExtractor struct{}

// NewMagicExtractor returns the interpreter magic extractor.
func NewMagicExtractor() *MagicExtractor {
	return &MagicExtractor{}
}

// HasForeignCode reports whether the text carries any magic.
func (x *MagicExtractor) HasForeignCode(text string) bool {
	if cellMagicRe.MatchString(text) {
		return true
	}
	for _, line := range splitLines(text) {
		if lineMagicRe.MatchString(line) || shellLineRe.MatchString(line) {
			return true
		}
	}
	return false
}

// ExtractForeignCode returns the magic extractions in source order.
func (x *MagicExtractor) ExtractForeignCode(text string) ([]Extraction, error) {
	lines := splitLines(text)

	if m := cellMagicRe.FindStringSubmatch(lines[0]); m != nil {
		return x.extractCellMagic(lines, m[1]), nil
	}

	var out []Extraction
	for i, line := range lines {
		if m := shellLineRe.FindStringSubmatch(line); m != nil {
			out = append(out, Extraction{
				Language:  "shellscript",
				StartLine: i,
				EndLine:   i + 1,
				Text:      m[1] + m[2],
			})
			continue
		}
		if lineMagicRe.MatchString(line) {
			out = append(out, Extraction{StartLine: i, EndLine: i + 1})
		}
	}
	return out, nil
}

func (x *MagicExtractor) extractCellMagic(lines []string, magic string) []Extraction {
	language, known := cellMagicLanguages[magic]
	if !known {
		// Unknown cell magic: the region is not host-language code,
		// hide it all.
		return []Extraction{{StartLine: 0, EndLine: len(lines)}}
	}

	out := []Extraction{{StartLine: 0, EndLine: 1}}
	if len(lines) > 1 {
		out = append(out, Extraction{
			Language:   language,
			Standalone: true,
			StartLine:  1,
			EndLine:    len(lines),
			Text:       strings.Join(lines[1:], "\n"),
		})
	}
	return out
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
