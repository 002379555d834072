package extract

import "strings"

// fenceLanguages normalizes fence info strings to language
// identifiers. Info strings not listed pass through lowercased.
var fenceLanguages = map[string]string{
	"js":   "javascript",
	"py":   "python",
	"rb":   "ruby",
	"sh":   "shellscript",
	"bash": "shellscript",
	"ts":   "typescript",
}

// FenceExtractor lifts fenced code blocks out of markdown text. Each
// fenced block with an info string becomes a standalone foreign
// document; the fence delimiter lines are masked. Fences without an
// info string are left alone.
type FenceExtractor struct{}

// NewFenceExtractor returns the fenced code block extractor.
func NewFenceExtractor() *FenceExtractor {
	return &FenceExtractor{}
}

// HasForeignCode reports whether the text opens any annotated fence.
func (x *FenceExtractor) HasForeignCode(text string) bool {
	for _, line := range splitLines(text) {
		if _, _, ok := parseFenceOpen(line); ok {
			return true
		}
	}
	return false
}

// ExtractForeignCode returns one extraction per annotated fenced
// block, in source order. An unclosed fence runs to the end of the
// text.
func (x *FenceExtractor) ExtractForeignCode(text string) ([]Extraction, error) {
	lines := splitLines(text)

	var out []Extraction
	for i := 0; i < len(lines); i++ {
		marker, language, ok := parseFenceOpen(lines[i])
		if !ok {
			continue
		}

		close := len(lines)
		for j := i + 1; j < len(lines); j++ {
			if isFenceClose(lines[j], marker) {
				close = j
				break
			}
		}

		out = append(out, Extraction{StartLine: i, EndLine: i + 1})
		if close > i+1 {
			out = append(out, Extraction{
				Language:   language,
				Standalone: true,
				StartLine:  i + 1,
				EndLine:    close,
				Text:       strings.Join(lines[i+1:close], "\n"),
			})
		}
		if close < len(lines) {
			out = append(out, Extraction{StartLine: close, EndLine: close + 1})
		}
		i = close
	}
	return out, nil
}

// parseFenceOpen recognizes a fence opener with an info string and
// returns the fence marker and normalized language.
func parseFenceOpen(line string) (marker, language string, ok bool) {
	trimmed := strings.TrimSpace(line)
	for _, m := range []string{"```", "~~~"} {
		if !strings.HasPrefix(trimmed, m) {
			continue
		}
		info := strings.TrimSpace(strings.TrimLeft(trimmed, string(m[0])))
		if info == "" || strings.ContainsAny(info, "`~") {
			return "", "", false
		}
		language = strings.ToLower(strings.Fields(info)[0])
		if normalized, found := fenceLanguages[language]; found {
			language = normalized
		}
		return m, language, true
	}
	return "", "", false
}

func isFenceClose(line, marker string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, marker) &&
		strings.TrimLeft(trimmed, string(marker[0])) == ""
}
