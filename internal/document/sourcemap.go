package document

// RegionID identifies one host editor region (a file buffer or a
// single notebook cell) for the lifetime of that region.
type RegionID string

// SourceBlock maps a contiguous run of host region lines onto a
// contiguous run of virtual document lines. Line intervals are
// half-open: a position exactly at a block boundary belongs to the
// following block, never to the end of the preceding one.
type SourceBlock struct {
	// Region is the host editor region the block came from.
	Region RegionID

	// HostLine is the first host line covered by the block.
	HostLine int

	// VirtualLine is the first virtual line of the block.
	VirtualLine int

	// LineCount is the number of lines the block spans.
	LineCount int
}

// SourceMap records how a composed text was assembled and converts
// positions between host and virtual coordinate spaces. It is
// immutable once built; composition replaces the whole map.
type SourceMap struct {
	blocks       []SourceBlock
	virtualLines map[int]struct{}
	index        *LineIndex
}

// NewSourceMap builds a map over the composed text. virtualLines are
// composed-text lines with no host counterpart (padding, masked
// extractions).
func NewSourceMap(text string, blocks []SourceBlock, virtualLines map[int]struct{}) *SourceMap {
	if virtualLines == nil {
		virtualLines = make(map[int]struct{})
	}
	return &SourceMap{
		blocks:       blocks,
		virtualLines: virtualLines,
		index:        NewLineIndex(text),
	}
}

// Blocks returns the source blocks in virtual line order.
func (m *SourceMap) Blocks() []SourceBlock {
	return m.blocks
}

// IsVirtualLine reports whether a composed-text line is padding.
func (m *SourceMap) IsVirtualLine(line int) bool {
	_, ok := m.virtualLines[line]
	return ok
}

// ToVirtual maps a host position to the composed coordinate space.
// The second result is false when the position falls outside every
// block of that region or on a padding line.
func (m *SourceMap) ToVirtual(region RegionID, pos HostPosition) (VirtualPosition, bool) {
	for _, b := range m.blocks {
		if b.Region != region {
			continue
		}
		if pos.Line < b.HostLine || pos.Line >= b.HostLine+b.LineCount {
			continue
		}

		line := b.VirtualLine + (pos.Line - b.HostLine)
		if m.IsVirtualLine(line) {
			return VirtualPosition{}, false
		}
		return VirtualPosition{
			Line:      line,
			Character: RuneToUTF16Column(m.index.Line(line), pos.Column),
		}, true
	}
	return VirtualPosition{}, false
}

// ToHost maps a composed-text position back to its host region.
// The third result is false for padding lines and positions outside
// the composed text.
func (m *SourceMap) ToHost(pos VirtualPosition) (RegionID, HostPosition, bool) {
	b, ok := m.BlockAt(pos.Line)
	if !ok || m.IsVirtualLine(pos.Line) {
		return "", HostPosition{}, false
	}

	return b.Region, HostPosition{
		Line:   b.HostLine + (pos.Line - b.VirtualLine),
		Column: UTF16ToRuneColumn(m.index.Line(pos.Line), pos.Character),
	}, true
}

// BlockAt returns the block containing a virtual line, honoring the
// half-open boundary convention.
func (m *SourceMap) BlockAt(line int) (SourceBlock, bool) {
	for _, b := range m.blocks {
		if line >= b.VirtualLine && line < b.VirtualLine+b.LineCount {
			return b, true
		}
	}
	return SourceBlock{}, false
}
