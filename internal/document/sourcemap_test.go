package document

import "testing"

// twoCellMap builds the map of a two-cell composition: cell A spans
// virtual lines 0-1, two padding lines separate it from cell B on
// lines 4-5.
func twoCellMap() *SourceMap {
	text := "a0\na1\n\n\nb0\nb1"
	blocks := []SourceBlock{
		{Region: "cellA", HostLine: 0, VirtualLine: 0, LineCount: 2},
		{Region: "cellB", HostLine: 0, VirtualLine: 4, LineCount: 2},
	}
	return NewSourceMap(text, blocks, map[int]struct{}{2: {}, 3: {}})
}

func TestToVirtual(t *testing.T) {
	m := twoCellMap()

	tests := []struct {
		name   string
		region RegionID
		pos    HostPosition
		want   VirtualPosition
		ok     bool
	}{
		{"first cell start", "cellA", HostPosition{0, 0}, VirtualPosition{0, 0}, true},
		{"first cell second line", "cellA", HostPosition{1, 2}, VirtualPosition{1, 2}, true},
		{"second cell offset by padding", "cellB", HostPosition{0, 1}, VirtualPosition{4, 1}, true},
		{"line past cell", "cellA", HostPosition{2, 0}, VirtualPosition{}, false},
		{"unknown region", "cellC", HostPosition{0, 0}, VirtualPosition{}, false},
		{"negative line", "cellA", HostPosition{-1, 0}, VirtualPosition{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.ToVirtual(tt.region, tt.pos)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ToVirtual = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestToHost(t *testing.T) {
	m := twoCellMap()

	tests := []struct {
		name       string
		pos        VirtualPosition
		wantRegion RegionID
		wantPos    HostPosition
		ok         bool
	}{
		{"first block", VirtualPosition{1, 1}, "cellA", HostPosition{1, 1}, true},
		{"second block", VirtualPosition{5, 0}, "cellB", HostPosition{1, 0}, true},
		{"padding line unmapped", VirtualPosition{2, 0}, "", HostPosition{}, false},
		{"past end", VirtualPosition{9, 0}, "", HostPosition{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region, pos, ok := m.ToHost(tt.pos)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if region != tt.wantRegion || pos != tt.wantPos {
				t.Errorf("ToHost = (%q, %+v), want (%q, %+v)",
					region, pos, tt.wantRegion, tt.wantPos)
			}
		})
	}
}

// A position on a block boundary belongs to the following block.
func TestBlockBoundaryIsHalfOpen(t *testing.T) {
	text := "a0\nb0\nb1"
	blocks := []SourceBlock{
		{Region: "first", HostLine: 0, VirtualLine: 0, LineCount: 1},
		{Region: "second", HostLine: 0, VirtualLine: 1, LineCount: 2},
	}
	m := NewSourceMap(text, blocks, nil)

	b, ok := m.BlockAt(1)
	if !ok {
		t.Fatal("BlockAt(1) not found")
	}
	if b.Region != "second" {
		t.Errorf("boundary line belongs to %q, want second", b.Region)
	}
}

func TestToVirtualMaskedLine(t *testing.T) {
	// One region of three lines whose middle line was extracted away.
	text := "x\n\ny"
	blocks := []SourceBlock{{Region: "cell", HostLine: 0, VirtualLine: 0, LineCount: 3}}
	m := NewSourceMap(text, blocks, map[int]struct{}{1: {}})

	if _, ok := m.ToVirtual("cell", HostPosition{1, 0}); ok {
		t.Error("masked line mapped, want unmapped")
	}
	if got, ok := m.ToVirtual("cell", HostPosition{2, 0}); !ok || got.Line != 2 {
		t.Errorf("line after mask = %+v ok=%v, want line 2", got, ok)
	}
}

func TestMappingUTF16Columns(t *testing.T) {
	// Virtual line 0 contains an astral character before the caret.
	text := "x = \"\U0001F600\" + y"
	blocks := []SourceBlock{{Region: "cell", HostLine: 0, VirtualLine: 0, LineCount: 1}}
	m := NewSourceMap(text, blocks, nil)

	// Host column 6 (code points) sits after the closing quote; the
	// emoji takes two UTF-16 units, so the virtual character is 7.
	got, ok := m.ToVirtual("cell", HostPosition{0, 6})
	if !ok {
		t.Fatal("position did not map")
	}
	if got.Character != 7 {
		t.Errorf("Character = %d, want 7", got.Character)
	}

	_, back, ok := m.ToHost(got)
	if !ok || back.Column != 6 {
		t.Errorf("round trip column = %d ok=%v, want 6", back.Column, ok)
	}
}
