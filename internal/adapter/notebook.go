package adapter

import (
	"sync"

	"github.com/weavedoc/weave/internal/document"
	"github.com/weavedoc/weave/internal/extract"
)

// Cell is one notebook cell.
type Cell struct {
	ID       document.RegionID
	Kind     string
	Language string
	Text     string
}

// NotebookDocument is the host view of a notebook: an ordered list of
// cells with stable identities, each its own region.
type NotebookDocument struct {
	mu       sync.Mutex
	path     string
	language string
	alloc    *NameAllocator
	cells    []*Cell
}

// NewNotebookDocument creates an empty notebook whose code cells run
// the given language.
func NewNotebookDocument(path, language string) *NotebookDocument {
	return &NotebookDocument{
		path:     path,
		language: language,
		alloc:    NewNameAllocator("cell"),
	}
}

// Path returns the notebook path.
func (d *NotebookDocument) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Language returns the notebook's kernel language.
func (d *NotebookDocument) Language() string { return d.language }

func (d *NotebookDocument) newCell(kind, text string) *Cell {
	language := d.language
	if kind == extract.KindMarkdown {
		// A markdown cell is a markdown region regardless of the
		// kernel language.
		language = "markdown"
	}
	return &Cell{ID: d.alloc.Next(), Kind: kind, Language: language, Text: text}
}

// AddCell appends a cell and returns its stable identifier.
func (d *NotebookDocument) AddCell(kind, text string) document.RegionID {
	cell := d.newCell(kind, text)
	d.mu.Lock()
	d.cells = append(d.cells, cell)
	d.mu.Unlock()
	return cell.ID
}

// InsertCell inserts a cell at position index, clamped to the
// notebook's bounds.
func (d *NotebookDocument) InsertCell(index int, kind, text string) document.RegionID {
	cell := d.newCell(kind, text)

	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 {
		index = 0
	}
	if index > len(d.cells) {
		index = len(d.cells)
	}
	d.cells = append(d.cells[:index], append([]*Cell{cell}, d.cells[index:]...)...)
	return cell.ID
}

// RemoveCell deletes a cell by identifier.
func (d *NotebookDocument) RemoveCell(id document.RegionID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.cells {
		if c.ID == id {
			d.cells = append(d.cells[:i], d.cells[i+1:]...)
			return
		}
	}
}

// SetCellText replaces the content of a cell.
func (d *NotebookDocument) SetCellText(id document.RegionID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.cells {
		if c.ID == id {
			c.Text = text
			return
		}
	}
}

// Regions returns one region per cell, in notebook order.
func (d *NotebookDocument) Regions() []Region {
	d.mu.Lock()
	defer d.mu.Unlock()
	regions := make([]Region, len(d.cells))
	for i, c := range d.cells {
		regions[i] = Region{ID: c.ID, Kind: c.Kind, Language: c.Language, Text: c.Text}
	}
	return regions
}

// IndexOf returns the cell's position in notebook order.
func (d *NotebookDocument) IndexOf(id document.RegionID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, c := range d.cells {
		if c.ID == id {
			return i
		}
	}
	return -1
}
