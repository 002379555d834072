package adapter

import (
	"sync"

	"github.com/weavedoc/weave/internal/document"
	"github.com/weavedoc/weave/internal/extract"
)

// FileDocument is the host view of a plain single-language file
// editor: exactly one code region spanning the whole buffer.
type FileDocument struct {
	mu       sync.Mutex
	path     string
	language string
	region   document.RegionID
	text     string
}

// NewFileDocument creates a file host document.
func NewFileDocument(path, language string) *FileDocument {
	return &FileDocument{
		path:     path,
		language: language,
		region:   NewNameAllocator("file").Next(),
	}
}

// Path returns the file path.
func (d *FileDocument) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Language returns the file's language.
func (d *FileDocument) Language() string { return d.language }

// SetText replaces the buffer content.
func (d *FileDocument) SetText(text string) {
	d.mu.Lock()
	d.text = text
	d.mu.Unlock()
}

// SetPath records a rename. The region identifier survives; the
// adapter rebuilds URIs separately.
func (d *FileDocument) SetPath(path string) {
	d.mu.Lock()
	d.path = path
	d.mu.Unlock()
}

// Regions returns the single buffer region.
func (d *FileDocument) Regions() []Region {
	d.mu.Lock()
	defer d.mu.Unlock()
	return []Region{{
		ID:       d.region,
		Kind:     extract.KindCode,
		Language: d.language,
		Text:     d.text,
	}}
}

// IndexOf returns 0 for the buffer region, -1 otherwise.
func (d *FileDocument) IndexOf(id document.RegionID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id == d.region {
		return 0
	}
	return -1
}
