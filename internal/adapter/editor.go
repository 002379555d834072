package adapter

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/weavedoc/weave/internal/document"
)

// Region is one host editor region: the whole buffer of a file editor
// or a single notebook cell.
type Region struct {
	ID       document.RegionID
	Kind     string
	Language string
	Text     string
}

// HostDocument is the adapter's view of a host widget's content. The
// adapter pulls regions on every update pass; implementations own
// their mutation story.
type HostDocument interface {
	// Path is the host document's path, used to synthesize virtual URIs.
	Path() string

	// Language is the host document's primary language.
	Language() string

	// Regions returns the current regions in document order.
	Regions() []Region

	// IndexOf returns the position of a region in document order, or
	// -1 when the region is gone.
	IndexOf(id document.RegionID) int
}

// NameAllocator issues stable unique region identifiers. A region
// keeps its identifier for its whole life, across edits and
// reordering, which is what keeps position mapping honest while cells
// move.
type NameAllocator struct {
	prefix string
}

// NewNameAllocator creates an allocator whose identifiers carry the
// given prefix.
func NewNameAllocator(prefix string) *NameAllocator {
	return &NameAllocator{prefix: prefix}
}

// Next returns a fresh identifier.
func (a *NameAllocator) Next() document.RegionID {
	return document.RegionID(fmt.Sprintf("%s-%s", a.prefix, uuid.NewString()))
}
