package document

import (
	"sort"
	"sync"

	"github.com/weavedoc/weave/internal/event"
)

// DocState is the lifecycle state of a virtual document.
type DocState int

// Document lifecycle states. There is no error state: composition
// failures degrade to an empty body instead of blocking the document.
const (
	StateUninitialized DocState = iota
	StateComposed
	StateDisposed
)

// String returns a human-readable state name.
func (s DocState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateComposed:
		return "composed"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// ChildKey is the structural identity of a foreign child document.
// Keys survive edits that do not change the structure of extractions,
// so an unrelated edit never churns an unaffected foreign document.
type ChildKey struct {
	Language   string
	Standalone bool
	Ordinal    int
}

// Info is a point-in-time snapshot of a document, taken whole for each
// outbound send and never partially mutated.
type Info struct {
	URI      URI
	Language string
	Version  int
	Text     string
}

// ChangeEvent describes one committed recomposition.
type ChangeEvent struct {
	Document *VirtualDocument
	Version  int
	Text     string

	// Init marks the first composition; consumers announce the
	// document with didOpen rather than didChange.
	Init bool
}

// ForeignContext pairs a foreign child document with the parent it was
// extracted from. It is consumed once by the widget adapter to
// establish the child's connection and change wiring.
type ForeignContext struct {
	Parent   *VirtualDocument
	Document *VirtualDocument
}

// VirtualDocument is a single-language composed text buffer assembled
// from one or more host editor regions, possibly nested inside a
// parent document via foreign code extraction.
//
// The document never talks to the network; it tracks text, version and
// structure and emits signals for its consumers.
type VirtualDocument struct {
	mu sync.Mutex

	uri      URI
	language string
	version  int
	text     string
	smap     *SourceMap

	parent   *VirtualDocument
	children map[ChildKey]*VirtualDocument
	state    DocState
	registry *Registry

	// Changed fires on every committed recomposition of this document.
	Changed event.Signal[ChangeEvent]

	// ForeignOpened fires on the root document exactly once per
	// structural appearance of a foreign region anywhere in the tree.
	ForeignOpened event.Signal[ForeignContext]

	// ForeignClosed fires on the root document exactly once per
	// structural disappearance or disposal of a foreign document.
	ForeignClosed event.Signal[ForeignContext]
}

// NewVirtualDocument creates a document in the Uninitialized state and
// registers it in the arena. parent is nil for root documents.
func NewVirtualDocument(registry *Registry, uri URI, language string, parent *VirtualDocument) *VirtualDocument {
	d := &VirtualDocument{
		uri:      uri,
		language: language,
		parent:   parent,
		children: make(map[ChildKey]*VirtualDocument),
		registry: registry,
	}
	registry.Add(d)
	return d
}

// URI returns the document's synthesized URI.
func (d *VirtualDocument) URI() URI { return d.uri }

// Language returns the document's language identifier.
func (d *VirtualDocument) Language() string { return d.language }

// Parent returns the parent document, nil for roots.
func (d *VirtualDocument) Parent() *VirtualDocument { return d.parent }

// Root walks to the top of the document tree.
func (d *VirtualDocument) Root() *VirtualDocument {
	root := d
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// Version returns the current version. Versions increase strictly on
// every content change and never otherwise.
func (d *VirtualDocument) Version() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Text returns the current composed text.
func (d *VirtualDocument) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// State returns the lifecycle state.
func (d *VirtualDocument) State() DocState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Info snapshots the document for an outbound send.
func (d *VirtualDocument) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Info{URI: d.uri, Language: d.language, Version: d.version, Text: d.text}
}

// SourceMap returns the map built by the latest composition, or nil
// before the first one.
func (d *VirtualDocument) SourceMap() *SourceMap {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.smap
}

// ToVirtual maps a host position into this document's coordinate
// space; false when the position is padding or out of range.
func (d *VirtualDocument) ToVirtual(region RegionID, pos HostPosition) (VirtualPosition, bool) {
	smap := d.SourceMap()
	if smap == nil {
		return VirtualPosition{}, false
	}
	return smap.ToVirtual(region, pos)
}

// ToHost maps a position in this document back to its host region;
// false for padding.
func (d *VirtualDocument) ToHost(pos VirtualPosition) (RegionID, HostPosition, bool) {
	smap := d.SourceMap()
	if smap == nil {
		return "", HostPosition{}, false
	}
	return smap.ToHost(pos)
}

// ResolvePosition maps a host position into whichever document of this
// tree owns it: self first, then children recursively.
func (d *VirtualDocument) ResolvePosition(region RegionID, pos HostPosition) (*VirtualDocument, VirtualPosition, bool) {
	if vp, ok := d.ToVirtual(region, pos); ok {
		return d, vp, true
	}
	for _, child := range d.Children() {
		if doc, vp, ok := child.ResolvePosition(region, pos); ok {
			return doc, vp, true
		}
	}
	return nil, VirtualPosition{}, false
}

// Children returns the foreign child documents in deterministic URI
// order.
func (d *VirtualDocument) Children() []*VirtualDocument {
	d.mu.Lock()
	defer d.mu.Unlock()

	children := make([]*VirtualDocument, 0, len(d.children))
	for _, c := range d.children {
		children = append(children, c)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].uri < children[j].uri })
	return children
}

// Child returns the child document for a structural key.
func (d *VirtualDocument) Child(key ChildKey) (*VirtualDocument, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.children[key]
	return c, ok
}

// childKeys returns the current structural keys.
func (d *VirtualDocument) childKeys() []ChildKey {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]ChildKey, 0, len(d.children))
	for k := range d.children {
		keys = append(keys, k)
	}
	return keys
}

func (d *VirtualDocument) addChild(key ChildKey, child *VirtualDocument) {
	d.mu.Lock()
	d.children[key] = child
	d.mu.Unlock()
}

func (d *VirtualDocument) removeChild(key ChildKey) (*VirtualDocument, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.children[key]
	delete(d.children, key)
	return c, ok
}

// setContent commits a recomposition. It reports whether anything
// changed: identical text on an already composed document is a no-op
// with no version bump and no signal, which makes updates idempotent.
func (d *VirtualDocument) setContent(text string, smap *SourceMap) bool {
	d.mu.Lock()
	if d.state == StateDisposed {
		d.mu.Unlock()
		return false
	}

	init := d.state == StateUninitialized
	if !init && text == d.text {
		// Refresh the map anyway; block geometry can be identical or
		// not, and rebuilding is cheap relative to a server round trip.
		d.smap = smap
		d.mu.Unlock()
		return false
	}

	d.version++
	d.text = text
	d.smap = smap
	d.state = StateComposed
	ev := ChangeEvent{Document: d, Version: d.version, Text: text, Init: init}
	d.mu.Unlock()

	d.Changed.Emit(ev)
	return true
}

// Dispose removes the document and its children from the arena.
// Children are disposed recursively, and the root's ForeignClosed
// signal fires once per disposed foreign document so the owning
// connection can send didClose.
func (d *VirtualDocument) Dispose() {
	d.mu.Lock()
	if d.state == StateDisposed {
		d.mu.Unlock()
		return
	}
	children := make([]*VirtualDocument, 0, len(d.children))
	for _, c := range d.children {
		children = append(children, c)
	}
	d.children = make(map[ChildKey]*VirtualDocument)
	d.mu.Unlock()

	sort.Slice(children, func(i, j int) bool { return children[i].uri < children[j].uri })

	root := d.Root()
	for _, child := range children {
		child.Dispose()
		root.ForeignClosed.Emit(ForeignContext{Parent: d, Document: child})
	}

	d.mu.Lock()
	d.state = StateDisposed
	d.mu.Unlock()
	d.registry.Remove(d.uri)
}
