package document

import "sync"

// Registry is the arena of live virtual documents, keyed by URI.
// Disposal is expressed as removal from the registry plus a
// synchronous notification pass, so the parent/child graph never
// relies on garbage collection to break its cycles.
type Registry struct {
	mu   sync.RWMutex
	docs map[URI]*VirtualDocument
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[URI]*VirtualDocument)}
}

// Add registers a document. Re-adding an existing URI replaces it.
func (r *Registry) Add(doc *VirtualDocument) {
	r.mu.Lock()
	r.docs[doc.URI()] = doc
	r.mu.Unlock()
}

// Remove drops a document from the arena.
func (r *Registry) Remove(uri URI) {
	r.mu.Lock()
	delete(r.docs, uri)
	r.mu.Unlock()
}

// Get returns the document for a URI.
func (r *Registry) Get(uri URI) (*VirtualDocument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[uri]
	return doc, ok
}

// Len returns the number of live documents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}
