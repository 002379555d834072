package extract

import "sync"

// Region kinds, matching the structural role of a host region.
const (
	KindCode     = "code"
	KindMarkdown = "markdown"
	KindRaw      = "raw"
)

// Extraction is one run of lines lifted out of a host region.
//
// StartLine and EndLine bound the host lines the extraction claims,
// half-open. Claimed lines are masked out of the host's virtual
// document. Text is the content the foreign document receives and
// always spans exactly the claimed lines; a mask-only extraction
// (empty Language) claims lines without producing foreign content.
type Extraction struct {
	Language   string
	Standalone bool
	StartLine  int
	EndLine    int
	Text       string
}

// MaskOnly reports whether the extraction hides lines without feeding
// a foreign document.
func (e Extraction) MaskOnly() bool { return e.Language == "" }

// Extractor detects foreign code inside one region's text.
//
// HasForeignCode is the cheap pre-check; ExtractForeignCode is only
// called when it returns true. Extractions must be returned in source
// order and must not overlap.
type Extractor interface {
	HasForeignCode(text string) bool
	ExtractForeignCode(text string) ([]Extraction, error)
}

type registryKey struct {
	language string
	kind     string
}

// Registry maps (host language, region kind) pairs to the extractors
// that apply to them. Multiple extractors may serve one pair; their
// results are concatenated.
type Registry struct {
	mu         sync.RWMutex
	extractors map[registryKey][]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[registryKey][]Extractor)}
}

// Register adds an extractor for a language and region kind.
func (r *Registry) Register(language, kind string, ex Extractor) {
	key := registryKey{language: language, kind: kind}
	r.mu.Lock()
	r.extractors[key] = append(r.extractors[key], ex)
	r.mu.Unlock()
}

// For returns the extractors registered for a language and region
// kind, in registration order.
func (r *Registry) For(language, kind string) []Extractor {
	key := registryKey{language: language, kind: kind}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Extractor(nil), r.extractors[key]...)
}

// DefaultRegistry returns a registry with the built-in extractors:
// interpreter magics for python code regions and fenced code blocks
// for markdown.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("python", KindCode, NewMagicExtractor())
	r.Register("markdown", KindMarkdown, NewFenceExtractor())
	r.Register("markdown", KindCode, NewFenceExtractor())
	return r
}
