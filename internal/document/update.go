package document

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/weavedoc/weave/internal/extract"
)

// ErrDocumentDisposed is returned when an update targets a disposed
// document tree.
var ErrDocumentDisposed = errors.New("document: document is disposed")

// SeparatorLines is the number of blank padding lines inserted between
// consecutive regions of a composed document.
const SeparatorLines = 2

// DefaultMaxDepth bounds foreign document nesting. Scripted extractors
// can produce mutually recursive language pairs; past this depth new
// foreign regions are masked but no longer descended into.
const DefaultMaxDepth = 10

// EditorState is the raw input for one host region: its identity,
// structural kind, language and full text. LineOffset places the text
// within the region's coordinate space and is zero for whole regions;
// synthesized states for extracted fragments carry the fragment's
// offset so positions map back to real host lines.
type EditorState struct {
	Region     RegionID
	Kind       string
	Language   string
	Text       string
	LineOffset int
}

// UpdateManager recomposes a document tree from editor state. One
// update pass rebuilds the root text, reconciles foreign children by
// structural identity, and recurses into them, committing each
// document's content exactly once.
type UpdateManager struct {
	registry   *Registry
	extractors *extract.Registry
	logger     *zap.Logger
	maxDepth   int
}

// NewUpdateManager creates an update manager over a document arena.
func NewUpdateManager(registry *Registry, extractors *extract.Registry, logger *zap.Logger) *UpdateManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractors == nil {
		extractors = extract.NewRegistry()
	}
	return &UpdateManager{
		registry:   registry,
		extractors: extractors,
		logger:     logger,
		maxDepth:   DefaultMaxDepth,
	}
}

// Update recomposes root and its foreign descendants from the given
// region states. States must arrive in host document order. The call
// is idempotent: repeating it with identical states changes no
// version and emits no signals.
func (m *UpdateManager) Update(root *VirtualDocument, states []EditorState) error {
	if root.State() == StateDisposed {
		return ErrDocumentDisposed
	}
	m.compose(root, states, 0)
	return nil
}

// compose rebuilds one document's text and source map from its region
// states and reconciles its children.
func (m *UpdateManager) compose(doc *VirtualDocument, states []EditorState, depth int) {
	var (
		lines        []string
		blocks       []SourceBlock
		virtualLines = make(map[int]struct{})
		order        []ChildKey
		desired      = make(map[ChildKey][]EditorState)
		ordinals     = make(map[string]int)
	)
	descend := depth < m.maxDepth

	markVirtual := func() {
		virtualLines[len(lines)] = struct{}{}
		lines = append(lines, "")
	}
	addChildState := func(key ChildKey, st EditorState) {
		if _, ok := desired[key]; !ok {
			order = append(order, key)
		}
		desired[key] = append(desired[key], st)
	}
	standaloneKey := func(language string) ChildKey {
		key := ChildKey{Language: language, Standalone: true, Ordinal: ordinals[language]}
		ordinals[language]++
		return key
	}

	for i, st := range states {
		if i > 0 {
			for s := 0; s < SeparatorLines; s++ {
				markVirtual()
			}
		}

		if st.Language != doc.Language() {
			// A whole region in another language contributes one
			// placeholder line so surrounding blocks keep distinct
			// virtual coordinates.
			markVirtual()
			if descend {
				addChildState(standaloneKey(st.Language), st)
			} else {
				m.logger.Warn("foreign nesting exceeds depth limit, masking region",
					zap.String("uri", string(doc.URI())),
					zap.String("region", string(st.Region)))
			}
			continue
		}

		start := len(lines)
		regionLines := SplitLines(st.Text)

		var extractions []extract.Extraction
		if descend {
			extractions = m.runExtractors(doc.Language(), st)
		}

		masked := make(map[int]struct{})
		for _, ex := range extractions {
			for ln := ex.StartLine; ln < ex.EndLine && ln < len(regionLines); ln++ {
				masked[ln] = struct{}{}
			}
			if ex.MaskOnly() {
				continue
			}
			key := ChildKey{Language: ex.Language}
			if ex.Standalone {
				key = standaloneKey(ex.Language)
			}
			addChildState(key, EditorState{
				Region:     st.Region,
				Kind:       st.Kind,
				Language:   ex.Language,
				Text:       ex.Text,
				LineOffset: st.LineOffset + ex.StartLine,
			})
		}

		for ln, lineText := range regionLines {
			if _, ok := masked[ln]; ok {
				markVirtual()
			} else {
				lines = append(lines, lineText)
			}
		}
		blocks = append(blocks, SourceBlock{
			Region:      st.Region,
			HostLine:    st.LineOffset,
			VirtualLine: start,
			LineCount:   len(regionLines),
		})
	}

	text := JoinLines(lines)
	doc.setContent(text, NewSourceMap(text, blocks, virtualLines))

	m.reconcileChildren(doc, order, desired, depth)
}

// reconcileChildren diffs the document's children against the desired
// structural keys: vanished children are disposed, surviving ones are
// recomposed in place, and new ones are created and announced after
// their first composition so consumers see them with content.
func (m *UpdateManager) reconcileChildren(doc *VirtualDocument, order []ChildKey, desired map[ChildKey][]EditorState, depth int) {
	root := doc.Root()

	for _, key := range doc.childKeys() {
		if _, ok := desired[key]; ok {
			continue
		}
		child, ok := doc.removeChild(key)
		if !ok {
			continue
		}
		child.Dispose()
		root.ForeignClosed.Emit(ForeignContext{Parent: doc, Document: child})
	}

	var opened []*VirtualDocument
	for _, key := range order {
		child, ok := doc.Child(key)
		if !ok {
			uri := ChildURI(doc.URI(), key.Language, key.Standalone, key.Ordinal)
			child = NewVirtualDocument(m.registry, uri, key.Language, doc)
			doc.addChild(key, child)
			opened = append(opened, child)
		}
		m.compose(child, desired[key], depth+1)
	}
	for _, child := range opened {
		root.ForeignOpened.Emit(ForeignContext{Parent: doc, Document: child})
	}
}

// runExtractors collects extractions from every extractor registered
// for the region, sorted into source order.
func (m *UpdateManager) runExtractors(language string, st EditorState) []extract.Extraction {
	var out []extract.Extraction
	for _, ex := range m.extractors.For(language, st.Kind) {
		out = append(out, m.runExtractor(ex, st)...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartLine < out[j].StartLine })
	return out
}

// runExtractor invokes one extractor, converting panics and errors
// into "no foreign code" so a broken extractor degrades the region to
// plain host text instead of taking the update pass down.
func (m *UpdateManager) runExtractor(ex extract.Extractor, st EditorState) (result []extract.Extraction) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("extractor panicked, treating region as host code",
				zap.String("region", string(st.Region)),
				zap.Any("panic", r))
			result = nil
		}
	}()

	if !ex.HasForeignCode(st.Text) {
		return nil
	}
	extractions, err := ex.ExtractForeignCode(st.Text)
	if err != nil {
		m.logger.Warn("extractor failed, treating region as host code",
			zap.String("region", string(st.Region)),
			zap.Error(err))
		return nil
	}
	return extractions
}
