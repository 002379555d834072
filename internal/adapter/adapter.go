package adapter

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/weavedoc/weave/internal/document"
	"github.com/weavedoc/weave/internal/event"
	"github.com/weavedoc/weave/internal/lsp"
)

// ErrAdapterDisposed is returned by operations on a disposed adapter.
var ErrAdapterDisposed = errors.New("adapter: adapter is disposed")

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithStatusBoard routes connection trouble to a status board for the
// host UI to display.
func WithStatusBoard(board *lsp.StatusBoard) Option {
	return func(a *Adapter) { a.status = board }
}

// docWiring holds what the adapter attached to one virtual document:
// its connection, and the signal subscriptions that must be torn down
// together when the document goes away.
type docWiring struct {
	conn  *lsp.Connection
	wires event.Group
}

// Adapter binds one host widget to the document tree and connection
// manager. All server traffic it originates rides the context it was
// created with; per-call contexts would outlive the calls anyway,
// since most sends happen inside signal handlers.
type Adapter struct {
	// Connected fires once, when the first server connection serving
	// the tree reaches readiness and the root document is opened.
	Connected event.Signal[*lsp.Connection]

	// EditorAdded and EditorRemoved track host regions joining and
	// leaving across update passes; Dispose emits EditorRemoved for
	// every region still attached.
	EditorAdded   event.Signal[Region]
	EditorRemoved event.Signal[document.RegionID]

	// ActiveEditorChanged announces focus moves reported through
	// SetActiveEditor.
	ActiveEditorChanged event.Signal[document.RegionID]

	// Disposed fires last, after all editor removals.
	Disposed event.Signal[*Adapter]

	mu sync.Mutex

	ctx      context.Context
	host     HostDocument
	manager  *lsp.ConnectionManager
	updater  *document.UpdateManager
	registry *document.Registry
	logger   *zap.Logger
	status   *lsp.StatusBoard

	root      *document.VirtualDocument
	rootWires event.Group
	docs      map[document.URI]*docWiring
	opened    map[document.URI]struct{}
	editors   []document.RegionID
	active    document.RegionID
	connected bool
	disposed  bool
}

// NewAdapter creates an adapter for a host widget, builds its root
// virtual document, and requests a server connection for it. The
// returned adapter has not composed anything yet; call UpdateDocuments
// with the first editor state.
func NewAdapter(ctx context.Context, host HostDocument, manager *lsp.ConnectionManager, updater *document.UpdateManager, registry *document.Registry, opts ...Option) *Adapter {
	a := &Adapter{
		ctx:      ctx,
		host:     host,
		manager:  manager,
		updater:  updater,
		registry: registry,
		logger:   zap.NewNop(),
		docs:     make(map[document.URI]*docWiring),
		opened:   make(map[document.URI]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.root = document.NewVirtualDocument(registry, document.RootURI(host.Path(), host.Language()), host.Language(), nil)
	a.wireRoot()
	a.connectDocument(a.root)
	return a
}

// Root returns the root virtual document.
func (a *Adapter) Root() *document.VirtualDocument {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.root
}

// ConnectionFor returns the connection serving a document in this
// adapter's tree.
func (a *Adapter) ConnectionFor(uri document.URI) (*lsp.Connection, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.docs[uri]
	if !ok || w.conn == nil {
		return nil, false
	}
	return w.conn, true
}

// UpdateDocuments recomposes the document tree from the host widget's
// current regions. Each document whose text actually changed gets a
// version bump and, once its connection is ready, a full didChange;
// foreign documents appearing or vanishing are opened and closed as a
// side effect.
func (a *Adapter) UpdateDocuments() error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return ErrAdapterDisposed
	}
	root := a.root
	prev := a.editors
	a.mu.Unlock()

	known := make(map[document.RegionID]struct{}, len(prev))
	for _, id := range prev {
		known[id] = struct{}{}
	}

	regions := a.host.Regions()
	states := make([]document.EditorState, len(regions))
	current := make([]document.RegionID, len(regions))
	var added []Region
	for i, r := range regions {
		states[i] = document.EditorState{
			Region:   r.ID,
			Kind:     r.Kind,
			Language: r.Language,
			Text:     r.Text,
		}
		current[i] = r.ID
		if _, ok := known[r.ID]; ok {
			delete(known, r.ID)
		} else {
			added = append(added, r)
		}
	}

	a.mu.Lock()
	a.editors = current
	a.mu.Unlock()

	for _, r := range added {
		a.EditorAdded.Emit(r)
	}
	for _, id := range prev {
		if _, gone := known[id]; gone {
			a.EditorRemoved.Emit(id)
		}
	}
	return a.updater.Update(root, states)
}

// SetActiveEditor records which host region has focus and announces the
// move. Repeating the current focus is a no-op.
func (a *Adapter) SetActiveEditor(id document.RegionID) {
	a.mu.Lock()
	if a.disposed || a.active == id {
		a.mu.Unlock()
		return
	}
	a.active = id
	a.mu.Unlock()

	a.ActiveEditorChanged.Emit(id)
}

// ActiveEditor returns the region last reported as focused.
func (a *Adapter) ActiveEditor() document.RegionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// SaveCompleted propagates a host save as didSave notifications,
// parent before children, to every opened document in the tree.
func (a *Adapter) SaveCompleted() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	root := a.root
	a.mu.Unlock()

	a.saveTree(root)
}

func (a *Adapter) saveTree(doc *document.VirtualDocument) {
	uri := doc.URI()

	a.mu.Lock()
	w, tracked := a.docs[uri]
	_, open := a.opened[uri]
	a.mu.Unlock()

	if tracked && open && w.conn != nil {
		if err := w.conn.DidSave(a.ctx, docInfo(doc)); err != nil {
			a.logger.Debug("didSave not delivered",
				zap.String("uri", string(uri)), zap.Error(err))
		}
	}
	for _, child := range doc.Children() {
		a.saveTree(child)
	}
}

// ReloadConnection force-closes every server connection the tree uses
// and dials them again. The document tree, its versions and its URIs
// all survive; documents are re-opened on the fresh connections as
// they become ready.
func (a *Adapter) ReloadConnection() error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return ErrAdapterDisposed
	}
	root := a.root
	snapshot := make(map[document.URI]*docWiring, len(a.docs))
	for uri, w := range a.docs {
		snapshot[uri] = w
	}
	a.docs = make(map[document.URI]*docWiring)
	a.opened = make(map[document.URI]struct{})
	a.mu.Unlock()

	servers := make(map[string]struct{})
	for _, w := range snapshot {
		w.wires.DisconnectAll()
		if w.conn != nil {
			servers[w.conn.ServerID()] = struct{}{}
		}
	}

	var errs []error
	for id := range servers {
		if err := a.manager.Disconnect(a.ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	a.connectTree(root)
	return errors.Join(errs...)
}

// HostPathChanged rebuilds the tree after a host rename. Virtual URIs
// embed the host path, and servers index by initial URI, so a rename
// is a close of the old identity and a fresh open of the new one.
func (a *Adapter) HostPathChanged() error {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return ErrAdapterDisposed
	}
	old := a.root
	a.mu.Unlock()

	// Child closes ride the ForeignClosed handlers.
	old.Dispose()
	a.closeDocument(old.URI())
	a.rootWires.DisconnectAll()

	root := document.NewVirtualDocument(a.registry, document.RootURI(a.host.Path(), a.host.Language()), a.host.Language(), nil)
	a.mu.Lock()
	a.root = root
	a.mu.Unlock()

	a.wireRoot()
	a.connectDocument(root)
	return a.UpdateDocuments()
}

// Dispose closes every opened document, releases the tree's
// connection references, and detaches all signal wiring. Connections
// themselves stay warm in the manager for the next adapter.
func (a *Adapter) Dispose() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	root := a.root
	editors := a.editors
	a.editors = nil
	a.mu.Unlock()

	root.Dispose()
	a.closeDocument(root.URI())
	a.rootWires.DisconnectAll()

	for _, id := range editors {
		a.EditorRemoved.Emit(id)
	}
	a.Disposed.Emit(a)
}

// GetEditorIndex returns the host widget's index for a region, -1 if
// the region is gone.
func (a *Adapter) GetEditorIndex(region document.RegionID) int {
	return a.host.IndexOf(region)
}

// GetEditorIndexAt maps a position in a virtual document back to the
// index of the host editor region containing it, -1 for padding and
// unmapped positions.
func (a *Adapter) GetEditorIndexAt(doc *document.VirtualDocument, pos document.VirtualPosition) int {
	region, _, ok := doc.ToHost(pos)
	if !ok {
		return -1
	}
	return a.host.IndexOf(region)
}

func (a *Adapter) wireRoot() {
	a.rootWires.Add(
		a.root.ForeignOpened.Connect(a.foreignOpened),
		a.root.ForeignClosed.Connect(a.foreignClosed),
	)
}

func (a *Adapter) connectTree(doc *document.VirtualDocument) {
	a.connectDocument(doc)
	for _, child := range doc.Children() {
		a.connectTree(child)
	}
}

// connectDocument requests a connection for one document and wires its
// lifecycle: didOpen on readiness, didChange per committed change.
func (a *Adapter) connectDocument(doc *document.VirtualDocument) {
	w := &docWiring{}
	a.mu.Lock()
	a.docs[doc.URI()] = w
	a.mu.Unlock()

	conn, err := a.manager.Connect(a.ctx, lsp.ConnectOptions{
		URI:      lsp.DocumentURI(doc.URI()),
		Language: doc.Language(),
	})
	if err != nil {
		if errors.Is(err, lsp.ErrNoServer) {
			a.logger.Debug("no language server registered",
				zap.String("language", doc.Language()),
				zap.String("uri", string(doc.URI())))
		} else {
			a.logger.Warn("connection request failed",
				zap.String("language", doc.Language()), zap.Error(err))
			a.setStatus("language server unavailable for " + doc.Language())
		}
		return
	}

	w.conn = conn
	w.wires.Add(
		conn.Ready.Connect(func(*lsp.Connection) { a.openDocument(doc, conn) }),
		conn.Closed.Connect(func(c *lsp.Connection) { a.connectionClosed(doc, c) }),
		doc.Changed.Connect(func(ev document.ChangeEvent) { a.documentChanged(ev, conn) }),
	)

	// A shared connection may already be past its Ready emission.
	if conn.State() == lsp.StateReady {
		a.openDocument(doc, conn)
	}
}

// openDocument sends didOpen once per document, once it is both
// composed and served by a ready connection.
func (a *Adapter) openDocument(doc *document.VirtualDocument, conn *lsp.Connection) {
	uri := doc.URI()

	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	if _, ok := a.opened[uri]; ok {
		a.mu.Unlock()
		return
	}
	if doc.State() != document.StateComposed {
		// Not composed yet; the first change event comes back here.
		a.mu.Unlock()
		return
	}
	a.opened[uri] = struct{}{}
	a.mu.Unlock()

	if err := conn.DidOpen(a.ctx, docInfo(doc)); err != nil {
		a.logger.Warn("didOpen failed",
			zap.String("uri", string(uri)), zap.Error(err))
		a.mu.Lock()
		delete(a.opened, uri)
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	first := !a.connected
	a.connected = true
	a.mu.Unlock()
	if first {
		a.Connected.Emit(conn)
	}
}

// documentChanged forwards one committed recomposition to the server.
// Changes on a connection that is not ready are dropped with a log
// line: sync is full-text, so the eventual didOpen or next didChange
// carries everything.
func (a *Adapter) documentChanged(ev document.ChangeEvent, conn *lsp.Connection) {
	doc := ev.Document
	uri := doc.URI()

	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	_, open := a.opened[uri]
	a.mu.Unlock()

	if ev.Init || !open {
		a.openDocument(doc, conn)
		return
	}

	if state := conn.State(); state != lsp.StateReady {
		a.logger.Debug("dropping change, connection not ready",
			zap.String("uri", string(uri)),
			zap.Stringer("state", state),
			zap.Int("version", ev.Version))
		return
	}
	if err := conn.DidChange(a.ctx, docInfo(doc)); err != nil {
		a.logger.Debug("didChange not delivered",
			zap.String("uri", string(uri)), zap.Error(err))
	}
}

func (a *Adapter) connectionClosed(doc *document.VirtualDocument, conn *lsp.Connection) {
	uri := doc.URI()

	a.mu.Lock()
	delete(a.opened, uri)
	disposed := a.disposed
	a.mu.Unlock()

	if disposed {
		return
	}
	if err := conn.Err(); err != nil {
		a.logger.Warn("language server connection lost",
			zap.String("server", conn.ServerID()),
			zap.String("uri", string(uri)),
			zap.Error(err))
		a.setStatus(conn.ServerID() + " disconnected")
	}
}

func (a *Adapter) foreignOpened(fc document.ForeignContext) {
	a.mu.Lock()
	disposed := a.disposed
	a.mu.Unlock()
	if disposed {
		return
	}

	a.logger.Debug("foreign document opened",
		zap.String("uri", string(fc.Document.URI())),
		zap.String("language", fc.Document.Language()),
		zap.String("parent", string(fc.Parent.URI())))
	a.connectDocument(fc.Document)
}

func (a *Adapter) foreignClosed(fc document.ForeignContext) {
	a.logger.Debug("foreign document closed",
		zap.String("uri", string(fc.Document.URI())))
	a.closeDocument(fc.Document.URI())
}

// closeDocument tears down one document's wiring: didClose when it was
// opened, then the connection reference, then the subscriptions.
func (a *Adapter) closeDocument(uri document.URI) {
	a.mu.Lock()
	w, tracked := a.docs[uri]
	delete(a.docs, uri)
	_, open := a.opened[uri]
	delete(a.opened, uri)
	a.mu.Unlock()

	if !tracked {
		return
	}
	w.wires.DisconnectAll()
	if w.conn == nil {
		return
	}
	if open {
		if err := w.conn.DidClose(a.ctx, lsp.DocumentURI(uri)); err != nil {
			a.logger.Debug("didClose not delivered",
				zap.String("uri", string(uri)), zap.Error(err))
		}
	}
	a.manager.UnregisterDocument(lsp.DocumentURI(uri))
}

func (a *Adapter) setStatus(text string) {
	if a.status != nil {
		a.status.Set(text, lsp.DefaultStatusTTL)
	}
}

func docInfo(doc *document.VirtualDocument) lsp.DocumentInfo {
	info := doc.Info()
	return lsp.DocumentInfo{
		URI:        lsp.DocumentURI(info.URI),
		LanguageID: info.Language,
		Version:    info.Version,
		Text:       info.Text,
	}
}
