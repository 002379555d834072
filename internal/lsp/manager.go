package lsp

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ConnectionManager owns one live connection per server identifier,
// multiplexed across every virtual document that uses it. It decides
// which server serves a language, reference-counts attachments, and
// broadcasts configuration updates.
type ConnectionManager struct {
	mu sync.Mutex

	factory TransportFactory
	specs   map[string]ServerSpec
	conns   map[string]*Connection

	clientCaps ClientCapabilities
	prompt     PromptFunc
	trace      TraceValue
	logAll     bool
	logger     *zap.Logger

	shutdown bool
}

// ManagerOption configures the manager.
type ManagerOption func(*ConnectionManager)

// WithLogger sets the manager's logger; the default discards output.
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *ConnectionManager) {
		m.logger = logger
	}
}

// WithPrompt sets the handler for window/showMessageRequest dialogs.
func WithPrompt(prompt PromptFunc) ManagerOption {
	return func(m *ConnectionManager) {
		m.prompt = prompt
	}
}

// WithClientCapabilities overrides the capability advertisement sent
// at initialize time.
func WithClientCapabilities(caps ClientCapabilities) ManagerOption {
	return func(m *ConnectionManager) {
		m.clientCaps = caps
	}
}

// NewConnectionManager creates a manager that dials via factory.
func NewConnectionManager(factory TransportFactory, opts ...ManagerOption) *ConnectionManager {
	m := &ConnectionManager{
		factory:    factory,
		specs:      make(map[string]ServerSpec),
		conns:      make(map[string]*Connection),
		clientCaps: DefaultClientCapabilities(),
		trace:      TraceOff,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DefaultClientCapabilities is the advertisement for a full-sync,
// pull-free client.
func DefaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Workspace: &WorkspaceClientCapabilities{
			DidChangeConfiguration: &DynamicRegistrationCapability{},
			Configuration:          true,
		},
		TextDocument: &TextDocumentClientCapabilities{
			Synchronization: &TextDocumentSyncClientCapabilities{
				DidSave: true,
			},
			PublishDiagnostics: &PublishDiagnosticsClientCapabilities{
				VersionSupport: true,
			},
		},
		Window: &WindowClientCapabilities{
			ShowMessage: &DynamicRegistrationCapability{},
		},
	}
}

// RegisterServer registers or replaces a server spec.
func (m *ConnectionManager) RegisterServer(spec ServerSpec) {
	m.mu.Lock()
	m.specs[spec.ID] = spec
	m.mu.Unlock()
}

// ServerFor returns the highest-priority registered spec serving the
// language. Ties break on server ID for determinism.
func (m *ConnectionManager) ServerFor(language string) (ServerSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.serverForLocked(language)
}

func (m *ConnectionManager) serverForLocked(language string) (ServerSpec, bool) {
	var candidates []ServerSpec
	for _, spec := range m.specs {
		if spec.ServesLanguage(language) {
			candidates = append(candidates, spec)
		}
	}
	if len(candidates) == 0 {
		return ServerSpec{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0], true
}

// ConnectOptions name the virtual document requesting a connection.
type ConnectOptions struct {
	// URI is the virtual document's URI; it is the reference-count key.
	URI DocumentURI

	// Language selects the server.
	Language string
}

// Connect returns a connection for the document's language. An
// existing connecting or ready connection is reused and its reference
// count incremented; otherwise a new one is dialed. The connection is
// returned immediately in the Connecting state — observe its Ready
// signal rather than polling.
//
// Returns ErrNoServer when no registered spec serves the language.
func (m *ConnectionManager) Connect(ctx context.Context, opts ConnectOptions) (*Connection, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, ErrManagerShutdown
	}

	spec, ok := m.serverForLocked(opts.Language)
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoServer
	}

	if conn, live := m.conns[spec.ID]; live {
		switch conn.State() {
		case StateConnecting, StateReady:
			conn.attach(opts.URI)
			m.mu.Unlock()
			return conn, nil
		}
		// Errored or closed connections are replaced; reconnection is
		// an explicit caller decision, which this call is.
		delete(m.conns, spec.ID)
	}

	conn := newConnection(spec, m.clientCaps, m.factory, m.logger, m.prompt, m.trace)
	conn.logAll = m.logAll
	conn.attach(opts.URI)
	m.conns[spec.ID] = conn
	m.mu.Unlock()

	go conn.run(ctx)
	return conn, nil
}

// UnregisterDocument drops the document's reference on whichever
// connection holds it. A connection whose count reaches zero is kept
// warm; only Disconnect closes it.
func (m *ConnectionManager) UnregisterDocument(uri DocumentURI) {
	m.mu.Lock()
	conns := m.liveConnsLocked()
	m.mu.Unlock()

	for _, conn := range conns {
		if remaining := conn.detach(uri); remaining == 0 {
			m.logger.Debug("connection idle, holding warm",
				zap.String("server", conn.ServerID()))
		}
	}
}

// Connection returns the live connection for a server id, if any.
func (m *ConnectionManager) Connection(serverID string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[serverID]
	return conn, ok
}

// Disconnect explicitly closes the connection for a server.
// This is the "shut down running server" user action.
func (m *ConnectionManager) Disconnect(ctx context.Context, serverID string) error {
	m.mu.Lock()
	conn, ok := m.conns[serverID]
	delete(m.conns, serverID)
	m.mu.Unlock()

	if !ok {
		return ErrUnknownServer
	}
	return conn.Close(ctx)
}

// UpdateConfiguration pushes settings to every live connection without
// reconnecting.
func (m *ConnectionManager) UpdateConfiguration(ctx context.Context, settings map[string]any) {
	for _, conn := range m.liveConns() {
		if err := conn.UpdateSettings(ctx, settings); err != nil && !errors.Is(err, ErrNotReady) {
			m.logger.Warn("configuration push failed",
				zap.String("server", conn.ServerID()), zap.Error(err))
		}
	}
}

// UpdateServerConfigurations pushes per-server settings, keyed by
// server identifier. Servers without an entry are left untouched.
func (m *ConnectionManager) UpdateServerConfigurations(ctx context.Context, settings map[string]map[string]any) {
	for _, conn := range m.liveConns() {
		s, ok := settings[conn.ServerID()]
		if !ok {
			continue
		}
		if err := conn.UpdateSettings(ctx, s); err != nil && !errors.Is(err, ErrNotReady) {
			m.logger.Warn("configuration push failed",
				zap.String("server", conn.ServerID()), zap.Error(err))
		}
	}

	// Keep specs current so later connections start with the new
	// settings.
	m.mu.Lock()
	for id, s := range settings {
		if spec, ok := m.specs[id]; ok {
			spec.Settings = s
			m.specs[id] = spec
		}
	}
	m.mu.Unlock()
}

// UpdateLogging adjusts trace verbosity and wire logging for all live
// connections and for connections dialed later.
func (m *ConnectionManager) UpdateLogging(ctx context.Context, trace TraceValue, logAll bool) {
	m.mu.Lock()
	m.trace = trace
	m.logAll = logAll
	m.mu.Unlock()

	for _, conn := range m.liveConns() {
		_ = conn.SetLogging(ctx, trace, logAll)
	}
}

// Shutdown closes every connection and rejects further Connect calls.
func (m *ConnectionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[string]*Connection)
	m.mu.Unlock()

	var errs []error
	for _, conn := range conns {
		if err := conn.Close(ctx); err != nil {
			errs = append(errs, &ServerError{ServerID: conn.ServerID(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// RegisteredServers lists registered server identifiers, sorted.
func (m *ConnectionManager) RegisteredServers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.specs))
	for id := range m.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *ConnectionManager) liveConns() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.liveConnsLocked()
}

func (m *ConnectionManager) liveConnsLocked() []*Connection {
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	return conns
}
