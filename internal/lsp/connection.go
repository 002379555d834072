package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weavedoc/weave/internal/event"
)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int

// Connection lifecycle states.
const (
	StateConnecting ConnectionState = iota
	StateReady
	StateClosing
	StateClosed
	StateErrored
)

// String returns a human-readable state name.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// PromptFunc answers a window/showMessageRequest. Returning nil means
// the user dismissed the prompt without choosing an action; per the LSP
// contract the server then receives a null result.
type PromptFunc func(params ShowMessageRequestParams) *MessageActionItem

// Connection is one live link to a language server, shared by every
// virtual document of the languages it serves. It is created in the
// Connecting state and becomes Ready once the initialize handshake
// completes; readiness is observed through the Ready signal, never by
// blocking.
type Connection struct {
	mu sync.Mutex

	spec       ServerSpec
	clientCaps ClientCapabilities
	factory    TransportFactory
	logger     *zap.Logger
	prompt     PromptFunc

	state      ConnectionState
	rpc        RPC
	caps       Capabilities
	serverInfo *ServerInfo
	lastErr    error
	trace      TraceValue
	logAll     bool

	// Documents currently attached, by virtual document URI.
	refs map[DocumentURI]struct{}

	// sendMu serializes outbound notifications so edits reach the
	// server in the order they were observed locally.
	sendMu sync.Mutex

	closedEmitted bool

	// Ready fires once when the handshake completes.
	Ready event.Signal[*Connection]

	// Closed fires once when the connection ends, gracefully or not.
	Closed event.Signal[*Connection]

	// LogMessages forwards window/logMessage notifications.
	LogMessages event.Signal[LogMessageParams]

	// ShowMessages forwards window/showMessage notifications.
	ShowMessages event.Signal[ShowMessageParams]

	// Traces forwards $/logTrace notifications.
	Traces event.Signal[LogTraceParams]

	// Diagnostics forwards textDocument/publishDiagnostics.
	Diagnostics event.Signal[PublishDiagnosticsParams]
}

func newConnection(spec ServerSpec, clientCaps ClientCapabilities, factory TransportFactory, logger *zap.Logger, prompt PromptFunc, trace TraceValue) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		spec:       spec,
		clientCaps: clientCaps,
		factory:    factory,
		logger:     logger.With(zap.String("server", spec.ID)),
		prompt:     prompt,
		state:      StateConnecting,
		trace:      trace,
		refs:       make(map[DocumentURI]struct{}),
	}
}

// ServerID returns the identifier of the server this connection serves.
func (c *Connection) ServerID() string {
	return c.spec.ID
}

// Spec returns the server spec the connection was dialed with.
func (c *Connection) Spec() ServerSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spec
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error that moved the connection to Errored, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Capabilities returns the negotiated capability set.
// Valid once the connection is Ready.
func (c *Connection) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// ServerInfo returns the server's self-reported name and version.
func (c *Connection) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Refs returns the number of attached virtual documents.
func (c *Connection) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.refs)
}

func (c *Connection) attach(uri DocumentURI) {
	c.mu.Lock()
	c.refs[uri] = struct{}{}
	c.mu.Unlock()
}

// detach removes a document reference and reports how many remain.
func (c *Connection) detach(uri DocumentURI) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.refs, uri)
	return len(c.refs)
}

// run dials the transport and performs the initialize handshake.
// Called on its own goroutine by the manager.
func (c *Connection) run(ctx context.Context) {
	rpc, err := c.factory.Dial(ctx, c.spec, c.handleInbound)
	if err != nil {
		c.fail(fmt.Errorf("dial: %w", err))
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Closed while the dial was in flight.
		c.mu.Unlock()
		rpc.Close()
		return
	}
	c.rpc = rpc
	trace := c.trace
	c.mu.Unlock()

	go c.watchDisconnect(rpc)

	params := InitializeParams{
		ProcessID:             os.Getpid(),
		Capabilities:          c.clientCaps,
		InitializationOptions: c.spec.InitializationOptions,
		Trace:                 trace,
	}

	var result InitializeResult
	if err := rpc.Call(ctx, MethodInitialize, params, &result); err != nil {
		c.fail(fmt.Errorf("initialize: %w", err))
		rpc.Close()
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.caps = NegotiateCapabilities(c.clientCaps, result.Capabilities)
	c.serverInfo = result.ServerInfo
	c.mu.Unlock()

	if err := rpc.Notify(ctx, MethodInitialized, InitializedParams{}); err != nil {
		c.fail(fmt.Errorf("initialized: %w", err))
		rpc.Close()
		return
	}

	if len(c.spec.Settings) > 0 {
		_ = rpc.Notify(ctx, MethodDidChangeConfiguration, DidChangeConfigurationParams{
			Settings: c.spec.Settings,
		})
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.mu.Unlock()

	c.logger.Info("language server ready",
		zap.String("state", StateReady.String()))
	c.Ready.Emit(c)
}

// watchDisconnect moves the connection to Errored if the transport
// drops outside of a deliberate close.
func (c *Connection) watchDisconnect(rpc RPC) {
	<-rpc.DisconnectNotify()

	c.mu.Lock()
	if c.state == StateClosing || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateErrored
	c.lastErr = ErrClosed
	c.mu.Unlock()

	c.logger.Warn("language server connection lost")
	c.emitClosed()
}

// fail records err, transitions to Errored and fires Closed.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	if c.state == StateClosing || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateErrored
	c.lastErr = err
	c.mu.Unlock()

	c.logger.Warn("language server connection failed", zap.Error(err))
	c.emitClosed()
}

// emitClosed fires Closed exactly once for the connection's lifetime.
func (c *Connection) emitClosed() {
	c.mu.Lock()
	if c.closedEmitted {
		c.mu.Unlock()
		return
	}
	c.closedEmitted = true
	c.mu.Unlock()

	c.Closed.Emit(c)
}

// Close shuts the connection down gracefully. Safe to call in any
// state; closing an already closed connection is a no-op.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosing || c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	wasReady := c.state == StateReady
	c.state = StateClosing
	rpc := c.rpc
	c.mu.Unlock()

	var err error
	if rpc != nil {
		if wasReady {
			shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			_ = rpc.Call(shutdownCtx, MethodShutdown, nil, nil)
			_ = rpc.Notify(shutdownCtx, MethodExit, nil)
			cancel()
		}
		err = rpc.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	c.emitClosed()
	return err
}

// notify sends an ordered notification, guarded by readiness.
func (c *Connection) notify(ctx context.Context, method string, params any) error {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		if state == StateConnecting {
			return ErrNotReady
		}
		return ErrClosed
	}
	rpc := c.rpc
	logAll := c.logAll
	c.mu.Unlock()

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if logAll {
		c.logger.Debug("send", zap.String("method", method), zap.Any("params", params))
	}
	return rpc.Notify(ctx, method, params)
}

// DidOpen announces a virtual document to the server.
func (c *Connection) DidOpen(ctx context.Context, info DocumentInfo) error {
	return c.notify(ctx, MethodDidOpen, DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        info.URI,
			LanguageID: info.LanguageID,
			Version:    info.Version,
			Text:       info.Text,
		},
	})
}

// DidChange sends a full-document change notification.
// It is a no-op error if the server negotiated SyncNone.
func (c *Connection) DidChange(ctx context.Context, info DocumentInfo) error {
	if c.Capabilities().SyncKind == SyncNone {
		return nil
	}
	return c.notify(ctx, MethodDidChange, DidChangeTextDocumentParams{
		TextDocument: VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: TextDocumentIdentifier{URI: info.URI},
			Version:                info.Version,
		},
		ContentChanges: []TextDocumentContentChangeEvent{{Text: info.Text}},
	})
}

// DidSave notifies the server that a document was saved. Text is
// included only when the server asked for it at negotiation time.
func (c *Connection) DidSave(ctx context.Context, info DocumentInfo) error {
	params := DidSaveTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: info.URI},
	}
	if c.Capabilities().SaveIncludeText {
		params.Text = info.Text
	}
	return c.notify(ctx, MethodDidSave, params)
}

// DidClose notifies the server that a document is gone.
func (c *Connection) DidClose(ctx context.Context, uri DocumentURI) error {
	return c.notify(ctx, MethodDidClose, DidCloseTextDocumentParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
	})
}

// UpdateSettings replaces the server settings and pushes them without
// reconnecting. Settings set before readiness are delivered by the
// handshake instead.
func (c *Connection) UpdateSettings(ctx context.Context, settings map[string]any) error {
	c.mu.Lock()
	c.spec.Settings = settings
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready {
		return nil
	}
	return c.notify(ctx, MethodDidChangeConfiguration, DidChangeConfigurationParams{
		Settings: settings,
	})
}

// SetLogging adjusts trace verbosity and wire logging at runtime.
func (c *Connection) SetLogging(ctx context.Context, trace TraceValue, logAll bool) error {
	c.mu.Lock()
	c.trace = trace
	c.logAll = logAll
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready {
		return nil
	}
	return c.notify(ctx, MethodSetTrace, SetTraceParams{Value: trace})
}

// handleInbound dispatches server-initiated requests and notifications.
// Logging and tracing traffic is forwarded as signals and never blocks
// protocol flow; unknown methods are ignored.
func (c *Connection) handleInbound(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case MethodLogMessage:
		var p LogMessageParams
		if err := json.Unmarshal(params, &p); err == nil {
			c.LogMessages.Emit(p)
		}
		return nil, nil

	case MethodShowMessage:
		var p ShowMessageParams
		if err := json.Unmarshal(params, &p); err == nil {
			c.ShowMessages.Emit(p)
		}
		return nil, nil

	case MethodLogTrace:
		var p LogTraceParams
		if err := json.Unmarshal(params, &p); err == nil {
			c.Traces.Emit(p)
		}
		return nil, nil

	case MethodPublishDiagnostics:
		var p PublishDiagnosticsParams
		if err := json.Unmarshal(params, &p); err == nil {
			c.Diagnostics.Emit(p)
		}
		return nil, nil

	case MethodShowMessageRequest:
		var p ShowMessageRequestParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("showMessageRequest params: %w", err)
		}
		if c.prompt == nil {
			return nil, nil
		}
		// A nil choice marshals to null, which is the required answer
		// when the user dismisses without picking an action.
		return c.prompt(p), nil

	case MethodConfiguration:
		var p ConfigurationParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("configuration params: %w", err)
		}
		return c.configurationItems(p), nil

	default:
		return nil, nil
	}
}

// configurationItems answers workspace/configuration from the held
// server settings, one entry per requested item.
func (c *Connection) configurationItems(p ConfigurationParams) []any {
	c.mu.Lock()
	settings := c.spec.Settings
	c.mu.Unlock()

	items := make([]any, len(p.Items))
	for i, item := range p.Items {
		if item.Section == "" {
			items[i] = settings
			continue
		}
		if v, ok := settings[item.Section]; ok {
			items[i] = v
		}
	}
	return items
}
