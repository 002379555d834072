package lsp

import (
	"encoding/json"
	"net/url"
	"strings"
)

// DocumentURI represents a URI as used in LSP.
// Virtual documents use synthesized weave: URIs rather than file paths.
type DocumentURI string

// Position in a text document expressed as zero-based line and character
// offset. Character offset is measured in UTF-16 code units per the LSP
// specification.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document expressed as start and end positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location represents a location inside a resource.
type Location struct {
	URI   DocumentURI `json:"uri"`
	Range Range       `json:"range"`
}

// TextDocumentIdentifier identifies a text document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a specific version of a
// text document.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem transfers a text document from client to server.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentContentChangeEvent describes a content change event.
// A nil Range means full-document replacement.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// DidOpenTextDocumentParams are the parameters for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams are the parameters for textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidSaveTextDocumentParams are the parameters for textDocument/didSave.
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         string                 `json:"text,omitempty"`
}

// DidCloseTextDocumentParams are the parameters for textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DocumentInfo is the outbound synchronization payload for one virtual
// document. It is derived from the document on every send and never
// partially mutated.
type DocumentInfo struct {
	URI        DocumentURI
	LanguageID string
	Version    int
	Text       string
}

// WorkspaceFolder represents a workspace folder.
type WorkspaceFolder struct {
	URI  DocumentURI `json:"uri"`
	Name string      `json:"name"`
}

// --- Initialize ---

// InitializeParams are the parameters sent in an initialize request.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	RootURI               DocumentURI        `json:"rootUri,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
	Trace                 TraceValue         `json:"trace,omitempty"`
}

// InitializeResult is the result of the initialize request.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerInfo contains name and version reported by the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializedParams are the parameters of the initialized notification.
type InitializedParams struct{}

// --- Capabilities ---

// ClientCapabilities advertises what this client supports. Only the
// synchronization-relevant subset is populated.
type ClientCapabilities struct {
	Workspace    *WorkspaceClientCapabilities    `json:"workspace,omitempty"`
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
	Window       *WindowClientCapabilities       `json:"window,omitempty"`
}

// WorkspaceClientCapabilities covers workspace-level client features.
type WorkspaceClientCapabilities struct {
	DidChangeConfiguration *DynamicRegistrationCapability `json:"didChangeConfiguration,omitempty"`
	Configuration          bool                           `json:"configuration,omitempty"`
	WorkspaceFolders       bool                           `json:"workspaceFolders,omitempty"`
}

// TextDocumentClientCapabilities covers text document client features.
type TextDocumentClientCapabilities struct {
	Synchronization    *TextDocumentSyncClientCapabilities   `json:"synchronization,omitempty"`
	PublishDiagnostics *PublishDiagnosticsClientCapabilities `json:"publishDiagnostics,omitempty"`
}

// TextDocumentSyncClientCapabilities covers synchronization features.
type TextDocumentSyncClientCapabilities struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
	DidSave             bool `json:"didSave,omitempty"`
}

// PublishDiagnosticsClientCapabilities covers diagnostics features.
type PublishDiagnosticsClientCapabilities struct {
	RelatedInformation bool `json:"relatedInformation,omitempty"`
	VersionSupport     bool `json:"versionSupport,omitempty"`
}

// WindowClientCapabilities covers window-level client features.
type WindowClientCapabilities struct {
	ShowMessage *DynamicRegistrationCapability `json:"showMessage,omitempty"`
}

// DynamicRegistrationCapability is the common shape of capabilities
// whose only field is dynamicRegistration.
type DynamicRegistrationCapability struct {
	DynamicRegistration bool `json:"dynamicRegistration,omitempty"`
}

// TextDocumentSyncKind defines how text changes are synced.
type TextDocumentSyncKind int

// Sync kinds per the LSP specification.
const (
	SyncNone        TextDocumentSyncKind = 0
	SyncFull        TextDocumentSyncKind = 1
	SyncIncremental TextDocumentSyncKind = 2
)

// SaveOptions describe server save notification support.
type SaveOptions struct {
	IncludeText bool `json:"includeText,omitempty"`
}

// TextDocumentSyncOptions is the structured form of the server's
// textDocumentSync capability.
type TextDocumentSyncOptions struct {
	OpenClose bool                 `json:"openClose,omitempty"`
	Change    TextDocumentSyncKind `json:"change,omitempty"`
	Save      *SaveOptions         `json:"save,omitempty"`
}

// ServerCapabilities is the capability set reported by the server at
// initialize time. Only the fields this subsystem acts on are decoded.
type ServerCapabilities struct {
	TextDocumentSync TextDocumentSyncValue `json:"textDocumentSync,omitempty"`
}

// TextDocumentSyncValue accepts both wire encodings of
// textDocumentSync: a bare sync kind number or a full options object.
type TextDocumentSyncValue struct {
	Options TextDocumentSyncOptions
}

// UnmarshalJSON decodes either encoding into Options.
func (v *TextDocumentSyncValue) UnmarshalJSON(data []byte) error {
	var kind TextDocumentSyncKind
	if err := json.Unmarshal(data, &kind); err == nil {
		v.Options = TextDocumentSyncOptions{
			OpenClose: kind != SyncNone,
			Change:    kind,
		}
		return nil
	}

	var opts TextDocumentSyncOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return err
	}
	v.Options = opts
	return nil
}

// MarshalJSON always emits the object form.
func (v TextDocumentSyncValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Options)
}

// Capabilities is the negotiated capability set for a connection: the
// intersection of what the client advertised and what the server
// responded with.
type Capabilities struct {
	// SyncKind is the change notification kind the server accepts.
	// Weave sends full-document sync, so SyncIncremental degrades to
	// SyncFull here; SyncNone disables didChange entirely.
	SyncKind TextDocumentSyncKind

	// OpenClose reports whether didOpen/didClose are expected.
	OpenClose bool

	// Save reports whether the server wants didSave notifications.
	Save bool

	// SaveIncludeText reports whether didSave should carry full text.
	SaveIncludeText bool

	// ServerSyncKind preserves what the server actually advertised,
	// before the full-sync downgrade, so callers can see whether
	// incremental sync was on offer.
	ServerSyncKind TextDocumentSyncKind
}

// NegotiateCapabilities intersects the client advertisement with the
// server's initialize response.
func NegotiateCapabilities(client ClientCapabilities, server ServerCapabilities) Capabilities {
	opts := server.TextDocumentSync.Options

	caps := Capabilities{
		ServerSyncKind: opts.Change,
		OpenClose:      opts.OpenClose,
	}

	switch opts.Change {
	case SyncNone:
		caps.SyncKind = SyncNone
	default:
		// Full sync is the only change encoding this client emits.
		caps.SyncKind = SyncFull
	}

	saveAdvertised := client.TextDocument != nil &&
		client.TextDocument.Synchronization != nil &&
		client.TextDocument.Synchronization.DidSave
	if saveAdvertised && opts.Save != nil {
		caps.Save = true
		caps.SaveIncludeText = opts.Save.IncludeText
	}

	return caps
}

// --- Window and tracing ---

// MessageType is the severity of a window message.
type MessageType int

// Message types per the LSP specification.
const (
	MessageError   MessageType = 1
	MessageWarning MessageType = 2
	MessageInfo    MessageType = 3
	MessageLog     MessageType = 4
)

// LogMessageParams are the parameters of window/logMessage.
type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// ShowMessageParams are the parameters of window/showMessage.
type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// MessageActionItem is one action offered by window/showMessageRequest.
type MessageActionItem struct {
	Title string `json:"title"`
}

// ShowMessageRequestParams are the parameters of window/showMessageRequest.
type ShowMessageRequestParams struct {
	Type    MessageType         `json:"type"`
	Message string              `json:"message"`
	Actions []MessageActionItem `json:"actions,omitempty"`
}

// TraceValue controls server tracing verbosity.
type TraceValue string

// Trace values per the LSP specification.
const (
	TraceOff      TraceValue = "off"
	TraceMessages TraceValue = "messages"
	TraceVerbose  TraceValue = "verbose"
)

// LogTraceParams are the parameters of $/logTrace.
type LogTraceParams struct {
	Message string `json:"message"`
	Verbose string `json:"verbose,omitempty"`
}

// SetTraceParams are the parameters of $/setTrace.
type SetTraceParams struct {
	Value TraceValue `json:"value"`
}

// --- Configuration ---

// DidChangeConfigurationParams are the parameters of
// workspace/didChangeConfiguration.
type DidChangeConfigurationParams struct {
	Settings any `json:"settings"`
}

// ConfigurationItem is one item of a workspace/configuration request.
type ConfigurationItem struct {
	ScopeURI DocumentURI `json:"scopeUri,omitempty"`
	Section  string      `json:"section,omitempty"`
}

// ConfigurationParams are the parameters of workspace/configuration.
type ConfigurationParams struct {
	Items []ConfigurationItem `json:"items"`
}

// --- Diagnostics ---

// DiagnosticSeverity is the severity of a diagnostic.
type DiagnosticSeverity int

// Diagnostic severities per the LSP specification.
const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// Diagnostic represents one diagnostic item.
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	Code     any                `json:"code,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
}

// PublishDiagnosticsParams are the parameters of
// textDocument/publishDiagnostics.
type PublishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Version     int          `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// --- Method names ---

// LSP method names used by this subsystem.
const (
	MethodInitialize             = "initialize"
	MethodInitialized            = "initialized"
	MethodShutdown               = "shutdown"
	MethodExit                   = "exit"
	MethodDidOpen                = "textDocument/didOpen"
	MethodDidChange              = "textDocument/didChange"
	MethodDidSave                = "textDocument/didSave"
	MethodDidClose               = "textDocument/didClose"
	MethodPublishDiagnostics     = "textDocument/publishDiagnostics"
	MethodLogMessage             = "window/logMessage"
	MethodShowMessage            = "window/showMessage"
	MethodShowMessageRequest     = "window/showMessageRequest"
	MethodLogTrace               = "$/logTrace"
	MethodSetTrace               = "$/setTrace"
	MethodDidChangeConfiguration = "workspace/didChangeConfiguration"
	MethodConfiguration          = "workspace/configuration"
)

// FilePathToURI converts an absolute file path to a file:// URI.
func FilePathToURI(path string) DocumentURI {
	u := url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// URIToFilePath converts a file:// URI back to a file path.
// Non-file URIs are returned unchanged, minus the scheme.
func URIToFilePath(uri DocumentURI) string {
	u, err := url.Parse(string(uri))
	if err != nil {
		return strings.TrimPrefix(string(uri), "file://")
	}
	return u.Path
}
