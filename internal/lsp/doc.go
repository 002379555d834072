// Package lsp provides connection management for external language
// servers.
//
// The package owns everything network-facing in Weave: JSON-RPC
// connections to language servers, the initialize handshake and
// capability negotiation, and the textDocument/didOpen, didChange,
// didSave and didClose synchronization notifications for virtual
// documents.
//
// # Architecture
//
//   - Connection: one live link to a single language server, with its
//     lifecycle state machine and negotiated capabilities
//   - ConnectionManager: multiplexes connections across all virtual
//     documents, reference-counting attachments per document
//   - TransportFactory: abstract dialer; stdio and WebSocket
//     implementations are provided, tests inject fakes
//
// # Connection sharing
//
// At most one live connection exists per server identifier. Every
// virtual document of a language served by that server attaches to the
// same connection; detaching the last document does not close it. A
// connection is held warm until an explicit Disconnect, because
// language servers are typically slow to restart.
//
// # Failure model
//
// A transport failure moves the connection to the Errored state and
// fires its Closed signal. Documents attached to an errored connection
// keep working without language features; nothing reconnects
// automatically.
package lsp
