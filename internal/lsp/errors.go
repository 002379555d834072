package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the connection layer.
var (
	// ErrNoServer indicates no server is configured for the language.
	ErrNoServer = errors.New("no server configured for language")

	// ErrNotReady indicates the connection has not finished initializing.
	ErrNotReady = errors.New("connection not ready")

	// ErrClosed indicates the connection has been closed.
	ErrClosed = errors.New("connection closed")

	// ErrUnknownServer indicates the server identifier is not registered.
	ErrUnknownServer = errors.New("unknown server")

	// ErrManagerShutdown indicates the manager has been shut down.
	ErrManagerShutdown = errors.New("connection manager shut down")
)

// ServerError wraps an error with the server it belongs to.
type ServerError struct {
	ServerID string
	Err      error
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("server %s: %v", e.ServerID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ServerError) Unwrap() error {
	return e.Err
}
