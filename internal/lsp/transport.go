package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	wsjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
)

// ServerSpec describes one configured language server.
type ServerSpec struct {
	// ID uniquely identifies the server (e.g. "pylsp").
	ID string

	// Command is the executable for stdio servers.
	Command string

	// Args are command-line arguments.
	Args []string

	// Env are additional environment variables.
	Env map[string]string

	// Dir is the working directory for the server process.
	Dir string

	// URL is a ws:// or wss:// endpoint. When set, the server is
	// reached over WebSocket instead of a spawned process.
	URL string

	// Languages this server serves (LSP language identifiers).
	Languages []string

	// Priority ranks specs when several serve the same language.
	// Higher wins.
	Priority int

	// InitializationOptions are sent in the initialize request.
	InitializationOptions any

	// Settings are pushed via workspace/didChangeConfiguration and
	// answered to workspace/configuration requests.
	Settings map[string]any
}

// ServesLanguage reports whether the spec covers the given language.
func (s ServerSpec) ServesLanguage(language string) bool {
	for _, l := range s.Languages {
		if l == language {
			return true
		}
	}
	return false
}

// RPC is the connection surface the manager needs from a transport.
// It is implemented by jsonrpc2.Conn; tests substitute fakes.
type RPC interface {
	Call(ctx context.Context, method string, params, result any) error
	Notify(ctx context.Context, method string, params any) error
	Close() error
	DisconnectNotify() <-chan struct{}
}

// InboundHandler receives server-initiated traffic. For notifications
// the returned result is discarded; for requests it is sent back as the
// response, with a nil result producing a null reply.
type InboundHandler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// TransportFactory dials the wire transport for a server.
// The factory does not initialize the protocol; that is the
// Connection's job.
type TransportFactory interface {
	Dial(ctx context.Context, spec ServerSpec, handler InboundHandler) (RPC, error)
}

// TransportFactoryFunc adapts a function to the TransportFactory
// interface.
type TransportFactoryFunc func(ctx context.Context, spec ServerSpec, handler InboundHandler) (RPC, error)

// Dial implements TransportFactory.
func (f TransportFactoryFunc) Dial(ctx context.Context, spec ServerSpec, handler InboundHandler) (RPC, error) {
	return f(ctx, spec, handler)
}

// DefaultTransportFactory routes by spec: WebSocket when URL is set,
// otherwise a spawned stdio process.
func DefaultTransportFactory() TransportFactory {
	stdio := &StdioTransportFactory{}
	ws := &WebSocketTransportFactory{}
	return TransportFactoryFunc(func(ctx context.Context, spec ServerSpec, handler InboundHandler) (RPC, error) {
		if spec.URL != "" {
			return ws.Dial(ctx, spec, handler)
		}
		return stdio.Dial(ctx, spec, handler)
	})
}

// inboundAdapter bridges jsonrpc2's handler interface to an
// InboundHandler.
type inboundAdapter struct {
	handler InboundHandler
}

// Handle implements jsonrpc2.Handler.
func (a inboundAdapter) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params json.RawMessage
	if req.Params != nil {
		params = *req.Params
	}

	result, err := a.handler(ctx, req.Method, params)
	if req.Notif {
		return
	}

	if err != nil {
		_ = conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeInternalError,
			Message: err.Error(),
		})
		return
	}
	_ = conn.Reply(ctx, req.ID, result)
}

// StdioTransportFactory spawns the server executable and speaks LSP
// base-protocol framing over its stdin/stdout.
type StdioTransportFactory struct{}

// Dial implements TransportFactory.
func (f *StdioTransportFactory) Dial(ctx context.Context, spec ServerSpec, handler InboundHandler) (RPC, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("server %s: no command configured", spec.ID)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	pipe := &processPipe{cmd: cmd, stdout: stdout, stdin: stdin}
	stream := jsonrpc2.NewBufferedStream(pipe, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(inboundAdapter{handler: handler}))

	return &jsonrpcConn{conn: conn}, nil
}

// processPipe combines a child process's stdout/stdin into a single
// ReadWriteCloser; closing it also reaps the process.
type processPipe struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stdin  io.WriteCloser
}

func (p *processPipe) Read(b []byte) (int, error)  { return p.stdout.Read(b) }
func (p *processPipe) Write(b []byte) (int, error) { return p.stdin.Write(b) }

func (p *processPipe) Close() error {
	p.stdin.Close()
	p.stdout.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	return p.cmd.Wait()
}

// WebSocketTransportFactory reaches a server over a WebSocket endpoint.
type WebSocketTransportFactory struct {
	// Dialer overrides websocket.DefaultDialer when set.
	Dialer *websocket.Dialer
}

// Dial implements TransportFactory.
func (f *WebSocketTransportFactory) Dial(ctx context.Context, spec ServerSpec, handler InboundHandler) (RPC, error) {
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	wsConn, resp, err := dialer.DialContext(ctx, spec.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", spec.URL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	stream := wsjsonrpc2.NewObjectStream(wsConn)
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(inboundAdapter{handler: handler}))

	return &jsonrpcConn{conn: conn}, nil
}

// jsonrpcConn adapts *jsonrpc2.Conn to the RPC interface.
type jsonrpcConn struct {
	conn *jsonrpc2.Conn
}

func (c *jsonrpcConn) Call(ctx context.Context, method string, params, result any) error {
	return c.conn.Call(ctx, method, params, result)
}

func (c *jsonrpcConn) Notify(ctx context.Context, method string, params any) error {
	return c.conn.Notify(ctx, method, params)
}

func (c *jsonrpcConn) Close() error {
	return c.conn.Close()
}

func (c *jsonrpcConn) DisconnectNotify() <-chan struct{} {
	return c.conn.DisconnectNotify()
}
