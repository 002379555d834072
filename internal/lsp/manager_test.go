package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeRPC is an in-memory transport that answers the handshake and
// records everything sent through it.
type fakeRPC struct {
	mu            sync.Mutex
	calls         []string
	notifications []sentMessage
	initResult    InitializeResult
	initErr       error
	disconnect    chan struct{}
	closeOnce     sync.Once
}

type sentMessage struct {
	method string
	params any
}

func newFakeRPC(sync TextDocumentSyncValue) *fakeRPC {
	return &fakeRPC{
		initResult: InitializeResult{
			Capabilities: ServerCapabilities{TextDocumentSync: sync},
			ServerInfo:   &ServerInfo{Name: "fake-ls", Version: "0.1"},
		},
		disconnect: make(chan struct{}),
	}
}

func fullSync() TextDocumentSyncValue {
	return TextDocumentSyncValue{Options: TextDocumentSyncOptions{
		OpenClose: true,
		Change:    SyncFull,
		Save:      &SaveOptions{IncludeText: true},
	}}
}

func (f *fakeRPC) Call(ctx context.Context, method string, params, result any) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	f.mu.Unlock()

	if method == MethodInitialize {
		if f.initErr != nil {
			return f.initErr
		}
		data, err := json.Marshal(f.initResult)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, result)
	}
	return nil
}

func (f *fakeRPC) Notify(ctx context.Context, method string, params any) error {
	f.mu.Lock()
	f.notifications = append(f.notifications, sentMessage{method: method, params: params})
	f.mu.Unlock()
	return nil
}

func (f *fakeRPC) Close() error {
	f.closeOnce.Do(func() { close(f.disconnect) })
	return nil
}

func (f *fakeRPC) DisconnectNotify() <-chan struct{} { return f.disconnect }

func (f *fakeRPC) sent(method string) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.notifications {
		if m.method == method {
			out = append(out, m)
		}
	}
	return out
}

func fakeFactory(rpc *fakeRPC) TransportFactory {
	return TransportFactoryFunc(func(ctx context.Context, spec ServerSpec, handler InboundHandler) (RPC, error) {
		return rpc, nil
	})
}

func waitState(t *testing.T, conn *Connection, want ConnectionState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if conn.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("connection state = %v, want %v", conn.State(), want)
		case <-time.After(time.Millisecond):
		}
	}
}

func pySpec() ServerSpec {
	return ServerSpec{ID: "pyls", Command: "pyls", Languages: []string{"python"}}
}

func TestConnectHandshake(t *testing.T) {
	rpc := newFakeRPC(fullSync())
	m := NewConnectionManager(fakeFactory(rpc))
	spec := pySpec()
	spec.Settings = map[string]any{"pyls": map[string]any{"plugins": true}}
	m.RegisterServer(spec)

	conn, err := m.Connect(context.Background(), ConnectOptions{URI: "weave:///a/python", Language: "python"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, conn, StateReady)

	caps := conn.Capabilities()
	if caps.SyncKind != SyncFull || !caps.OpenClose || !caps.Save || !caps.SaveIncludeText {
		t.Errorf("capabilities = %+v, want full sync with openClose and save", caps)
	}
	if info := conn.ServerInfo(); info == nil || info.Name != "fake-ls" {
		t.Errorf("server info = %+v, want fake-ls", info)
	}

	if n := rpc.sent(MethodInitialized); len(n) != 1 {
		t.Errorf("initialized notifications = %d, want 1", len(n))
	}
	if n := rpc.sent(MethodDidChangeConfiguration); len(n) != 1 {
		t.Errorf("settings pushes = %d, want 1", len(n))
	}
}

func TestConnectIncrementalDowngradesToFull(t *testing.T) {
	rpc := newFakeRPC(TextDocumentSyncValue{Options: TextDocumentSyncOptions{
		OpenClose: true,
		Change:    SyncIncremental,
	}})
	m := NewConnectionManager(fakeFactory(rpc))
	m.RegisterServer(pySpec())

	conn, err := m.Connect(context.Background(), ConnectOptions{URI: "weave:///a/python", Language: "python"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, conn, StateReady)

	caps := conn.Capabilities()
	if caps.SyncKind != SyncFull {
		t.Errorf("SyncKind = %v, want full", caps.SyncKind)
	}
	if caps.ServerSyncKind != SyncIncremental {
		t.Errorf("ServerSyncKind = %v, want the server's advertisement preserved", caps.ServerSyncKind)
	}
}

func TestConnectSharesConnection(t *testing.T) {
	rpc := newFakeRPC(fullSync())
	m := NewConnectionManager(fakeFactory(rpc))
	m.RegisterServer(pySpec())

	ctx := context.Background()
	first, err := m.Connect(ctx, ConnectOptions{URI: "weave:///a/python", Language: "python"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	second, err := m.Connect(ctx, ConnectOptions{URI: "weave:///b/python", Language: "python"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if first != second {
		t.Fatal("second Connect returned a different connection, want sharing")
	}
	if refs := first.Refs(); refs != 2 {
		t.Errorf("Refs = %d, want 2", refs)
	}
}

func TestZeroRefsHoldsConnectionWarm(t *testing.T) {
	rpc := newFakeRPC(fullSync())
	m := NewConnectionManager(fakeFactory(rpc))
	m.RegisterServer(pySpec())

	conn, err := m.Connect(context.Background(), ConnectOptions{URI: "weave:///a/python", Language: "python"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, conn, StateReady)

	m.UnregisterDocument("weave:///a/python")

	if refs := conn.Refs(); refs != 0 {
		t.Fatalf("Refs = %d, want 0", refs)
	}
	if conn.State() != StateReady {
		t.Errorf("state = %v, want the idle connection kept warm", conn.State())
	}
	if _, ok := m.Connection("pyls"); !ok {
		t.Error("idle connection dropped from the manager")
	}
}

func TestConnectNoServer(t *testing.T) {
	m := NewConnectionManager(fakeFactory(newFakeRPC(fullSync())))

	_, err := m.Connect(context.Background(), ConnectOptions{URI: "weave:///a/rust", Language: "rust"})
	if !errors.Is(err, ErrNoServer) {
		t.Errorf("err = %v, want ErrNoServer", err)
	}
}

func TestServerForPriority(t *testing.T) {
	m := NewConnectionManager(fakeFactory(newFakeRPC(fullSync())))
	m.RegisterServer(ServerSpec{ID: "b-low", Command: "x", Languages: []string{"python"}, Priority: 1})
	m.RegisterServer(ServerSpec{ID: "a-high", Command: "y", Languages: []string{"python"}, Priority: 5})
	m.RegisterServer(ServerSpec{ID: "c-tie", Command: "z", Languages: []string{"go"}, Priority: 1})
	m.RegisterServer(ServerSpec{ID: "a-tie", Command: "w", Languages: []string{"go"}, Priority: 1})

	if spec, ok := m.ServerFor("python"); !ok || spec.ID != "a-high" {
		t.Errorf("ServerFor(python) = %+v, want a-high", spec)
	}
	if spec, ok := m.ServerFor("go"); !ok || spec.ID != "a-tie" {
		t.Errorf("ServerFor(go) = %+v, want a-tie by identifier order", spec)
	}
}

func TestErroredConnectionReplacedOnConnect(t *testing.T) {
	dials := 0
	factory := TransportFactoryFunc(func(ctx context.Context, spec ServerSpec, handler InboundHandler) (RPC, error) {
		dials++
		if dials == 1 {
			return nil, fmt.Errorf("spawn failed")
		}
		return newFakeRPC(fullSync()), nil
	})
	m := NewConnectionManager(factory)
	m.RegisterServer(pySpec())

	ctx := context.Background()
	first, err := m.Connect(ctx, ConnectOptions{URI: "weave:///a/python", Language: "python"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, first, StateErrored)
	if first.Err() == nil {
		t.Error("Err() = nil on an errored connection")
	}

	second, err := m.Connect(ctx, ConnectOptions{URI: "weave:///a/python", Language: "python"})
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if second == first {
		t.Fatal("errored connection reused, want replacement")
	}
	waitState(t, second, StateReady)
}

func TestShutdown(t *testing.T) {
	rpc := newFakeRPC(fullSync())
	m := NewConnectionManager(fakeFactory(rpc))
	m.RegisterServer(pySpec())

	ctx := context.Background()
	conn, err := m.Connect(ctx, ConnectOptions{URI: "weave:///a/python", Language: "python"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, conn, StateReady)

	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if conn.State() != StateClosed {
		t.Errorf("state = %v, want closed", conn.State())
	}

	if _, err := m.Connect(ctx, ConnectOptions{URI: "weave:///a/python", Language: "python"}); !errors.Is(err, ErrManagerShutdown) {
		t.Errorf("Connect after shutdown = %v, want ErrManagerShutdown", err)
	}
}

func TestUpdateServerConfigurations(t *testing.T) {
	rpc := newFakeRPC(fullSync())
	m := NewConnectionManager(fakeFactory(rpc))
	m.RegisterServer(pySpec())

	ctx := context.Background()
	conn, err := m.Connect(ctx, ConnectOptions{URI: "weave:///a/python", Language: "python"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, conn, StateReady)

	m.UpdateServerConfigurations(ctx, map[string]map[string]any{
		"pyls": {"lint": "on"},
	})

	pushes := rpc.sent(MethodDidChangeConfiguration)
	if len(pushes) != 1 {
		t.Fatalf("configuration pushes = %d, want 1", len(pushes))
	}
	if got := conn.Spec().Settings["lint"]; got != "on" {
		t.Errorf("stored settings = %v, want lint on", conn.Spec().Settings)
	}
}

func TestUpdateLoggingBroadcastsTrace(t *testing.T) {
	rpc := newFakeRPC(fullSync())
	m := NewConnectionManager(fakeFactory(rpc))
	m.RegisterServer(pySpec())

	ctx := context.Background()
	conn, err := m.Connect(ctx, ConnectOptions{URI: "weave:///a/python", Language: "python"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitState(t, conn, StateReady)

	m.UpdateLogging(ctx, TraceVerbose, true)

	traces := rpc.sent(MethodSetTrace)
	if len(traces) != 1 {
		t.Fatalf("setTrace notifications = %d, want 1", len(traces))
	}
	params, ok := traces[0].params.(SetTraceParams)
	if !ok {
		t.Fatalf("setTrace params type %T", traces[0].params)
	}
	if params.Value != TraceVerbose {
		t.Errorf("trace value = %q, want verbose", params.Value)
	}
}
