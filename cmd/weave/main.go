// Package main is the weave connection checker. It loads a
// configuration file, dials every language server listed in it, runs
// the initialize handshake, and reports what each server offers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/weavedoc/weave/internal/config"
	"github.com/weavedoc/weave/internal/lsp"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		timeout     time.Duration
		verbose     bool
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "weave.yaml", "Path to configuration file")
	flag.StringVar(&configPath, "c", "weave.yaml", "Path to configuration file (shorthand)")
	flag.DurationVar(&timeout, "timeout", 15*time.Second, "Per-server handshake timeout")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("weave %s (%s)\n", version, commit)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(cfg.Servers) == 0 {
		fmt.Fprintln(os.Stderr, "Error: configuration lists no servers")
		return 1
	}

	logger := newLogger(verbose, cfg.Logging.Level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := lsp.NewConnectionManager(lsp.DefaultTransportFactory(),
		lsp.WithLogger(logger))
	for _, spec := range cfg.ServerSpecs() {
		manager.RegisterServer(spec)
	}
	manager.UpdateLogging(ctx, cfg.Trace(), cfg.Logging.LogAllCommunication)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	failures := 0
	for _, spec := range cfg.ServerSpecs() {
		if err := checkServer(ctx, manager, spec, timeout); err != nil {
			fmt.Printf("FAIL %-20s %v\n", spec.ID, err)
			failures++
			continue
		}
	}

	if failures > 0 {
		fmt.Printf("\n%d of %d servers failed\n", failures, len(cfg.Servers))
		return 1
	}
	return 0
}

// checkServer dials one server through the shared manager and waits
// for its handshake to settle.
func checkServer(ctx context.Context, manager *lsp.ConnectionManager, spec lsp.ServerSpec, timeout time.Duration) error {
	probe := lsp.DocumentURI("weave:///check/" + spec.ID)
	conn, err := manager.Connect(ctx, lsp.ConnectOptions{
		URI:      probe,
		Language: spec.Languages[0],
	})
	if err != nil {
		return err
	}
	defer manager.UnregisterDocument(probe)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()

	for {
		switch conn.State() {
		case lsp.StateReady:
			report(spec.ID, conn)
			return nil
		case lsp.StateErrored, lsp.StateClosed:
			if err := conn.Err(); err != nil {
				return err
			}
			return fmt.Errorf("connection closed during handshake")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("no handshake within %s", timeout)
		case <-tick.C:
		}
	}
}

func report(id string, conn *lsp.Connection) {
	name := "unknown server"
	if info := conn.ServerInfo(); info != nil {
		name = info.Name
		if info.Version != "" {
			name += " " + info.Version
		}
	}

	caps := conn.Capabilities()
	sync := "none"
	switch caps.SyncKind {
	case lsp.SyncFull:
		sync = "full"
	case lsp.SyncIncremental:
		// Negotiation downgrades incremental to full; seeing it here
		// would mean the handshake skipped negotiation.
		sync = "incremental"
	}

	fmt.Printf("OK   %-20s %s (sync=%s openClose=%t save=%t)\n",
		id, name, sync, caps.OpenClose, caps.Save)
}

func newLogger(verbose bool, level string) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			zc.Level = zap.NewAtomicLevelAt(parsed)
		}
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
