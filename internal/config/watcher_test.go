package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weave.yaml")
	initial := "servers:\n  - id: a\n    command: x\n    languages: [python]\n"
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	got := make(chan *Config, 1)
	w.Changed.Connect(func(cfg *Config) {
		select {
		case got <- cfg:
		default:
		}
	})

	updated := initial + "  - id: b\n    command: y\n    languages: [go]\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if len(cfg.Servers) != 2 {
			t.Errorf("reloaded servers = %d, want 2", len(cfg.Servers))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatcherKeepsPreviousOnBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weave.yaml")
	if err := os.WriteFile(path, []byte("servers: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	emissions := 0
	w.Changed.Connect(func(*Config) { emissions++ })

	// A revision that fails validation must not be published.
	broken := "servers:\n  - id: a\n    languages: [python]\n"
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if emissions != 0 {
		t.Errorf("emissions = %d, want broken revision suppressed", emissions)
	}
}

func TestWatcherCloseIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weave.toml")
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
