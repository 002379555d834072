// Package config loads and watches the weave configuration file.
//
// Configuration describes the language servers available to the
// integration (command or websocket URL, the languages each serves,
// priorities, settings forwarded during the handshake) plus scripted
// extractors and logging. Files are YAML or TOML, chosen by
// extension. A watcher built on fsnotify re-reads the file on change
// and publishes the new configuration through a signal, debounced so
// editor save storms collapse into one reload.
package config
