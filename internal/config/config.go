package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/weavedoc/weave/internal/extract"
	"github.com/weavedoc/weave/internal/lsp"
)

// ErrUnsupportedFormat is returned for config files whose extension is
// neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// ServerConfig describes one language server.
type ServerConfig struct {
	ID       string            `yaml:"id" toml:"id"`
	Command  string            `yaml:"command" toml:"command"`
	Args     []string          `yaml:"args" toml:"args"`
	Env      map[string]string `yaml:"env" toml:"env"`
	Dir      string            `yaml:"dir" toml:"dir"`
	URL      string            `yaml:"url" toml:"url"`
	Priority int               `yaml:"priority" toml:"priority"`

	// Languages this server serves, by language identifier.
	Languages []string `yaml:"languages" toml:"languages"`

	// InitializationOptions are passed verbatim in the initialize
	// request; Settings are pushed via didChangeConfiguration and
	// answered to workspace/configuration pulls.
	InitializationOptions map[string]any `yaml:"initialization_options" toml:"initialization_options"`
	Settings              map[string]any `yaml:"settings" toml:"settings"`
}

// ExtractorConfig describes one Lua-scripted foreign code extractor.
// Script is inline source; ScriptFile is a path read at build time.
// Exactly one of the two must be set.
type ExtractorConfig struct {
	HostLanguage string `yaml:"host_language" toml:"host_language"`
	Kind         string `yaml:"kind" toml:"kind"`
	Script       string `yaml:"script" toml:"script"`
	ScriptFile   string `yaml:"script_file" toml:"script_file"`
}

// LoggingConfig controls diagnostic output.
type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `yaml:"level" toml:"level"`

	// Trace is the LSP trace value requested from servers:
	// off, messages or verbose.
	Trace string `yaml:"trace" toml:"trace"`

	// LogAllCommunication echoes every outbound notification at
	// debug level.
	LogAllCommunication bool `yaml:"log_all_communication" toml:"log_all_communication"`
}

// Config is the root configuration document.
type Config struct {
	Servers    []ServerConfig    `yaml:"servers" toml:"servers"`
	Extractors []ExtractorConfig `yaml:"extractors" toml:"extractors"`
	Logging    LoggingConfig     `yaml:"logging" toml:"logging"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Trace: string(lsp.TraceOff)},
	}
}

// Load reads and validates a configuration file. The format follows
// the extension: .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural requirements the decoders cannot express.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Servers))
	for i, s := range c.Servers {
		if s.ID == "" {
			return fmt.Errorf("config: server %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("config: duplicate server id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Command == "" && s.URL == "" {
			return fmt.Errorf("config: server %q has neither command nor url", s.ID)
		}
		if s.Command != "" && s.URL != "" {
			return fmt.Errorf("config: server %q has both command and url", s.ID)
		}
		if len(s.Languages) == 0 {
			return fmt.Errorf("config: server %q serves no languages", s.ID)
		}
	}

	for i, e := range c.Extractors {
		if e.HostLanguage == "" {
			return fmt.Errorf("config: extractor %d has no host_language", i)
		}
		if (e.Script == "") == (e.ScriptFile == "") {
			return fmt.Errorf("config: extractor %d must set exactly one of script and script_file", i)
		}
	}

	switch c.Logging.Trace {
	case "", string(lsp.TraceOff), string(lsp.TraceMessages), string(lsp.TraceVerbose):
	default:
		return fmt.Errorf("config: invalid trace value %q", c.Logging.Trace)
	}
	return nil
}

// ServerSpecs converts the server entries into connection manager
// specs.
func (c *Config) ServerSpecs() []lsp.ServerSpec {
	specs := make([]lsp.ServerSpec, len(c.Servers))
	for i, s := range c.Servers {
		specs[i] = lsp.ServerSpec{
			ID:                    s.ID,
			Command:               s.Command,
			Args:                  s.Args,
			Env:                   s.Env,
			Dir:                   s.Dir,
			URL:                   s.URL,
			Languages:             s.Languages,
			Priority:              s.Priority,
			InitializationOptions: s.InitializationOptions,
			Settings:              s.Settings,
		}
	}
	return specs
}

// Trace returns the configured LSP trace value.
func (c *Config) Trace() lsp.TraceValue {
	if c.Logging.Trace == "" {
		return lsp.TraceOff
	}
	return lsp.TraceValue(c.Logging.Trace)
}

// BuildExtractors compiles the scripted extractors and registers them.
// The returned closers release the Lua states; callers hold them until
// the registry is retired.
func (c *Config) BuildExtractors(registry *extract.Registry) ([]func(), error) {
	var closers []func()
	for i, e := range c.Extractors {
		script := e.Script
		if e.ScriptFile != "" {
			data, err := os.ReadFile(e.ScriptFile)
			if err != nil {
				closeAll(closers)
				return nil, fmt.Errorf("config: extractor %d: %w", i, err)
			}
			script = string(data)
		}

		ex, err := extract.NewLuaExtractor(script)
		if err != nil {
			closeAll(closers)
			return nil, fmt.Errorf("config: extractor %d: %w", i, err)
		}
		closers = append(closers, ex.Close)

		kind := e.Kind
		if kind == "" {
			kind = extract.KindCode
		}
		registry.Register(e.HostLanguage, kind, ex)
	}
	return closers, nil
}

func closeAll(closers []func()) {
	for _, fn := range closers {
		fn()
	}
}
